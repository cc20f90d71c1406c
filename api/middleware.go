package api

import (
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/longhorn/resource-dispatcher/types"
)

// RootURLMiddleware injects X-Forwarded-* headers based on the root-url setting, so the
// links and actions of API responses point at the external URL of the dispatcher.
func RootURLMiddleware(s *Server) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rootURL, err := s.ds.GetSettingValue(types.SettingNameRootURL)
			if err != nil {
				logrus.WithError(err).Warn("Failed to get root-url setting, using default behavior")
				next.ServeHTTP(w, r)
				return
			}
			if rootURL == "" {
				next.ServeHTTP(w, r)
				return
			}

			if err := injectForwardedHeaders(r, rootURL); err != nil {
				logrus.WithError(err).Warn("Failed to inject forwarded headers")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// injectForwardedHeaders overrides any existing X-Forwarded-* headers with the parts of
// rootURL.
func injectForwardedHeaders(r *http.Request, rootURL string) error {
	u, err := url.Parse(rootURL)
	if err != nil {
		return err
	}

	r.Header.Set("X-Forwarded-Proto", u.Scheme)
	r.Header.Set("X-Forwarded-Host", u.Hostname())

	port := u.Port()
	if port == "" || (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		r.Header.Del("X-Forwarded-Port")
	} else {
		r.Header.Set("X-Forwarded-Port", port)
	}
	return nil
}
