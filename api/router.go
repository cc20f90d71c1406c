package api

import (
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rancher/go-rancher/api"
	"github.com/rancher/go-rancher/client"
	"github.com/sirupsen/logrus"

	"github.com/longhorn/resource-dispatcher/metrics_collector/registry"
)

type HandleFuncWithError func(http.ResponseWriter, *http.Request) error

func HandleError(s *client.Schemas, t HandleFuncWithError) http.Handler {
	return api.ApiHandler(s, http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		if err := t(rw, req); err != nil {
			logrus.WithError(err).Warnf("HTTP handling error")
			apiContext := api.GetApiContext(req)
			apiContext.WriteErr(err)
		}
	}))
}

func NewRouter(s *Server) *mux.Router {
	schemas := NewSchema()
	r := mux.NewRouter().StrictSlash(true)
	f := HandleError

	versionsHandler := api.VersionsHandler(schemas, "v1")
	versionHandler := api.VersionHandler(schemas, "v1")
	r.Methods("GET").Path("/").Handler(versionsHandler)
	r.Methods("GET").Path("/v1").Handler(versionHandler)
	r.Methods("GET").Path("/v1/apiversions").Handler(versionsHandler)
	r.Methods("GET").Path("/v1/apiversions/v1").Handler(versionHandler)
	r.Methods("GET").Path("/v1/schemas").Handler(api.SchemasHandler(schemas))
	r.Methods("GET").Path("/v1/schemas/{id}").Handler(api.SchemaHandler(schemas))

	r.Methods("GET").Path("/v1/settings").Handler(f(schemas, s.SettingList))
	r.Methods("GET").Path("/v1/settings/{name}").Handler(f(schemas, s.SettingGet))
	r.Methods("PUT").Path("/v1/settings/{name}").Handler(f(schemas, s.SettingSet))

	r.Methods("GET").Path("/v1/nodes").Handler(f(schemas, s.NodeList))
	r.Methods("GET").Path("/v1/nodes/{name}").Handler(f(schemas, s.NodeGet))
	r.Methods("PUT").Path("/v1/nodes/{name}").Handler(f(schemas, s.NodeUpdate))
	r.Methods("DELETE").Path("/v1/nodes/{name}").Handler(f(schemas, s.NodeDelete))

	r.Methods("GET").Path("/v1/nodes/{name}/resources").Handler(f(schemas, s.ResourceList))
	r.Methods("GET").Path("/v1/nodes/{name}/resources/{id}").Handler(f(schemas, s.ResourceGet))
	resourceActions := map[string]func(http.ResponseWriter, *http.Request) error{
		"enable":  s.ResourceEnable,
		"disable": s.ResourceDisable,
		"reserve": s.ResourceReserve,
		"lock":    s.ResourceLock,
		"release": s.ResourceRelease,
		"expire":  s.ResourceExpire,
	}
	for name, action := range resourceActions {
		r.Methods("POST").Path("/v1/nodes/{name}/resources/{id}").Queries("action", name).Handler(f(schemas, action))
	}

	r.Methods("POST").Path("/v1/dispatch").Queries("action", "canTake").Handler(f(schemas, s.DispatchCanTake))

	r.Methods("GET").Path("/v1/runs").Handler(f(schemas, s.RunList))
	r.Methods("GET").Path("/v1/runs/{id}").Handler(f(schemas, s.RunGet))
	runActions := map[string]func(http.ResponseWriter, *http.Request) error{
		"prepare":  s.RunPrepare,
		"complete": s.RunComplete,
	}
	for name, action := range runActions {
		r.Methods("POST").Path("/v1/runs/{id}").Queries("action", name).Handler(f(schemas, action))
	}

	r.Methods("GET").Path("/v1/carriers").Handler(f(schemas, s.CarrierList))
	r.Methods("GET").Path("/v1/carriers/{id}").Handler(f(schemas, s.CarrierGet))

	r.Methods("GET").Path("/v1/notifications").Handler(f(schemas, s.NotificationList))

	r.Path("/metrics").Handler(registry.Handler())

	r.Use(RootURLMiddleware(s))

	return r
}

// NewHandler wraps the router with access logging and panic recovery.
func NewHandler(s *Server) http.Handler {
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(logrus.StandardLogger()),
		handlers.PrintRecoveryStack(true),
	)
	return handlers.CombinedLoggingHandler(os.Stdout, recovery(NewRouter(s)))
}
