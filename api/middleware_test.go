package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInjectForwardedHeaders(t *testing.T) {
	tests := []struct {
		name               string
		rootURL            string
		expectedProto      string
		expectedHost       string
		expectedPort       string
		expectedPortExists bool
	}{
		{
			name:          "https with default port",
			rootURL:       "https://ci.example.com/",
			expectedProto: "https",
			expectedHost:  "ci.example.com",
		},
		{
			name:          "http with explicit default port 80",
			rootURL:       "http://ci.example.com:80/",
			expectedProto: "http",
			expectedHost:  "ci.example.com",
		},
		{
			name:               "http with custom port",
			rootURL:            "http://ci.example.com:8080/jenkins/",
			expectedProto:      "http",
			expectedHost:       "ci.example.com",
			expectedPort:       "8080",
			expectedPortExists: true,
		},
		{
			name:               "IPv6 address with port",
			rootURL:            "http://[2001:db8::1]:9510",
			expectedProto:      "http",
			expectedHost:       "2001:db8::1",
			expectedPort:       "9510",
			expectedPortExists: true,
		},
		{
			name:               "https with non-default port 80",
			rootURL:            "https://ci.example.com:80",
			expectedProto:      "https",
			expectedHost:       "ci.example.com",
			expectedPort:       "80",
			expectedPortExists: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "http://example.com/v1/nodes", nil)

			err := injectForwardedHeaders(req, tt.rootURL)
			assert.NoError(t, err)

			assert.Equal(t, tt.expectedProto, req.Header.Get("X-Forwarded-Proto"))
			assert.Equal(t, tt.expectedHost, req.Header.Get("X-Forwarded-Host"))
			if tt.expectedPortExists {
				assert.Equal(t, tt.expectedPort, req.Header.Get("X-Forwarded-Port"))
			} else {
				assert.Empty(t, req.Header.Get("X-Forwarded-Port"))
			}
		})
	}
}

func TestInjectForwardedHeadersOverride(t *testing.T) {
	req := httptest.NewRequest("GET", "http://example.com/v1/nodes", nil)
	req.Header.Set("X-Forwarded-Proto", "http")
	req.Header.Set("X-Forwarded-Host", "old.example.com")
	req.Header.Set("X-Forwarded-Port", "8080")

	err := injectForwardedHeaders(req, "https://new.example.com:9443")
	assert.NoError(t, err)

	assert.Equal(t, "https", req.Header.Get("X-Forwarded-Proto"))
	assert.Equal(t, "new.example.com", req.Header.Get("X-Forwarded-Host"))
	assert.Equal(t, "9443", req.Header.Get("X-Forwarded-Port"))
}

func TestInjectForwardedHeadersInvalidURL(t *testing.T) {
	req := httptest.NewRequest("GET", "http://example.com/v1/nodes", nil)

	err := injectForwardedHeaders(req, "://invalid")
	assert.Error(t, err)
}
