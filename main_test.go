package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"clip-wizard-server/modules/common/config"
	"clip-wizard-server/modules/proxy"
	"clip-wizard-server/modules/wizard"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(t *testing.T) (*mux.Router, *int32) {
	t.Helper()
	var upstreamCalls int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&upstreamCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"video_url":"https://cdn.example.com/v.mp4"}}`))
	}))
	t.Cleanup(upstream.Close)

	cfg := &config.Config{
		KlingAccessKey:       "ak-test-123456",
		KlingSecretKey:       "sk-test-654321",
		KlingAPIURL:          upstream.URL,
		KlingAuthScheme:      proxy.SchemeBearer,
		ProxyUpstreamTimeout: 5 * time.Second,
	}
	manager := wizard.NewManager(nil, nil, nil, wizard.ManagerOptions{SessionTTL: time.Hour})
	t.Cleanup(manager.Close)

	return newRouter(proxy.NewHandler(cfg), wizard.NewHandler(manager, nil)), &upstreamCalls
}

func TestProxyRouteMethods(t *testing.T) {
	r, upstreamCalls := testRouter(t)

	tests := []struct {
		method string
		status int
	}{
		{http.MethodOptions, http.StatusOK},
		{http.MethodGet, http.StatusMethodNotAllowed},
		{http.MethodPut, http.StatusMethodNotAllowed},
		{http.MethodDelete, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, proxy.Route, strings.NewReader(`{"prompt":"a dog"}`))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
			if tt.method == http.MethodOptions {
				assert.Empty(t, w.Body.String())
			}
		})
	}

	assert.Equal(t, int32(0), atomic.LoadInt32(upstreamCalls))
}

func TestHealthCheck(t *testing.T) {
	r, _ := testRouter(t)

	for _, path := range []string{"/", "/health"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "clip-wizard-server", body["service"])
	}
}
