package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubZeebe struct{ err error }

func (s stubZeebe) HealthCheck(context.Context) error { return s.err }

func TestOpsRouter(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		deps       error
		zeebe      error
		wantCode   int
		wantStatus string
	}{
		{name: "health", path: "/health", deps: stderrors.New("down"), wantCode: http.StatusOK, wantStatus: "healthy"},
		{name: "ready", path: "/ready", wantCode: http.StatusOK, wantStatus: "ready"},
		{name: "backing service down", path: "/ready", deps: stderrors.New("redis ping failed"), wantCode: http.StatusServiceUnavailable, wantStatus: "not ready"},
		{name: "zeebe down", path: "/ready", zeebe: stderrors.New("zeebe health check failed"), wantCode: http.StatusServiceUnavailable, wantStatus: "not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := opsRouter(stubPinger{err: tt.deps}, stubZeebe{err: tt.zeebe})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body["status"])
		})
	}
}

func TestOpsRouter_Metrics(t *testing.T) {
	router := opsRouter(stubPinger{}, stubZeebe{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
