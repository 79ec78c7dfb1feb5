package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/pgpool"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error {
	return f.err
}

type fakeStatser struct {
	stats map[string]pgpool.Stats
}

func (f *fakeStatser) Stats() map[string]pgpool.Stats {
	return f.stats
}

func TestCheck_AllHealthy(t *testing.T) {
	checker := NewHealthChecker(&fakePinger{}, &fakeStatser{
		stats: map[string]pgpool.Stats{
			"proj:inst:orders_app:postgres": {MaxSize: 2, MaxOverflow: 2, Created: 1, Idle: 1},
		},
	})

	status := checker.Check(context.Background())

	assert.Equal(t, StatusHealthy, status.Status)
	assert.Equal(t, StatusHealthy, status.Dependencies["registry"].Status)
	assert.Len(t, status.Pools, 1)
}

func TestCheck_RegistryDownDegrades(t *testing.T) {
	checker := NewHealthChecker(&fakePinger{err: errors.New("connection refused")}, &fakeStatser{})

	status := checker.Check(context.Background())

	assert.Equal(t, StatusDegraded, status.Status)
	assert.Equal(t, StatusUnhealthy, status.Dependencies["registry"].Status)
	assert.Contains(t, status.Dependencies["registry"].Message, "connection refused")
}

func TestCheck_NilDependencies(t *testing.T) {
	checker := NewHealthChecker(nil, nil)

	status := checker.Check(context.Background())

	assert.Equal(t, StatusHealthy, status.Status)
	assert.Empty(t, status.Dependencies)
	assert.Nil(t, status.Pools)
}

func TestLiveness(t *testing.T) {
	checker := NewHealthChecker(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	checker.Liveness(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusHealthy, body["status"])
}

func TestReadiness_DegradedStillReady(t *testing.T) {
	checker := NewHealthChecker(&fakePinger{err: errors.New("redis down")}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	checker.Readiness(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusDegraded, body.Status)
}

func TestRegisterHealthRoutes(t *testing.T) {
	checker := NewHealthChecker(&fakePinger{}, nil)
	mux := http.NewServeMux()
	RegisterHealthRoutes(mux, checker)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
