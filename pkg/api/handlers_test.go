package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/pgpool"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/reconciler"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/registry"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/roles"
)

type fakeReconciler struct {
	req        reconciler.Request
	result     *reconciler.Result
	identities []string
	err        error
}

func (f *fakeReconciler) Reconcile(ctx context.Context, req reconciler.Request) (*reconciler.Result, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeReconciler) ExistingIdentities(ctx context.Context, target pgpool.Target) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identities, nil
}

type fakeInitializer struct {
	req    reconciler.InitializeRequest
	result *reconciler.InitializeResult
	err    error
}

func (f *fakeInitializer) Initialize(ctx context.Context, req reconciler.InitializeRequest) (*reconciler.InitializeResult, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeRegistryReader struct {
	record  *registry.Record
	history []registry.HistoryEntry
	err     error
}

func (f *fakeRegistryReader) Get(ctx context.Context, project, instance, database string) (*registry.Record, error) {
	return f.record, f.err
}

func (f *fakeRegistryReader) History(ctx context.Context, project, instance, database string) ([]registry.HistoryEntry, error) {
	return f.history, f.err
}

type fakePools struct {
	stats map[string]pgpool.Stats
}

func (f *fakePools) Stats() map[string]pgpool.Stats {
	return f.stats
}

func testServer(rec *fakeReconciler, init *fakeInitializer, reg *fakeRegistryReader, pools *fakePools) *Server {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewServer(rec, init, reg, pools, log)
}

func convergedResult() *reconciler.Result {
	return &reconciler.Result{
		Success:        true,
		Status:         reconciler.StatusConverged,
		Message:        "1 users processed, 0 revoked",
		UsersProcessed: 1,
		MissingUsers:   []string{},
		Duration:       120 * time.Millisecond,
	}
}

func reconcileBody() []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"project_id":    "my-project",
		"instance_name": "pg-main",
		"database_name": "orders_app",
		"region":        "europe-west1",
		"schema_name":   "app_data",
		"iam_users": []map[string]string{
			{"name": "svc-a@my-project.iam.gserviceaccount.com", "permission_role": "reader"},
		},
	})
	return body
}

func pushEnvelope(t *testing.T, payload []byte, messageID string) []byte {
	t.Helper()
	envelope := map[string]interface{}{
		"message": map[string]interface{}{
			"data":        base64.StdEncoding.EncodeToString(payload),
			"messageId":   messageID,
			"publishTime": time.Now().UTC().Format(time.RFC3339),
		},
		"subscription": "projects/my-project/subscriptions/iam-sync",
	}
	body, err := json.Marshal(envelope)
	require.NoError(t, err)
	return body
}

func TestReconcilePermissions(t *testing.T) {
	rec := &fakeReconciler{result: convergedResult()}
	srv := testServer(rec, &fakeInitializer{}, &fakeRegistryReader{}, &fakePools{})

	req := httptest.NewRequest(http.MethodPost, "/v1/permissions/reconcile", bytes.NewReader(reconcileBody()))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var result reconciler.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, reconciler.StatusConverged, result.Status)

	assert.Equal(t, "orders_app", rec.req.Database)
	assert.Equal(t, "app_data", rec.req.SchemaName)
	require.Len(t, rec.req.Assignments, 1)
	assert.Equal(t, "reader", rec.req.Assignments[0].RoleType)
}

func TestReconcilePermissions_MissingField(t *testing.T) {
	rec := &fakeReconciler{result: convergedResult()}
	srv := testServer(rec, &fakeInitializer{}, &fakeRegistryReader{}, &fakePools{})

	body, _ := json.Marshal(map[string]interface{}{
		"project_id": "my-project",
		"region":     "europe-west1",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/permissions/reconcile", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "instance_name")
}

func TestReconcilePermissions_InvalidJSON(t *testing.T) {
	srv := testServer(&fakeReconciler{}, &fakeInitializer{}, &fakeRegistryReader{}, &fakePools{})

	req := httptest.NewRequest(http.MethodPost, "/v1/permissions/reconcile", bytes.NewReader([]byte("{broken")))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconcilePermissions_ConnectionFailure(t *testing.T) {
	rec := &fakeReconciler{err: fmt.Errorf("%w: dial failed", reconciler.ErrConnectionFailure)}
	srv := testServer(rec, &fakeInitializer{}, &fakeRegistryReader{}, &fakePools{})

	req := httptest.NewRequest(http.MethodPost, "/v1/permissions/reconcile", bytes.NewReader(reconcileBody()))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReconcilePermissions_PartialFailureStillOK(t *testing.T) {
	rec := &fakeReconciler{result: &reconciler.Result{
		Success:      true,
		Status:       reconciler.StatusPartialFailure,
		GrantErrors:  1,
		MissingUsers: []string{},
	}}
	srv := testServer(rec, &fakeInitializer{}, &fakeRegistryReader{}, &fakePools{})

	req := httptest.NewRequest(http.MethodPost, "/v1/permissions/reconcile", bytes.NewReader(reconcileBody()))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(reconciler.StatusPartialFailure))
}

func TestPubSubPush_Acks(t *testing.T) {
	rec := &fakeReconciler{result: convergedResult()}
	srv := testServer(rec, &fakeInitializer{}, &fakeRegistryReader{}, &fakePools{})

	body := pushEnvelope(t, reconcileBody(), "msg-42")
	req := httptest.NewRequest(http.MethodPost, "/v1/pubsub/push", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "msg-42", rec.req.MessageID)
}

func TestPubSubPush_AcksPoisonMessage(t *testing.T) {
	rec := &fakeReconciler{result: convergedResult()}
	srv := testServer(rec, &fakeInitializer{}, &fakeRegistryReader{}, &fakePools{})

	// Valid envelope with a payload that fails validation.
	body := pushEnvelope(t, []byte(`{"project_id":"my-project"}`), "msg-43")
	req := httptest.NewRequest(http.MethodPost, "/v1/pubsub/push", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, rec.req.Database, "poison message must not reach the reconciler")
}

func TestPubSubPush_InfrastructureFailureTriggersRedelivery(t *testing.T) {
	rec := &fakeReconciler{err: fmt.Errorf("%w: schema create failed", reconciler.ErrSchemaUnavailable)}
	srv := testServer(rec, &fakeInitializer{}, &fakeRegistryReader{}, &fakePools{})

	body := pushEnvelope(t, reconcileBody(), "msg-44")
	req := httptest.NewRequest(http.MethodPost, "/v1/pubsub/push", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestInitializeRoles(t *testing.T) {
	init := &fakeInitializer{result: &reconciler.InitializeResult{
		Success: true,
		Created: []string{"orders_app_app_data_reader"},
		Updated: []string{},
		Skipped: []string{},
	}}
	srv := testServer(&fakeReconciler{}, init, &fakeRegistryReader{}, &fakePools{})

	body, _ := json.Marshal(reconciler.InitializeRequest{
		Project:    "my-project",
		Region:     "europe-west1",
		Instance:   "pg-main",
		Database:   "orders_app",
		SchemaName: "app_data",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/roles/initialize", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "orders_app_app_data_reader")
}

func TestInitializeRoles_SchemaDefaulted(t *testing.T) {
	init := &fakeInitializer{result: &reconciler.InitializeResult{Success: true}}
	srv := testServer(&fakeReconciler{}, init, &fakeRegistryReader{}, &fakePools{})

	body, _ := json.Marshal(reconciler.InitializeRequest{
		Project:  "my-project",
		Region:   "europe-west1",
		Instance: "pg-main",
		Database: "orders_app",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/roles/initialize", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "orders_app_schema", init.req.SchemaName)
}

func TestInitializeRoles_MissingDatabase(t *testing.T) {
	srv := testServer(&fakeReconciler{}, &fakeInitializer{}, &fakeRegistryReader{}, &fakePools{})

	body, _ := json.Marshal(reconciler.InitializeRequest{
		Project:  "my-project",
		Region:   "europe-west1",
		Instance: "pg-main",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/roles/initialize", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "database_name")
}

func TestInitializeRoles_ReservedSchemaRejected(t *testing.T) {
	init := &fakeInitializer{result: &reconciler.InitializeResult{Success: true}}
	srv := testServer(&fakeReconciler{}, init, &fakeRegistryReader{}, &fakePools{})

	body, _ := json.Marshal(reconciler.InitializeRequest{
		Project:    "my-project",
		Region:     "europe-west1",
		Instance:   "pg-main",
		Database:   "orders_app",
		SchemaName: "pg_catalog",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/roles/initialize", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "schema_name")
	assert.Empty(t, init.req.SchemaName, "initializer must not run for a reserved schema")
}

func TestInitializeRoles_NoDefinitions(t *testing.T) {
	init := &fakeInitializer{err: fmt.Errorf("%w: database %q schema %q", reconciler.ErrNoDefinitions, "orders_app", "app_data")}
	srv := testServer(&fakeReconciler{}, init, &fakeRegistryReader{}, &fakePools{})

	body, _ := json.Marshal(reconciler.InitializeRequest{
		Project:    "my-project",
		Region:     "europe-west1",
		Instance:   "pg-main",
		Database:   "orders_app",
		SchemaName: "app_data",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/roles/initialize", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRoleDefinitions(t *testing.T) {
	provider := roles.NewStandardProvider()
	require.NoError(t, roles.Register(provider))
	t.Cleanup(func() { _ = roles.Unregister(provider.Name()) })

	srv := testServer(&fakeReconciler{}, &fakeInitializer{}, &fakeRegistryReader{}, &fakePools{})

	req := httptest.NewRequest(http.MethodGet, "/v1/roles?database=orders_app&schema=app_data", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "orders_app_app_data_reader")
	assert.NotContains(t, w.Body.String(), "statements", "grant SQL must not leak")
}

func TestListRoleDefinitions_RequiresDatabase(t *testing.T) {
	srv := testServer(&fakeReconciler{}, &fakeInitializer{}, &fakeRegistryReader{}, &fakePools{})

	req := httptest.NewRequest(http.MethodGet, "/v1/roles", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRegistryRecord(t *testing.T) {
	record := registry.NewRecord(time.Now().UTC())
	record.Initialized = true
	reg := &fakeRegistryReader{record: record}
	srv := testServer(&fakeReconciler{}, &fakeInitializer{}, reg, &fakePools{})

	req := httptest.NewRequest(http.MethodGet, "/v1/registry/my-project/pg-main/orders_app", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"initialized":true`)
}

func TestGetRegistryRecord_NotFound(t *testing.T) {
	srv := testServer(&fakeReconciler{}, &fakeInitializer{}, &fakeRegistryReader{}, &fakePools{})

	req := httptest.NewRequest(http.MethodGet, "/v1/registry/my-project/pg-main/orders_app", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetRegistryHistory(t *testing.T) {
	reg := &fakeRegistryReader{history: []registry.HistoryEntry{
		{Timestamp: time.Now().UTC(), Action: "role_initialization", Created: []string{"orders_app_app_data_reader"}, Success: true},
	}}
	srv := testServer(&fakeReconciler{}, &fakeInitializer{}, reg, &fakePools{})

	req := httptest.NewRequest(http.MethodGet, "/v1/registry/my-project/pg-main/orders_app/history", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "role_initialization")
}

func TestGetRegistryRecord_BackendError(t *testing.T) {
	reg := &fakeRegistryReader{err: errors.New("redis down")}
	srv := testServer(&fakeReconciler{}, &fakeInitializer{}, reg, &fakePools{})

	req := httptest.NewRequest(http.MethodGet, "/v1/registry/my-project/pg-main/orders_app", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPoolStats(t *testing.T) {
	pools := &fakePools{stats: map[string]pgpool.Stats{
		"my-project:europe-west1:pg-main:orders_app": {MaxSize: 2, MaxOverflow: 2, Created: 1, Idle: 1},
	}}
	srv := testServer(&fakeReconciler{}, &fakeInitializer{}, &fakeRegistryReader{}, pools)

	req := httptest.NewRequest(http.MethodGet, "/v1/pools", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "orders_app")
}

func TestListIdentities(t *testing.T) {
	rec := &fakeReconciler{identities: []string{"svc-a@my-project.iam", "svc-b@my-project.iam"}}
	srv := testServer(rec, &fakeInitializer{}, &fakeRegistryReader{}, &fakePools{})

	req := httptest.NewRequest(http.MethodGet,
		"/v1/identities?project=my-project&region=europe-west1&instance=pg-main&database=orders_app", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "svc-a@my-project.iam")
}

func TestListIdentities_MissingParams(t *testing.T) {
	srv := testServer(&fakeReconciler{}, &fakeInitializer{}, &fakeRegistryReader{}, &fakePools{})

	req := httptest.NewRequest(http.MethodGet, "/v1/identities?project=my-project", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListIdentities_ConnectionFailure(t *testing.T) {
	rec := &fakeReconciler{err: fmt.Errorf("%w: dial failed", reconciler.ErrConnectionFailure)}
	srv := testServer(rec, &fakeInitializer{}, &fakeRegistryReader{}, &fakePools{})

	req := httptest.NewRequest(http.MethodGet,
		"/v1/identities?project=my-project&region=europe-west1&instance=pg-main&database=orders_app", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := testServer(&fakeReconciler{}, &fakeInitializer{}, &fakeRegistryReader{}, &fakePools{})

	req := httptest.NewRequest(http.MethodGet, "/v1/permissions/reconcile", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRequestIDPropagated(t *testing.T) {
	pools := &fakePools{stats: map[string]pgpool.Stats{}}
	srv := testServer(&fakeReconciler{}, &fakeInitializer{}, &fakeRegistryReader{}, pools)

	req := httptest.NewRequest(http.MethodGet, "/v1/pools", nil)
	req.Header.Set("X-Request-ID", "req-789")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, "req-789", w.Header().Get("X-Request-ID"))
}
