package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerosuite/platform/pkg/cache"
	"github.com/aerosuite/platform/pkg/drift"
	"github.com/aerosuite/platform/pkg/events"
	"github.com/aerosuite/platform/pkg/inference"
	"github.com/aerosuite/platform/pkg/registry"
	"github.com/aerosuite/platform/pkg/service"
	"github.com/aerosuite/platform/pkg/session"
	"github.com/aerosuite/platform/pkg/storage"
)

type echoModel struct{}

func (echoModel) Infer(ctx context.Context, input any) (any, error) {
	return input, nil
}

type echoLoader struct{}

func (echoLoader) Load(ctx context.Context, modelID string) (inference.Model, error) {
	return echoModel{}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	store, err := storage.Open(t.TempDir(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine := cache.NewEngine(nil)
	bus := events.NewBus()
	bus.Start()
	t.Cleanup(bus.Stop)

	inspections := storage.NewCachedRepository(store.Inspections, engine)
	customers := storage.NewCachedRepository(store.Customers, engine)
	components := storage.NewCachedRepository(store.Components, engine)
	suppliers := storage.NewCachedRepository(store.Suppliers, engine)

	reg, err := registry.New(store.DB(), bus)
	require.NoError(t, err)
	detector, err := drift.New(store.DB(), bus, drift.Thresholds{}, "")
	require.NoError(t, err)
	runtime := inference.NewRuntime(echoLoader{}, inference.Options{}, bus)

	mr := miniredis.RunT(t)
	sessions := session.NewStoreWithClient(
		redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		session.Config{TTL: time.Hour, Idle: 10 * time.Minute},
	)

	return NewServer(Deps{
		Inspections: service.NewInspectionService(inspections, customers, suppliers, components, bus),
		Components:  service.NewComponentService(components, bus),
		Customers:   service.NewCustomerService(customers, bus),
		Suppliers:   service.NewSupplierService(suppliers, bus),
		Sessions:    sessions,
		Registry:    reg,
		Runtime:     runtime,
		Drift:       detector,
	})
}

func do(t *testing.T, s *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), into))
}

func TestHealthReportsOK(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decode(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body, "system")
}

func TestErrorEnvelopeCarriesRequestID(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/inspections/missing", nil,
		map[string]string{"X-Request-ID": "req-42"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	var env errorEnvelope
	decode(t, rec, &env)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "notFound", env.Code)
	assert.Equal(t, "req-42", env.RequestID)
}

func TestUnknownRouteRendersEnvelope(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/nope", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var env errorEnvelope
	decode(t, rec, &env)
	assert.Equal(t, "notFound", env.Code)
}

func TestCreateCustomerValidatesEmail(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/customers",
		map[string]string{"name": "Acme", "email": "not-an-email"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var env errorEnvelope
	decode(t, rec, &env)
	assert.Equal(t, "validation", env.Code)
}

func TestInspectionCreateAndFetch(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/customers",
		map[string]string{"name": "Acme Aero", "email": "qa@acme.test"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var customer map[string]any
	decode(t, rec, &customer)
	customerID, _ := customer["id"].(string)
	require.NotEmpty(t, customerID)

	rec = do(t, s, http.MethodPost, "/api/inspections", map[string]any{
		"title":         "wing check",
		"scheduledDate": time.Now().Add(time.Hour).Format(time.RFC3339),
		"customerId":    customerID,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created map[string]any
	decode(t, rec, &created)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	rec = do(t, s, http.MethodGet, "/api/inspections/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	decode(t, rec, &got)
	assert.Equal(t, "wing check", got["title"])
	assert.Equal(t, "scheduled", got["status"])
}

func TestListPagination(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 3; i++ {
		rec := do(t, s, http.MethodPost, "/api/customers", map[string]string{
			"name":  fmt.Sprintf("customer-%d", i),
			"email": fmt.Sprintf("c%d@example.com", i),
		}, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := do(t, s, http.MethodGet, "/api/customers?limit=2&page=1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page pageEnvelope
	decode(t, rec, &page)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Limit)
	assert.Equal(t, 2, page.TotalPages)
	data, ok := page.Data.([]any)
	require.True(t, ok)
	assert.Len(t, data, 2)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/sessions",
		map[string]string{"principalId": "user-1"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created sessionResponse
	decode(t, rec, &created)
	require.NotEmpty(t, created.SessionID)

	// Authenticated request passes through
	rec = do(t, s, http.MethodGet, "/api/customers", nil,
		map[string]string{"Authorization": "Bearer " + created.SessionID})
	require.Equal(t, http.StatusOK, rec.Code)

	// Rotation retires the old id
	rec = do(t, s, http.MethodPost, "/api/sessions/rotate", nil,
		map[string]string{"Authorization": "Bearer " + created.SessionID})
	require.Equal(t, http.StatusOK, rec.Code)

	var rotated map[string]string
	decode(t, rec, &rotated)
	newID := rotated["sessionId"]
	require.NotEmpty(t, newID)
	require.NotEqual(t, created.SessionID, newID)

	rec = do(t, s, http.MethodGet, "/api/customers", nil,
		map[string]string{"Authorization": "Bearer " + created.SessionID})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/sessions", nil,
		map[string]string{"Authorization": "Bearer " + newID})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/customers", nil,
		map[string]string{"Authorization": "Bearer " + newID})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestModelRegistryFlow(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/models",
		map[string]any{"name": "detector"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/models/detector/versions",
		map[string]any{"modelId": "detector-v1"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var added map[string]int
	decode(t, rec, &added)
	assert.Equal(t, 1, added["version"])

	rec = do(t, s, http.MethodPut, "/api/models/detector/versions/1/stage",
		map[string]string{"stage": "staging"}, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/models/detector/staging", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var staged registry.Version
	decode(t, rec, &staged)
	assert.Equal(t, "detector-v1", staged.ModelID)

	// No production occupant yet
	rec = do(t, s, http.MethodGet, "/api/models/detector/production", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInferenceEndpoints(t *testing.T) {
	s := newTestServer(t)

	base := "/api/models/detector/runtime/detector-v1"

	// Not loaded yet
	rec := do(t, s, http.MethodPost, base+"/infer", map[string]any{"input": 1}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, base+"/load", nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPost, base+"/infer", map[string]any{"input": "ping"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	decode(t, rec, &out)
	assert.Equal(t, "ping", out["output"])

	rec = do(t, s, http.MethodPost, base+"/infer/batch",
		map[string]any{"inputs": []any{"a", "b"}}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var batch map[string][]any
	decode(t, rec, &batch)
	assert.Equal(t, []any{"a", "b"}, batch["outputs"])

	rec = do(t, s, http.MethodGet, base+"/stats", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]any
	decode(t, rec, &stats)
	assert.Equal(t, true, stats["loaded"])
	assert.Equal(t, false, stats["unhealthy"])

	rec = do(t, s, http.MethodDelete, base, nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDriftEndpoints(t *testing.T) {
	s := newTestServer(t)

	samples := make([]map[string]any, 0, 50)
	for i := 0; i < 50; i++ {
		samples = append(samples, map[string]any{"temp": float64(i % 10)})
	}

	rec := do(t, s, http.MethodPost, "/api/models/detector/drift/baseline", map[string]any{
		"samples": samples,
		"schema":  map[string]string{"temp": "numeric"},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/models/detector/drift/check",
		map[string]any{"samples": samples}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report drift.Report
	decode(t, rec, &report)
	assert.Equal(t, drift.SeverityNone, report.Severity)
}
