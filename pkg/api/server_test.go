package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formulafinance/licensehub/pkg/audit"
	"github.com/formulafinance/licensehub/pkg/auth"
	"github.com/formulafinance/licensehub/pkg/licenses"
	"github.com/formulafinance/licensehub/pkg/middleware"
	"github.com/formulafinance/licensehub/pkg/observability"
	"github.com/formulafinance/licensehub/pkg/rbac"
	"github.com/formulafinance/licensehub/pkg/storage"
	"github.com/formulafinance/licensehub/pkg/storage/storagetest"
)

type testServer struct {
	server   *Server
	conn     *storage.ConnectionManager
	signer   *auth.HMACVerifier
	metrics  *observability.Metrics
	auditLog *audit.MemoryLogger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	conn := storagetest.NewSQLiteManager(t)
	roles := rbac.NewCachedStore(rbac.NewStore(conn.Primary()), 16, time.Minute, nil)
	for identity, role := range map[string]rbac.Role{
		"root":   rbac.RoleSuperadmin,
		"res":    rbac.RoleReseller,
		"client": rbac.RoleClientBasic,
	} {
		_, err := roles.SetRole(ctx, identity, role, "test")
		require.NoError(t, err)
	}

	signer := auth.NewHMACVerifier("test-secret", "licensehub", "")
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	auditLog := &audit.MemoryLogger{}

	server := NewServer(Options{
		Conn:            conn,
		Verifier:        signer,
		Roles:           roles,
		AuditLogger:     auditLog,
		Metrics:         metrics,
		ReportLimiter:   middleware.NewRateLimiter(&middleware.RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}),
		SelectionPolicy: licenses.LatestExpiring,
		CORSOrigins:     []string{"https://dashboard.example.com"},
	})

	return &testServer{server: server, conn: conn, signer: signer, metrics: metrics, auditLog: auditLog}
}

func (ts *testServer) call(t *testing.T, method, path, identity, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if identity != "" {
		token, err := ts.signer.SignToken(identity, "", time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, rec, &body)
	return body.Error
}

func id(v int64) string { return strconv.FormatInt(v, 10) }

func TestServer_Authentication(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.call(t, http.MethodGet, "/api/customers", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", errorKind(t, rec))

	req := httptest.NewRequest(http.MethodGet, "/api/customers", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.call(t, http.MethodGet, "/api/customers", "nobody", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.call(t, http.MethodGet, "/api/auth/role", "nobody", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var own struct {
		Data rbac.OwnRoleResponse `json:"data"`
	}
	decode(t, rec, &own)
	assert.Equal(t, "nobody", own.Data.Identity)
	assert.Nil(t, own.Data.Role)
}

func TestServer_RoutingEdges(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.call(t, http.MethodGet, "/api/unknown", "root", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorKind(t, rec))
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec = ts.call(t, http.MethodPatch, "/api/customers", "root", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	req := httptest.NewRequest(http.MethodOptions, "/api/customers", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rec = httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dashboard.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/customers", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	rec = httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(middleware.RequestIDHeader))
}

func TestServer_HierarchyAndLedger(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	rec := ts.call(t, http.MethodPost, "/api/customers", "root", `{"name":"Reseller Srl","type":"reseller","ownerIdentity":"res"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reseller struct {
		Data struct{ ID int64 } `json:"data"`
	}
	decode(t, rec, &reseller)

	rec = ts.call(t, http.MethodPost, "/api/customers", "root", `{"name":"Client Spa","type":"client_basic","ownerIdentity":"client"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var client struct {
		Data struct{ ID int64 } `json:"data"`
	}
	decode(t, rec, &client)

	rec = ts.call(t, http.MethodPost, "/api/customers", "res", `{"name":"Sneaky","type":"client_basic"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.call(t, http.MethodGet, "/api/customers", "res", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Total int64 `json:"total"`
	}
	decode(t, rec, &page)
	assert.EqualValues(t, 1, page.Total, "reseller sees only its own customer before the association exists")

	rec = ts.call(t, http.MethodPost, "/api/associations", "root",
		`{"parentId":`+id(reseller.Data.ID)+`,"childId":`+id(client.Data.ID)+`}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.call(t, http.MethodGet, "/api/customers", "res", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &page)
	assert.EqualValues(t, 2, page.Total)

	rec = ts.call(t, http.MethodGet, "/api/associations/stats?customerId="+id(reseller.Data.ID), "res", "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	module, err := licenses.NewStore(ts.conn).CreateModule(ctx, "balance", "Balance Analysis", "")
	require.NoError(t, err)

	rec = ts.call(t, http.MethodPost, "/api/licenses", "root",
		`{"customerId":`+id(client.Data.ID)+`,"moduleId":`+id(module.ID)+`,"quantityTotal":1,"activationDate":"2024-01-01T00:00:00Z","expirationDate":"2099-01-01T00:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	report := `{"customerId":` + id(client.Data.ID) + `,"moduleId":` + id(module.ID) + `,"reportType":"balance_analysis","inputData":{"year":2024}}`

	rec = ts.call(t, http.MethodPost, "/api/reports", "client", report)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.call(t, http.MethodPost, "/api/reports", "client", report)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "license_exhausted", errorKind(t, rec))

	rec = ts.call(t, http.MethodPost, "/api/reports", "client", report)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = ts.call(t, http.MethodGet, "/api/user-licenses", "client", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var own struct {
		Data []licenses.License `json:"data"`
	}
	decode(t, rec, &own)
	require.Len(t, own.Data, 1)
	assert.Equal(t, 1, own.Data[0].QuantityUsed)

	rec = ts.call(t, http.MethodGet, "/api/reports", "res", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &page)
	assert.EqualValues(t, 1, page.Total, "reseller sees reports of its child customer")

	rec = ts.call(t, http.MethodPost, "/api/associations", "client", `{"parentId":1,"childId":2}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.LicenseDenialsTotal.WithLabelValues("license_exhausted")))
	assert.NotEmpty(t, ts.auditLog.Events())
}

func TestServer_RoleManagement(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.call(t, http.MethodPut, "/api/roles/newbie", "root", `{"role":"intermediary"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.call(t, http.MethodGet, "/api/auth/role", "newbie", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var own struct {
		Data rbac.OwnRoleResponse `json:"data"`
	}
	decode(t, rec, &own)
	require.NotNil(t, own.Data.Role)
	assert.Equal(t, rbac.RoleIntermediary, *own.Data.Role)

	rec = ts.call(t, http.MethodPut, "/api/roles/root", "res", `{"role":"client_basic"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_EveryRouteHasPolicy(t *testing.T) {
	ts := newTestServer(t)

	var names []string
	err := ts.server.router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		if _, err := route.GetMethods(); err != nil {
			// path prefixes carry no handler of their own
			return nil
		}
		names = append(names, route.GetName())
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, names)

	for _, name := range names {
		_, ok := rbac.PolicyFor(name)
		assert.True(t, ok, "route %q has no policy", name)
	}
}
