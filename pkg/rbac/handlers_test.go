package rbac

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formulafinance/licensehub/pkg/audit"
	"github.com/formulafinance/licensehub/pkg/storage/storagetest"
)

func setupHandlers(t *testing.T, caller Caller) (*mux.Router, *Store, *audit.MemoryLogger) {
	t.Helper()
	store := NewStore(storagetest.NewSQLiteDB(t))
	auditLog := &audit.MemoryLogger{}

	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	})
	NewHandlers(store, auditLog).RegisterRoutes(router)
	return router, store, auditLog
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func TestRegisterRoutes_AllNamedInRouteTable(t *testing.T) {
	router, _, _ := setupHandlers(t, Caller{})

	err := router.Walk(func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
		name := route.GetName()
		_, ok := PolicyFor(name)
		assert.True(t, ok, "route %q has no policy", name)
		return nil
	})
	require.NoError(t, err)
}

func TestGetOwnRole(t *testing.T) {
	router, _, _ := setupHandlers(t, Caller{Identity: "res", Role: RoleReseller, HasRole: true})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/role", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Identity    string   `json:"identity"`
		Role        *string  `json:"role"`
		Permissions []string `json:"permissions"`
	}
	decodeData(t, rec, &resp)
	assert.Equal(t, "res", resp.Identity)
	require.NotNil(t, resp.Role)
	assert.Equal(t, "reseller", *resp.Role)
	assert.Contains(t, resp.Permissions, "associations:read")
}

func TestGetOwnRole_Unassigned(t *testing.T) {
	router, _, _ := setupHandlers(t, Caller{Identity: "ghost"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/role", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"identity":"ghost","role":null,"permissions":[]}}`, rec.Body.String())
}

func TestSetAndGetRole(t *testing.T) {
	router, store, auditLog := setupHandlers(t, Caller{Identity: "root", Role: RoleSuperadmin, HasRole: true})

	req := httptest.NewRequest(http.MethodPut, "/roles/user-9", strings.NewReader(`{"role":"intermediary"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var assignment RoleAssignment
	decodeData(t, rec, &assignment)
	assert.Equal(t, RoleIntermediary, assignment.Role)
	assert.Equal(t, "root", assignment.CreatedBy)

	role, ok, err := store.GetRole(req.Context(), "user-9")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, RoleIntermediary, role)

	events := auditLog.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypeRoleAssign, events[0].EventType)
	assert.Equal(t, "user-9", events[0].ResourceID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/roles/user-9", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/roles/nobody", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/roles?role=intermediary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []RoleAssignment
	decodeData(t, rec, &list)
	assert.Len(t, list, 1)
}

func TestSetRole_Invalid(t *testing.T) {
	router, _, auditLog := setupHandlers(t, Caller{Identity: "root", Role: RoleSuperadmin, HasRole: true})

	for _, body := range []string{`{"role":"owner"}`, `{"role":""}`, `not json`} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/roles/user-1", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/roles?role=owner", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, auditLog.Events())
}
