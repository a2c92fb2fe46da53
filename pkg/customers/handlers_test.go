package customers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formulafinance/licensehub/pkg/audit"
	"github.com/formulafinance/licensehub/pkg/rbac"
)

// ownerAuthorizer grants access to the listed owners
type ownerAuthorizer struct {
	owners []string
	all    bool
}

func (a ownerAuthorizer) CanAccessCustomer(ctx context.Context, caller rbac.Caller, owner string) (bool, error) {
	if a.all {
		return true, nil
	}
	for _, o := range a.owners {
		if o == owner && owner != "" {
			return true, nil
		}
	}
	return false, nil
}

func (a ownerAuthorizer) AccessibleOwnerIdentities(ctx context.Context, caller rbac.Caller) ([]string, bool, error) {
	return a.owners, a.all, nil
}

func newRouter(t *testing.T, caller rbac.Caller, authz Authorizer) (*mux.Router, *Store, *audit.MemoryLogger) {
	t.Helper()
	store := newTestStore(t)
	auditLog := &audit.MemoryLogger{}

	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(rbac.WithCaller(r.Context(), caller)))
		})
	})
	NewHandlers(store, authz, auditLog).RegisterRoutes(router)
	return router, store, auditLog
}

func serve(router *mux.Router, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlers_ListScoped(t *testing.T) {
	reseller := rbac.Caller{Identity: "res", Role: rbac.RoleReseller, HasRole: true}
	router, store, _ := newRouter(t, reseller, ownerAuthorizer{owners: []string{"res", "child"}})

	mustCreate(t, store, NewCustomer{Name: "Mine", Type: TypeReseller, OwnerIdentity: "res"})
	mustCreate(t, store, NewCustomer{Name: "Child", Type: TypeClientBasic, OwnerIdentity: "child"})
	mustCreate(t, store, NewCustomer{Name: "Stranger", Type: TypeClientBasic, OwnerIdentity: "stranger"})

	rec := serve(router, http.MethodGet, "/customers?perPage=10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data  []Customer `json:"data"`
		Total int64      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 2, body.Total)
	assert.Equal(t, "Child", body.Data[0].Name)
	assert.Equal(t, "Mine", body.Data[1].Name)

	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/customers?type=superadmin", "").Code)
}

func TestHandlers_GetAccess(t *testing.T) {
	client := rbac.Caller{Identity: "me", Role: rbac.RoleClientBasic, HasRole: true}
	router, store, _ := newRouter(t, client, ownerAuthorizer{owners: []string{"me"}})

	mine := mustCreate(t, store, NewCustomer{Name: "Mine", Type: TypeClientBasic, OwnerIdentity: "me"})
	other := mustCreate(t, store, NewCustomer{Name: "Other", Type: TypeClientBasic, OwnerIdentity: "you"})

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/customers/"+itoa(mine.ID), "").Code)
	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodGet, "/customers/"+itoa(other.ID), "").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/customers/999", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/customers/abc", "").Code)
}

func TestHandlers_CreateUpdateDelete(t *testing.T) {
	admin := rbac.Caller{Identity: "root", Role: rbac.RoleSuperadmin, HasRole: true}
	router, _, auditLog := newRouter(t, admin, ownerAuthorizer{all: true})

	rec := serve(router, http.MethodPost, "/customers", `{"name":"Delta","type":"intermediary","ownerIdentity":"d"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Data Customer `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, TypeIntermediary, created.Data.Type)

	rec = serve(router, http.MethodPut, "/customers/"+itoa(created.Data.ID), `{"type":"reseller","city":"Torino"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodPost, "/customers", `{"name":"","type":"reseller"}`).Code)

	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodDelete, "/customers/"+itoa(created.Data.ID), "").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodDelete, "/customers/"+itoa(created.Data.ID), "").Code)

	events := auditLog.Events()
	require.Len(t, events, 3)
	assert.Equal(t, audit.EventTypeCustomerCreate, events[0].EventType)
	assert.Equal(t, audit.EventTypeCustomerUpdate, events[1].EventType)
	assert.Equal(t, audit.EventTypeCustomerDelete, events[2].EventType)
}

func TestHandlers_IntermediaryCannotChangeOwner(t *testing.T) {
	intermediary := rbac.Caller{Identity: "int", Role: rbac.RoleIntermediary, HasRole: true}
	router, store, _ := newRouter(t, intermediary, ownerAuthorizer{owners: []string{"int", "child"}})
	child := mustCreate(t, store, NewCustomer{Name: "Child", Type: TypeClientBasic, OwnerIdentity: "child"})

	rec := serve(router, http.MethodPut, "/customers/"+itoa(child.ID), `{"ownerIdentity":"int"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(router, http.MethodPut, "/customers/"+itoa(child.ID), `{"email":"new@child.example"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
