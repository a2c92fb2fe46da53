package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formulafinance/licensehub/pkg/contextkeys"
	"github.com/formulafinance/licensehub/pkg/observability"
)

type erroringRoles struct{}

func (erroringRoles) GetRole(ctx context.Context, identity string) (Role, bool, error) {
	return "", false, errors.New("db down")
}

// withIdentity stands in for the authenticator
func withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Test-Identity"); id != "" {
			r = r.WithContext(contextkeys.WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func newGuardedRouter(roles RoleReader, metrics *observability.Metrics) *mux.Router {
	router := mux.NewRouter()
	router.Use(withIdentity)
	router.Use(NewGuard(NewEngine(roles, &fakeChildren{}), metrics).Handler)

	ok := func(w http.ResponseWriter, r *http.Request) {
		caller, _ := CallerFromContext(r.Context())
		w.Write([]byte(caller.Identity + "/" + string(caller.Role)))
	}
	router.HandleFunc("/healthz", ok).Name(RouteHealthLive)
	router.HandleFunc("/auth/role", ok).Name(RouteAuthRole)
	router.HandleFunc("/associations", ok).Methods(http.MethodPost).Name(RouteAssociationsCreate)
	router.HandleFunc("/reports", ok).Methods(http.MethodPost).Name(RouteReportsCreate)
	router.HandleFunc("/unregistered", ok).Name("debug.dump")
	router.HandleFunc("/unnamed", ok)
	return router
}

func TestGuard(t *testing.T) {
	roles := fakeRoles{"admin": RoleSuperadmin, "client": RoleClientBasic}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	router := newGuardedRouter(roles, metrics)

	tests := []struct {
		name       string
		method     string
		path       string
		identity   string
		wantStatus int
		wantError  string
		wantBody   string
	}{
		{"public without identity", http.MethodGet, "/healthz", "", http.StatusOK, "", "/"},
		{"authenticated route without identity", http.MethodGet, "/auth/role", "", http.StatusUnauthorized, "unauthenticated", ""},
		{"authenticated route without role", http.MethodGet, "/auth/role", "ghost", http.StatusOK, "", "ghost/"},
		{"superadmin manages associations", http.MethodPost, "/associations", "admin", http.StatusOK, "", "admin/superadmin"},
		{"client cannot manage associations", http.MethodPost, "/associations", "client", http.StatusForbidden, "forbidden", ""},
		{"client creates reports", http.MethodPost, "/reports", "client", http.StatusOK, "", "client/client_basic"},
		{"unassigned identity forbidden", http.MethodPost, "/reports", "ghost", http.StatusForbidden, "forbidden", ""},
		{"anonymous on permission route", http.MethodPost, "/reports", "", http.StatusUnauthorized, "unauthenticated", ""},
		{"route missing from table", http.MethodGet, "/unregistered", "admin", http.StatusForbidden, "forbidden", ""},
		{"unnamed route", http.MethodGet, "/unnamed", "admin", http.StatusForbidden, "forbidden", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.identity != "" {
				req.Header.Set("X-Test-Identity", tt.identity)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.wantError, body["error"])
			} else {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuthorizationDecisionsTotal.WithLabelValues(RouteAssociationsCreate, "forbidden")))
}

func TestGuard_RoleLookupFailure(t *testing.T) {
	router := newGuardedRouter(erroringRoles{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/reports", nil)
	req.Header.Set("X-Test-Identity", "anyone")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
