package rbac

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/formulafinance/licensehub/pkg/apierrors"
	"github.com/formulafinance/licensehub/pkg/audit"
	"github.com/formulafinance/licensehub/pkg/httputil"
)

// RoleManager is the store surface used by the role handlers
type RoleManager interface {
	RoleWriter
	GetAssignment(ctx context.Context, identity string) (*RoleAssignment, error)
	ListRoles(ctx context.Context, role Role) ([]RoleAssignment, error)
}

// Handlers provides HTTP handlers for role operations
type Handlers struct {
	store       RoleManager
	auditLogger audit.Logger
}

// NewHandlers creates new role handlers
func NewHandlers(store RoleManager, auditLogger audit.Logger) *Handlers {
	return &Handlers{store: store, auditLogger: auditLogger}
}

// RegisterRoutes registers all role routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/role", h.GetOwnRole).Methods(http.MethodGet).Name(RouteAuthRole)
	router.HandleFunc("/roles", h.ListRoles).Methods(http.MethodGet).Name(RouteRolesList)
	router.HandleFunc("/roles/{identity}", h.GetRole).Methods(http.MethodGet).Name(RouteRolesGet)
	router.HandleFunc("/roles/{identity}", h.SetRole).Methods(http.MethodPut).Name(RouteRolesSet)
}

// OwnRoleResponse describes the current caller
type OwnRoleResponse struct {
	Identity    string       `json:"identity"`
	Role        *Role        `json:"role"`
	Permissions []Permission `json:"permissions"`
}

// GetOwnRole returns the caller's role and permissions; role is null when unassigned
func (h *Handlers) GetOwnRole(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())

	resp := OwnRoleResponse{Identity: caller.Identity, Permissions: []Permission{}}
	if caller.HasRole {
		role := caller.Role
		resp.Role = &role
		resp.Permissions = Permissions(role)
	}

	httputil.WriteSuccess(w, resp)
}

// GetRole returns the role assignment of an identity
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	identity, err := httputil.ParsePathString(r, "identity")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	assignment, err := h.store.GetAssignment(r.Context(), identity)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, assignment)
}

// ListRoles lists role assignments, optionally filtered by ?role=
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	var filter Role
	if raw := httputil.ParseQueryString(r, "role", ""); raw != "" {
		role, ok := ParseRole(raw)
		if !ok {
			httputil.WriteBadRequest(w, "invalid role: "+raw)
			return
		}
		filter = role
	}

	assignments, err := h.store.ListRoles(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, assignments)
}

// SetRoleRequest is the body of PUT /roles/{identity}
type SetRoleRequest struct {
	Role string `json:"role"`
}

// SetRole assigns a role to an identity
func (h *Handlers) SetRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := CallerFromContext(ctx)

	identity, err := httputil.ParsePathString(r, "identity")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	var req SetRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	role, ok := ParseRole(req.Role)
	if !ok {
		httputil.WriteErrorKind(w, apierrors.KindInvalidInput, "invalid role: "+req.Role)
		return
	}

	assignment, err := h.store.SetRole(ctx, identity, role, caller.Identity)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	audit.Record(ctx, h.auditLogger, &audit.AuditEvent{
		EventType:    audit.EventTypeRoleAssign,
		ResourceType: audit.ResourceTypeRole,
		ResourceID:   identity,
		Message:      "role assigned",
		Metadata:     map[string]interface{}{"role": string(role)},
	})

	httputil.WriteSuccess(w, assignment)
}
