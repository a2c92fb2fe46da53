package customers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/formulafinance/licensehub/pkg/apierrors"
	"github.com/formulafinance/licensehub/pkg/audit"
	"github.com/formulafinance/licensehub/pkg/httputil"
	"github.com/formulafinance/licensehub/pkg/rbac"
)

// Authorizer is the subset of rbac.Engine used to scope customer access
type Authorizer interface {
	CanAccessCustomer(ctx context.Context, caller rbac.Caller, ownerIdentity string) (bool, error)
	AccessibleOwnerIdentities(ctx context.Context, caller rbac.Caller) ([]string, bool, error)
}

// Handlers provides HTTP handlers for customer operations
type Handlers struct {
	store       *Store
	authz       Authorizer
	auditLogger audit.Logger
}

// NewHandlers creates new customer handlers
func NewHandlers(store *Store, authz Authorizer, auditLogger audit.Logger) *Handlers {
	return &Handlers{store: store, authz: authz, auditLogger: auditLogger}
}

// RegisterRoutes registers all customer routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/customers", h.List).Methods(http.MethodGet).Name(rbac.RouteCustomersList)
	router.HandleFunc("/customers", h.Create).Methods(http.MethodPost).Name(rbac.RouteCustomersCreate)
	router.HandleFunc("/customers/{id}", h.Get).Methods(http.MethodGet).Name(rbac.RouteCustomersGet)
	router.HandleFunc("/customers/{id}", h.Update).Methods(http.MethodPut).Name(rbac.RouteCustomersUpdate)
	router.HandleFunc("/customers/{id}", h.Delete).Methods(http.MethodDelete).Name(rbac.RouteCustomersDelete)
}

// List returns the customers visible to the caller
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := rbac.CallerFromContext(ctx)

	page, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	filter := Filter{
		Type:   Type(httputil.ParseQueryString(r, "type", "")),
		Status: Status(httputil.ParseQueryString(r, "status", "")),
		Query:  httputil.ParseQueryString(r, "q", ""),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		httputil.WriteBadRequest(w, "invalid customer type: "+string(filter.Type))
		return
	}
	if filter.Status != "" && !filter.Status.Valid() {
		httputil.WriteBadRequest(w, "invalid status: "+string(filter.Status))
		return
	}

	filter.Owners, filter.AllOwners, err = h.authz.AccessibleOwnerIdentities(ctx, caller)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	list, total, err := h.store.List(ctx, filter, page.Limit(), page.Offset())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteList(w, list, total, page)
}

// Get returns one customer when the caller may see it
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	customer, ok := h.loadAccessible(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, customer)
}

// Create inserts a customer (superadmin)
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req NewCustomer
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	customer, err := h.store.Create(ctx, req)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	audit.Record(ctx, h.auditLogger, &audit.AuditEvent{
		EventType:    audit.EventTypeCustomerCreate,
		ResourceType: audit.ResourceTypeCustomer,
		ResourceID:   strconv.FormatInt(customer.ID, 10),
		Message:      "customer created",
	})

	httputil.WriteCreated(w, customer)
}

// Update modifies a customer. Only superadmins may change type or owner.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := rbac.CallerFromContext(ctx)

	existing, ok := h.loadAccessible(w, r)
	if !ok {
		return
	}

	var req Update
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !caller.IsSuperadmin() && (req.Type != nil || req.OwnerIdentity != nil) {
		httputil.WriteErrorKind(w, apierrors.KindForbidden, "only superadmins may change customer type or owner")
		return
	}

	customer, err := h.store.Update(ctx, existing.ID, req)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	audit.Record(ctx, h.auditLogger, &audit.AuditEvent{
		EventType:    audit.EventTypeCustomerUpdate,
		ResourceType: audit.ResourceTypeCustomer,
		ResourceID:   strconv.FormatInt(customer.ID, 10),
		Message:      "customer updated",
	})

	httputil.WriteSuccess(w, customer)
}

// Delete removes a customer (superadmin)
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.Delete(ctx, id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	audit.Record(ctx, h.auditLogger, &audit.AuditEvent{
		EventType:    audit.EventTypeCustomerDelete,
		ResourceType: audit.ResourceTypeCustomer,
		ResourceID:   strconv.FormatInt(id, 10),
		Message:      "customer deleted",
	})

	httputil.WriteNoContent(w)
}

// loadAccessible loads {id} and writes 403 when the caller may not see it
func (h *Handlers) loadAccessible(w http.ResponseWriter, r *http.Request) (*Customer, bool) {
	ctx := r.Context()
	caller, _ := rbac.CallerFromContext(ctx)

	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, false
	}

	customer, err := h.store.Get(ctx, id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return nil, false
	}

	allowed, err := h.authz.CanAccessCustomer(ctx, caller, customer.OwnerIdentity)
	if err != nil {
		httputil.WriteError(w, r, err)
		return nil, false
	}
	if !allowed {
		httputil.WriteErrorKind(w, apierrors.KindForbidden, "access to customer denied")
		return nil, false
	}

	return customer, true
}
