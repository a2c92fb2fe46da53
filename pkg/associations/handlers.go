package associations

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/formulafinance/licensehub/pkg/apierrors"
	"github.com/formulafinance/licensehub/pkg/audit"
	"github.com/formulafinance/licensehub/pkg/customers"
	"github.com/formulafinance/licensehub/pkg/httputil"
	"github.com/formulafinance/licensehub/pkg/rbac"
)

// CustomerAuthorizer decides whether a caller may see a customer
type CustomerAuthorizer interface {
	CanAccessCustomer(ctx context.Context, caller rbac.Caller, ownerIdentity string) (bool, error)
}

// Handlers provides HTTP handlers for association operations
type Handlers struct {
	store       *Store
	authz       CustomerAuthorizer
	auditLogger audit.Logger
}

// NewHandlers creates new association handlers
func NewHandlers(store *Store, authz CustomerAuthorizer, auditLogger audit.Logger) *Handlers {
	return &Handlers{store: store, authz: authz, auditLogger: auditLogger}
}

// RegisterRoutes registers all association routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/associations/search", h.SearchEligibleParents).Methods(http.MethodGet).Name(rbac.RouteAssociationsSearch)
	router.HandleFunc("/associations/stats", h.GetStats).Methods(http.MethodGet).Name(rbac.RouteAssociationsStats)
	router.HandleFunc("/associations", h.List).Methods(http.MethodGet).Name(rbac.RouteAssociationsList)
	router.HandleFunc("/associations", h.Create).Methods(http.MethodPost).Name(rbac.RouteAssociationsCreate)
	router.HandleFunc("/associations/{id}", h.Delete).Methods(http.MethodDelete).Name(rbac.RouteAssociationsDelete)
}

// Create adds a parent -> child edge
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := rbac.CallerFromContext(ctx)

	var req NewAssociation
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.ParentID <= 0 || req.ChildID <= 0 {
		httputil.WriteBadRequest(w, "parentId and childId are required")
		return
	}
	req.CreatedBy = caller.Identity

	assoc, err := h.store.Create(ctx, req, caller.Role)
	if err != nil {
		status := audit.EventStatusFailure
		if apierrors.IsForbidden(err) {
			status = audit.EventStatusDenied
		}
		audit.Record(ctx, h.auditLogger, &audit.AuditEvent{
			EventType:    audit.EventTypeAssociationCreate,
			Status:       status,
			ResourceType: audit.ResourceTypeAssociation,
			ResourceID:   strconv.FormatInt(req.ParentID, 10) + "->" + strconv.FormatInt(req.ChildID, 10),
			Message:      apierrors.PublicMessage(err),
		})
		httputil.WriteError(w, r, err)
		return
	}

	audit.Record(ctx, h.auditLogger, &audit.AuditEvent{
		EventType:    audit.EventTypeAssociationCreate,
		ResourceType: audit.ResourceTypeAssociation,
		ResourceID:   strconv.FormatInt(assoc.ID, 10),
		Message:      "association created",
		Metadata: map[string]interface{}{
			"parent_customer_id": assoc.ParentCustomerID,
			"child_customer_id":  assoc.ChildCustomerID,
			"association_type":   assoc.Type,
		},
	})

	httputil.WriteCreated(w, assoc)
}

// Delete removes an edge
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := rbac.CallerFromContext(ctx)

	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.Delete(ctx, id, caller.Role); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	audit.Record(ctx, h.auditLogger, &audit.AuditEvent{
		EventType:    audit.EventTypeAssociationDelete,
		ResourceType: audit.ResourceTypeAssociation,
		ResourceID:   strconv.FormatInt(id, 10),
		Message:      "association deleted",
	})

	httputil.WriteNoContent(w)
}

// List returns the parent and children of ?customerId=
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := rbac.CallerFromContext(ctx)

	customerID, ok := requiredQueryID(w, r, "customerId")
	if !ok {
		return
	}

	listing, err := h.store.List(ctx, customerID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	allowed, err := h.authz.CanAccessCustomer(ctx, caller, listing.Customer.OwnerIdentity)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if !allowed {
		httputil.WriteErrorKind(w, apierrors.KindForbidden, "access to customer denied")
		return
	}

	httputil.WriteSuccess(w, listing)
}

// SearchEligibleParents lists candidate parents for ?childId=. The child's
// stored type decides the candidates; ?childType= is optional and must agree.
func (h *Handlers) SearchEligibleParents(w http.ResponseWriter, r *http.Request) {
	childID, ok := requiredQueryID(w, r, "childId")
	if !ok {
		return
	}

	childType := customers.Type(httputil.ParseQueryString(r, "childType", ""))
	result, err := h.store.SearchEligibleParentsFor(r.Context(), childID, childType, httputil.ParseQueryString(r, "q", ""))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, result)
}

// GetStats returns statistics for the children of ?customerId=
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := rbac.CallerFromContext(ctx)

	customerID, ok := requiredQueryID(w, r, "customerId")
	if !ok {
		return
	}

	stats, err := h.store.StatsFor(ctx, caller, customerID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, stats)
}

func requiredQueryID(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	id, err := httputil.ParseQueryInt64(r, key, 0)
	if err != nil || id <= 0 {
		httputil.WriteBadRequest(w, key+" is required and must be a positive integer")
		return 0, false
	}
	return id, true
}
