package licenses

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

// Authorizer is the subset of rbac.Engine used to scope licenses and reports
type Authorizer interface {
	CanAccessCustomer(ctx context.Context, caller rbac.Caller, ownerIdentity string) (bool, error)
	CanAccessReport(ctx context.Context, caller rbac.Caller, reportOwnerIdentity string) (bool, error)
	AccessibleOwnerIdentities(ctx context.Context, caller rbac.Caller) ([]string, bool, error)
}

// CustomerGetter loads a customer record
type CustomerGetter interface {
	Get(ctx context.Context, id int64) (*customers.Customer, error)
}

// Handlers provides HTTP handlers for licenses, reports and modules
type Handlers struct {
	store       *Store
	ledger      *Ledger
	customers   CustomerGetter
	authz       Authorizer
	auditLogger audit.Logger
	reportLimit func(http.Handler) http.Handler
}

// NewHandlers creates new license handlers
func NewHandlers(store *Store, ledger *Ledger, customers CustomerGetter, authz Authorizer, auditLogger audit.Logger) *Handlers {
	return &Handlers{
		store:       store,
		ledger:      ledger,
		customers:   customers,
		authz:       authz,
		auditLogger: auditLogger,
	}
}

// WithReportRateLimit wraps report creation in mw
func (h *Handlers) WithReportRateLimit(mw func(http.Handler) http.Handler) *Handlers {
	h.reportLimit = mw
	return h
}

// RegisterRoutes registers license, report and module routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/licenses", h.ListLicenses).Methods(http.MethodGet).Name(rbac.RouteLicensesList)
	router.HandleFunc("/licenses", h.CreateLicense).Methods(http.MethodPost).Name(rbac.RouteLicensesCreate)
	router.HandleFunc("/licenses/{id}", h.GetLicense).Methods(http.MethodGet).Name(rbac.RouteLicensesGet)
	router.HandleFunc("/licenses/{id}", h.UpdateLicense).Methods(http.MethodPut).Name(rbac.RouteLicensesUpdate)
	router.HandleFunc("/licenses/{id}", h.DeleteLicense).Methods(http.MethodDelete).Name(rbac.RouteLicensesDelete)
	router.HandleFunc("/user-licenses", h.ListOwnLicenses).Methods(http.MethodGet).Name(rbac.RouteLicensesMine)
	router.HandleFunc("/modules", h.ListModules).Methods(http.MethodGet).Name(rbac.RouteModulesList)

	var create http.Handler = http.HandlerFunc(h.CreateReport)
	if h.reportLimit != nil {
		create = h.reportLimit(create)
	}
	router.Handle("/reports", create).Methods(http.MethodPost).Name(rbac.RouteReportsCreate)
	router.HandleFunc("/reports", h.ListReports).Methods(http.MethodGet).Name(rbac.RouteReportsList)
	router.HandleFunc("/reports/{id}", h.GetReport).Methods(http.MethodGet).Name(rbac.RouteReportsGet)
}

// ListLicenses lists licenses of the customers visible to the caller
func (h *Handlers) ListLicenses(w http.ResponseWriter, r *http.Request) {
	filter, page, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	if filter.Status != "" && !Status(filter.Status).Valid() {
		httputil.WriteBadRequest(w, "invalid license status: "+filter.Status)
		return
	}

	list, total, err := h.store.List(r.Context(), filter, page.Limit(), page.Offset())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteList(w, list, total, page)
}

// GetLicense returns one license when the caller may see its customer
func (h *Handlers) GetLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := rbac.CallerFromContext(ctx)

	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	license, err := h.store.Get(ctx, id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	allowed, err := h.authz.CanAccessCustomer(ctx, caller, license.OwnerIdentity)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if !allowed {
		httputil.WriteErrorKind(w, apierrors.KindForbidden, "access to license denied")
		return
	}

	httputil.WriteSuccess(w, license)
}

// CreateLicense assigns a license to a customer (superadmin)
func (h *Handlers) CreateLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req NewLicense
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	license, err := h.store.Create(ctx, req)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	h.auditLicense(ctx, audit.EventTypeLicenseCreate, license, "license created")
	httputil.WriteCreated(w, license)
}

// UpdateLicense edits quantities, dates or status (superadmin)
func (h *Handlers) UpdateLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req Update
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	license, err := h.store.Update(ctx, id, req)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	h.auditLicense(ctx, audit.EventTypeLicenseUpdate, license, "license updated")
	httputil.WriteSuccess(w, license)
}

// DeleteLicense removes a license (superadmin)
func (h *Handlers) DeleteLicense(w http.ResponseWriter, r *http.Request) {
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
		EventType:    audit.EventTypeLicenseDelete,
		ResourceType: audit.ResourceTypeLicense,
		ResourceID:   strconv.FormatInt(id, 10),
		Message:      "license deleted",
	})
	httputil.WriteNoContent(w)
}

// ListOwnLicenses lists licenses of the customers the caller owns
func (h *Handlers) ListOwnLicenses(w http.ResponseWriter, r *http.Request) {
	caller, _ := rbac.CallerFromContext(r.Context())

	list, err := h.store.ListForOwner(r.Context(), caller.Identity)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// ListModules returns the module catalogue; ?active=true hides retired modules
func (h *Handlers) ListModules(w http.ResponseWriter, r *http.Request) {
	activeOnly := httputil.ParseQueryString(r, "active", "") == "true"

	modules, err := h.store.ListModules(r.Context(), activeOnly)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, modules)
}

// CreateReport consumes a license unit and creates a pending report
func (h *Handlers) CreateReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := rbac.CallerFromContext(ctx)

	var req ReportRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.CustomerID <= 0 {
		httputil.WriteBadRequest(w, "customerId is required")
		return
	}

	customer, err := h.customers.Get(ctx, req.CustomerID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	allowed, err := h.authz.CanAccessCustomer(ctx, caller, customer.OwnerIdentity)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if !allowed {
		httputil.WriteErrorKind(w, apierrors.KindForbidden, "access to customer denied")
		return
	}

	result, err := h.ledger.RequestReportCreation(ctx, req)
	if err != nil {
		if apierrors.IsLicenseDenial(err) {
			audit.Record(ctx, h.auditLogger, &audit.AuditEvent{
				EventType:    audit.EventTypeLicenseConsume,
				Status:       audit.EventStatusDenied,
				ResourceType: audit.ResourceTypeCustomer,
				ResourceID:   strconv.FormatInt(req.CustomerID, 10),
				Message:      apierrors.PublicMessage(err),
				Metadata:     map[string]interface{}{"module_id": req.ModuleID, "reason": apierrors.KindOf(err)},
			})
		}
		httputil.WriteError(w, r, err)
		return
	}

	audit.Record(ctx, h.auditLogger, &audit.AuditEvent{
		EventType:    audit.EventTypeLicenseConsume,
		ResourceType: audit.ResourceTypeLicense,
		ResourceID:   strconv.FormatInt(result.License.ID, 10),
		Message:      "license unit consumed",
		Metadata: map[string]interface{}{
			"report_id": result.Report.ID,
			"remaining": result.License.Remaining(),
		},
	})

	httputil.WriteCreated(w, result.Report)
}

// ListReports lists reports of the customers visible to the caller
func (h *Handlers) ListReports(w http.ResponseWriter, r *http.Request) {
	filter, page, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	if filter.Status != "" && !ReportStatus(filter.Status).Valid() {
		httputil.WriteBadRequest(w, "invalid report status: "+filter.Status)
		return
	}

	list, total, err := h.store.ListReports(r.Context(), filter, page.Limit(), page.Offset())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteList(w, list, total, page)
}

// GetReport returns one report when the caller may see it
func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := rbac.CallerFromContext(ctx)

	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	report, err := h.store.GetReport(ctx, id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	allowed, err := h.authz.CanAccessReport(ctx, caller, report.OwnerIdentity)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if !allowed {
		httputil.WriteErrorKind(w, apierrors.KindForbidden, "access to report denied")
		return
	}

	httputil.WriteSuccess(w, report)
}

// parseFilter reads paging, ?customerId=, ?moduleId= and ?status= and scopes
// the filter to the caller's accessible owners
func (h *Handlers) parseFilter(w http.ResponseWriter, r *http.Request) (Filter, httputil.Page, bool) {
	ctx := r.Context()
	caller, _ := rbac.CallerFromContext(ctx)

	page, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return Filter{}, httputil.Page{}, false
	}

	var filter Filter
	if filter.CustomerID, err = httputil.ParseQueryInt64(r, "customerId", 0); err != nil {
		httputil.WriteBadRequest(w, "invalid customerId")
		return Filter{}, httputil.Page{}, false
	}
	if filter.ModuleID, err = httputil.ParseQueryInt64(r, "moduleId", 0); err != nil {
		httputil.WriteBadRequest(w, "invalid moduleId")
		return Filter{}, httputil.Page{}, false
	}
	filter.Status = httputil.ParseQueryString(r, "status", "")

	filter.Owners, filter.AllOwners, err = h.authz.AccessibleOwnerIdentities(ctx, caller)
	if err != nil {
		httputil.WriteError(w, r, err)
		return Filter{}, httputil.Page{}, false
	}
	return filter, page, true
}

func (h *Handlers) auditLicense(ctx context.Context, eventType audit.EventType, license *License, message string) {
	audit.Record(ctx, h.auditLogger, &audit.AuditEvent{
		EventType:    eventType,
		ResourceType: audit.ResourceTypeLicense,
		ResourceID:   strconv.FormatInt(license.ID, 10),
		Message:      message,
		Metadata: map[string]interface{}{
			"customer_id":    license.CustomerID,
			"module_id":      license.ModuleID,
			"quantity_total": license.QuantityTotal,
			"quantity_used":  license.QuantityUsed,
			"status":         license.Status,
		},
	})
}
