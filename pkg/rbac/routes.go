package rbac

import "github.com/formulafinance/licensehub/pkg/apierrors"

// Logical route names. Every mux route must be registered under one of these.
const (
	RouteHealthLive  = "health.live"
	RouteHealthReady = "health.ready"
	RouteMetrics     = "metrics"

	RouteAuthRole  = "auth.role"
	RouteRolesGet  = "roles.get"
	RouteRolesSet  = "roles.set"
	RouteRolesList = "roles.list"

	RouteAssociationsCreate = "associations.create"
	RouteAssociationsDelete = "associations.delete"
	RouteAssociationsList   = "associations.list"
	RouteAssociationsSearch = "associations.search"
	RouteAssociationsStats  = "associations.stats"

	RouteReportsCreate = "reports.create"
	RouteReportsList   = "reports.list"
	RouteReportsGet    = "reports.get"

	RouteCustomersList   = "customers.list"
	RouteCustomersGet    = "customers.get"
	RouteCustomersCreate = "customers.create"
	RouteCustomersUpdate = "customers.update"
	RouteCustomersDelete = "customers.delete"

	RouteLicensesList   = "licenses.list"
	RouteLicensesGet    = "licenses.get"
	RouteLicensesCreate = "licenses.create"
	RouteLicensesUpdate = "licenses.update"
	RouteLicensesDelete = "licenses.delete"
	RouteLicensesMine   = "licenses.mine"

	RouteModulesList = "modules.list"
)

// PolicyKind classifies a route policy
type PolicyKind int

const (
	// PolicyPublic needs no identity
	PolicyPublic PolicyKind = iota
	// PolicyAuthenticated needs an identity; a role is optional
	PolicyAuthenticated
	// PolicyPermission needs an identity whose role grants Permission
	PolicyPermission
)

// RoutePolicy is the access rule for one route
type RoutePolicy struct {
	Kind       PolicyKind
	Permission Permission
}

func public() RoutePolicy        { return RoutePolicy{Kind: PolicyPublic} }
func authenticated() RoutePolicy { return RoutePolicy{Kind: PolicyAuthenticated} }
func requires(p Permission) RoutePolicy {
	return RoutePolicy{Kind: PolicyPermission, Permission: p}
}

// routeTable is built once and never mutated
var routeTable = map[string]RoutePolicy{
	RouteHealthLive:  public(),
	RouteHealthReady: public(),
	RouteMetrics:     public(),

	RouteAuthRole:  authenticated(),
	RouteRolesGet:  requires(PermRolesManage),
	RouteRolesSet:  requires(PermRolesManage),
	RouteRolesList: requires(PermRolesManage),

	RouteAssociationsCreate: requires(PermAssociationsManage),
	RouteAssociationsDelete: requires(PermAssociationsManage),
	RouteAssociationsList:   requires(PermAssociationsRead),
	RouteAssociationsSearch: requires(PermAssociationsManage),
	RouteAssociationsStats:  requires(PermAssociationsRead),

	RouteReportsCreate: requires(PermReportsCreate),
	RouteReportsList:   requires(PermReportsRead),
	RouteReportsGet:    requires(PermReportsRead),

	RouteCustomersList:   requires(PermCustomersRead),
	RouteCustomersGet:    requires(PermCustomersRead),
	RouteCustomersCreate: requires(PermCustomersCreate),
	RouteCustomersUpdate: requires(PermCustomersUpdate),
	RouteCustomersDelete: requires(PermCustomersDelete),

	RouteLicensesList:   requires(PermLicensesRead),
	RouteLicensesGet:    requires(PermLicensesRead),
	RouteLicensesCreate: requires(PermLicensesAssign),
	RouteLicensesUpdate: requires(PermLicensesAssign),
	RouteLicensesDelete: requires(PermLicensesAssign),
	RouteLicensesMine:   requires(PermLicensesReadOwn),

	RouteModulesList: requires(PermModulesRead),
}

// PolicyFor returns the policy registered for route
func PolicyFor(route string) (RoutePolicy, bool) {
	policy, ok := routeTable[route]
	return policy, ok
}

// RouteNames returns every route with a policy
func RouteNames() []string {
	names := make([]string, 0, len(routeTable))
	for name := range routeTable {
		names = append(names, name)
	}
	return names
}

// AllowedRoles returns the roles admitted by route. Public and authenticated
// routes admit every role; unknown routes admit none.
func AllowedRoles(route string) []Role {
	policy, ok := routeTable[route]
	if !ok {
		return nil
	}

	var roles []Role
	for _, role := range AllRoles {
		if policy.Kind != PolicyPermission || HasPermission(role, policy.Permission) {
			roles = append(roles, role)
		}
	}
	return roles
}

// AuthorizeRoute decides a request for route by caller. It returns "" when the
// request may proceed, otherwise KindUnauthenticated or KindForbidden.
// Unknown routes are denied.
func AuthorizeRoute(route string, caller Caller) apierrors.Kind {
	policy, ok := routeTable[route]
	if !ok {
		return apierrors.KindForbidden
	}

	switch policy.Kind {
	case PolicyPublic:
		return ""
	case PolicyAuthenticated:
		if caller.Identity == "" {
			return apierrors.KindUnauthenticated
		}
		return ""
	default:
		if caller.Identity == "" {
			return apierrors.KindUnauthenticated
		}
		if !caller.HasRole || !HasPermission(caller.Role, policy.Permission) {
			return apierrors.KindForbidden
		}
		return ""
	}
}
