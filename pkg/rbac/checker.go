package rbac

import "sort"

var clientPermissions = []Permission{
	PermReportsRead,
	PermReportsCreate,
	PermLicensesReadOwn,
	PermModulesRead,
}

var resellerPermissions = []Permission{
	PermCustomersRead,
	PermLicensesRead,
	PermReportsRead,
	PermReportsCreate,
	PermAnalyticsRead,
	PermAssociationsRead,
	PermLicensesReadOwn,
	PermModulesRead,
}

var intermediaryPermissions = []Permission{
	PermCustomersRead,
	PermCustomersUpdate,
	PermLicensesRead,
	PermReportsRead,
	PermReportsCreate,
	PermAnalyticsRead,
	PermAssociationsRead,
	PermLicensesReadOwn,
	PermModulesRead,
}

var superadminPermissions = []Permission{
	PermCustomersRead,
	PermCustomersCreate,
	PermCustomersUpdate,
	PermCustomersDelete,
	PermLicensesRead,
	PermLicensesReadOwn,
	PermLicensesAssign,
	PermReportsRead,
	PermReportsCreate,
	PermAnalyticsRead,
	PermAssociationsRead,
	PermAssociationsManage,
	PermModulesRead,
	PermRolesManage,
}

// rolePermissions is built once and never mutated
var rolePermissions = map[Role]map[Permission]struct{}{
	RoleClientBasic:    permissionSet(clientPermissions),
	RoleClientProspect: permissionSet(clientPermissions),
	RoleReseller:       permissionSet(resellerPermissions),
	RoleIntermediary:   permissionSet(intermediaryPermissions),
	RoleSuperadmin:     permissionSet(superadminPermissions),
}

func permissionSet(perms []Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// HasPermission reports whether role grants perm. Unknown roles grant nothing.
func HasPermission(role Role, perm Permission) bool {
	_, ok := rolePermissions[role][perm]
	return ok
}

// Permissions returns the permissions granted to role, sorted by name
func Permissions(role Role) []Permission {
	set := rolePermissions[role]
	perms := make([]Permission, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].String() < perms[j].String() })
	return perms
}

// CanManageAssociations reports whether role may create or delete associations
func CanManageAssociations(role Role) bool {
	return role == RoleSuperadmin
}

// CanViewAssociationStats reports whether role may read association statistics
func CanViewAssociationStats(role Role) bool {
	switch role {
	case RoleSuperadmin, RoleReseller, RoleIntermediary:
		return true
	}
	return false
}

// CanAccessCustomer decides whether a caller may see a customer owned by
// ownerIdentity. childOwners holds the owner identities of the customers that
// are direct children of the caller's own customers; it is only consulted for
// resellers and intermediaries.
func CanAccessCustomer(role Role, callerIdentity, ownerIdentity string, childOwners []string) bool {
	if role == RoleSuperadmin {
		return true
	}
	if ownerIdentity == "" {
		return false
	}
	if ownerIdentity == callerIdentity {
		return true
	}
	if role == RoleReseller || role == RoleIntermediary {
		for _, owner := range childOwners {
			if owner == ownerIdentity {
				return true
			}
		}
	}
	return false
}

// CanAccessReport decides access to a report through its owning customer
func CanAccessReport(role Role, callerIdentity, reportOwnerIdentity string, childOwners []string) bool {
	return CanAccessCustomer(role, callerIdentity, reportOwnerIdentity, childOwners)
}

// seesChildren reports whether role extends its visibility one hop down the hierarchy
func seesChildren(role Role) bool {
	return role == RoleReseller || role == RoleIntermediary
}
