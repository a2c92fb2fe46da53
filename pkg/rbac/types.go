package rbac

import (
	"time"
)

// Role is the single role held by an identity
type Role string

const (
	RoleClientBasic    Role = "client_basic"
	RoleClientProspect Role = "client_prospect"
	RoleReseller       Role = "reseller"
	RoleIntermediary   Role = "intermediary"
	RoleSuperadmin     Role = "superadmin"
)

// AllRoles lists every assignable role
var AllRoles = []Role{
	RoleClientBasic,
	RoleClientProspect,
	RoleReseller,
	RoleIntermediary,
	RoleSuperadmin,
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleClientBasic, RoleClientProspect, RoleReseller, RoleIntermediary, RoleSuperadmin:
		return true
	}
	return false
}

// ParseRole converts s into a Role
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

// Resource represents a resource type in the system
type Resource string

const (
	ResourceCustomers    Resource = "customers"
	ResourceLicenses     Resource = "licenses"
	ResourceReports      Resource = "reports"
	ResourceAnalytics    Resource = "analytics"
	ResourceAssociations Resource = "associations"
	ResourceModules      Resource = "modules"
	ResourceRoles        Resource = "roles"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionReadOwn Action = "read_own"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionAssign  Action = "assign"
	ActionManage  Action = "manage"
)

// Permission represents a specific permission (resource + action)
type Permission struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// String returns a string representation of the permission
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// MarshalText encodes the permission as "resource:action"
func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Well-known permissions
var (
	PermCustomersRead      = Permission{ResourceCustomers, ActionRead}
	PermCustomersCreate    = Permission{ResourceCustomers, ActionCreate}
	PermCustomersUpdate    = Permission{ResourceCustomers, ActionUpdate}
	PermCustomersDelete    = Permission{ResourceCustomers, ActionDelete}
	PermLicensesRead       = Permission{ResourceLicenses, ActionRead}
	PermLicensesReadOwn    = Permission{ResourceLicenses, ActionReadOwn}
	PermLicensesAssign     = Permission{ResourceLicenses, ActionAssign}
	PermReportsRead        = Permission{ResourceReports, ActionRead}
	PermReportsCreate      = Permission{ResourceReports, ActionCreate}
	PermAnalyticsRead      = Permission{ResourceAnalytics, ActionRead}
	PermAssociationsRead   = Permission{ResourceAssociations, ActionRead}
	PermAssociationsManage = Permission{ResourceAssociations, ActionManage}
	PermModulesRead        = Permission{ResourceModules, ActionRead}
	PermRolesManage        = Permission{ResourceRoles, ActionManage}
)

// Caller is an authenticated identity together with its resolved role.
// HasRole is false for identities with no role assignment.
type Caller struct {
	Identity string `json:"identity"`
	Role     Role   `json:"role,omitempty"`
	HasRole  bool   `json:"-"`
}

// IsSuperadmin reports whether the caller holds the superadmin role
func (c Caller) IsSuperadmin() bool {
	return c.HasRole && c.Role == RoleSuperadmin
}

// RoleAssignment is the stored role of one identity
type RoleAssignment struct {
	ID        int64     `json:"id"`
	Identity  string    `json:"identity"`
	Role      Role      `json:"role"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
