package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermissionTable(t *testing.T) {
	tests := []struct {
		role    Role
		granted []Permission
		denied  []Permission
	}{
		{
			role:    RoleClientBasic,
			granted: []Permission{PermReportsRead, PermReportsCreate, PermLicensesReadOwn, PermModulesRead},
			denied:  []Permission{PermCustomersRead, PermLicensesRead, PermAssociationsRead, PermRolesManage},
		},
		{
			role:    RoleClientProspect,
			granted: []Permission{PermReportsRead, PermReportsCreate, PermLicensesReadOwn, PermModulesRead},
			denied:  []Permission{PermAnalyticsRead, PermCustomersUpdate},
		},
		{
			role:    RoleReseller,
			granted: []Permission{PermCustomersRead, PermLicensesRead, PermAnalyticsRead, PermAssociationsRead, PermReportsCreate},
			denied:  []Permission{PermCustomersUpdate, PermCustomersCreate, PermAssociationsManage, PermLicensesAssign},
		},
		{
			role:    RoleIntermediary,
			granted: []Permission{PermCustomersRead, PermCustomersUpdate, PermAssociationsRead},
			denied:  []Permission{PermCustomersCreate, PermCustomersDelete, PermAssociationsManage, PermRolesManage},
		},
		{
			role:    RoleSuperadmin,
			granted: []Permission{PermCustomersCreate, PermCustomersDelete, PermLicensesAssign, PermAssociationsManage, PermRolesManage},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			for _, p := range tt.granted {
				assert.True(t, HasPermission(tt.role, p), "%s should have %s", tt.role, p)
			}
			for _, p := range tt.denied {
				assert.False(t, HasPermission(tt.role, p), "%s should not have %s", tt.role, p)
			}
		})
	}

	assert.False(t, HasPermission("", PermReportsRead))
	assert.False(t, HasPermission("owner", PermReportsRead))
}

func TestPermissions_Sorted(t *testing.T) {
	perms := Permissions(RoleIntermediary)
	assert.Len(t, perms, 9)
	for i := 1; i < len(perms); i++ {
		assert.Less(t, perms[i-1].String(), perms[i].String())
	}
	assert.Empty(t, Permissions("nobody"))
	assert.Len(t, Permissions(RoleSuperadmin), 14)
}

func TestPermissions_IntermediaryExtendsReseller(t *testing.T) {
	want := append(Permissions(RoleReseller), PermCustomersUpdate)
	assert.ElementsMatch(t, want, Permissions(RoleIntermediary))
}

func TestCanManageAssociations(t *testing.T) {
	for _, role := range AllRoles {
		assert.Equal(t, role == RoleSuperadmin, CanManageAssociations(role), string(role))
	}
	assert.False(t, CanManageAssociations(""))
}

func TestCanViewAssociationStats(t *testing.T) {
	want := map[Role]bool{
		RoleClientBasic:    false,
		RoleClientProspect: false,
		RoleReseller:       true,
		RoleIntermediary:   true,
		RoleSuperadmin:     true,
		"":                 false,
	}
	for role, expected := range want {
		assert.Equal(t, expected, CanViewAssociationStats(role), string(role))
	}
}

func TestCanAccessCustomer(t *testing.T) {
	children := []string{"child-owner"}

	tests := []struct {
		name     string
		role     Role
		caller   string
		owner    string
		children []string
		want     bool
	}{
		{"superadmin any owner", RoleSuperadmin, "admin", "someone", nil, true},
		{"superadmin unowned", RoleSuperadmin, "admin", "", nil, true},
		{"unowned denied", RoleReseller, "res", "", children, false},
		{"own customer", RoleClientBasic, "me", "me", nil, true},
		{"client cannot see others", RoleClientBasic, "me", "child-owner", children, false},
		{"reseller sees child", RoleReseller, "res", "child-owner", children, true},
		{"intermediary sees child", RoleIntermediary, "int", "child-owner", children, true},
		{"reseller cannot see stranger", RoleReseller, "res", "stranger", children, false},
		{"no role own record", "", "me", "me", nil, true},
		{"no role other record", "", "me", "child-owner", children, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanAccessCustomer(tt.role, tt.caller, tt.owner, tt.children))
			assert.Equal(t, tt.want, CanAccessReport(tt.role, tt.caller, tt.owner, tt.children))
		})
	}
}

func TestParseRole(t *testing.T) {
	for _, role := range AllRoles {
		parsed, ok := ParseRole(string(role))
		assert.True(t, ok)
		assert.Equal(t, role, parsed)
	}
	_, ok := ParseRole("admin")
	assert.False(t, ok)
	_, ok = ParseRole("")
	assert.False(t, ok)
}

func TestPermission_String(t *testing.T) {
	assert.Equal(t, "reports:create", PermReportsCreate.String())
	text, err := PermLicensesReadOwn.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "licenses:read_own", string(text))
}
