package rbac

import (
	"context"
	"fmt"
)

// ChildOwnerLister returns the owner identities of customers that are direct
// children of any customer owned by ownerIdentity
type ChildOwnerLister interface {
	ChildOwnerIdentities(ctx context.Context, ownerIdentity string) ([]string, error)
}

// Engine answers authorization questions that need stored state
type Engine struct {
	roles    RoleReader
	children ChildOwnerLister
}

// NewEngine creates an authorization engine
func NewEngine(roles RoleReader, children ChildOwnerLister) *Engine {
	return &Engine{roles: roles, children: children}
}

// ResolveRole returns the role of identity; unassigned identities yield ("", false, nil)
func (e *Engine) ResolveRole(ctx context.Context, identity string) (Role, bool, error) {
	if identity == "" {
		return "", false, nil
	}
	return e.roles.GetRole(ctx, identity)
}

// ResolveCaller builds a Caller for identity
func (e *Engine) ResolveCaller(ctx context.Context, identity string) (Caller, error) {
	role, ok, err := e.ResolveRole(ctx, identity)
	if err != nil {
		return Caller{}, err
	}
	return Caller{Identity: identity, Role: role, HasRole: ok}, nil
}

// CanAccessCustomer decides whether caller may see a customer owned by ownerIdentity.
// The association graph is only read when the cheap checks do not decide.
func (e *Engine) CanAccessCustomer(ctx context.Context, caller Caller, ownerIdentity string) (bool, error) {
	if !caller.HasRole {
		return false, nil
	}
	if caller.Role == RoleSuperadmin || ownerIdentity == "" || ownerIdentity == caller.Identity || !seesChildren(caller.Role) {
		return CanAccessCustomer(caller.Role, caller.Identity, ownerIdentity, nil), nil
	}

	childOwners, err := e.children.ChildOwnerIdentities(ctx, caller.Identity)
	if err != nil {
		return false, fmt.Errorf("failed to load child owners: %w", err)
	}
	return CanAccessCustomer(caller.Role, caller.Identity, ownerIdentity, childOwners), nil
}

// CanAccessReport decides access to a report whose customer is owned by reportOwnerIdentity
func (e *Engine) CanAccessReport(ctx context.Context, caller Caller, reportOwnerIdentity string) (bool, error) {
	return e.CanAccessCustomer(ctx, caller, reportOwnerIdentity)
}

// AccessibleOwnerIdentities returns the customer owners whose records caller
// may list. all is true for superadmins, in which case owners is nil.
func (e *Engine) AccessibleOwnerIdentities(ctx context.Context, caller Caller) (owners []string, all bool, err error) {
	if caller.IsSuperadmin() {
		return nil, true, nil
	}
	if caller.Identity == "" {
		return []string{}, false, nil
	}

	owners = []string{caller.Identity}
	if !caller.HasRole || !seesChildren(caller.Role) {
		return owners, false, nil
	}

	childOwners, err := e.children.ChildOwnerIdentities(ctx, caller.Identity)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load child owners: %w", err)
	}

	seen := map[string]struct{}{caller.Identity: {}}
	for _, owner := range childOwners {
		if _, dup := seen[owner]; dup || owner == "" {
			continue
		}
		seen[owner] = struct{}{}
		owners = append(owners, owner)
	}
	return owners, false, nil
}
