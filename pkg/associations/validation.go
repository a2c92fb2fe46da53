package associations

import (
	"fmt"

	"github.com/formulafinance/licensehub/pkg/apierrors"
	"github.com/formulafinance/licensehub/pkg/customers"
	"github.com/formulafinance/licensehub/pkg/rbac"
)

// pairing maps a parent type to the child types it may hold
var pairing = map[customers.Type][]customers.Type{
	customers.TypeReseller:     {customers.TypeIntermediary, customers.TypeClientBasic, customers.TypeClientProspect},
	customers.TypeIntermediary: {customers.TypeClientBasic, customers.TypeClientProspect},
}

// ValidChildTypes returns the child types parentType may hold; nil when it may hold none
func ValidChildTypes(parentType customers.Type) []customers.Type {
	children := pairing[parentType]
	if children == nil {
		return nil
	}
	return append([]customers.Type{}, children...)
}

// ValidParentTypes returns the parent types childType may be attached to.
// Types that can never be a child yield an invalid_child_type error.
func ValidParentTypes(childType customers.Type) ([]customers.Type, error) {
	switch childType {
	case customers.TypeClientBasic, customers.TypeClientProspect:
		return []customers.Type{customers.TypeReseller, customers.TypeIntermediary}, nil
	case customers.TypeIntermediary:
		return []customers.Type{customers.TypeReseller}, nil
	default:
		return nil, apierrors.Newf(apierrors.KindInvalidChildType, "customer type %q cannot have a parent", childType)
	}
}

// ValidateAssociation checks the caller and the parent/child pairing
func ValidateAssociation(parentType, childType customers.Type, callerRole rbac.Role) Validation {
	if !rbac.CanManageAssociations(callerRole) {
		return Validation{Kind: apierrors.KindForbidden, Message: "only superadmins can manage associations"}
	}

	children, ok := pairing[parentType]
	if !ok {
		return Validation{
			Kind:    apierrors.KindInvalidParentType,
			Message: fmt.Sprintf("customer type %q cannot be a parent", parentType),
		}
	}

	for _, c := range children {
		if c == childType {
			return Validation{Valid: true, AssociationType: associationTypeFor(parentType)}
		}
	}

	return Validation{
		Kind:    apierrors.KindInvalidChildType,
		Message: fmt.Sprintf("customer type %q cannot be a child of %q", childType, parentType),
	}
}

func associationTypeFor(parentType customers.Type) Type {
	if parentType == customers.TypeReseller {
		return TypeReseller
	}
	return TypeIntermediary
}
