package associations

import (
	"time"

	"github.com/formulafinance/licensehub/pkg/apierrors"
	"github.com/formulafinance/licensehub/pkg/customers"
)

// Type is derived from the parent's customer type
type Type string

const (
	TypeReseller     Type = "reseller"
	TypeIntermediary Type = "intermediary"
)

// Association is a directed parent -> child edge
type Association struct {
	ID               int64     `json:"id"`
	ParentCustomerID int64     `json:"parentCustomerId"`
	ChildCustomerID  int64     `json:"childCustomerId"`
	Type             Type      `json:"associationType"`
	Notes            string    `json:"notes,omitempty"`
	CreatedBy        string    `json:"createdBy,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// NewAssociation is the input to Store.Create
type NewAssociation struct {
	ParentID  int64  `json:"parentId"`
	ChildID   int64  `json:"childId"`
	Notes     string `json:"notes,omitempty"`
	CreatedBy string `json:"-"`
}

// Edge is an association together with the customer on its other end
type Edge struct {
	Association
	Customer customers.Customer `json:"customer"`
}

// Listing is the neighbourhood of one customer
type Listing struct {
	Customer customers.Customer `json:"customer"`
	Parent   *Edge              `json:"parent"`
	Children []Edge             `json:"children"`
}

// Validation is the outcome of ValidateAssociation
type Validation struct {
	Valid           bool
	Kind            apierrors.Kind
	Message         string
	AssociationType Type
}

// Err returns the validation failure as an error, or nil when valid
func (v Validation) Err() error {
	if v.Valid {
		return nil
	}
	return apierrors.New(v.Kind, v.Message)
}

// TypeCounts counts children by customer type
type TypeCounts struct {
	Intermediary   int `json:"intermediary"`
	ClientBasic    int `json:"clientBasic"`
	ClientProspect int `json:"clientProspect"`
}

// LicenseTotals sums active license units
type LicenseTotals struct {
	Total int64 `json:"total"`
	Used  int64 `json:"used"`
}

// ChildStat is one row of the statistics table
type ChildStat struct {
	ID              int64            `json:"id"`
	Name            string           `json:"name"`
	Type            customers.Type   `json:"type"`
	Status          customers.Status `json:"status"`
	Email           string           `json:"email"`
	Location        string           `json:"location"`
	AssociationType Type             `json:"associationType"`
	LicenseCount    int              `json:"licenseCount"`
	LicensesTotal   int64            `json:"licensesTotal"`
	LicensesUsed    int64            `json:"licensesUsed"`
	// LicenseUsage is used/total as a rounded percentage
	LicenseUsage int `json:"licenseUsage"`
}

// Stats summarises the children of a parent customer
type Stats struct {
	ParentCustomerID int64         `json:"parentCustomerId"`
	TotalChildren    int           `json:"totalChildren"`
	ByType           TypeCounts    `json:"byType"`
	Licenses         LicenseTotals `json:"licenses"`
	Children         []ChildStat   `json:"children"`
}
