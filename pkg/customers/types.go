package customers

import (
	"strings"
	"time"
)

// Type is the kind of business a customer is
type Type string

const (
	TypeClientBasic    Type = "client_basic"
	TypeClientProspect Type = "client_prospect"
	TypeReseller       Type = "reseller"
	TypeIntermediary   Type = "intermediary"
)

// Valid reports whether t is a known customer type
func (t Type) Valid() bool {
	switch t {
	case TypeClientBasic, TypeClientProspect, TypeReseller, TypeIntermediary:
		return true
	}
	return false
}

// Status is the lifecycle state of a customer
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusDisabled
}

// Customer is a customer record
type Customer struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Type          Type      `json:"type"`
	Status        Status    `json:"status"`
	Email         string    `json:"email"`
	City          string    `json:"city"`
	Province      string    `json:"province"`
	VATNumber     string    `json:"vatNumber"`
	OwnerIdentity string    `json:"ownerIdentity,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Location renders "city (province)" or whichever part is present
func (c Customer) Location() string {
	city, province := strings.TrimSpace(c.City), strings.TrimSpace(c.Province)
	switch {
	case city != "" && province != "":
		return city + " (" + province + ")"
	case city != "":
		return city
	default:
		return province
	}
}

// NewCustomer is the input to Store.Create
type NewCustomer struct {
	Name          string `json:"name"`
	Type          Type   `json:"type"`
	Status        Status `json:"status,omitempty"`
	Email         string `json:"email"`
	City          string `json:"city"`
	Province      string `json:"province"`
	VATNumber     string `json:"vatNumber"`
	OwnerIdentity string `json:"ownerIdentity,omitempty"`
}

// Update is a partial update; nil fields are left unchanged
type Update struct {
	Name          *string `json:"name,omitempty"`
	Type          *Type   `json:"type,omitempty"`
	Status        *Status `json:"status,omitempty"`
	Email         *string `json:"email,omitempty"`
	City          *string `json:"city,omitempty"`
	Province      *string `json:"province,omitempty"`
	VATNumber     *string `json:"vatNumber,omitempty"`
	OwnerIdentity *string `json:"ownerIdentity,omitempty"`
}

// Filter narrows List results
type Filter struct {
	Type   Type
	Status Status
	// Query matches names case-insensitively
	Query string
	// Owners limits results to these owner identities unless AllOwners is set
	Owners    []string
	AllOwners bool
}
