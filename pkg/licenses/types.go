package licenses

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a license
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusExpired   Status = "expired"
)

// Valid reports whether s is a known license status
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusExpired:
		return true
	}
	return false
}

// License grants a customer a number of report units for one module
type License struct {
	ID                int64     `json:"id"`
	CustomerID        int64     `json:"customerId"`
	ModuleID          int64     `json:"moduleId"`
	QuantityTotal     int       `json:"quantityTotal"`
	QuantityUsed      int       `json:"quantityUsed"`
	ActivationDate    time.Time `json:"activationDate"`
	ExpirationDate    time.Time `json:"expirationDate"`
	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
	ModuleName        string    `json:"moduleName,omitempty"`
	ModuleDisplayName string    `json:"moduleDisplayName,omitempty"`

	// OwnerIdentity is the owner of the licensed customer
	OwnerIdentity string `json:"-"`
}

// Remaining returns the unconsumed units
func (l License) Remaining() int {
	return l.QuantityTotal - l.QuantityUsed
}

// NewLicense is the input to Store.Create
type NewLicense struct {
	CustomerID     int64     `json:"customerId"`
	ModuleID       int64     `json:"moduleId"`
	QuantityTotal  int       `json:"quantityTotal"`
	QuantityUsed   int       `json:"quantityUsed"`
	ActivationDate time.Time `json:"activationDate"`
	ExpirationDate time.Time `json:"expirationDate"`
	Status         Status    `json:"status,omitempty"`
}

// Update is a partial license update; nil fields are left unchanged
type Update struct {
	QuantityTotal  *int       `json:"quantityTotal,omitempty"`
	QuantityUsed   *int       `json:"quantityUsed,omitempty"`
	ActivationDate *time.Time `json:"activationDate,omitempty"`
	ExpirationDate *time.Time `json:"expirationDate,omitempty"`
	Status         *Status    `json:"status,omitempty"`
}

// Filter narrows license and report listings
type Filter struct {
	CustomerID int64
	ModuleID   int64
	Status     string
	// Owners limits results to customers owned by these identities unless AllOwners is set
	Owners    []string
	AllOwners bool
}

// Module is a product module licenses grant units for
type Module struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Description string    `json:"description"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ReportStatus is the state of a report in the generation pipeline
type ReportStatus string

const (
	ReportPending    ReportStatus = "pending"
	ReportProcessing ReportStatus = "processing"
	ReportCompleted  ReportStatus = "completed"
	ReportFailed     ReportStatus = "failed"
)

// Valid reports whether s is a known report status
func (s ReportStatus) Valid() bool {
	switch s {
	case ReportPending, ReportProcessing, ReportCompleted, ReportFailed:
		return true
	}
	return false
}

// Report is a generated or pending financial report
type Report struct {
	ID            int64           `json:"id"`
	CustomerID    int64           `json:"customerId"`
	ModuleID      int64           `json:"moduleId"`
	LicenseID     *int64          `json:"licenseId"`
	ReportType    string          `json:"reportType"`
	Status        ReportStatus    `json:"status"`
	InputData     json.RawMessage `json:"inputData"`
	APIResponse   json.RawMessage `json:"apiResponse,omitempty"`
	GeneratedHTML string          `json:"generatedHtml,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	ModuleName    string          `json:"moduleName,omitempty"`

	OwnerIdentity string `json:"-"`
}

// ReportRequest is the input to Ledger.RequestReportCreation
type ReportRequest struct {
	CustomerID int64           `json:"customerId"`
	ModuleID   int64           `json:"moduleId"`
	ReportType string          `json:"reportType"`
	InputData  json.RawMessage `json:"inputData"`
	Status     ReportStatus    `json:"status,omitempty"`
}

// SelectionPolicy decides which active license is consumed when a customer
// holds several for the same module
type SelectionPolicy string

const (
	// LatestExpiring consumes the license with the furthest expiration date
	LatestExpiring SelectionPolicy = "latest_expiring"
	// SoonestExpiring consumes the license closest to expiry
	SoonestExpiring SelectionPolicy = "soonest_expiring"
)

// ParseSelectionPolicy converts s into a SelectionPolicy; empty selects LatestExpiring
func ParseSelectionPolicy(s string) (SelectionPolicy, error) {
	switch SelectionPolicy(s) {
	case "", LatestExpiring:
		return LatestExpiring, nil
	case SoonestExpiring:
		return SoonestExpiring, nil
	default:
		return "", fmt.Errorf("unknown license selection policy: %q", s)
	}
}

func (p SelectionPolicy) orderBy() []string {
	if p == SoonestExpiring {
		return []string{"l.expiration_date ASC", "l.id ASC"}
	}
	return []string{"l.expiration_date DESC", "l.id DESC"}
}
