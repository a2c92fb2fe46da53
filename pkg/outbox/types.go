package outbox

import (
	"encoding/json"
	"time"
)

// Event types
const (
	EventReportCreated  = "report.created"
	EventLicenseExpired = "license.expired"
)

// Event is one outbox row
type Event struct {
	ID           int64           `json:"id"`
	MessageID    string          `json:"messageId"`
	Aggregate    string          `json:"aggregate"`
	AggregateID  int64           `json:"aggregateId"`
	EventType    string          `json:"eventType"`
	Payload      json.RawMessage `json:"payload"`
	Attempts     int             `json:"attempts"`
	LastError    string          `json:"lastError,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	DispatchedAt *time.Time      `json:"dispatchedAt,omitempty"`
}
