package audit

import "time"

// EventType represents the type of audit event
type EventType string

const (
	// Authorization events
	EventTypeRoleAssign   EventType = "authz.role_assign"
	EventTypeAccessDenied EventType = "authz.access_denied"

	// Association events
	EventTypeAssociationCreate EventType = "association.create"
	EventTypeAssociationDelete EventType = "association.delete"

	// Customer events
	EventTypeCustomerCreate EventType = "customer.create"
	EventTypeCustomerUpdate EventType = "customer.update"
	EventTypeCustomerDelete EventType = "customer.delete"

	// License events
	EventTypeLicenseCreate  EventType = "license.create"
	EventTypeLicenseUpdate  EventType = "license.update"
	EventTypeLicenseDelete  EventType = "license.delete"
	EventTypeLicenseConsume EventType = "license.consume"
	EventTypeLicenseExpire  EventType = "license.expire"
)

// EventStatus represents the outcome of an audited action
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being changed
type ResourceType string

const (
	ResourceTypeRole        ResourceType = "role"
	ResourceTypeAssociation ResourceType = "association"
	ResourceTypeCustomer    ResourceType = "customer"
	ResourceTypeLicense     ResourceType = "license"
	ResourceTypeReport      ResourceType = "report"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	ActorIdentity string `json:"actor_identity,omitempty"`

	// Resource
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   string       `json:"resource_id"`

	RequestID string                 `json:"request_id,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}
