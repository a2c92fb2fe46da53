// Package audit records who changed what.
//
// Events cover role grants, association creation and deletion, customer and
// license edits, and license consumption. Each event carries the acting
// identity and request ID taken from the request context.
//
// Recording is best effort: Record logs a failed write instead of failing the
// operation that was already committed.
//
//	audit.Record(ctx, auditLogger, &audit.AuditEvent{
//		EventType:    audit.EventTypeAssociationCreate,
//		ResourceType: audit.ResourceTypeAssociation,
//		ResourceID:   strconv.FormatInt(assoc.ID, 10),
//		Message:      "association created",
//	})
package audit
