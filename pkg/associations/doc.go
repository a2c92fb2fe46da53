// Package associations maintains the parent/child graph between customers.
//
// Resellers may parent intermediaries and end customers; intermediaries may
// parent end customers. Edges are created and removed only by superadmins and
// are never edited in place. Every create runs its existence, pairing,
// duplicate and reverse-edge checks in a single transaction, and the
// unordered-pair unique index in the schema settles concurrent writers.
//
// The graph also feeds authorization: Store implements rbac.ChildOwnerLister,
// which lets resellers and intermediaries see the customers directly below
// their own.
package associations
