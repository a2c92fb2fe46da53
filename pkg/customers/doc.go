// Package customers stores customer records, the nodes of the association graph.
//
// Each customer has a type (client_basic, client_prospect, reseller,
// intermediary), a status (active or disabled) and an optional owner identity
// linking it to the login that manages it. Listing is always scoped to the
// owner identities the caller may see; see rbac.Engine.AccessibleOwnerIdentities.
package customers
