// Package rbac decides who may do what.
//
// # Roles and permissions
//
// Every identity holds at most one Role. Roles map to a fixed permission
// table:
//
//	client_basic, client_prospect  reports:read reports:create licenses:read_own modules:read
//	reseller                       + customers:read licenses:read analytics:read associations:read
//	intermediary                   reseller + customers:update
//	superadmin                     everything, including associations:manage and roles:manage
//
// The table and the route table are package-level values built once at init
// and never mutated, so lookups need no locking.
//
// # Routes
//
// Every mux route is registered with a name (see the Route* constants). The
// Guard middleware looks the name up in the route table: public routes pass,
// authenticated routes need an identity, and permission routes need a role
// granting the permission. Routes missing from the table are denied.
//
//	api.Use(rbac.NewGuard(engine, metrics).Handler)
//	caller, _ := rbac.CallerFromContext(r.Context())
//
// # Hierarchy
//
// Resellers and intermediaries see their own customers plus customers that
// are direct children of their own customers. Visibility is one hop; it
// never follows grandchildren. Engine loads child owners through a
// ChildOwnerLister only when the cheaper checks cannot decide.
//
// # Role lookups
//
// Store reads and upserts user_roles. CachedStore adds an expiring LRU in
// front of it for the per-request role resolution done by Guard.
package rbac
