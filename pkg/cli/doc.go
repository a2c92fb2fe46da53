// Package cli provides the licensehub-cli administration tool.
//
// # Overview
//
// The CLI talks to the database directly and covers the operations that
// have no HTTP surface or that are needed before the first superadmin
// exists: applying migrations, assigning roles, issuing development tokens,
// seeding the module catalogue and running the license expiry sweep.
//
// # Commands
//
// migrate: Apply pending schema migrations
//
//	licensehub-cli migrate
//
// assign-role: Assign or replace a user's role
//
//	licensehub-cli assign-role --identity auth0|abc --role superadmin
//
// get-role: Show a user's role
//
//	licensehub-cli get-role --identity auth0|abc
//
// issue-token: Sign an HS256 bearer token (requires LICENSEHUB_JWT_SECRET)
//
//	licensehub-cli issue-token --identity auth0|abc --ttl 1h
//
// create-module: Add a module to the catalogue
//
//	licensehub-cli create-module --name balance --display-name "Balance Analysis"
//
// expire-licenses: Mark lapsed licenses as expired
//
//	licensehub-cli expire-licenses
//
// # Configuration
//
// Database and token settings come from the same LICENSEHUB_* environment
// variables as the server.
package cli
