// Package storage opens and migrates the relational store behind licensehub.
//
// Two drivers are supported: "postgres" (github.com/lib/pq) for production and
// "sqlite3" (github.com/mattn/go-sqlite3) for local development and tests.
// Every query in the application uses $N placeholders, which both drivers accept.
//
// Schema changes live in embedded goose migrations, one directory per dialect:
//
//	migrations/postgres/*.sql
//	migrations/sqlite/*.sql
//
// A ConnectionManager owns the primary pool and any read replicas. Writes and
// transactional invariant checks always use Primary(); read-side queries that
// tolerate staleness (parent search, statistics) may use Replica().
package storage
