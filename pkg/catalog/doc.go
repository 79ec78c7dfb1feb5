// Package catalog reads role and schema state from the PostgreSQL system
// catalogs.
//
// Every function takes a Querier so callers can run lookups either on a
// pooled connection or inside an open transaction. The package never
// mutates the database; it answers existence and membership questions for
// the reconcilers.
package catalog
