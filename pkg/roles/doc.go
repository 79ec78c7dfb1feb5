// Package roles defines versioned PostgreSQL role definitions and the
// providers that produce them.
//
// # Role Definitions
//
// A Definition is a named, versioned bundle of SQL statements that creates a
// role and establishes its grants. Definitions carry a SHA-256 checksum over
// the sorted statement list, so two definitions with the same statements in
// a different order compare equal.
//
// # Providers
//
// Providers produce definitions for a (database, schema) pair and are
// registered explicitly at startup:
//
//	roles.Register(roles.NewStandardProvider())
//	roles.Register(provider)
//
//	defs := roles.Definitions("orders", "app")
//
// StandardProvider supplies the built-in reader/writer/admin/analyst roles
// plus the database-wide monitor and dba_agent roles. FileProvider loads
// additional definitions from a YAML catalog and reloads it when the file
// changes.
//
// # Security Gate
//
// Validate rejects any definition whose SQL requests SUPERUSER, CREATEDB,
// CREATEROLE, REPLICATION, BYPASSRLS or LOGIN, or that contains schema,
// database or extension DDL. Rejected definitions are never executed.
package roles
