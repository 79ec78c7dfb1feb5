// Package schema creates and inspects PostgreSQL schemas.
//
// Ensure is idempotent: it reports whether the schema was created or
// already existed so callers can log accurately. When an owner is
// requested, the owner role is granted to the admin principal first so
// the admin can run CREATE SCHEMA ... AUTHORIZATION on the owner's
// behalf.
package schema
