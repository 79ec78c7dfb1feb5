// Package registry persists role-initialization state in Redis.
//
// One record exists per (project, instance, database). The record tracks
// which role definitions were applied, at what version and checksum, so
// later initialization calls can skip roles that are already current.
//
// # Document Layout
//
// Records are stored as JSON under "role_registry:{project}-{instance}-{database}".
// Operation history lives in a separate Redis list under
// "role_registry:history:{project}-{instance}-{database}" so appends stay
// atomic even when a concurrent Save overwrites the record itself.
//
// # Consistency
//
// Save is a full-document overwrite with last-writer-wins semantics. Two
// concurrent initializations for the same database can race and the later
// Save wins. History entries are never lost because RPUSH is atomic and
// independent of Save.
package registry
