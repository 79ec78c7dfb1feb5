// Package pgpool maintains one bounded connection pool per target database.
//
// # Pool Keys
//
// Pools are keyed by the full (project, region, instance, database) tuple.
// PostgreSQL connections are bound to a single database for their lifetime,
// so two databases on the same instance never share a pool; handing a
// connection for one database to a caller targeting another would be a
// correctness bug, not a performance one.
//
// # Connections
//
// Each pooled connection is a *sql.DB handle capped at one underlying
// connection, so a checked-out handle is exclusively owned by its caller
// until released. Creation fetches the admin password from the credential
// provider exactly once per connection.
//
// # Lifecycle
//
//	conn, err := manager.Acquire(ctx, target)
//	if err != nil { ... }
//	defer manager.Release(target, conn)
//
// Acquire pops an idle connection and probes it with SELECT 1, discarding
// dead ones. When no idle connection exists and the pool is below
// maxSize+maxOverflow a new connection is created; at the ceiling, Acquire
// blocks up to the pool timeout and then fails with ErrPoolExhausted.
package pgpool
