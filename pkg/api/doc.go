// Package api provides the HTTP interface for permission reconciliation and
// role initialization.
//
// # Endpoints
//
// Reconciliation:
//
//	POST /v1/permissions/reconcile   Synchronous reconciliation, returns the full result
//	POST /v1/pubsub/push             Pub/Sub push endpoint, acks with 204
//
// Role management:
//
//	POST /v1/roles/initialize                                Initialize managed roles
//	GET  /v1/roles                                           List role definitions
//	GET  /v1/registry/{project}/{instance}/{database}         Registry record
//	GET  /v1/registry/{project}/{instance}/{database}/history Initialization history
//
// Operations:
//
//	GET  /v1/pools   Connection pool statistics
//
// # Pub/Sub Acknowledgement
//
// The push endpoint acks (204) every outcome the service can make progress
// on, including partial failures and missing identities, so messages are not
// redelivered for conditions a retry cannot fix. Malformed envelopes are also
// acked to drop poison messages. Only infrastructure failures (database or
// schema unavailable) return 5xx so Pub/Sub retries them.
package api
