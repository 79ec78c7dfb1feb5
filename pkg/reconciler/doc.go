// Package reconciler converges database permission state toward a
// declared target.
//
// # Permission Reconciliation
//
// PermissionReconciler compares the requested identity-to-role mapping
// against the identities that actually exist in the database. Requested
// identities that exist are re-granted, requested identities that do not
// exist yet are dropped with a warning (provisioning them is an external
// responsibility), and existing identities that are no longer requested
// have every managed role revoked. Each identity is processed in its own
// transaction so one failure never blocks the rest.
//
// # Role Initialization
//
// Initializer applies versioned role definitions to a database. Per
// definition it decides created, updated, or skipped by checking the
// database catalog and the registry's last-applied version and checksum.
// All definitions pass the security validation gate before any SQL runs.
//
// Both reconcilers acquire connections through a ConnectionSource and
// release them on every exit path.
package reconciler
