// Package validation provides PostgreSQL identifier validation and the
// centralized system-role deny-list used across the managers.
//
// # Identifier Validation
//
// Schema, database and role names are validated against PostgreSQL naming
// rules before any SQL is built from them:
//
//	name, err := validation.ValidateSchemaName("analytics")
//	name, err := validation.ValidateIdentifier("orders", "database_name")
//
// # System Roles
//
// Cloud SQL ships a set of administrative and IAM-group roles alongside the
// PostgreSQL built-in pg_* roles. None of them may ever be treated as a
// managed identity:
//
//	if validation.IsSystemRole(name) {
//		// excluded from reconciliation
//	}
//
// # Identity Normalization
//
// Federated service accounts appear in the database without their
// .gserviceaccount.com suffix; NormalizeAccountName converts the email form
// to the database principal form.
package validation
