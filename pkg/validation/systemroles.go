package validation

import "strings"

// accountSuffix is the federated service-account domain suffix stripped when
// mapping an IAM email to its database principal name.
const accountSuffix = ".gserviceaccount.com"

// cloudSQLSystemRoles are the administrative and IAM-group roles Cloud SQL
// provisions on every instance. They can never be managed identities.
var cloudSQLSystemRoles = map[string]struct{}{
	"postgres":                       {},
	"cloudsqlsuperuser":              {},
	"cloudsqladmin":                  {},
	"cloudsqlreplica":                {},
	"cloudsqlagent":                  {},
	"cloudsqlconnpooladmin":          {},
	"cloudsqlimportexport":           {},
	"cloudsqllogical":                {},
	"cloudsqlobservability":          {},
	"cloudsqliamgroup":               {},
	"cloudsqliamgroupserviceaccount": {},
	"cloudsqliamgroupuser":           {},
	"cloudsqliamserviceaccount":      {},
	"cloudsqliamuser":                {},
	"cloudsqlinactiveuser":           {},
}

// postgresSystemRoles are the predefined pg_* roles present on every server.
var postgresSystemRoles = map[string]struct{}{
	"pg_checkpoint":             {},
	"pg_database_owner":         {},
	"pg_execute_server_program": {},
	"pg_monitor":                {},
	"pg_read_all_data":          {},
	"pg_read_all_settings":      {},
	"pg_read_all_stats":         {},
	"pg_read_server_files":      {},
	"pg_signal_backend":         {},
	"pg_stat_scan_tables":       {},
	"pg_write_all_data":         {},
	"pg_write_server_files":     {},
}

// IsSystemRole reports whether name is a Cloud SQL or PostgreSQL system
// role that must be excluded from identity management.
func IsSystemRole(name string) bool {
	if _, ok := cloudSQLSystemRoles[name]; ok {
		return true
	}
	_, ok := postgresSystemRoles[name]
	return ok
}

// AllSystemRoles returns every system role name, for use in catalog query
// exclusion lists. The returned slice is sorted-insensitive; callers must
// not mutate shared state through it.
func AllSystemRoles() []string {
	out := make([]string, 0, len(cloudSQLSystemRoles)+len(postgresSystemRoles))
	for name := range cloudSQLSystemRoles {
		out = append(out, name)
	}
	for name := range postgresSystemRoles {
		out = append(out, name)
	}
	return out
}

// NormalizeAccountName converts a federated service-account email to the
// principal name it has inside the database:
//
//	my-service@project.iam.gserviceaccount.com -> my-service@project.iam
//
// Names without the suffix are returned unchanged.
func NormalizeAccountName(email string) string {
	return strings.TrimSuffix(email, accountSuffix)
}
