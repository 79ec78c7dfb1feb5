package roles

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Status values for a role definition lifecycle.
const (
	StatusActive     = "active"
	StatusDeprecated = "deprecated"
)

// Definition is a named, versioned bundle of SQL statements establishing a
// PostgreSQL role and its grants. Names follow the convention
// {database}_{schema}_{roleType} for schema-scoped roles and
// {database}_{roleType} for database-wide roles.
type Definition struct {
	Name        string    `json:"name" yaml:"name"`
	Version     string    `json:"version" yaml:"version"`
	Checksum    string    `json:"checksum" yaml:"checksum,omitempty"`
	Statements  []string  `json:"statements" yaml:"statements"`
	Inherits    []string  `json:"inherits,omitempty" yaml:"inherits,omitempty"`
	NativeRoles []string  `json:"native_roles,omitempty" yaml:"native_roles,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty" yaml:"-"`
	Status      string    `json:"status" yaml:"status,omitempty"`

	// DatabaseWide marks roles named {database}_{roleType} that apply to
	// the whole database rather than one schema.
	DatabaseWide bool `json:"database_wide,omitempty" yaml:"database_wide,omitempty"`
}

// Checksum computes the SHA-256 hash of a statement list. Statements are
// sorted first so ordering never changes the hash.
func Checksum(statements []string) string {
	sorted := make([]string, len(statements))
	copy(sorted, statements)
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}

// ComputeChecksum fills in the definition's checksum from its statements.
func (d *Definition) ComputeChecksum() {
	d.Checksum = Checksum(d.Statements)
}

// ChecksumValid reports whether the stored checksum matches the statements.
// A mismatch means the definition must be treated as changed.
func (d *Definition) ChecksumValid() bool {
	return d.Checksum == Checksum(d.Statements)
}

// Outdated reports whether the definition differs from a previously applied
// (version, checksum) pair.
func (d *Definition) Outdated(appliedVersion, appliedChecksum string) bool {
	return d.Version != appliedVersion || d.Checksum != appliedChecksum
}

// MatchesSchema reports whether the definition belongs to the given
// database+schema scope. Schema-scoped roles must carry the
// {database}_{schema}_ prefix; database-wide roles match any schema of
// their database, so a call scoped to one schema never touches another
// schema's roles.
func (d *Definition) MatchesSchema(database, schema string) bool {
	if d.DatabaseWide {
		return strings.HasPrefix(d.Name, database+"_")
	}
	return strings.HasPrefix(d.Name, database+"_"+schema+"_")
}

// RoleName builds the conventional schema-scoped role name for a role type.
func RoleName(database, schema, roleType string) string {
	return database + "_" + schema + "_" + roleType
}

// DatabaseRoleName builds the conventional database-wide role name.
func DatabaseRoleName(database, roleType string) string {
	return database + "_" + roleType
}
