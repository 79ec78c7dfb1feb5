package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/validation"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// RoleExists reports whether a role exists in pg_roles.
func RoleExists(ctx context.Context, q Querier, roleName string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM pg_roles WHERE rolname = $1", roleName).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to check role %q: %w", roleName, err)
	}
	return true, nil
}

// SchemaExists reports whether a schema exists in the current database.
func SchemaExists(ctx context.Context, q Querier, schemaName string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM information_schema.schemata WHERE schema_name = $1", schemaName).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to check schema %q: %w", schemaName, err)
	}
	return true, nil
}

// DatabaseExists reports whether a database exists on the instance.
func DatabaseExists(ctx context.Context, q Querier, databaseName string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM pg_database WHERE datname = $1", databaseName).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to check database %q: %w", databaseName, err)
	}
	return true, nil
}

// HasRole reports whether member is a direct member of roleName.
func HasRole(ctx context.Context, q Querier, member, roleName string) (bool, error) {
	query := `
		SELECT 1 FROM pg_roles r
		JOIN pg_auth_members m ON r.oid = m.roleid
		JOIN pg_roles u ON m.member = u.oid
		WHERE u.rolname = $1 AND r.rolname = $2
	`
	var one int
	err := q.QueryRowContext(ctx, query, member, roleName).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to check membership of %q in %q: %w", member, roleName, err)
	}
	return true, nil
}

// escapeLikePrefix escapes LIKE metacharacters so a prefix with literal
// underscores, routine in managed-role names, cannot match unrelated roles.
func escapeLikePrefix(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// MemberRoles returns every role granted to member whose name starts with
// prefix. An empty prefix returns all granted roles.
func MemberRoles(ctx context.Context, q Querier, member, prefix string) ([]string, error) {
	query := `
		SELECT r.rolname
		FROM pg_roles r
		JOIN pg_auth_members m ON r.oid = m.roleid
		JOIN pg_roles u ON m.member = u.oid
		WHERE u.rolname = $1 AND r.rolname LIKE $2 ESCAPE '\'
		ORDER BY r.rolname
	`
	rows, err := q.QueryContext(ctx, query, member, escapeLikePrefix(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list roles for %q: %w", member, err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan role name: %w", err)
		}
		roles = append(roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read roles for %q: %w", member, err)
	}
	return roles, nil
}

// ExistingIAMIdentities returns the login-capable, non-superuser identities
// currently present in the database, excluding every known system role.
// Identity lifecycle is external; this only observes what exists.
func ExistingIAMIdentities(ctx context.Context, q Querier) ([]string, error) {
	excluded := validation.AllSystemRoles()
	placeholders := make([]string, len(excluded))
	args := make([]interface{}, len(excluded))
	for i, name := range excluded {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = name
	}

	query := fmt.Sprintf(`
		SELECT rolname FROM pg_roles
		WHERE rolname NOT IN (%s)
		AND rolname NOT LIKE 'cloudsql%%'
		AND rolname NOT LIKE 'pg\_%%'
		AND rolname NOT LIKE 'information_schema%%'
		AND NOT rolsuper
		AND rolcanlogin
		ORDER BY rolname
	`, strings.Join(placeholders, ","))

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list IAM identities: %w", err)
	}
	defer rows.Close()

	var identities []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan identity name: %w", err)
		}
		identities = append(identities, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read IAM identities: %w", err)
	}
	return identities, nil
}

// IdentityCheck explains why a name is or is not usable as an IAM identity.
type IdentityCheck struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// CheckIAMIdentity verifies that username names an existing, login-capable,
// non-system, non-superuser role.
func CheckIAMIdentity(ctx context.Context, q Querier, username string) (IdentityCheck, error) {
	var (
		rolname  string
		canLogin bool
		isSuper  bool
	)
	err := q.QueryRowContext(ctx,
		"SELECT rolname, rolcanlogin, rolsuper FROM pg_roles WHERE rolname = $1",
		username,
	).Scan(&rolname, &canLogin, &isSuper)
	if err == sql.ErrNoRows {
		return IdentityCheck{Reason: "role does not exist"}, nil
	} else if err != nil {
		return IdentityCheck{}, fmt.Errorf("failed to look up role %q: %w", username, err)
	}

	switch {
	case validation.IsSystemRole(rolname):
		return IdentityCheck{Reason: "system role"}, nil
	case isSuper:
		return IdentityCheck{Reason: "superuser"}, nil
	case !canLogin:
		return IdentityCheck{Reason: "role cannot log in"}, nil
	case strings.HasPrefix(rolname, "pg_"), strings.HasPrefix(rolname, "cloudsql"):
		return IdentityCheck{Reason: "reserved name prefix"}, nil
	}
	return IdentityCheck{Valid: true}, nil
}

// DatabaseOwner returns the owning role of a database.
func DatabaseOwner(ctx context.Context, q Querier, databaseName string) (string, error) {
	query := `
		SELECT pg_catalog.pg_get_userbyid(d.datdba)
		FROM pg_catalog.pg_database d
		WHERE d.datname = $1
	`
	var owner string
	err := q.QueryRowContext(ctx, query, databaseName).Scan(&owner)
	if err == sql.ErrNoRows {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("failed to look up owner of database %q: %w", databaseName, err)
	}
	return owner, nil
}

// SchemaOwner returns the owning role of a schema in the current database.
func SchemaOwner(ctx context.Context, q Querier, schemaName string) (string, error) {
	query := `
		SELECT pg_catalog.pg_get_userbyid(n.nspowner)
		FROM pg_catalog.pg_namespace n
		WHERE n.nspname = $1
	`
	var owner string
	err := q.QueryRowContext(ctx, query, schemaName).Scan(&owner)
	if err == sql.ErrNoRows {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("failed to look up owner of schema %q: %w", schemaName, err)
	}
	return owner, nil
}
