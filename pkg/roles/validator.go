package roles

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrDangerousDefinition is returned when a role definition requests
// privileges or DDL this service refuses to execute. It is a hard gate, not
// a warning: a rejected definition never reaches the database.
var ErrDangerousDefinition = errors.New("role definition contains dangerous SQL")

// dangerousAttributes are role attributes that would escalate privileges.
// LOGIN is included because managed roles are group roles only; the NOLOGIN
// qualifier is exempted during scanning.
var dangerousAttributes = []string{
	"SUPERUSER",
	"CREATEDB",
	"CREATEROLE",
	"REPLICATION",
	"BYPASSRLS",
	"LOGIN",
}

// dangerousPatterns are SQL fragments outside the scope of role grants.
var dangerousPatterns = []string{
	"ALTER SYSTEM",
	"CREATE EXTENSION",
	"DROP EXTENSION",
	"CREATE SCHEMA",
	"DROP SCHEMA",
	"CREATE DATABASE",
	"DROP DATABASE",
}

// Validate checks a definition against the security policy and structural
// invariants. Any returned error wraps ErrDangerousDefinition when the
// definition was rejected on security grounds.
func Validate(def Definition) error {
	if len(def.Statements) == 0 {
		return fmt.Errorf("role %s has no SQL statements", def.Name)
	}

	for _, stmt := range def.Statements {
		upper := strings.ToUpper(stmt)

		for _, attr := range dangerousAttributes {
			if !strings.Contains(upper, attr) {
				continue
			}
			if attr == "LOGIN" && strings.Contains(upper, "NOLOGIN") {
				continue
			}
			return fmt.Errorf("%w: role %s requests %s", ErrDangerousDefinition, def.Name, attr)
		}

		for _, pattern := range dangerousPatterns {
			if strings.Contains(upper, pattern) {
				return fmt.Errorf("%w: role %s contains %q", ErrDangerousDefinition, def.Name, pattern)
			}
		}
	}

	if !def.ChecksumValid() {
		return fmt.Errorf("role %s checksum does not match its statements", def.Name)
	}

	if !validVersion(def.Version) {
		return fmt.Errorf("role %s version %q is not MAJOR.MINOR.PATCH", def.Name, def.Version)
	}

	return nil
}

// ValidateAll validates every definition and returns the names of those
// rejected, keyed by name, with the first error for each.
func ValidateAll(defs []Definition) map[string]error {
	rejected := make(map[string]error)
	for _, def := range defs {
		if err := Validate(def); err != nil {
			rejected[def.Name] = err
		}
	}
	return rejected
}

func validVersion(version string) bool {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return false
	}
	for _, part := range parts {
		if _, err := strconv.Atoi(part); err != nil {
			return false
		}
	}
	return true
}
