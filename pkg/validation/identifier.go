package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// Error describes a rejected input field. It is returned before any SQL is
// executed, so callers can map it to a 4xx response.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// identifierPattern matches valid unquoted PostgreSQL identifiers.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// reservedKeywords are PostgreSQL keywords that are rejected as identifiers
// even though some of them would be legal when quoted.
var reservedKeywords = map[string]struct{}{
	"all": {}, "alter": {}, "and": {}, "any": {}, "as": {}, "asc": {},
	"begin": {}, "between": {}, "case": {}, "check": {}, "column": {},
	"commit": {}, "constraint": {}, "create": {}, "database": {},
	"default": {}, "delete": {}, "desc": {}, "distinct": {}, "drop": {},
	"else": {}, "end": {}, "exists": {}, "foreign": {}, "from": {},
	"grant": {}, "group": {}, "in": {}, "index": {}, "insert": {}, "is": {},
	"key": {}, "like": {}, "not": {}, "null": {}, "on": {}, "or": {},
	"order": {}, "primary": {}, "public": {}, "references": {}, "revoke": {},
	"role": {}, "rollback": {}, "schema": {}, "select": {}, "set": {},
	"table": {}, "transaction": {}, "true": {}, "false": {}, "unique": {},
	"update": {}, "user": {}, "view": {}, "when": {}, "where": {},
}

// reservedSchemas are schema names owned by PostgreSQL itself.
var reservedSchemas = map[string]struct{}{
	"information_schema": {},
	"pg_catalog":         {},
	"pg_toast":           {},
}

// ValidateIdentifier checks that name is a valid unquoted PostgreSQL
// identifier and not a reserved keyword. field is used in error messages.
func ValidateIdentifier(name, field string) (string, error) {
	if name == "" {
		return "", &Error{Field: field, Reason: "must be a non-empty string"}
	}
	if len(name) > 63 {
		return "", &Error{Field: field, Reason: "must be 63 characters or less"}
	}
	if !identifierPattern.MatchString(name) {
		return "", &Error{
			Field:  field,
			Reason: "must start with a letter or underscore, followed by letters, digits, or underscores",
		}
	}
	if _, ok := reservedKeywords[strings.ToLower(name)]; ok {
		return "", &Error{Field: field, Reason: fmt.Sprintf("%q is a reserved keyword", name)}
	}
	return name, nil
}

// ValidateSchemaName validates name as a schema identifier and additionally
// rejects the schemas PostgreSQL reserves for itself.
func ValidateSchemaName(name string) (string, error) {
	validated, err := ValidateIdentifier(name, "schema_name")
	if err != nil {
		return "", err
	}
	if _, ok := reservedSchemas[strings.ToLower(name)]; ok {
		return "", &Error{Field: "schema_name", Reason: fmt.Sprintf("%q is reserved by PostgreSQL", name)}
	}
	return validated, nil
}

// QuoteIdentifier returns name double-quoted for safe interpolation into
// DDL. Embedded quotes are doubled per the SQL standard.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
