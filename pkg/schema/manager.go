package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/catalog"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/validation"
)

// ErrOwnerNotFound means the requested schema owner does not exist as a
// role. The caller must provision the identity first; defaulting silently
// would hide a misconfiguration.
var ErrOwnerNotFound = errors.New("schema owner role not found")

// Result reports what Ensure did.
type Result struct {
	SchemaName string `json:"schema_name"`
	Created    bool   `json:"created"`
	Owner      string `json:"owner,omitempty"`
}

// Manager creates schemas on behalf of the admin principal.
type Manager struct {
	adminUser string
	log       *logrus.Logger
}

// NewManager builds a Manager. adminUser is the principal the service
// connects as, typically "postgres".
func NewManager(adminUser string, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.New()
	}
	return &Manager{adminUser: adminUser, log: log}
}

// Ensure makes sure schemaName exists, creating it if needed. An empty
// owner leaves ownership with the admin principal. Ensure validates the
// schema name before any SQL runs.
func (m *Manager) Ensure(ctx context.Context, db *sql.DB, schemaName, owner string) (Result, error) {
	validated, err := validation.ValidateSchemaName(schemaName)
	if err != nil {
		return Result{}, err
	}

	exists, err := catalog.SchemaExists(ctx, db, validated)
	if err != nil {
		return Result{}, err
	}
	if exists {
		m.log.WithField("schema", validated).Debug("Schema already exists")
		return Result{SchemaName: validated, Created: false}, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	createSQL := fmt.Sprintf("CREATE SCHEMA %s", validation.QuoteIdentifier(validated))
	normalizedOwner := ""

	if owner != "" {
		normalizedOwner = validation.NormalizeAccountName(owner)

		if !validation.IsSystemRole(normalizedOwner) {
			ownerExists, err := catalog.RoleExists(ctx, tx, normalizedOwner)
			if err != nil {
				return Result{}, err
			}
			if !ownerExists {
				return Result{}, fmt.Errorf("%w: %q", ErrOwnerNotFound, normalizedOwner)
			}
		}

		// The admin must hold the owner role to create a schema it owns.
		grantSQL := fmt.Sprintf("GRANT %s TO %s",
			validation.QuoteIdentifier(normalizedOwner), validation.QuoteIdentifier(m.adminUser))
		if _, err := tx.ExecContext(ctx, grantSQL); err != nil {
			m.log.WithFields(logrus.Fields{
				"owner": normalizedOwner,
				"admin": m.adminUser,
			}).WithError(err).Warn("Failed to grant owner role to admin, attempting creation anyway")
		}

		createSQL = fmt.Sprintf("CREATE SCHEMA %s AUTHORIZATION %s",
			validation.QuoteIdentifier(validated), validation.QuoteIdentifier(normalizedOwner))
	}

	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return Result{}, fmt.Errorf("failed to create schema %q: %w", validated, err)
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("failed to commit schema creation: %w", err)
	}

	m.log.WithFields(logrus.Fields{
		"schema": validated,
		"owner":  normalizedOwner,
	}).Info("Schema created")
	return Result{SchemaName: validated, Created: true, Owner: normalizedOwner}, nil
}

// ChangeOwner reassigns an existing schema to a new owner role.
func (m *Manager) ChangeOwner(ctx context.Context, db *sql.DB, schemaName, newOwner string) error {
	validated, err := validation.ValidateSchemaName(schemaName)
	if err != nil {
		return err
	}
	normalized := validation.NormalizeAccountName(newOwner)

	alterSQL := fmt.Sprintf("ALTER SCHEMA %s OWNER TO %s",
		validation.QuoteIdentifier(validated), validation.QuoteIdentifier(normalized))
	if _, err := db.ExecContext(ctx, alterSQL); err != nil {
		return fmt.Errorf("failed to change owner of schema %q to %q: %w", validated, normalized, err)
	}
	return nil
}

// List returns the user-visible schemas in the current database.
func (m *Manager) List(ctx context.Context, db *sql.DB) ([]string, error) {
	query := `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('information_schema', 'pg_catalog', 'pg_toast')
		ORDER BY schema_name
	`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan schema name: %w", err)
		}
		schemas = append(schemas, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read schemas: %w", err)
	}
	return schemas, nil
}
