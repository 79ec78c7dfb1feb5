package reconciler

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/catalog"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/registry"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/roles"
)

// RegistryStore persists which role definitions have been applied.
// *registry.Client implements it.
type RegistryStore interface {
	Get(ctx context.Context, project, instance, database string) (*registry.Record, error)
	Save(ctx context.Context, project, instance, database string, record *registry.Record) error
	AppendHistory(ctx context.Context, project, instance, database string, entry registry.HistoryEntry) error
}

// roleAction is the per-definition state transition.
type roleAction int

const (
	actionSkip roleAction = iota
	actionCreate
	actionUpdate
)

// Initializer applies versioned role definitions to a database and
// records the outcome in the registry.
type Initializer struct {
	pools    ConnectionSource
	registry RegistryStore
	log      *logrus.Logger

	// definitions resolves the role catalog for a database and schema.
	// Defaults to the process-wide provider registry.
	definitions func(database, schema string) []roles.Definition
}

// NewInitializer wires an initializer against the process-wide role
// provider registry.
func NewInitializer(pools ConnectionSource, store RegistryStore, log *logrus.Logger) *Initializer {
	if log == nil {
		log = logrus.New()
	}
	return &Initializer{
		pools:       pools,
		registry:    store,
		log:         log,
		definitions: roles.Definitions,
	}
}

// Initialize creates or updates every role definition matching the target
// schema. Each role runs in its own transaction; a failing role is
// skipped with a recorded error and processing continues.
func (i *Initializer) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	start := time.Now()
	target := req.Target()

	defs := i.matchingDefinitions(req.Database, req.SchemaName)
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: database %q schema %q", ErrNoDefinitions, req.Database, req.SchemaName)
	}

	record, err := i.registry.Get(ctx, req.Project, req.Instance, req.Database)
	if err != nil {
		i.log.WithError(err).Warn("Failed to read registry record, treating as first initialization")
	}
	now := time.Now().UTC()
	if record == nil {
		record = registry.NewRecord(now)
	}

	conn, err := i.pools.Acquire(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("%w: acquiring connection for %s: %v", ErrConnectionFailure, target.Key(), err)
	}
	defer i.pools.Release(target, conn)

	result := &InitializeResult{
		Created: []string{},
		Updated: []string{},
		Skipped: []string{},
		Errors:  make(map[string]string),
	}

	for _, def := range defs {
		// Security gate: a rejected definition never reaches execution.
		if err := roles.Validate(def); err != nil {
			i.log.WithField("role", def.Name).WithError(err).Warn("Role definition rejected")
			result.Skipped = append(result.Skipped, def.Name)
			result.Errors[def.Name] = err.Error()
			continue
		}

		action, err := i.decide(ctx, conn, record, def, req.ForceUpdate)
		if err != nil {
			result.Skipped = append(result.Skipped, def.Name)
			result.Errors[def.Name] = err.Error()
			continue
		}
		if action == actionSkip {
			i.log.WithField("role", def.Name).Debug("Role is current, skipping")
			result.Skipped = append(result.Skipped, def.Name)
			continue
		}

		if err := i.apply(ctx, conn, def, action); err != nil {
			i.log.WithField("role", def.Name).WithError(err).Error("Failed to apply role definition")
			result.Skipped = append(result.Skipped, def.Name)
			result.Errors[def.Name] = err.Error()
			continue
		}

		record.Roles[def.Name] = registry.AppliedRole{
			Version:     def.Version,
			Checksum:    def.Checksum,
			Statements:  def.Statements,
			Inherits:    def.Inherits,
			NativeRoles: def.NativeRoles,
			CreatedAt:   now,
			Status:      def.Status,
		}
		if action == actionCreate {
			result.Created = append(result.Created, def.Name)
		} else {
			result.Updated = append(result.Updated, def.Name)
		}
	}

	record.Initialized = true
	record.UpdatedAt = now
	record.ForceUpdate = req.ForceUpdate
	if err := i.registry.Save(ctx, req.Project, req.Instance, req.Database, record); err != nil {
		// Roles were applied; a registry failure must not fail the call.
		i.log.WithError(err).Warn("Failed to save registry record after initialization")
	}

	entry := registry.HistoryEntry{
		Timestamp: now,
		Action:    "role_initialization",
		Created:   result.Created,
		Updated:   result.Updated,
		Skipped:   result.Skipped,
		Success:   len(result.Created)+len(result.Updated) > 0,
		Metadata: map[string]string{
			"schema_name":  req.SchemaName,
			"force_update": fmt.Sprintf("%t", req.ForceUpdate),
		},
	}
	if err := i.registry.AppendHistory(ctx, req.Project, req.Instance, req.Database, entry); err != nil {
		i.log.WithError(err).Warn("Failed to append registry history")
	}

	result.Success = true
	result.Duration = time.Since(start)
	result.DurationSeconds = result.Duration.Seconds()
	result.Message = fmt.Sprintf("Role initialization completed. Created: %d, Updated: %d, Skipped: %d",
		len(result.Created), len(result.Updated), len(result.Skipped))

	i.log.WithFields(logrus.Fields{
		"database": req.Database,
		"schema":   req.SchemaName,
		"created":  len(result.Created),
		"updated":  len(result.Updated),
		"skipped":  len(result.Skipped),
	}).Info("Role initialization finished")
	return result, nil
}

// matchingDefinitions returns the catalog filtered to the target schema,
// in stable name order.
func (i *Initializer) matchingDefinitions(database, schemaName string) []roles.Definition {
	all := i.definitions(database, schemaName)
	matched := make([]roles.Definition, 0, len(all))
	for _, def := range all {
		if def.MatchesSchema(database, schemaName) {
			matched = append(matched, def)
		}
	}
	sort.Slice(matched, func(a, b int) bool { return matched[a].Name < matched[b].Name })
	return matched
}

// decide picks the state transition for one definition: create when the
// role is absent, update when it is stale or forced, skip otherwise.
func (i *Initializer) decide(ctx context.Context, conn *sql.DB, record *registry.Record, def roles.Definition, force bool) (roleAction, error) {
	exists, err := catalog.RoleExists(ctx, conn, def.Name)
	if err != nil {
		return actionSkip, err
	}
	if !exists {
		return actionCreate, nil
	}
	if force {
		return actionUpdate, nil
	}
	applied, ok := record.Roles[def.Name]
	if !ok || def.Outdated(applied.Version, applied.Checksum) {
		return actionUpdate, nil
	}
	return actionSkip, nil
}

// apply runs the definition's statements in one transaction. On update
// the CREATE ROLE statement is skipped since the role already exists;
// grants and defaults are idempotent and re-run in full.
func (i *Initializer) apply(ctx context.Context, conn *sql.DB, def roles.Definition, action roleAction) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for role %q: %w", def.Name, err)
	}
	defer tx.Rollback()

	for _, stmt := range def.Statements {
		if action == actionUpdate && strings.HasPrefix(strings.ToUpper(strings.TrimSpace(stmt)), "CREATE ROLE") {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement failed for role %q: %w", def.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role %q: %w", def.Name, err)
	}
	return nil
}
