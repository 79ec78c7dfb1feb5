package reconciler

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/catalog"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/pgpool"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/roles"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/validation"
)

// PermissionReconciler converges role membership for externally-managed
// identities. It never creates or drops the identities themselves.
type PermissionReconciler struct {
	pools     ConnectionSource
	schemas   SchemaEnsurer
	adminUser string
	log       *logrus.Logger
}

// NewPermissionReconciler wires a reconciler. adminUser receives ownership
// reassignments during revocation, typically "postgres".
func NewPermissionReconciler(pools ConnectionSource, schemas SchemaEnsurer, adminUser string, log *logrus.Logger) *PermissionReconciler {
	if log == nil {
		log = logrus.New()
	}
	return &PermissionReconciler{
		pools:     pools,
		schemas:   schemas,
		adminUser: adminUser,
		log:       log,
	}
}

// Reconcile applies the requested assignments to the target database.
// Fatal failures (schema, connection) abort the call; per-identity
// failures are counted and processing continues.
func (r *PermissionReconciler) Reconcile(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	target := req.Target()

	conn, err := r.pools.Acquire(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("%w: acquiring connection for %s: %v", ErrConnectionFailure, target.Key(), err)
	}
	defer r.pools.Release(target, conn)

	if _, err := r.schemas.Ensure(ctx, conn, req.SchemaName, ""); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaUnavailable, err)
	}

	existing, err := catalog.ExistingIAMIdentities(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailure, err)
	}
	existingSet := make(map[string]bool, len(existing))
	for _, name := range existing {
		existingSet[name] = true
	}

	// Normalize requested names; a duplicate entry keeps the last role type.
	requested := make(map[string]string, len(req.Assignments))
	for _, a := range req.Assignments {
		requested[validation.NormalizeAccountName(a.Name)] = a.RoleType
	}

	var toProcess, missing, toRevoke []string
	for name := range requested {
		if existingSet[name] {
			toProcess = append(toProcess, name)
		} else {
			missing = append(missing, name)
		}
	}
	for _, name := range existing {
		if _, ok := requested[name]; !ok {
			toRevoke = append(toRevoke, name)
		}
	}
	sort.Strings(toProcess)
	sort.Strings(missing)
	sort.Strings(toRevoke)

	for _, name := range missing {
		r.log.WithFields(logrus.Fields{
			"identity": name,
			"database": req.Database,
		}).Warn("Requested identity does not exist, dropping (provisioning is external)")
	}

	result := &Result{MissingUsers: missing, MessageID: req.MessageID}
	if result.MissingUsers == nil {
		result.MissingUsers = []string{}
	}

	rolePrefix := fmt.Sprintf("%s_%s_", req.Database, req.SchemaName)

	for _, identity := range toProcess {
		roleName := roles.RoleName(req.Database, req.SchemaName, requested[identity])
		if err := r.regrant(ctx, conn, identity, roleName, rolePrefix); err != nil {
			r.log.WithFields(logrus.Fields{
				"identity": identity,
				"role":     roleName,
			}).WithError(err).Error("Failed to grant permissions")
			result.GrantErrors++
			continue
		}
		result.UsersProcessed++
	}

	for _, identity := range toRevoke {
		if err := r.revokeAll(ctx, conn, identity, req.Database, req.SchemaName, rolePrefix); err != nil {
			r.log.WithFields(logrus.Fields{
				"identity": identity,
				"database": req.Database,
			}).WithError(err).Error("Failed to revoke permissions")
			result.RevokeErrors++
			continue
		}
		result.PermissionsRevoked++
	}

	result.finalize(start)
	result.Message = fmt.Sprintf("Processed %d users, revoked %d, missing %d, errors %d",
		result.UsersProcessed, result.PermissionsRevoked, len(result.MissingUsers),
		result.GrantErrors+result.RevokeErrors)

	r.log.WithFields(logrus.Fields{
		"database": req.Database,
		"schema":   req.SchemaName,
		"status":   result.Status,
		"message":  result.Message,
	}).Info("Reconciliation finished")
	return result, nil
}

// ExistingIdentities lists the IAM identities currently present in the
// target database, excluding system roles.
func (r *PermissionReconciler) ExistingIdentities(ctx context.Context, target pgpool.Target) ([]string, error) {
	conn, err := r.pools.Acquire(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("%w: acquiring connection for %s: %v", ErrConnectionFailure, target.Key(), err)
	}
	defer r.pools.Release(target, conn)

	identities, err := catalog.ExistingIAMIdentities(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailure, err)
	}
	sort.Strings(identities)
	return identities, nil
}

// regrant revokes every managed role the identity holds and grants the
// one requested role, all inside one transaction.
func (r *PermissionReconciler) regrant(ctx context.Context, conn *sql.DB, identity, roleName, rolePrefix string) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	exists, err := catalog.RoleExists(ctx, tx, roleName)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("target role %q does not exist, initialize roles first", roleName)
	}

	if err := r.revokeManagedRoles(ctx, tx, identity, rolePrefix); err != nil {
		return err
	}

	grantSQL := fmt.Sprintf("GRANT %s TO %s",
		validation.QuoteIdentifier(roleName), validation.QuoteIdentifier(identity))
	if _, err := tx.ExecContext(ctx, grantSQL); err != nil {
		return fmt.Errorf("failed to grant %q to %q: %w", roleName, identity, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit grant for %q: %w", identity, err)
	}
	return nil
}

// revokeAll strips every managed role from an identity that is no longer
// requested, reassigning database and schema ownership to the admin first
// so revocation never leaves an orphaned owner.
func (r *PermissionReconciler) revokeAll(ctx context.Context, conn *sql.DB, identity, database, schemaName, rolePrefix string) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	dbOwner, err := catalog.DatabaseOwner(ctx, tx, database)
	if err != nil {
		return err
	}
	if dbOwner == identity {
		r.log.WithFields(logrus.Fields{
			"identity": identity,
			"database": database,
		}).Info("Identity owns the database, reassigning to admin")
		alterSQL := fmt.Sprintf("ALTER DATABASE %s OWNER TO %s",
			validation.QuoteIdentifier(database), validation.QuoteIdentifier(r.adminUser))
		if _, err := tx.ExecContext(ctx, alterSQL); err != nil {
			return fmt.Errorf("failed to reassign database ownership from %q: %w", identity, err)
		}
	}

	schemaOwner, err := catalog.SchemaOwner(ctx, tx, schemaName)
	if err != nil {
		return err
	}
	if schemaOwner == identity {
		r.log.WithFields(logrus.Fields{
			"identity": identity,
			"schema":   schemaName,
		}).Info("Identity owns the schema, reassigning to admin")
		alterSQL := fmt.Sprintf("ALTER SCHEMA %s OWNER TO %s",
			validation.QuoteIdentifier(schemaName), validation.QuoteIdentifier(r.adminUser))
		if _, err := tx.ExecContext(ctx, alterSQL); err != nil {
			return fmt.Errorf("failed to reassign schema ownership from %q: %w", identity, err)
		}
	}

	if err := r.revokeManagedRoles(ctx, tx, identity, rolePrefix); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit revoke for %q: %w", identity, err)
	}
	return nil
}

func (r *PermissionReconciler) revokeManagedRoles(ctx context.Context, tx *sql.Tx, identity, rolePrefix string) error {
	granted, err := catalog.MemberRoles(ctx, tx, identity, rolePrefix)
	if err != nil {
		return err
	}
	for _, role := range granted {
		revokeSQL := fmt.Sprintf("REVOKE %s FROM %s",
			validation.QuoteIdentifier(role), validation.QuoteIdentifier(identity))
		if _, err := tx.ExecContext(ctx, revokeSQL); err != nil {
			return fmt.Errorf("failed to revoke %q from %q: %w", role, identity, err)
		}
	}
	return nil
}
