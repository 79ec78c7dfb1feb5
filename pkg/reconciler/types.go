package reconciler

import (
	"context"
	"database/sql"
	"time"

	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/pgpool"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/schema"
)

// ConnectionSource hands out exclusively-owned database connections.
// *pgpool.Manager implements it.
type ConnectionSource interface {
	Acquire(ctx context.Context, target pgpool.Target) (*sql.DB, error)
	Release(target pgpool.Target, conn *sql.DB)
}

// SchemaEnsurer makes sure a schema exists before any grant runs.
// *schema.Manager implements it.
type SchemaEnsurer interface {
	Ensure(ctx context.Context, db *sql.DB, schemaName, owner string) (schema.Result, error)
}

// Assignment pairs one identity with the role type it should hold.
type Assignment struct {
	Name     string `json:"name"`
	RoleType string `json:"role_type"`
}

// Request describes one reconciliation call.
type Request struct {
	Project     string       `json:"project_id"`
	Region      string       `json:"region"`
	Instance    string       `json:"instance_name"`
	Database    string       `json:"database_name"`
	SchemaName  string       `json:"schema_name"`
	Assignments []Assignment `json:"iam_users"`

	// MessageID correlates results with the originating event, if any.
	MessageID string `json:"-"`
}

// Target returns the pool key for this request.
func (r Request) Target() pgpool.Target {
	return pgpool.Target{
		Project:  r.Project,
		Region:   r.Region,
		Instance: r.Instance,
		Database: r.Database,
	}
}

// Status classifies a reconciliation outcome.
type Status string

const (
	// StatusConverged means every requested identity was processed and
	// nothing failed.
	StatusConverged Status = "converged"

	// StatusMissingIdentities means the call converged except for
	// requested identities that do not exist in the database yet. This is
	// a known-safe gap, not an error.
	StatusMissingIdentities Status = "converged_with_missing"

	// StatusPartialFailure means one or more identities failed to grant
	// or revoke and need operator attention.
	StatusPartialFailure Status = "partial_failure"
)

// Result aggregates the outcome of one reconciliation call.
type Result struct {
	Success            bool          `json:"success"`
	Status             Status        `json:"status"`
	Message            string        `json:"message"`
	UsersProcessed     int           `json:"users_processed"`
	PermissionsRevoked int           `json:"permissions_revoked"`
	MissingUsers       []string      `json:"missing_users"`
	GrantErrors        int           `json:"grant_errors"`
	RevokeErrors       int           `json:"revoke_errors"`
	MessageID          string        `json:"message_id,omitempty"`
	Duration           time.Duration `json:"-"`
	DurationSeconds    float64       `json:"execution_time_seconds"`
}

func (r *Result) finalize(start time.Time) {
	r.Duration = time.Since(start)
	r.DurationSeconds = r.Duration.Seconds()
	switch {
	case r.GrantErrors > 0 || r.RevokeErrors > 0:
		r.Status = StatusPartialFailure
	case len(r.MissingUsers) > 0:
		r.Status = StatusMissingIdentities
	default:
		r.Status = StatusConverged
	}
	// Partial per-identity failures do not fail the call as a whole.
	r.Success = true
}

// InitializeRequest describes one role-initialization call.
type InitializeRequest struct {
	Project     string `json:"project_id"`
	Region      string `json:"region"`
	Instance    string `json:"instance_name"`
	Database    string `json:"database_name"`
	SchemaName  string `json:"schema_name"`
	ForceUpdate bool   `json:"force_update"`
}

// Target returns the pool key for this request.
func (r InitializeRequest) Target() pgpool.Target {
	return pgpool.Target{
		Project:  r.Project,
		Region:   r.Region,
		Instance: r.Instance,
		Database: r.Database,
	}
}

// InitializeResult reports the per-role outcome of one initialization.
type InitializeResult struct {
	Success         bool              `json:"success"`
	Message         string            `json:"message"`
	Created         []string          `json:"roles_created"`
	Updated         []string          `json:"roles_updated"`
	Skipped         []string          `json:"roles_skipped"`
	Errors          map[string]string `json:"role_errors,omitempty"`
	Duration        time.Duration     `json:"-"`
	DurationSeconds float64           `json:"execution_time_seconds"`
}
