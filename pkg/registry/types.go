package registry

import (
	"fmt"
	"time"
)

// AppliedRole captures the last-applied state of one role definition.
type AppliedRole struct {
	Version     string    `json:"version"`
	Checksum    string    `json:"checksum"`
	Statements  []string  `json:"statements"`
	Inherits    []string  `json:"inherits,omitempty"`
	NativeRoles []string  `json:"native_roles,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Status      string    `json:"status"`
}

// Record is the persisted state for one (project, instance, database).
// It is created on the first successful initialization and updated on
// every subsequent one; it is never deleted by this service.
type Record struct {
	Initialized bool                   `json:"initialized"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ForceUpdate bool                   `json:"force_update"`
	Roles       map[string]AppliedRole `json:"roles"`
}

// NewRecord returns an empty record stamped with now.
func NewRecord(now time.Time) *Record {
	return &Record{
		CreatedAt: now,
		UpdatedAt: now,
		Roles:     make(map[string]AppliedRole),
	}
}

// HistoryEntry describes one initialization run. Entries are append-only.
type HistoryEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Action    string            `json:"action"`
	Created   []string          `json:"created,omitempty"`
	Updated   []string          `json:"updated,omitempty"`
	Skipped   []string          `json:"skipped,omitempty"`
	Success   bool              `json:"success"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Key builds the document key for one database.
func Key(project, instance, database string) string {
	return fmt.Sprintf("%s-%s-%s", project, instance, database)
}
