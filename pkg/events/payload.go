package events

import (
	"fmt"
	"strings"

	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/reconciler"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/validation"
)

// IAMUser is one requested identity. permission_role names a role type
// directly; permission_level is the older coarse-grained field and maps
// onto a role type. permission_role wins when both are set.
type IAMUser struct {
	Name            string `json:"name"`
	PermissionRole  string `json:"permission_role,omitempty"`
	PermissionLevel string `json:"permission_level,omitempty"`
}

// Payload is the request body shared by the push and synchronous paths.
type Payload struct {
	ProjectID    string    `json:"project_id"`
	InstanceName string    `json:"instance_name"`
	DatabaseName string    `json:"database_name"`
	Region       string    `json:"region"`
	SchemaName   string    `json:"schema_name,omitempty"`
	IAMUsers     []IAMUser `json:"iam_users"`
}

// permissionLevels maps legacy permission_level values to role types.
var permissionLevels = map[string]string{
	"readonly":  "reader",
	"readwrite": "writer",
	"admin":     "admin",
}

// Validate checks required fields and fills defaults. iam_users is
// deliberately not required. Validate mutates the payload (trimming and
// the schema_name default), so call it before ToRequest.
func (p *Payload) Validate() error {
	p.ProjectID = strings.TrimSpace(p.ProjectID)
	p.InstanceName = strings.TrimSpace(p.InstanceName)
	p.DatabaseName = strings.TrimSpace(p.DatabaseName)
	p.Region = strings.TrimSpace(p.Region)
	p.SchemaName = strings.TrimSpace(p.SchemaName)

	required := map[string]string{
		"project_id":    p.ProjectID,
		"instance_name": p.InstanceName,
		"database_name": p.DatabaseName,
		"region":        p.Region,
	}
	for field, value := range required {
		if value == "" {
			return &validation.Error{Field: field, Reason: "required"}
		}
	}

	if p.SchemaName == "" {
		p.SchemaName = fmt.Sprintf("%s_schema", p.DatabaseName)
	}
	if _, err := validation.ValidateSchemaName(p.SchemaName); err != nil {
		return err
	}

	for i, user := range p.IAMUsers {
		if strings.TrimSpace(user.Name) == "" {
			return &validation.Error{
				Field:  fmt.Sprintf("iam_users[%d].name", i),
				Reason: "required",
			}
		}
	}
	return nil
}

// ToRequest converts a validated payload into a reconciler request.
func (p *Payload) ToRequest(messageID string) reconciler.Request {
	assignments := make([]reconciler.Assignment, 0, len(p.IAMUsers))
	for _, user := range p.IAMUsers {
		assignments = append(assignments, reconciler.Assignment{
			Name:     strings.TrimSpace(user.Name),
			RoleType: roleType(user),
		})
	}
	return reconciler.Request{
		Project:     p.ProjectID,
		Region:      p.Region,
		Instance:    p.InstanceName,
		Database:    p.DatabaseName,
		SchemaName:  p.SchemaName,
		Assignments: assignments,
		MessageID:   messageID,
	}
}

func roleType(user IAMUser) string {
	if user.PermissionRole != "" {
		return user.PermissionRole
	}
	if mapped, ok := permissionLevels[user.PermissionLevel]; ok {
		return mapped
	}
	// Unknown or absent level falls back to the least privilege.
	return "reader"
}
