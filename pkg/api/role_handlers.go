package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/httputil"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/reconciler"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/roles"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/validation"
)

// initializeRoles handles role initialization requests.
func (s *Server) initializeRoles(w http.ResponseWriter, r *http.Request) {
	var req reconciler.InitializeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if !httputil.RequireNonEmpty(w, req.Project, "project_id") ||
		!httputil.RequireNonEmpty(w, req.Region, "region") ||
		!httputil.RequireNonEmpty(w, req.Instance, "instance_name") ||
		!httputil.RequireNonEmpty(w, req.Database, "database_name") {
		return
	}

	if req.SchemaName == "" {
		req.SchemaName = fmt.Sprintf("%s_schema", req.Database)
	}
	if _, err := validation.ValidateSchemaName(req.SchemaName); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	result, err := s.initializer.Initialize(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, reconciler.ErrNoDefinitions):
			httputil.WriteNotFoundError(w, err.Error())
		case errors.Is(err, reconciler.ErrConnectionFailure):
			httputil.WriteServiceUnavailable(w, err.Error())
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	if s.metrics != nil {
		status := "success"
		if len(result.Errors) > 0 {
			status = "partial_failure"
		}
		s.metrics.ObserveRoleInit(status, result.Duration,
			len(result.Created), len(result.Updated), len(result.Skipped), len(result.Errors))
	}

	httputil.WriteSuccess(w, result)
}

// roleDefinitionView is the read-only representation of a role definition.
// Statements are omitted so the endpoint never leaks grant internals.
type roleDefinitionView struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Checksum     string   `json:"checksum"`
	Description  string   `json:"description,omitempty"`
	Inherits     []string `json:"inherits,omitempty"`
	NativeRoles  []string `json:"native_roles,omitempty"`
	DatabaseWide bool     `json:"database_wide"`
	Status       string   `json:"status"`
}

// listRoleDefinitions lists the role definitions registered for a database
// and schema, from every registered provider.
func (s *Server) listRoleDefinitions(w http.ResponseWriter, r *http.Request) {
	database := r.URL.Query().Get("database")
	if database == "" {
		httputil.WriteValidationError(w, "database query parameter is required")
		return
	}
	schemaName := r.URL.Query().Get("schema")
	if schemaName == "" {
		schemaName = fmt.Sprintf("%s_schema", database)
	}

	defs := roles.Definitions(database, schemaName)
	views := make([]roleDefinitionView, 0, len(defs))
	for _, def := range defs {
		views = append(views, roleDefinitionView{
			Name:         def.Name,
			Version:      def.Version,
			Checksum:     def.Checksum,
			Description:  def.Description,
			Inherits:     def.Inherits,
			NativeRoles:  def.NativeRoles,
			DatabaseWide: def.DatabaseWide,
			Status:       def.Status,
		})
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"database": database,
		"schema":   schemaName,
		"roles":    views,
	})
}

// getRegistryRecord returns the registry record for one database.
func (s *Server) getRegistryRecord(w http.ResponseWriter, r *http.Request) {
	project, instance, database, ok := registryPathVars(w, r)
	if !ok {
		return
	}

	record, err := s.registry.Get(r.Context(), project, instance, database)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if record == nil {
		httputil.WriteNotFoundError(w, fmt.Sprintf("no registry record for %s-%s-%s", project, instance, database))
		return
	}

	httputil.WriteSuccess(w, record)
}

// getRegistryHistory returns the initialization history for one database.
func (s *Server) getRegistryHistory(w http.ResponseWriter, r *http.Request) {
	project, instance, database, ok := registryPathVars(w, r)
	if !ok {
		return
	}

	history, err := s.registry.History(r.Context(), project, instance, database)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"key":     fmt.Sprintf("%s-%s-%s", project, instance, database),
		"history": history,
	})
}

func registryPathVars(w http.ResponseWriter, r *http.Request) (project, instance, database string, ok bool) {
	project, ok = httputil.ParsePathStringOrError(w, r, "project")
	if !ok {
		return
	}
	instance, ok = httputil.ParsePathStringOrError(w, r, "instance")
	if !ok {
		return
	}
	database, ok = httputil.ParsePathStringOrError(w, r, "database")
	return
}
