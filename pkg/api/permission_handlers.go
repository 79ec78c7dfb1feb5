package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/events"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/httputil"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/pgpool"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/reconciler"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/validation"
)

// reconcilePermissions handles synchronous reconciliation requests. The body
// uses the same shape as the Pub/Sub event payload.
func (s *Server) reconcilePermissions(w http.ResponseWriter, r *http.Request) {
	var payload events.Payload
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}

	if err := payload.Validate(); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			httputil.WriteDetailedError(w, http.StatusBadRequest, err, map[string]string{"field": verr.Field})
			return
		}
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	result, err := s.reconciler.Reconcile(r.Context(), payload.ToRequest(""))
	if err != nil {
		s.writeReconcileError(w, err)
		return
	}

	s.recordReconcile(result)
	httputil.WriteSuccess(w, result)
}

// handlePubSubPush handles Pub/Sub push deliveries.
//
// Every outcome the service can make progress on is acked with 204, including
// partial failures and malformed envelopes, so Pub/Sub does not redeliver
// messages a retry cannot fix. Infrastructure failures return 5xx to trigger
// redelivery.
func (s *Server) handlePubSubPush(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequest(w, "failed to read request body")
		return
	}

	payload, meta, err := events.ParsePush(body)
	if err != nil {
		// Ack poison messages so they are not redelivered forever.
		s.log.WithError(err).WithField("message_id", meta.MessageID).
			Warn("Dropping unparseable Pub/Sub message")
		httputil.WriteNoContent(w)
		return
	}

	result, err := s.reconciler.Reconcile(r.Context(), payload.ToRequest(meta.MessageID))
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"message_id": meta.MessageID,
			"database":   payload.DatabaseName,
		}).Error("Reconciliation failed, message will be redelivered")
		s.writeReconcileError(w, err)
		return
	}

	s.recordReconcile(result)
	httputil.WriteNoContent(w)
}

// listIdentities lists the IAM identities present in one database,
// excluding system roles.
func (s *Server) listIdentities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := pgpool.Target{
		Project:  q.Get("project"),
		Region:   q.Get("region"),
		Instance: q.Get("instance"),
		Database: q.Get("database"),
	}
	if !httputil.RequireNonEmpty(w, target.Project, "project") ||
		!httputil.RequireNonEmpty(w, target.Region, "region") ||
		!httputil.RequireNonEmpty(w, target.Instance, "instance") ||
		!httputil.RequireNonEmpty(w, target.Database, "database") {
		return
	}

	identities, err := s.reconciler.ExistingIdentities(r.Context(), target)
	if err != nil {
		s.writeReconcileError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"database":   target.Database,
		"identities": identities,
	})
}

// writeReconcileError maps fatal reconciliation errors to HTTP statuses.
func (s *Server) writeReconcileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reconciler.ErrConnectionFailure):
		httputil.WriteServiceUnavailable(w, err.Error())
	case errors.Is(err, reconciler.ErrSchemaUnavailable):
		httputil.WriteServiceUnavailable(w, err.Error())
	default:
		var verr *validation.Error
		if errors.As(err, &verr) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		httputil.WriteInternalError(w, err)
	}
}

func (s *Server) recordReconcile(result *reconciler.Result) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveReconcile(
		string(result.Status),
		result.Duration,
		result.UsersProcessed,
		result.PermissionsRevoked,
		len(result.MissingUsers),
		result.GrantErrors,
		result.RevokeErrors,
	)
}
