// Package httputil provides the JSON helpers and middleware shared by the
// service's HTTP handlers.
//
// # Responses
//
// Success:
//
//	httputil.WriteSuccess(w, result)
//	httputil.WriteNoContent(w)
//
// Errors all share the ErrorResponse body shape:
//
//	httputil.WriteBadRequest(w, "invalid JSON")
//	httputil.WriteNotFoundError(w, "no registry record")
//	httputil.WriteServiceUnavailable(w, "database unreachable")
//	httputil.WriteDetailedError(w, http.StatusBadRequest, err, map[string]string{"field": "database_name"})
//
// # Request Parsing
//
// Parsing helpers write the error response themselves and return false, so
// handlers read as a sequence of guarded extractions:
//
//	var req InitializeRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
//	if !httputil.RequireNonEmpty(w, req.DatabaseName, "database_name") {
//		return
//	}
//
// # Middleware
//
// Chain applies middleware so the first listed wraps outermost:
//
//	httputil.Chain(handler,
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(log),
//		httputil.RecoveryMiddleware(log),
//		httputil.TimeoutMiddleware(10*time.Minute),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// pkg/api assembles the full chain; pkg/observability supplies request-ID
// context propagation and the metrics middleware.
package httputil
