package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

const internalErrorMessage = "Internal server error"

// Response is the body of every JSON reply.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Results any    `json:"results,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, message string, results any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Message: message, Results: results})
}

// writeError maps err to a status with HTTPStatus. Client errors surface
// their message; server errors are logged and answered generically.
func writeError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error) {
	e, ok := sserr.AsError(err)
	if !ok {
		logger.ErrorContext(ctx, "server: unclassified error", "error", err)
		writeJSON(w, http.StatusInternalServerError, Response{Message: internalErrorMessage})
		return
	}

	status := e.HTTPStatus()
	switch {
	case sserr.IsAuthentication(err):
		writeJSON(w, status, Response{Message: "Unauthorized"})
	case status < http.StatusInternalServerError:
		writeJSON(w, status, Response{Message: e.Message})
	case sserr.IsProvisioning(err) || sserr.IsRetryable(err):
		logger.WarnContext(ctx, "server: upstream failure", "code", e.Code, "error", err)
		writeJSON(w, status, Response{Message: e.Message})
	default:
		logger.ErrorContext(ctx, "server: request failed", "code", e.Code, "error", err)
		writeJSON(w, http.StatusInternalServerError, Response{Message: internalErrorMessage})
	}
}
