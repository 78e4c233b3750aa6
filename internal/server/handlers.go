package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/provisioning"
)

type healthResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Service lifecycleSummary `json:"service"`
}

type lifecycleSummary struct {
	Name          string            `json:"name"`
	Version       string            `json:"version"`
	State         string            `json:"state"`
	UptimeSeconds int64             `json:"uptime_seconds,omitempty"`
	Dependencies  map[string]string `json:"dependencies,omitempty"`
}

// handleHealth answers 200 only while the service is running and every
// dependency check passes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Report(r.Context())
	body := healthResponse{
		Success: report.Healthy(),
		Message: "ok",
		Service: lifecycleSummary{
			Name:          report.Name,
			Version:       report.Version,
			State:         report.State.String(),
			UptimeSeconds: int64(report.Uptime.Seconds()),
			Dependencies:  report.Dependencies,
		},
	}
	status := http.StatusOK
	if !body.Success {
		status = http.StatusServiceUnavailable
		body.Message = "unavailable"
	}
	writeJSON(w, status, body)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := auth.MustPrincipalFromContext(ctx)

	var req provisioning.AccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, s.logger, err)
		return
	}
	if _, err := s.provisioner.CreateAccount(ctx, caller.Subject, req); err != nil {
		writeError(ctx, w, s.logger, err)
		return
	}
	writeSuccess(w, "User created successfully", nil)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := auth.MustPrincipalFromContext(ctx)

	if err := s.provisioner.DeleteAccount(ctx, caller.Subject, mux.Vars(r)["userId"]); err != nil {
		writeError(ctx, w, s.logger, err)
		return
	}
	writeSuccess(w, "User deleted successfully", nil)
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := auth.MustPrincipalFromContext(ctx)

	report, err := s.provisioner.SeedDefaults(ctx, caller.Subject)
	if err != nil {
		writeError(ctx, w, s.logger, err)
		return
	}
	writeSuccess(w, "Users seeded successfully", report.Results)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return sserr.Validation("request body is required")
		case errors.As(err, &maxErr):
			return sserr.Validation("request body is too large")
		default:
			return sserr.Wrap(err, sserr.CodeValidationFormat, "request body is not valid JSON")
		}
	}
	return nil
}
