package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wayfarerapp/wayfarer-server/internal/common"
	"github.com/wayfarerapp/wayfarer-server/internal/server/models"
)

const maxDeltaBodyBytes = 10 << 20 // 10MB

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service-layer sentinels onto the HTTP taxonomy.
// Unexpected errors become a generic internal error carrying the request's
// correlation id and never leak detail.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrorValidation):
		writeError(w, http.StatusBadRequest, "validation error")
	case errors.Is(err, common.ErrorNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, common.ErrConflictResolved):
		writeError(w, http.StatusConflict, "conflict already resolved")
	default:
		correlationID := chimw.GetReqID(r.Context())
		s.logger.Error(r.Context(), "request failed", "correlation_id", correlationID, "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":         "internal error",
			"correlationId": correlationID,
		})
	}
}

// verifyAccount checks the requested account against the token's claims.
// A mismatch reads as not-found so existence is never confirmed to an
// unauthorized caller.
func (s *Server) verifyAccount(w http.ResponseWriter, r *http.Request, accountID string) bool {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	if claims.AccountID != accountID {
		writeError(w, http.StatusNotFound, "not found")
		return false
	}
	return true
}

// handleSyncStatus handles GET /api/v1/sync/status.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")
	deviceID := r.URL.Query().Get("deviceId")
	if accountID == "" || deviceID == "" {
		writeError(w, http.StatusBadRequest, "accountId and deviceId are required")
		return
	}
	if !s.verifyAccount(w, r, accountID) {
		return
	}

	status, err := s.sync.GetStatus(r.Context(), accountID, deviceID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toSyncStatusDTO(status))
}

// handleSyncDelta handles POST /api/v1/sync/delta.
func (s *Server) handleSyncDelta(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDeltaBodyBytes)

	var req SyncDeltaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AccountID == "" || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "accountId and deviceId are required")
		return
	}
	if !s.verifyAccount(w, r, req.AccountID) {
		return
	}

	incoming := make([]*models.Envelope, 0, len(req.Incoming))
	for _, in := range req.Incoming {
		incoming = append(incoming, fromEnvelopeDTO(req.AccountID, in))
	}

	result, err := s.sync.ApplyDelta(r.Context(), req.AccountID, req.DeviceID, req.SinceVersion, incoming)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SyncDeltaResponse{
		ServerVersion: result.ServerVersion,
		Applied:       toEnvelopeDTOs(result.Applied),
		Conflicts:     toConflictDTOs(result.Conflicts),
		Outbound:      toEnvelopeDTOs(result.Outbound),
	})
}

// handleResolveConflict handles POST /api/v1/sync/resolve-conflict.
func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req ConflictResolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AccountID == "" || req.DeviceID == "" || req.ConflictID == "" || req.EntityID == "" {
		writeError(w, http.StatusBadRequest, "accountId, deviceId, conflictId and entityId are required")
		return
	}
	if !s.verifyAccount(w, r, req.AccountID) {
		return
	}

	resolution, err := s.sync.ResolveConflict(r.Context(),
		req.AccountID, req.DeviceID, req.ConflictID, req.EntityID, req.ChosenPayload, req.IsEncrypted)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ConflictResolutionResult{
		EntityID:      resolution.EntityID,
		ServerVersion: resolution.ServerVersion,
		ResolvedAt:    resolution.ResolvedAt,
	})
}

// handleRequestExport handles POST /api/v1/export.
func (s *Server) handleRequestExport(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AccountID == "" || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "accountId and deviceId are required")
		return
	}
	if !s.verifyAccount(w, r, req.AccountID) {
		return
	}

	job, err := s.export.Request(r.Context(), req.AccountID, req.DeviceID, req.Email)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, toExportJobDTO(job))
}

// handleExportStatus handles GET /api/v1/export/{id}/status.
func (s *Server) handleExportStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	accountID := r.URL.Query().Get("accountId")
	if jobID == "" || accountID == "" {
		writeError(w, http.StatusBadRequest, "accountId is required")
		return
	}
	if !s.verifyAccount(w, r, accountID) {
		return
	}

	job, err := s.export.GetStatus(r.Context(), jobID, accountID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toExportJobDTO(job))
}
