package httpapi

import (
	"context"
	"mime"
	"net/http"
	"strings"

	"wisefido-followup/internal/models"
	"wisefido-followup/internal/pending"
	"wisefido-followup/internal/repository"
	"wisefido-followup/internal/service"

	"go.uber.org/zap"
)

// FollowUpService operations exposed over HTTP; implemented by service.FollowUpService
type FollowUpService interface {
	LogIncident(ctx context.Context, in service.IncidentInput) (*service.CreateResult, error)
	Get(ctx context.Context, incidentID string) (*models.Incident, error)
	RecordResponse(ctx context.Context, incidentID string, in repository.ResponseInput) (*repository.RecordResult, error)
	ForceComplete(ctx context.Context, incidentID, completedBy string) (*models.Incident, error)
	Pending(ctx context.Context, childID string) (*pending.Summary, error)
	Export(ctx context.Context, childID string) ([]byte, error)
}

// FollowUpHandler follow-up API
type FollowUpHandler struct {
	svc    FollowUpService
	logger *zap.Logger
}

func NewFollowUpHandler(svc FollowUpService, logger *zap.Logger) *FollowUpHandler {
	return &FollowUpHandler{svc: svc, logger: logger}
}

type responseRequest struct {
	Effectiveness string `json:"effectiveness"`
	Notes         string `json:"notes"`
	TargetIndex   *int   `json:"target_index"`
}

// CreateIncident POST /followup/api/v1/incidents
func (h *FollowUpHandler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var in service.IncidentInput
	if err := readBodyJSON(r, maxBodyBytes, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	in.LoggedBy = userIDFromReq(r)

	res, err := h.svc.LogIncident(r.Context(), in)
	if err != nil {
		h.writeError(w, "create incident", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

// GetIncident GET /followup/api/v1/incidents/{id}
func (h *FollowUpHandler) GetIncident(w http.ResponseWriter, r *http.Request, id string) {
	inc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, "get incident", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(inc))
}

// RecordResponse POST /followup/api/v1/incidents/{id}/responses
// Stale and already-completed answers come back as success with their outcome.
func (h *FollowUpHandler) RecordResponse(w http.ResponseWriter, r *http.Request, id string) {
	var req responseRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	target := repository.CurrentCheckpoint
	if req.TargetIndex != nil {
		if *req.TargetIndex < 0 {
			writeJSON(w, http.StatusBadRequest, Fail("target_index must be >= 0"))
			return
		}
		target = *req.TargetIndex
	}

	res, err := h.svc.RecordResponse(r.Context(), id, repository.ResponseInput{
		Effectiveness: strings.TrimSpace(req.Effectiveness),
		Notes:         req.Notes,
		TargetIndex:   target,
		RespondedBy:   userIDFromReq(r),
	})
	if err != nil {
		h.writeError(w, "record response", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

// Complete POST /followup/api/v1/incidents/{id}/complete
func (h *FollowUpHandler) Complete(w http.ResponseWriter, r *http.Request, id string) {
	inc, err := h.svc.ForceComplete(r.Context(), id, userIDFromReq(r))
	if err != nil {
		h.writeError(w, "complete follow-up", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(inc))
}

// GetPending GET /followup/api/v1/pending?child_id=
func (h *FollowUpHandler) GetPending(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Pending(r.Context(), r.URL.Query().Get("child_id"))
	if err != nil {
		h.writeError(w, "get pending follow-ups", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(summary))
}

// Export GET /followup/api/v1/export?child_id=
func (h *FollowUpHandler) Export(w http.ResponseWriter, r *http.Request) {
	childID := r.URL.Query().Get("child_id")
	data, err := h.svc.Export(r.Context(), childID)
	if err != nil {
		h.writeError(w, "export follow-ups", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": "followup-" + childID + ".xlsx"})
	if disposition == "" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", disposition)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Health GET /health
func (h *FollowUpHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
}

func (h *FollowUpHandler) writeError(w http.ResponseWriter, op string, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Follow-up request failed", zap.String("op", op), zap.Error(err))
	} else {
		h.logger.Info("Follow-up request rejected", zap.String("op", op), zap.Error(err))
	}
	writeJSON(w, status, Fail(err.Error()))
}
