package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"wisefido-followup/internal/repository"
)

const maxBodyBytes = 1 << 20

// userIDHeader acting caregiver, stored as logged_by / responded_by / completed_by
const userIDHeader = "X-User-Id"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func userIDFromReq(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(userIDHeader))
}

// statusForError not found -> 404, validation -> 400, optimistic retries exhausted -> 409
func statusForError(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrInvalidIncident), errors.Is(err, repository.ErrInvalidEffectiveness):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
