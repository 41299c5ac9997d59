package repository

import (
	"context"
	"errors"

	"wisefido-followup/internal/models"
)

var (
	// ErrNotFound incident id does not exist
	ErrNotFound = errors.New("incident not found")
	// ErrConflict concurrent writers kept winning until retries ran out
	ErrConflict = errors.New("incident update conflict")
	// ErrInvalidIncident payload rejected before any write
	ErrInvalidIncident = errors.New("invalid incident")
	// ErrInvalidEffectiveness effectiveness outside the vocabulary
	ErrInvalidEffectiveness = errors.New("invalid effectiveness")
)

// Mutation edits a private copy of the incident inside a transactional update.
// Returning false skips the write; the incident is left untouched.
type Mutation func(inc *models.Incident) (bool, error)

// IncidentStore single-document record store.
// Update must be an isolated read-modify-write: two concurrent updates of
// the same incident never both apply against the same starting version.
type IncidentStore interface {
	Insert(ctx context.Context, inc *models.Incident) error
	Get(ctx context.Context, incidentID string) (*models.Incident, error)
	Update(ctx context.Context, incidentID string, fn Mutation) (*models.Incident, error)
	// ListOpen incidents with scheduled, not completed follow-ups and an
	// unanswered checkpoint; empty childID means every child.
	ListOpen(ctx context.Context, childID string) ([]*models.Incident, error)
	// ListByChild every incident of a child with a follow-up, newest first
	ListByChild(ctx context.Context, childID string) ([]*models.Incident, error)
}
