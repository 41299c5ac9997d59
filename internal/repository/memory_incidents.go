package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"wisefido-followup/internal/models"
)

// MemoryIncidentStore in-process store used when the DB is disabled.
// Update is compare-and-swap on Incident.Version: the mutation runs on a
// copy outside the lock and the write is rejected if another writer got in first.
type MemoryIncidentStore struct {
	mu         sync.RWMutex
	incidents  map[string]*models.Incident
	maxRetries int

	// test hook, runs between read and swap
	beforeSwap func(incidentID string)
}

func NewMemoryIncidentStore(maxRetries int) *MemoryIncidentStore {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &MemoryIncidentStore{
		incidents:  map[string]*models.Incident{},
		maxRetries: maxRetries,
	}
}

func (s *MemoryIncidentStore) Insert(_ context.Context, inc *models.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.incidents[inc.ID]; exists {
		return fmt.Errorf("%w: duplicate incident_id %s", ErrInvalidIncident, inc.ID)
	}
	stored := inc.Clone()
	stored.Version = 1
	s.incidents[inc.ID] = stored
	inc.Version = 1
	return nil
}

func (s *MemoryIncidentStore) Get(_ context.Context, incidentID string) (*models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inc, ok := s.incidents[incidentID]
	if !ok {
		return nil, ErrNotFound
	}
	return inc.Clone(), nil
}

func (s *MemoryIncidentStore) Update(ctx context.Context, incidentID string, fn Mutation) (*models.Incident, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current, err := s.Get(ctx, incidentID)
		if err != nil {
			return nil, err
		}
		readVersion := current.Version

		changed, err := fn(current)
		if err != nil {
			return nil, err
		}
		if !changed {
			return current, nil
		}

		if s.beforeSwap != nil {
			s.beforeSwap(incidentID)
		}

		s.mu.Lock()
		stored, ok := s.incidents[incidentID]
		if !ok {
			s.mu.Unlock()
			return nil, ErrNotFound
		}
		if stored.Version != readVersion {
			s.mu.Unlock()
			continue
		}
		current.Version = readVersion + 1
		s.incidents[incidentID] = current.Clone()
		s.mu.Unlock()
		return current, nil
	}
	return nil, fmt.Errorf("%w: incident_id=%s after %d attempts", ErrConflict, incidentID, s.maxRetries)
}

func (s *MemoryIncidentStore) ListOpen(_ context.Context, childID string) ([]*models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Incident
	for _, inc := range s.incidents {
		if childID != "" && inc.ChildID != childID {
			continue
		}
		if !inc.HasOpenCheckpoint() {
			continue
		}
		out = append(out, inc.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryIncidentStore) ListByChild(_ context.Context, childID string) ([]*models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Incident
	for _, inc := range s.incidents {
		if inc.ChildID == childID && inc.FollowUpScheduled {
			out = append(out, inc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
