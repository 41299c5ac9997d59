package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wisefido-followup/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CurrentCheckpoint targetIndex meaning "whatever is due now"
const CurrentCheckpoint = -1

// Outcome of a RecordResponse call
type Outcome string

const (
	OutcomeRecorded         Outcome = "recorded"
	OutcomeAlreadyCompleted Outcome = "already_completed"
	OutcomeStaleIndex       Outcome = "stale_index"
	OutcomeNotScheduled     Outcome = "not_scheduled"
)

// RecordResult result of RecordResponse. Only OutcomeRecorded changed state.
type RecordResult struct {
	Outcome         Outcome          `json:"outcome"`
	HasMore         bool             `json:"has_more"`
	NextDue         *time.Time       `json:"next_due,omitempty"`
	NextDescription string           `json:"next_description,omitempty"`
	Incident        *models.Incident `json:"incident"`
}

// Recorded true when the response was applied
func (r *RecordResult) Recorded() bool {
	return r.Outcome == OutcomeRecorded
}

// ResponseInput one effectiveness answer
type ResponseInput struct {
	Effectiveness string
	Notes         string
	TargetIndex   int // CurrentCheckpoint to answer whatever is due
	RespondedBy   string
}

// FollowUpRepository sole writer of follow-up fields.
// Every mutation goes through IncidentStore.Update.
type FollowUpRepository struct {
	store  IncidentStore
	clock  func() time.Time
	logger *zap.Logger
}

func NewFollowUpRepository(store IncidentStore, clock func() time.Time, logger *zap.Logger) *FollowUpRepository {
	if clock == nil {
		clock = time.Now
	}
	return &FollowUpRepository{store: store, clock: clock, logger: logger}
}

// Create persists inc with its checkpoints in one write.
// An empty checkpoint list stores the incident with follow-up off.
func (r *FollowUpRepository) Create(ctx context.Context, inc *models.Incident, checkpoints []models.Checkpoint) (*models.Incident, error) {
	if inc == nil {
		return nil, fmt.Errorf("%w: incident is required", ErrInvalidIncident)
	}
	if strings.TrimSpace(inc.ChildID) == "" {
		return nil, fmt.Errorf("%w: child_id is required", ErrInvalidIncident)
	}
	if inc.Severity < 1 || inc.Severity > 10 {
		return nil, fmt.Errorf("%w: severity must be 1-10, got %d", ErrInvalidIncident, inc.Severity)
	}
	for i := 1; i < len(checkpoints); i++ {
		if !checkpoints[i-1].Timestamp.Before(checkpoints[i].Timestamp) {
			return nil, fmt.Errorf("%w: checkpoints must be strictly increasing (index %d)", ErrInvalidIncident, i)
		}
	}

	now := r.clock()
	created := inc.Clone()
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	if created.Type == "" {
		created.Type = models.IncidentTypeOther
	}
	created.CreatedAt = now
	created.UpdatedAt = now
	created.FollowUpScheduled = len(checkpoints) > 0
	created.FollowUpTimes = append([]models.Checkpoint(nil), checkpoints...)
	created.NextFollowUpIndex = 0
	created.FollowUpResponses = []models.Response{}
	created.FollowUpCompleted = false
	created.LastFollowUpResponse = nil
	created.LastFollowUpTimestamp = nil
	created.FollowUpCompletedAt = nil
	created.CompletedBy = nil
	created.NextFollowUpDue = nil
	created.NextFollowUpDescription = nil
	if created.FollowUpScheduled {
		pointAt(created, 0)
	}

	if err := r.store.Insert(ctx, created); err != nil {
		return nil, fmt.Errorf("failed to create incident: %w", err)
	}

	r.logger.Info("Incident created",
		zap.String("incident_id", created.ID),
		zap.String("child_id", created.ChildID),
		zap.String("incident_type", created.Type),
		zap.Int("severity", created.Severity),
		zap.Int("checkpoints", len(created.FollowUpTimes)),
	)
	return created, nil
}

// Get reads one incident
func (r *FollowUpRepository) Get(ctx context.Context, incidentID string) (*models.Incident, error) {
	return r.store.Get(ctx, incidentID)
}

// RecordResponse appends a response at the current checkpoint and advances.
// Completed incidents and mismatched target indexes are no-ops reported
// through the outcome, so duplicate deliveries are safe to replay.
func (r *FollowUpRepository) RecordResponse(ctx context.Context, incidentID string, in ResponseInput) (*RecordResult, error) {
	if !models.IsValidEffectiveness(in.Effectiveness) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEffectiveness, in.Effectiveness)
	}

	result := &RecordResult{}
	inc, err := r.store.Update(ctx, incidentID, func(inc *models.Incident) (bool, error) {
		// reset: the store may run the mutation more than once
		result.Outcome = ""

		if inc.FollowUpCompleted {
			result.Outcome = OutcomeAlreadyCompleted
			return false, nil
		}
		if !inc.FollowUpScheduled || inc.NextFollowUpIndex >= len(inc.FollowUpTimes) {
			result.Outcome = OutcomeNotScheduled
			return false, nil
		}

		target := in.TargetIndex
		if target == CurrentCheckpoint {
			target = inc.NextFollowUpIndex
		}
		if target != inc.NextFollowUpIndex {
			result.Outcome = OutcomeStaleIndex
			return false, nil
		}

		now := r.clock()
		resp := models.Response{
			Effectiveness:   in.Effectiveness,
			Notes:           in.Notes,
			Timestamp:       now,
			ResponseIndex:   target,
			IntervalMinutes: inc.FollowUpTimes[target].IntervalMinutes,
			RespondedBy:     in.RespondedBy,
		}
		inc.FollowUpResponses = append(inc.FollowUpResponses, resp)
		inc.NextFollowUpIndex++
		last := resp
		inc.LastFollowUpResponse = &last
		inc.LastFollowUpTimestamp = &now
		inc.UpdatedAt = now

		if inc.NextFollowUpIndex == len(inc.FollowUpTimes) {
			markCompleted(inc, now, in.RespondedBy)
		} else {
			pointAt(inc, inc.NextFollowUpIndex)
		}
		result.Outcome = OutcomeRecorded
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record response: %w", err)
	}

	result.Incident = inc
	if cp := inc.CurrentCheckpoint(); cp != nil {
		result.HasMore = true
		due := cp.Timestamp
		result.NextDue = &due
		result.NextDescription = cp.Description
	}

	if result.Recorded() {
		r.logger.Info("Follow-up response recorded",
			zap.String("incident_id", incidentID),
			zap.String("effectiveness", in.Effectiveness),
			zap.Int("next_follow_up_index", inc.NextFollowUpIndex),
			zap.Bool("completed", inc.FollowUpCompleted),
		)
	} else {
		r.logger.Info("Follow-up response ignored",
			zap.String("incident_id", incidentID),
			zap.String("outcome", string(result.Outcome)),
			zap.Int("target_index", in.TargetIndex),
			zap.Int("next_follow_up_index", inc.NextFollowUpIndex),
		)
	}
	return result, nil
}

// ForceComplete ends the follow-up regardless of unanswered checkpoints.
// Idempotent: an already completed incident is returned unchanged.
func (r *FollowUpRepository) ForceComplete(ctx context.Context, incidentID, completedBy string) (*models.Incident, error) {
	inc, err := r.store.Update(ctx, incidentID, func(inc *models.Incident) (bool, error) {
		if inc.FollowUpCompleted {
			return false, nil
		}
		now := r.clock()
		markCompleted(inc, now, completedBy)
		inc.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to complete follow-up: %w", err)
	}

	r.logger.Info("Follow-up completed",
		zap.String("incident_id", incidentID),
		zap.Int("answered", len(inc.FollowUpResponses)),
		zap.Int("checkpoints", len(inc.FollowUpTimes)),
	)
	return inc, nil
}

// GetPending open follow-ups of a child; callers split overdue / upcoming
func (r *FollowUpRepository) GetPending(ctx context.Context, childID string) ([]*models.Incident, error) {
	if strings.TrimSpace(childID) == "" {
		return nil, fmt.Errorf("%w: child_id is required", ErrInvalidIncident)
	}
	incidents, err := r.store.ListOpen(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending follow-ups: %w", err)
	}
	return incidents, nil
}

// ListOpen open follow-ups across all children, used to re-arm timers
func (r *FollowUpRepository) ListOpen(ctx context.Context) ([]*models.Incident, error) {
	incidents, err := r.store.ListOpen(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list open follow-ups: %w", err)
	}
	return incidents, nil
}

// History every follow-up incident of a child, newest first
func (r *FollowUpRepository) History(ctx context.Context, childID string) ([]*models.Incident, error) {
	incidents, err := r.store.ListByChild(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to list follow-up history: %w", err)
	}
	return incidents, nil
}

func pointAt(inc *models.Incident, idx int) {
	cp := inc.FollowUpTimes[idx]
	due := cp.Timestamp
	desc := cp.Description
	inc.NextFollowUpDue = &due
	inc.NextFollowUpDescription = &desc
}

func markCompleted(inc *models.Incident, now time.Time, by string) {
	inc.FollowUpCompleted = true
	inc.FollowUpCompletedAt = &now
	inc.NextFollowUpDue = nil
	inc.NextFollowUpDescription = nil
	if by != "" {
		inc.CompletedBy = &by
	}
}
