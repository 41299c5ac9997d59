package quickresponse

import (
	"context"
	"time"

	"wisefido-followup/internal/models"
	"wisefido-followup/internal/repository"

	"go.uber.org/zap"
)

// QuickResponseNote notes stored on responses that came from a notification action
const QuickResponseNote = "Quick response from notification"

// QuickResponseActor respondedBy stored on those responses
const QuickResponseActor = "notification"

// Responder applies one response; satisfied by the repository and the follow-up service
type Responder interface {
	RecordResponse(ctx context.Context, incidentID string, in repository.ResponseInput) (*repository.RecordResult, error)
}

// Report outcome counts of one reconciliation pass
type Report struct {
	Pending int `json:"pending"`
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Purged  int `json:"purged"`
}

// Reconciler drains unprocessed quick responses into the repository at start.
// Every record is marked processed whatever the outcome, so a bad entry never blocks the queue.
type Reconciler struct {
	queue     Queue
	responder Responder
	retention time.Duration
	clock     func() time.Time
	logger    *zap.Logger
}

func NewReconciler(queue Queue, responder Responder, retention time.Duration, clock func() time.Time, logger *zap.Logger) *Reconciler {
	if clock == nil {
		clock = time.Now
	}
	return &Reconciler{
		queue:     queue,
		responder: responder,
		retention: retention,
		clock:     clock,
		logger:    logger,
	}
}

// Run one pass. Only a failure to read the queue is returned as an error.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	records, err := r.queue.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, rec := range records {
		if rec.Processed {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Pending++

		switch r.apply(ctx, rec) {
		case repository.OutcomeRecorded:
			report.Applied++
		case "":
			report.Failed++
		default:
			report.Skipped++
		}

		if err := r.queue.MarkProcessed(ctx, rec.ResponseID, r.clock()); err != nil {
			r.logger.Error("Failed to mark quick response processed",
				zap.String("response_id", rec.ResponseID),
				zap.Error(err),
			)
		}
	}

	if r.retention > 0 {
		purged, err := r.queue.PurgeProcessed(ctx, r.clock().Add(-r.retention))
		if err != nil {
			r.logger.Warn("Failed to purge processed quick responses", zap.Error(err))
		}
		report.Purged = purged
	}

	r.logger.Info("Quick response reconciliation finished",
		zap.Int("pending", report.Pending),
		zap.Int("applied", report.Applied),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("purged", report.Purged),
	)
	return report, nil
}

// apply returns the record outcome, or "" when the record could not be applied
func (r *Reconciler) apply(ctx context.Context, rec *models.QuickResponseRecord) repository.Outcome {
	effectiveness, ok := models.EffectivenessForQuickCode(rec.EffectivenessCode)
	if !ok {
		r.logger.Warn("Unknown quick response code",
			zap.String("response_id", rec.ResponseID),
			zap.String("incident_id", rec.IncidentID),
			zap.String("effectiveness_code", rec.EffectivenessCode),
		)
		return ""
	}

	res, err := r.responder.RecordResponse(ctx, rec.IncidentID, repository.ResponseInput{
		Effectiveness: effectiveness,
		Notes:         QuickResponseNote,
		TargetIndex:   rec.FollowUpIndex,
		RespondedBy:   QuickResponseActor,
	})
	if err != nil {
		r.logger.Warn("Failed to reconcile quick response",
			zap.String("response_id", rec.ResponseID),
			zap.String("incident_id", rec.IncidentID),
			zap.Int("checkpoint_index", rec.FollowUpIndex),
			zap.Error(err),
		)
		return ""
	}
	return res.Outcome
}
