package quickresponse

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wisefido-followup/internal/models"
	"wisefido-followup/internal/notifier"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const captureTimeout = 5 * time.Second

// Capturer records notification action taps into the queue.
// It never touches the incident store; the reconciler applies the records later.
type Capturer struct {
	queue  Queue
	clock  func() time.Time
	logger *zap.Logger
}

func NewCapturer(queue Queue, clock func() time.Time, logger *zap.Logger) *Capturer {
	if clock == nil {
		clock = time.Now
	}
	return &Capturer{queue: queue, clock: clock, logger: logger}
}

// Capture writes an unprocessed record for ev
func (c *Capturer) Capture(ctx context.Context, ev notifier.ActionEvent) (*models.QuickResponseRecord, error) {
	if strings.TrimSpace(ev.Tag.IncidentID) == "" {
		return nil, fmt.Errorf("action event without incident_id")
	}
	if ev.Tag.CheckpointIndex < 0 {
		return nil, fmt.Errorf("action event with negative checkpoint_index %d", ev.Tag.CheckpointIndex)
	}
	if strings.TrimSpace(ev.ActionID) == "" {
		return nil, fmt.Errorf("action event without action_id")
	}

	capturedAt := ev.SelectedAt
	if capturedAt.IsZero() {
		capturedAt = c.clock()
	}
	rec := &models.QuickResponseRecord{
		ResponseID:        uuid.New().String(),
		IncidentID:        ev.Tag.IncidentID,
		FollowUpIndex:     ev.Tag.CheckpointIndex,
		EffectivenessCode: ev.ActionID,
		CapturedAt:        capturedAt,
	}
	if err := c.queue.Put(ctx, rec); err != nil {
		return nil, err
	}

	c.logger.Info("Quick response captured",
		zap.String("response_id", rec.ResponseID),
		zap.String("incident_id", rec.IncidentID),
		zap.Int("checkpoint_index", rec.FollowUpIndex),
		zap.String("action_id", rec.EffectivenessCode),
	)
	return rec, nil
}

// HandleMessage MQTT handler for the notification action topic
func (c *Capturer) HandleMessage(topic string, payload []byte) error {
	var ev notifier.ActionEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("failed to unmarshal action event from %s: %w", topic, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), captureTimeout)
	defer cancel()

	_, err := c.Capture(ctx, ev)
	return err
}
