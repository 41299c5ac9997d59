package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Publisher subset of common/mqtt.Client used to push notifications
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	IsConnected() bool
}

// MQTTSurface publishes notifications to caregiver apps over MQTT.
// Apps answer on the action topic, picked up by the capture process.
type MQTTSurface struct {
	publisher Publisher
	topic     string
	qos       byte
	logger    *zap.Logger
}

func NewMQTTSurface(publisher Publisher, topic string, qos byte, logger *zap.Logger) *MQTTSurface {
	return &MQTTSurface{
		publisher: publisher,
		topic:     topic,
		qos:       qos,
		logger:    logger,
	}
}

func (s *MQTTSurface) Available() bool {
	return s.publisher != nil && s.publisher.IsConnected()
}

// Display publishes n on <topic>/<child_id>
func (s *MQTTSurface) Display(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	topic := s.topic
	if n.ChildID != "" {
		topic = s.topic + "/" + n.ChildID
	}
	if err := s.publisher.Publish(topic, s.qos, false, payload); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	s.logger.Debug("Notification published",
		zap.String("topic", topic),
		zap.String("incident_id", n.Tag.IncidentID),
		zap.Int("checkpoint_index", n.Tag.CheckpointIndex),
	)
	return nil
}
