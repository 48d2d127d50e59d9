package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fuzdispatch/internal/common/mq"
	"fuzdispatch/internal/dispatch/model"
	appErr "fuzdispatch/pkg/errors"
)

// VerdictEventType represents the verdict event type.
type VerdictEventType string

// VerdictEventFinal indicates a terminal verdict record.
const VerdictEventFinal VerdictEventType = "final"

// VerdictEvent carries terminal records for asynchronous persistence.
type VerdictEvent struct {
	Type      VerdictEventType    `json:"type"`
	Record    model.VerdictRecord `json:"record"`
	CreatedAt int64               `json:"created_at"`
}

// VerdictEventPublisher publishes terminal verdict records.
type VerdictEventPublisher interface {
	PublishFinal(ctx context.Context, rec model.VerdictRecord) error
}

// MQVerdictEventPublisher publishes verdict events to a message queue.
type MQVerdictEventPublisher struct {
	producer mq.Producer
	topic    string
}

// NewMQVerdictEventPublisher creates a new MQ verdict event publisher.
func NewMQVerdictEventPublisher(producer mq.Producer, topic string) *MQVerdictEventPublisher {
	return &MQVerdictEventPublisher{producer: producer, topic: topic}
}

// PublishFinal publishes a final verdict event keyed by submission id.
func (p *MQVerdictEventPublisher) PublishFinal(ctx context.Context, rec model.VerdictRecord) error {
	if p == nil || p.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("verdict publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("verdict topic is required")
	}
	if rec.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	payload, err := json.Marshal(VerdictEvent{
		Type:      VerdictEventFinal,
		Record:    rec,
		CreatedAt: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal verdict event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = rec.SubmissionID
	message.SetHeader("event", string(VerdictEventFinal))
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.MessagePublishError, "publish verdict event failed")
	}
	return nil
}
