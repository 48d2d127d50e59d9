package repository

import (
	"context"
	"encoding/json"
	"errors"

	"fuzdispatch/internal/common/mq"
	appErr "fuzdispatch/pkg/errors"
	"fuzdispatch/pkg/utils/logger"

	"go.uber.org/zap"
)

// VerdictEventConsumer persists final verdict events into the database.
type VerdictEventConsumer struct {
	mq   mq.MessageQueue
	repo *VerdictRepository
}

// NewVerdictEventConsumer creates a consumer writing through repo.
func NewVerdictEventConsumer(queue mq.MessageQueue, repo *VerdictRepository) *VerdictEventConsumer {
	return &VerdictEventConsumer{mq: queue, repo: repo}
}

// Subscribe registers the consumer and starts consumption.
func (c *VerdictEventConsumer) Subscribe(ctx context.Context, topic, group string) error {
	if c.mq == nil {
		return errors.New("message queue is nil")
	}
	if c.repo == nil {
		return errors.New("verdict repository is nil")
	}
	opts := &mq.SubscribeOptions{ConsumerGroup: group, Concurrency: 2}
	if err := c.mq.Subscribe(ctx, topic, c.HandleMessage, opts); err != nil {
		return err
	}
	return c.mq.Start()
}

// HandleMessage decodes one event and persists it. Undecodable events are
// dropped; persistence errors are returned so the message is retried.
func (c *VerdictEventConsumer) HandleMessage(ctx context.Context, message *mq.Message) error {
	if message == nil {
		return nil
	}
	var event VerdictEvent
	if err := json.Unmarshal(message.Body, &event); err != nil {
		logger.Warn(ctx, "decode verdict event failed", zap.String("message_id", message.ID), zap.Error(err))
		return nil
	}
	if event.Type != VerdictEventFinal {
		logger.Warn(ctx, "skip verdict event with unexpected type", zap.String("type", string(event.Type)))
		return nil
	}
	if err := c.repo.PersistFinal(ctx, event.Record); err != nil {
		if appErr.Is(err, appErr.ValidationFailed) {
			logger.Warn(ctx, "drop invalid verdict event", zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}
