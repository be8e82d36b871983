package publisher

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/retailgrid/inventory-engine/internal/repository"
)

// Topic is where audit events land. Consumers (audit trail, notification
// fan-out) subscribe to it downstream.
const Topic = "inventory-audit"

// EventSource is the slice of the repository the poller drains.
type EventSource interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*repository.OutboxEvent, error)
	MarkEventProcessed(ctx context.Context, eventID string, now time.Time) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// OutboxPoller ships audit events from the outbox table to Kafka. Events
// are only marked processed after a successful write, so delivery is
// at-least-once; consumers dedupe on event id.
type OutboxPoller struct {
	eventTick time.Duration
	batchSize int
	repo      EventSource
	writer    messageWriter
	logger    *zap.Logger
	nowFn     func() time.Time
}

func NewOutboxPoller(repo EventSource, logger *zap.Logger, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &OutboxPoller{
		eventTick: time.Second,
		batchSize: 100,
		repo:      repo,
		writer:    w,
		logger:    logger,
		nowFn:     time.Now,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.eventTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("failed to fetch audit events", zap.Error(err))
		return
	}

	for _, event := range events {
		if errPublish := p.publish(ctx, event); errPublish != nil {
			p.logger.Error("failed to publish audit event",
				zap.String("event_id", event.ID),
				zap.Error(errPublish))
			continue
		}

		if errMark := p.repo.MarkEventProcessed(ctx, event.ID, p.nowFn()); errMark != nil {
			p.logger.Error("failed to mark audit event as processed",
				zap.String("event_id", event.ID),
				zap.Error(errMark))
		}
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.ProductID), // per-product ordering
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *OutboxPoller) Close() error {
	if w, ok := p.writer.(*kafka.Writer); ok {
		return w.Close()
	}
	return nil
}
