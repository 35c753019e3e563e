package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fbmeirelles/horamarcada/libs/kafkax"
	"github.com/fbmeirelles/horamarcada/libs/otelx"
)

// Publisher drains the outbox to Kafka. Events are published at-least-once:
// a crash between WriteMessages and MarkPublished redelivers the batch, so
// consumers must dedupe on the event_id header.
type Publisher struct {
	repo      *Repository
	writer    *kafka.Writer
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func NewPublisher(repo *Repository, brokers []string, logger *slog.Logger, interval time.Duration, batchSize int) *Publisher {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Publisher{
		repo:      repo,
		writer:    writer,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run drains the outbox until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer p.writer.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.publishBatch(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("outbox publish batch failed", "error", err)
			}
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context) error {
	tx, err := p.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	events, err := p.repo.FetchBatch(ctx, tx, p.batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	ids := make([]string, 0, len(events))
	for _, ev := range events {
		headers := []kafka.Header{
			{Key: "event_id", Value: []byte(ev.ID)},
			{Key: "event_type", Value: []byte(ev.Topic)},
		}
		evCtx := otelx.ContextWithTraceContext(ctx, ev.Traceparent, "")
		headers = kafkax.InjectTraceHeaders(evCtx, headers)

		msgs = append(msgs, kafka.Message{
			Topic:   ev.Topic,
			Key:     []byte(ev.Key),
			Value:   ev.Payload,
			Headers: headers,
		})
		ids = append(ids, ev.ID)
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	p.logger.Debug("outbox batch published", "count", len(events))
	return nil
}
