package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/sifan077/clicklink/internal/app/model"
	"github.com/sifan077/clicklink/internal/app/repository"
	metrics "github.com/sifan077/clicklink/internal/infra/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize    = 10
	DefaultWorkers      = 4
	defaultBatchTimeout = 30 * time.Second
	fetchErrorBackoff   = time.Second
)

// Delivery is one queued click event as handed over by the transport.
type Delivery struct {
	ID   string
	Data []byte
}

// BatchResult reports which deliveries must be redelivered. Everything not
// listed in FailedIDs was applied and may be acknowledged.
type BatchResult struct {
	Processed int
	FailedIDs []string
}

// InboundMessage is a transport message that can be settled individually.
type InboundMessage interface {
	DeliveryID() string
	Payload() []byte
	Ack() error
	Nak() error
}

// MessageSource yields batches of inbound messages. An empty batch with a
// nil error means nothing arrived before the source's wait elapsed.
type MessageSource interface {
	Next(ctx context.Context, batch int) ([]InboundMessage, error)
}

// ClickConsumerDeps groups dependencies required by ClickConsumer.
type ClickConsumerDeps struct {
	Logger       *zap.Logger
	Store        repository.KeyStore
	BatchSize    int
	Workers      int
	BatchTimeout time.Duration
}

// ClickConsumer applies delivered click events to visit counters.
type ClickConsumer struct {
	logger       *zap.Logger
	store        repository.KeyStore
	batchSize    int
	workers      int
	batchTimeout time.Duration
}

// NewClickConsumer creates a new click event consumer
func NewClickConsumer(deps ClickConsumerDeps) *ClickConsumer {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &ClickConsumer{
		logger:       logger.Named("click_consumer"),
		store:        deps.Store,
		batchSize:    deps.BatchSize,
		workers:      deps.Workers,
		batchTimeout: deps.BatchTimeout,
	}
	if c.batchSize < 1 {
		c.batchSize = DefaultBatchSize
	}
	if c.workers < 1 {
		c.workers = DefaultWorkers
	}
	if c.batchTimeout <= 0 {
		c.batchTimeout = defaultBatchTimeout
	}
	return c
}

// ProcessBatch applies every delivery independently. A failing delivery
// (malformed payload, unknown code, store error) is reported in FailedIDs
// and does not affect the others. Nothing is retried here and duplicates
// are counted again: redelivery policy belongs to the transport.
func (c *ClickConsumer) ProcessBatch(ctx context.Context, deliveries []Delivery) BatchResult {
	errs := make([]error, len(deliveries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, d := range deliveries {
		i, d := i, d
		g.Go(func() error {
			errs[i] = c.process(gctx, d)
			return nil
		})
	}
	_ = g.Wait()

	failed := lo.FilterMap(deliveries, func(d Delivery, i int) (string, bool) {
		if errs[i] == nil {
			return "", false
		}
		c.logger.Warn("click event failed",
			zap.String("delivery_id", d.ID),
			zap.Error(errs[i]),
		)
		return d.ID, true
	})

	metrics.ConsumerBatchSize.Observe(float64(len(deliveries)))
	metrics.ClicksProcessed.WithLabelValues("acked").Add(float64(len(deliveries) - len(failed)))
	metrics.ClicksProcessed.WithLabelValues("failed").Add(float64(len(failed)))

	c.logger.Info("click batch processed",
		zap.Int("succeeded", len(deliveries)-len(failed)),
		zap.Int("failed", len(failed)),
	)

	return BatchResult{Processed: len(deliveries), FailedIDs: failed}
}

func (c *ClickConsumer) process(ctx context.Context, d Delivery) error {
	event, err := DecodeClickEvent(d.Data)
	if err != nil {
		return err
	}

	count, err := c.store.Increment(ctx, event.ShortCode, model.FieldVisitCount, 1)
	if err != nil {
		return fmt.Errorf("increment %s: %w", event.ShortCode, err)
	}

	c.logger.Debug("visit counted",
		zap.String("delivery_id", d.ID),
		zap.String("code", event.ShortCode),
		zap.Time("occurred_at", event.OccurredAt),
		zap.Int64("visit_count", count),
	)
	return nil
}

// DecodeClickEvent parses a queued payload; a missing short code is malformed.
func DecodeClickEvent(data []byte) (model.ClickEvent, error) {
	var event model.ClickEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return model.ClickEvent{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if event.ShortCode == "" {
		return model.ClickEvent{}, fmt.Errorf("%w: missing short_code", ErrMalformedEvent)
	}
	return event, nil
}

// Run pulls batches from source until ctx is canceled, settling each
// message according to ProcessBatch: applied events are acked, failed ones
// are nak'ed for redelivery. A failing fetch only skips that round.
func (c *ClickConsumer) Run(ctx context.Context, source MessageSource) error {
	c.logger.Info("click consumer started", zap.Int("batch_size", c.batchSize), zap.Int("workers", c.workers))
	defer c.logger.Info("click consumer stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		msgs, err := source.Next(ctx, c.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to fetch messages", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchErrorBackoff):
			}
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		c.HandleMessages(ctx, msgs)
	}
}

// HandleMessages processes one fetched batch and settles every message.
// The batch finishes even if ctx is canceled mid-way so that no message is
// left unsettled until its ack wait expires.
func (c *ClickConsumer) HandleMessages(ctx context.Context, msgs []InboundMessage) BatchResult {
	batchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.batchTimeout)
	defer cancel()

	byID := make(map[string]InboundMessage, len(msgs))
	deliveries := make([]Delivery, 0, len(msgs))
	for i, msg := range msgs {
		id := msg.DeliveryID()
		if _, dup := byID[id]; id == "" || dup {
			id = "idx-" + strconv.Itoa(i)
		}
		byID[id] = msg
		deliveries = append(deliveries, Delivery{ID: id, Data: msg.Payload()})
	}

	result := c.ProcessBatch(batchCtx, deliveries)
	failed := lo.SliceToMap(result.FailedIDs, func(id string) (string, struct{}) {
		return id, struct{}{}
	})

	for _, d := range deliveries {
		msg := byID[d.ID]
		var err error
		if _, nak := failed[d.ID]; nak {
			err = msg.Nak()
		} else {
			err = msg.Ack()
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("failed to settle click message", zap.String("delivery_id", d.ID), zap.Error(err))
		}
	}

	return result
}
