package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sifan077/clicklink/internal/app/model"
	metrics "github.com/sifan077/clicklink/internal/infra/prometheus"
	"go.uber.org/zap"
)

// DefaultPublishTimeout caps a single click publish.
const DefaultPublishTimeout = 2 * time.Second

// JetStreamPublisher is the publishing half of nats.JetStreamContext.
type JetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// ClickPublisherDeps groups dependencies required by ClickPublisher.
type ClickPublisherDeps struct {
	Logger  *zap.Logger
	JS      JetStreamPublisher
	Subject string
	Timeout time.Duration
	Now     func() time.Time
}

// ClickPublisher publishes click events to NATS JetStream.
type ClickPublisher struct {
	logger   *zap.Logger
	js       JetStreamPublisher
	subject  string
	timeout  time.Duration
	now      func() time.Time
	inflight sync.WaitGroup
}

// NewClickPublisher creates a new click event publisher
func NewClickPublisher(deps ClickPublisherDeps) *ClickPublisher {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	subject := deps.Subject
	if subject == "" {
		subject = model.ClickStreamSubject
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &ClickPublisher{
		logger:  logger.Named("click_publisher"),
		js:      deps.JS,
		subject: subject,
		timeout: timeout,
		now:     now,
	}
}

// RecordVisit emits a click event for code in a detached goroutine and
// returns at once. A failed or timed-out publish is logged and dropped: a
// lost event costs one count, never a redirect.
func (p *ClickPublisher) RecordVisit(code string) {
	// code may alias a buffer the caller reuses after we return.
	code = strings.Clone(code)
	event := model.ClickEvent{ShortCode: code, OccurredAt: p.now().UTC()}

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		if err := p.Publish(ctx, event); err != nil {
			metrics.ClicksPublished.WithLabelValues("failed").Inc()
			p.logger.Error("failed to publish click event", zap.Error(err), zap.String("code", code))
			return
		}
		metrics.ClicksPublished.WithLabelValues("ok").Inc()
	}()
}

// Publish synchronously publishes one event and waits for the stream ack.
func (p *ClickPublisher) Publish(ctx context.Context, event model.ClickEvent) error {
	if p.js == nil {
		return ErrQueueUnavailable
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode click event: %w", err)
	}

	// The message id lets JetStream drop a duplicate when the client retries
	// this publish inside the stream's dedup window.
	if _, err := p.js.Publish(p.subject, data, nats.Context(ctx), nats.MsgId(uuid.NewString())); err != nil {
		return fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}
	return nil
}

// Wait blocks until every RecordVisit goroutine started so far has finished.
func (p *ClickPublisher) Wait() {
	p.inflight.Wait()
}
