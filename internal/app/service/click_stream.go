package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
)

// PullFetcher is satisfied by a JetStream pull *nats.Subscription.
type PullFetcher interface {
	Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error)
}

// JetStreamSource adapts a pull subscription to MessageSource.
type JetStreamSource struct {
	sub  PullFetcher
	wait time.Duration
}

// NewJetStreamSource wraps sub; each Next waits at most wait for messages.
func NewJetStreamSource(sub PullFetcher, wait time.Duration) *JetStreamSource {
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &JetStreamSource{sub: sub, wait: wait}
}

func (s *JetStreamSource) Next(ctx context.Context, batch int) ([]InboundMessage, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.wait)
	defer cancel()

	msgs, err := s.sub.Fetch(batch, nats.Context(fetchCtx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]InboundMessage, len(msgs))
	for i, m := range msgs {
		out[i] = jetStreamMessage{m}
	}
	return out, nil
}

type jetStreamMessage struct {
	*nats.Msg
}

// DeliveryID is the stream sequence, which stays stable across redeliveries.
func (m jetStreamMessage) DeliveryID() string {
	if meta, err := m.Msg.Metadata(); err == nil {
		return strconv.FormatUint(meta.Sequence.Stream, 10)
	}
	return m.Msg.Header.Get(nats.MsgIdHdr)
}

func (m jetStreamMessage) Payload() []byte {
	return m.Msg.Data
}

func (m jetStreamMessage) Ack() error {
	return m.Msg.Ack()
}

func (m jetStreamMessage) Nak() error {
	return m.Msg.Nak()
}
