package service

import (
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	metrics "github.com/sifan077/clicklink/internal/infra/prometheus"
	"go.uber.org/zap"
)

// ConsumerInfoSource is the JetStream call LagMonitor polls.
type ConsumerInfoSource interface {
	ConsumerInfo(stream, name string, opts ...nats.JSOpt) (*nats.ConsumerInfo, error)
}

// LagMonitor periodically samples the click consumer backlog. The backlog is
// how far visit counts trail the redirects already served.
type LagMonitor struct {
	logger   *zap.Logger
	js       ConsumerInfoSource
	stream   string
	durable  string
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once

	lastPending uint64
}

// NewLagMonitor creates a monitor for the given stream's durable consumer.
func NewLagMonitor(logger *zap.Logger, js ConsumerInfoSource, stream, durable string, interval time.Duration) *LagMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &LagMonitor{
		logger:   logger.Named("lag_monitor"),
		js:       js,
		stream:   stream,
		durable:  durable,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins periodic sampling in a background goroutine.
func (m *LagMonitor) Start() {
	go m.run()
}

// Stop ends sampling. It is safe to call more than once.
func (m *LagMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *LagMonitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check()
		case <-m.stopChan:
			m.logger.Info("lag monitor stopped")
			return
		}
	}
}

// Check takes one sample, exports it and warns when the backlog grew.
func (m *LagMonitor) Check() {
	info, err := m.js.ConsumerInfo(m.stream, m.durable)
	if err != nil {
		m.logger.Error("failed to read click consumer info", zap.Error(err))
		return
	}

	metrics.ConsumerBacklog.WithLabelValues("pending").Set(float64(info.NumPending))
	metrics.ConsumerBacklog.WithLabelValues("ack_pending").Set(float64(info.NumAckPending))
	metrics.ConsumerBacklog.WithLabelValues("redelivered").Set(float64(info.NumRedelivered))

	if info.NumPending > m.lastPending && m.lastPending > 0 {
		m.logger.Warn("click backlog growing",
			zap.Uint64("pending", info.NumPending),
			zap.Uint64("previous", m.lastPending),
			zap.Int("ack_pending", info.NumAckPending),
			zap.Int("redelivered", info.NumRedelivered),
		)
	}
	m.lastPending = info.NumPending
}
