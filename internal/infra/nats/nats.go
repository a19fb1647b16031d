package natsclient

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/clicklink/config"
	"github.com/sifan077/clicklink/internal/app/model"
)

const defaultConnectTimeout = 5 * time.Second

// Connect creates a NATS connection (with JetStream available) using application config.
func Connect(cfg config.NATSConfig) (*nats.Conn, nats.JetStreamContext, error) {
	opts := []nats.Option{
		nats.Timeout(defaultConnectTimeout),
		nats.Name("clicklink"),
		nats.MaxReconnects(-1),
	}

	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(URL(cfg), opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("nats: connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("nats: init jetstream: %w", err)
	}

	return conn, js, nil
}

// URL builds the server URL, defaulting to localhost:4222.
func URL(cfg config.NATSConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 4222
	}
	return fmt.Sprintf("nats://%s:%d", host, port)
}

// StreamManager is the subset of nats.JetStreamContext used to provision the click stream.
type StreamManager interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	ConsumerInfo(stream, name string, opts ...nats.JSOpt) (*nats.ConsumerInfo, error)
	AddConsumer(stream string, cfg *nats.ConsumerConfig, opts ...nats.JSOpt) (*nats.ConsumerInfo, error)
}

// ClickStream describes the stream and durable pull consumer click events travel through.
type ClickStream struct {
	Stream     string
	Subject    string
	Durable    string
	AckWait    time.Duration
	MaxDeliver int
}

// ClickStreamFrom fills a ClickStream from config, falling back to the model defaults.
func ClickStreamFrom(n config.NATSConfig, c config.ClicksConfig) ClickStream {
	s := ClickStream{
		Stream:     n.Stream,
		Subject:    n.Subject,
		Durable:    n.Durable,
		AckWait:    c.AckWait,
		MaxDeliver: c.MaxDeliver,
	}
	if s.Stream == "" {
		s.Stream = model.ClickStreamName
	}
	if s.Subject == "" {
		s.Subject = model.ClickStreamSubject
	}
	if s.Durable == "" {
		s.Durable = model.ClickConsumerName
	}
	return s
}

// EnsureClickStream creates the stream and the durable consumer if they do not exist yet.
// Redelivery of failed events (AckWait, MaxDeliver) is owned by this consumer config.
func EnsureClickStream(js StreamManager, s ClickStream) error {
	if _, err := js.StreamInfo(s.Stream); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     s.Stream,
			Subjects: []string{s.Subject},
			MaxBytes: model.ClickStreamMaxBytes,
			Storage:  nats.FileStorage,
		})
		if err != nil {
			return fmt.Errorf("nats: create stream %s: %w", s.Stream, err)
		}
	}

	if _, err := js.ConsumerInfo(s.Stream, s.Durable); err != nil {
		cc := &nats.ConsumerConfig{
			Durable:       s.Durable,
			AckPolicy:     nats.AckExplicitPolicy,
			FilterSubject: s.Subject,
		}
		if s.AckWait > 0 {
			cc.AckWait = s.AckWait
		}
		if s.MaxDeliver != 0 {
			cc.MaxDeliver = s.MaxDeliver
		}
		if _, err := js.AddConsumer(s.Stream, cc); err != nil {
			return fmt.Errorf("nats: create consumer %s: %w", s.Durable, err)
		}
	}

	return nil
}
