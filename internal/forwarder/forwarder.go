// Package forwarder publishes rule firings to Kafka so a fleet
// aggregator can see what each host detected and fixed. It is optional
// and disabled by default; the agent runs fully standalone without it.
package forwarder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"hostmend/internal/engine"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = fmt.Errorf("forwarder: closed")

// Config holds the forwarder connection settings.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// Validate checks the connection settings.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("forwarder: at least one broker is required")
	}
	if c.Topic == "" {
		return fmt.Errorf("forwarder: topic is required")
	}
	return nil
}

// record is the wire form of a firing.
type record struct {
	Host    string    `json:"host"`
	Pattern string    `json:"pattern"`
	At      time.Time `json:"at"`
	Matched int       `json:"matched"`
	Result  string    `json:"result"`
	Error   string    `json:"error,omitempty"`
}

// writer is the subset of kafka.Writer the forwarder uses, swappable
// in tests.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Forwarder publishes firings as JSON messages keyed by pattern name.
type Forwarder struct {
	writer    writer
	host      string
	logger    *slog.Logger
	closed    atomic.Bool
	published atomic.Int64
	failed    atomic.Int64
}

// New creates a forwarder connected to the configured brokers.
func New(cfg Config, host string, logger *slog.Logger) (*Forwarder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: cfg.WriteTimeout,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "kafka-writer")
		}),
	}

	logger.Info("forwarder initialized", "brokers", cfg.Brokers, "topic", cfg.Topic)

	return &Forwarder{writer: w, host: host, logger: logger}, nil
}

// Publish sends one firing. Delivery failures are logged and returned
// but never block detection; callers treat the forwarder as
// best-effort.
func (f *Forwarder) Publish(ctx context.Context, firing engine.Firing) error {
	if f.closed.Load() {
		return ErrClosed
	}

	rec := record{
		Host:    f.host,
		Pattern: firing.Pattern,
		At:      firing.At,
		Matched: firing.Matched,
		Result:  "ok",
	}
	if firing.Err != nil {
		rec.Result = "error"
		rec.Error = firing.Err.Error()
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("forwarder: marshal firing: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(firing.Pattern),
		Value: value,
		Time:  firing.At,
	}

	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		f.failed.Add(1)
		f.logger.Warn("firing publish failed", "pattern", firing.Pattern, "error", err)
		return fmt.Errorf("forwarder: publish firing: %w", err)
	}

	f.published.Add(1)
	return nil
}

// Handler adapts Publish into an engine.FiringHandler. Publishing runs
// in its own goroutine so a slow broker never stalls event ingestion.
func (f *Forwarder) Handler(ctx context.Context) engine.FiringHandler {
	return func(firing engine.Firing) {
		go func() {
			_ = f.Publish(ctx, firing)
		}()
	}
}

// Stats reports publish counters.
func (f *Forwarder) Stats() (published, failed int64) {
	return f.published.Load(), f.failed.Load()
}

// Close flushes and closes the underlying writer.
func (f *Forwarder) Close() error {
	if f.closed.Swap(true) {
		return nil
	}

	f.logger.Info("closing forwarder",
		"published", f.published.Load(),
		"failed", f.failed.Load(),
	)

	if err := f.writer.Close(); err != nil {
		return fmt.Errorf("forwarder: close writer: %w", err)
	}
	return nil
}
