package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hostmend/internal/buffer"
	"hostmend/internal/schema"
)

// Firing describes one pattern firing attempt from an AddEvent call.
type Firing struct {
	Pattern string    `json:"pattern"`
	At      time.Time `json:"at"`
	Matched int       `json:"matched"`
	Err     error     `json:"-"`
}

// FiringHandler observes pattern firings, e.g. for metrics or alert
// forwarding. Handlers run after the action attempt, outside the
// engine lock, and must not block for long.
type FiringHandler func(Firing)

// Engine owns the event buffer and the registered patterns. AddEvent is
// its sole mutating entry point: it inserts the event and evaluates
// every pattern under one critical section.
type Engine struct {
	mu        sync.Mutex
	events    *buffer.Ring
	patterns  []*Pattern
	lastFired map[string]time.Time
	validator *schema.Validator
	handlers  []FiringHandler
	now       func() time.Time

	fireCounts map[string]uint64
}

// New creates an Engine retaining at most capacity events.
func New(capacity int) *Engine {
	return &Engine{
		events:     buffer.NewRing(capacity),
		lastFired:  make(map[string]time.Time),
		fireCounts: make(map[string]uint64),
		validator:  schema.NewValidator(),
		now:        time.Now,
	}
}

// WithClock replaces the engine's time source. Intended for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// RegisterPattern adds a pattern. Patterns are evaluated in
// registration order. Call during setup, before concurrent traffic.
func (e *Engine) RegisterPattern(p *Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, existing := range e.patterns {
		if existing.Name == p.Name {
			return fmt.Errorf("pattern %q already registered", p.Name)
		}
	}
	e.patterns = append(e.patterns, p)

	slog.Info("registered pattern",
		"pattern", p.Name,
		"window", p.Window,
		"threshold", p.Threshold,
		"cooldown", p.Cooldown,
	)
	return nil
}

// AddHandler adds a firing observer. Call during setup.
func (e *Engine) AddHandler(h FiringHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

// AddEvent inserts the event and evaluates every registered pattern
// against the buffer's current contents. The returned slice lists the
// patterns that fired from this call, in registration order. The only
// error condition is a malformed event; action failures never
// propagate.
func (e *Engine) AddEvent(event *schema.Event) ([]Firing, error) {
	if err := e.validator.Validate(event); err != nil {
		return nil, fmt.Errorf("rejecting event: %w", err)
	}

	e.mu.Lock()
	e.events.Insert(event)
	now := e.now()

	var firings []Firing
	for _, p := range e.patterns {
		if last, ok := e.lastFired[p.Name]; ok && now.Sub(last) < p.Cooldown {
			continue
		}

		matched := 0
		for _, candidate := range e.events.Within(p.Window, now) {
			if p.matches(candidate) {
				matched++
			}
		}
		if matched < p.Threshold {
			continue
		}

		// Record the attempt before invoking the action so a failing
		// action does not retry on every subsequent event.
		e.lastFired[p.Name] = now
		e.fireCounts[p.Name]++

		err := runAction(p.Action)
		if err != nil {
			slog.Error("pattern action failed",
				"pattern", p.Name,
				"error", err,
			)
		} else {
			slog.Info("pattern fired",
				"pattern", p.Name,
				"matched", matched,
			)
		}

		firings = append(firings, Firing{
			Pattern: p.Name,
			At:      now,
			Matched: matched,
			Err:     err,
		})
	}

	handlers := e.handlers
	e.mu.Unlock()

	for _, f := range firings {
		for _, h := range handlers {
			h(f)
		}
	}
	return firings, nil
}

// runAction invokes the action and converts panics into errors so a
// misbehaving remediation cannot take down the monitoring loop.
func runAction(action ActionFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return action()
}

// PatternStatus is a read-only projection of one registered pattern.
type PatternStatus struct {
	Name      string        `json:"name"`
	Window    time.Duration `json:"window"`
	Threshold int           `json:"threshold"`
	Cooldown  time.Duration `json:"cooldown"`
	LastFired time.Time     `json:"last_fired,omitzero"`
	FireCount uint64        `json:"fire_count"`
}

// Patterns returns the registered patterns' status in registration
// order.
func (e *Engine) Patterns() []PatternStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]PatternStatus, 0, len(e.patterns))
	for _, p := range e.patterns {
		out = append(out, PatternStatus{
			Name:      p.Name,
			Window:    p.Window,
			Threshold: p.Threshold,
			Cooldown:  p.Cooldown,
			LastFired: e.lastFired[p.Name],
			FireCount: e.fireCounts[p.Name],
		})
	}
	return out
}

// RecentEvents returns up to limit of the most recent buffered events,
// newest first. It is a read-only projection for the dashboard.
func (e *Engine) RecentEvents(limit int) []*schema.Event {
	snap := e.events.Snapshot()
	if limit <= 0 || limit > len(snap) {
		limit = len(snap)
	}

	out := make([]*schema.Event, limit)
	for i := 0; i < limit; i++ {
		out[i] = snap[len(snap)-1-i]
	}
	return out
}

// BufferMetrics returns the underlying buffer's counters.
func (e *Engine) BufferMetrics() buffer.Metrics {
	return e.events.Metrics()
}
