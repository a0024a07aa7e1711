// Package probes provides the independently scheduled producers that
// observe OS-level signals and feed events into the rule engine.
package probes

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"hostmend/internal/engine"
	"hostmend/internal/schema"
)

// Sink receives the events a probe produces. Satisfied by
// *engine.Engine.
type Sink interface {
	AddEvent(event *schema.Event) ([]engine.Firing, error)
}

// Probe is one periodic check. Check performs a single poll and emits
// zero or more events into the probe's sink; it must handle its own
// I/O errors and never panic the caller.
type Probe interface {
	Name() string
	Interval() time.Duration
	Check(ctx context.Context)
}

// ErrorObserver counts probe-level check failures. Satisfied by
// *metrics.Metrics.
type ErrorObserver interface {
	ObserveProbeError(probe string)
}

type nopObserver struct{}

func (nopObserver) ObserveProbeError(string) {}

// Set runs a group of probes, each on its own cadence.
type Set struct {
	probes []Probe
	wg     sync.WaitGroup
}

// NewSet creates a probe set.
func NewSet(probes ...Probe) *Set {
	return &Set{probes: probes}
}

// Add appends a probe. Call before Start.
func (s *Set) Add(p Probe) {
	s.probes = append(s.probes, p)
}

// Start launches one goroutine per probe. Each runs an immediate check
// and then polls on its interval until the context is cancelled.
func (s *Set) Start(ctx context.Context) {
	for _, p := range s.probes {
		s.wg.Add(1)
		go func(p Probe) {
			defer s.wg.Done()
			slog.Info("probe started", "probe", p.Name(), "interval", p.Interval())

			ticker := time.NewTicker(p.Interval())
			defer ticker.Stop()

			p.Check(ctx)
			for {
				select {
				case <-ctx.Done():
					slog.Info("probe stopped", "probe", p.Name())
					return
				case <-ticker.C:
					p.Check(ctx)
				}
			}
		}(p)
	}
}

// Sweep runs every probe's check once, immediately. Used by the manual
// scan endpoint.
func (s *Set) Sweep(ctx context.Context) {
	for _, p := range s.probes {
		p.Check(ctx)
	}
}

// Wait blocks until all probe goroutines have stopped.
func (s *Set) Wait() {
	s.wg.Wait()
}

// Names returns the registered probe names in order.
func (s *Set) Names() []string {
	names := make([]string, len(s.probes))
	for i, p := range s.probes {
		names[i] = p.Name()
	}
	return names
}

// emit pushes an event into the sink, logging (never propagating)
// rejection.
func emit(sink Sink, event *schema.Event) {
	if _, err := sink.AddEvent(event); err != nil {
		slog.Error("event rejected", "probe", event.Source, "error", err)
	}
}
