// Package engine provides the event correlation core: a bounded event
// buffer, declarative patterns, and cooldown-gated action firing.
package engine

import (
	"fmt"
	"time"

	"hostmend/internal/schema"
)

// Predicate is a single check over one event. A pattern matches an
// event only when every one of its predicates returns true.
type Predicate interface {
	Matches(event *schema.Event) bool
}

// PredicateFunc adapts a plain function to the Predicate interface.
type PredicateFunc func(event *schema.Event) bool

// Matches implements Predicate.
func (f PredicateFunc) Matches(event *schema.Event) bool { return f(event) }

// TypeIs matches events with the given type tag.
func TypeIs(eventType string) Predicate {
	return PredicateFunc(func(e *schema.Event) bool {
		return e.Type == eventType
	})
}

// SourceIs matches events produced by the given source.
func SourceIs(source string) Predicate {
	return PredicateFunc(func(e *schema.Event) bool {
		return e.Source == source
	})
}

// MinSeverity matches events at or above the given severity.
func MinSeverity(severity int) Predicate {
	return PredicateFunc(func(e *schema.Event) bool {
		return e.Severity >= severity
	})
}

// DataEquals matches events whose data value under key formats equal to
// the given value.
func DataEquals(key string, value any) Predicate {
	return PredicateFunc(func(e *schema.Event) bool {
		if e.Data == nil {
			return false
		}
		v, ok := e.Data[key]
		if !ok {
			return false
		}
		return fmt.Sprintf("%v", v) == fmt.Sprintf("%v", value)
	})
}

// DataExists matches events carrying any value under key.
func DataExists(key string) Predicate {
	return PredicateFunc(func(e *schema.Event) bool {
		if e.Data == nil {
			return false
		}
		_, ok := e.Data[key]
		return ok
	})
}

// AnyOf matches events with any of the given type tags.
func AnyOf(eventTypes ...string) Predicate {
	return PredicateFunc(func(e *schema.Event) bool {
		for _, t := range eventTypes {
			if e.Type == t {
				return true
			}
		}
		return false
	})
}

// ActionFunc is the side-effecting operation bound to a pattern. The
// engine inspects only whether it failed.
type ActionFunc func() error

// Pattern is a named correlation rule: a conjunction of predicates over
// recent events, a lookback window, a count threshold, and a cooldown
// that suppresses re-firing.
type Pattern struct {
	Name       string
	Predicates []Predicate
	Window     time.Duration
	Threshold  int
	Cooldown   time.Duration
	Action     ActionFunc
}

// Validate checks the pattern invariants.
func (p *Pattern) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("pattern name is required")
	}
	if len(p.Predicates) == 0 {
		return fmt.Errorf("pattern %q: at least one predicate is required", p.Name)
	}
	if p.Threshold < 1 {
		return fmt.Errorf("pattern %q: threshold must be >= 1, got %d", p.Name, p.Threshold)
	}
	if p.Window < 0 {
		return fmt.Errorf("pattern %q: window must be >= 0, got %v", p.Name, p.Window)
	}
	if p.Cooldown < 0 {
		return fmt.Errorf("pattern %q: cooldown must be >= 0, got %v", p.Name, p.Cooldown)
	}
	if p.Action == nil {
		return fmt.Errorf("pattern %q: action is required", p.Name)
	}
	return nil
}

// matches reports whether every predicate accepts the event.
func (p *Pattern) matches(event *schema.Event) bool {
	for _, pred := range p.Predicates {
		if !pred.Matches(event) {
			return false
		}
	}
	return true
}
