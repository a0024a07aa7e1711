package engine

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hostmend/internal/schema"
)

// fakeClock is a settable time source for deterministic evaluation.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// countingAction returns an action and a pointer to its call count.
func countingAction() (ActionFunc, *atomic.Uint64) {
	var calls atomic.Uint64
	return func() error {
		calls.Add(1)
		return nil
	}, &calls
}

func disconnectEvent(clock *fakeClock) *schema.Event {
	e := schema.New(schema.TypeNetworkDisconnect, "wifi_probe", 3, map[string]any{"disconnect_count": 1})
	e.Timestamp = clock.Now()
	return e
}

func mustAdd(t *testing.T, e *Engine, event *schema.Event) []Firing {
	t.Helper()
	firings, err := e.AddEvent(event)
	if err != nil {
		t.Fatalf("AddEvent() error = %v", err)
	}
	return firings
}

func TestEngine_ThresholdCorrectness(t *testing.T) {
	t.Run("k matching events fire exactly once", func(t *testing.T) {
		clock := newFakeClock()
		eng := New(100).WithClock(clock.Now)
		action, calls := countingAction()

		err := eng.RegisterPattern(&Pattern{
			Name:       "net_flap",
			Predicates: []Predicate{TypeIs(schema.TypeNetworkDisconnect)},
			Window:     5 * time.Minute,
			Threshold:  3,
			Cooldown:   time.Hour,
			Action:     action,
		})
		if err != nil {
			t.Fatalf("RegisterPattern() error = %v", err)
		}

		for i := 0; i < 3; i++ {
			mustAdd(t, eng, disconnectEvent(clock))
			clock.Advance(10 * time.Second)
		}

		if got := calls.Load(); got != 1 {
			t.Errorf("action called %d times, want 1", got)
		}
	})

	t.Run("k-1 matching events do not fire", func(t *testing.T) {
		clock := newFakeClock()
		eng := New(100).WithClock(clock.Now)
		action, calls := countingAction()

		eng.RegisterPattern(&Pattern{
			Name:       "net_flap",
			Predicates: []Predicate{TypeIs(schema.TypeNetworkDisconnect)},
			Window:     5 * time.Minute,
			Threshold:  3,
			Cooldown:   time.Hour,
			Action:     action,
		})

		for i := 0; i < 2; i++ {
			mustAdd(t, eng, disconnectEvent(clock))
			clock.Advance(10 * time.Second)
		}

		if got := calls.Load(); got != 0 {
			t.Errorf("action called %d times, want 0", got)
		}
	})
}

func TestEngine_WindowExclusion(t *testing.T) {
	clock := newFakeClock()
	eng := New(100).WithClock(clock.Now)
	action, calls := countingAction()

	eng.RegisterPattern(&Pattern{
		Name:       "net_flap",
		Predicates: []Predicate{TypeIs(schema.TypeNetworkDisconnect)},
		Window:     time.Minute,
		Threshold:  2,
		Cooldown:   0,
		Action:     action,
	})

	// First event, then a second one more than a window later: the
	// first must not count even though it satisfies the predicates.
	mustAdd(t, eng, disconnectEvent(clock))
	clock.Advance(2 * time.Minute)
	mustAdd(t, eng, disconnectEvent(clock))

	if got := calls.Load(); got != 0 {
		t.Errorf("action called %d times, want 0 (stale event must be excluded)", got)
	}

	// A second event inside the window fires.
	clock.Advance(30 * time.Second)
	mustAdd(t, eng, disconnectEvent(clock))
	if got := calls.Load(); got != 1 {
		t.Errorf("action called %d times, want 1", got)
	}
}

func TestEngine_CooldownSuppression(t *testing.T) {
	clock := newFakeClock()
	eng := New(100).WithClock(clock.Now)
	action, calls := countingAction()

	eng.RegisterPattern(&Pattern{
		Name:       "net_flap",
		Predicates: []Predicate{TypeIs(schema.TypeNetworkDisconnect)},
		Window:     10 * time.Minute,
		Threshold:  1,
		Cooldown:   10 * time.Minute,
		Action:     action,
	})

	mustAdd(t, eng, disconnectEvent(clock))
	if got := calls.Load(); got != 1 {
		t.Fatalf("action called %d times, want 1", got)
	}

	// Fresh threshold satisfaction inside the cooldown must not re-fire.
	for i := 0; i < 5; i++ {
		clock.Advance(time.Minute)
		mustAdd(t, eng, disconnectEvent(clock))
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("action called %d times during cooldown, want 1", got)
	}

	// After the cooldown elapses it may fire again.
	clock.Advance(6 * time.Minute)
	mustAdd(t, eng, disconnectEvent(clock))
	if got := calls.Load(); got != 2 {
		t.Errorf("action called %d times after cooldown, want 2", got)
	}
}

func TestEngine_CooldownRecordedOnFailedAction(t *testing.T) {
	clock := newFakeClock()
	eng := New(100).WithClock(clock.Now)

	var calls atomic.Uint64
	failing := func() error {
		calls.Add(1)
		return errors.New("remediation failed")
	}

	eng.RegisterPattern(&Pattern{
		Name:       "net_flap",
		Predicates: []Predicate{TypeIs(schema.TypeNetworkDisconnect)},
		Window:     10 * time.Minute,
		Threshold:  1,
		Cooldown:   10 * time.Minute,
		Action:     failing,
	})

	firings := mustAdd(t, eng, disconnectEvent(clock))
	if len(firings) != 1 || firings[0].Err == nil {
		t.Fatalf("expected one firing with error, got %+v", firings)
	}

	// The cooldown starts at the attempt, so the failing action must
	// not retry on every subsequent event.
	clock.Advance(time.Minute)
	mustAdd(t, eng, disconnectEvent(clock))
	if got := calls.Load(); got != 1 {
		t.Errorf("failing action called %d times, want 1", got)
	}
}

func TestEngine_PredicateConjunction(t *testing.T) {
	clock := newFakeClock()
	eng := New(100).WithClock(clock.Now)
	action, calls := countingAction()

	eng.RegisterPattern(&Pattern{
		Name: "severe_disconnects",
		Predicates: []Predicate{
			TypeIs(schema.TypeNetworkDisconnect),
			MinSeverity(4),
		},
		Window:    10 * time.Minute,
		Threshold: 2,
		Cooldown:  time.Hour,
		Action:    action,
	})

	// Satisfies only the type predicate.
	low := disconnectEvent(clock)
	low.Severity = 2
	mustAdd(t, eng, low)

	// Satisfies only the severity predicate.
	other := schema.New(schema.TypeProcessMissing, "process_probe", 5, nil)
	other.Timestamp = clock.Now()
	mustAdd(t, eng, other)

	// Satisfies both, but alone is below threshold.
	severe := disconnectEvent(clock)
	severe.Severity = 4
	mustAdd(t, eng, severe)

	if got := calls.Load(); got != 0 {
		t.Fatalf("action called %d times, want 0 (partial matches must not count)", got)
	}

	severe2 := disconnectEvent(clock)
	severe2.Severity = 5
	mustAdd(t, eng, severe2)

	if got := calls.Load(); got != 1 {
		t.Errorf("action called %d times, want 1", got)
	}
}

func TestEngine_IsolationAcrossPatterns(t *testing.T) {
	clock := newFakeClock()
	eng := New(100).WithClock(clock.Now)

	panicking := func() error { panic("action blew up") }
	action, calls := countingAction()

	eng.RegisterPattern(&Pattern{
		Name:       "first_and_broken",
		Predicates: []Predicate{TypeIs(schema.TypeNetworkDisconnect)},
		Window:     time.Minute,
		Threshold:  1,
		Cooldown:   time.Hour,
		Action:     panicking,
	})
	eng.RegisterPattern(&Pattern{
		Name:       "second_and_healthy",
		Predicates: []Predicate{TypeIs(schema.TypeNetworkDisconnect)},
		Window:     time.Minute,
		Threshold:  1,
		Cooldown:   time.Hour,
		Action:     action,
	})

	firings := mustAdd(t, eng, disconnectEvent(clock))

	if len(firings) != 2 {
		t.Fatalf("got %d firings, want 2", len(firings))
	}
	if firings[0].Pattern != "first_and_broken" || firings[0].Err == nil {
		t.Errorf("first firing = %+v, want error from broken action", firings[0])
	}
	if firings[1].Pattern != "second_and_healthy" || firings[1].Err != nil {
		t.Errorf("second firing = %+v, want clean firing", firings[1])
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("healthy action called %d times, want 1", got)
	}
}

func TestEngine_NoOpWhenNothingMatches(t *testing.T) {
	clock := newFakeClock()
	eng := New(100).WithClock(clock.Now)
	action, calls := countingAction()

	eng.RegisterPattern(&Pattern{
		Name:       "net_flap",
		Predicates: []Predicate{TypeIs(schema.TypeNetworkDisconnect)},
		Window:     time.Minute,
		Threshold:  1,
		Cooldown:   time.Hour,
		Action:     action,
	})

	e := schema.New(schema.TypeDiskSpaceLow, "disk_probe", 2, nil)
	e.Timestamp = clock.Now()
	firings := mustAdd(t, eng, e)

	if len(firings) != 0 {
		t.Errorf("got %d firings, want 0", len(firings))
	}
	if calls.Load() != 0 {
		t.Error("action must not run when nothing matches")
	}
	if eng.BufferMetrics().Inserted != 1 {
		t.Error("event must still be inserted on a no-op evaluation")
	}
}

func TestEngine_RejectsMalformedEvent(t *testing.T) {
	eng := New(100)

	e := schema.New("", "probe", 3, nil)
	if _, err := eng.AddEvent(e); err == nil {
		t.Error("AddEvent() = nil error for malformed event, want error")
	}
	if eng.BufferMetrics().Inserted != 0 {
		t.Error("malformed event must not be inserted")
	}
}

func TestEngine_RegisterPattern(t *testing.T) {
	eng := New(100)
	action, _ := countingAction()

	base := &Pattern{
		Name:       "p",
		Predicates: []Predicate{TypeIs("x_event")},
		Window:     time.Minute,
		Threshold:  1,
		Cooldown:   0,
		Action:     action,
	}

	if err := eng.RegisterPattern(base); err != nil {
		t.Fatalf("RegisterPattern() error = %v", err)
	}

	t.Run("duplicate name rejected", func(t *testing.T) {
		dup := *base
		if err := eng.RegisterPattern(&dup); err == nil {
			t.Error("RegisterPattern() accepted duplicate name")
		}
	})

	t.Run("threshold below one rejected", func(t *testing.T) {
		bad := *base
		bad.Name = "bad"
		bad.Threshold = 0
		if err := eng.RegisterPattern(&bad); err == nil {
			t.Error("RegisterPattern() accepted threshold 0")
		}
	})

	t.Run("nil action rejected", func(t *testing.T) {
		bad := *base
		bad.Name = "bad2"
		bad.Action = nil
		if err := eng.RegisterPattern(&bad); err == nil {
			t.Error("RegisterPattern() accepted nil action")
		}
	})

	t.Run("negative window rejected", func(t *testing.T) {
		bad := *base
		bad.Name = "bad3"
		bad.Window = -time.Second
		if err := eng.RegisterPattern(&bad); err == nil {
			t.Error("RegisterPattern() accepted negative window")
		}
	})
}

// TestEngine_NetFlapScenario walks the end-to-end example: threshold 2
// in a 300s window with a 600s cooldown.
func TestEngine_NetFlapScenario(t *testing.T) {
	clock := newFakeClock()
	eng := New(1000).WithClock(clock.Now)
	action, calls := countingAction()

	err := eng.RegisterPattern(&Pattern{
		Name:       "net_flap",
		Predicates: []Predicate{TypeIs(schema.TypeNetworkDisconnect)},
		Window:     300 * time.Second,
		Threshold:  2,
		Cooldown:   600 * time.Second,
		Action:     action,
	})
	if err != nil {
		t.Fatalf("RegisterPattern() error = %v", err)
	}

	// t=0 and t=100: threshold reached, one firing.
	mustAdd(t, eng, disconnectEvent(clock))
	clock.Advance(100 * time.Second)
	mustAdd(t, eng, disconnectEvent(clock))
	if got := calls.Load(); got != 1 {
		t.Fatalf("after t=100: action count = %d, want 1", got)
	}

	// t=150: cooldown active, no re-fire.
	clock.Advance(50 * time.Second)
	mustAdd(t, eng, disconnectEvent(clock))
	if got := calls.Load(); got != 1 {
		t.Errorf("after t=150: action count = %d, want 1 (cooldown)", got)
	}

	// t=700: cooldown elapsed but only the t=700 event is in window.
	clock.Advance(550 * time.Second)
	mustAdd(t, eng, disconnectEvent(clock))
	if got := calls.Load(); got != 1 {
		t.Errorf("after t=700: action count = %d, want 1 (window excludes old events)", got)
	}
}

func TestEngine_ConcurrentProducers(t *testing.T) {
	const producers = 8
	const perProducer = 200

	eng := New(producers * perProducer)
	var fired atomic.Uint64

	// Threshold equal to the total event count: must fire exactly once,
	// on whichever AddEvent call completes the count.
	eng.RegisterPattern(&Pattern{
		Name:       "all_events_seen",
		Predicates: []Predicate{TypeIs("tick")},
		Window:     time.Hour,
		Threshold:  producers * perProducer,
		Cooldown:   time.Hour,
		Action: func() error {
			fired.Add(1)
			return nil
		},
	})

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				e := schema.New("tick", "producer", 1, nil)
				if _, err := eng.AddEvent(e); err != nil {
					t.Errorf("AddEvent() error = %v", err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	m := eng.BufferMetrics()
	if m.Inserted != producers*perProducer {
		t.Errorf("Inserted = %d, want %d (no lost or duplicated events)", m.Inserted, producers*perProducer)
	}
	if got := fired.Load(); got != 1 {
		t.Errorf("pattern fired %d times, want exactly 1", got)
	}
}

func TestEngine_FiringHandlers(t *testing.T) {
	clock := newFakeClock()
	eng := New(100).WithClock(clock.Now)
	action, _ := countingAction()

	var seen []Firing
	eng.AddHandler(func(f Firing) { seen = append(seen, f) })

	eng.RegisterPattern(&Pattern{
		Name:       "net_flap",
		Predicates: []Predicate{TypeIs(schema.TypeNetworkDisconnect)},
		Window:     time.Minute,
		Threshold:  1,
		Cooldown:   time.Hour,
		Action:     action,
	})

	mustAdd(t, eng, disconnectEvent(clock))

	if len(seen) != 1 {
		t.Fatalf("handler saw %d firings, want 1", len(seen))
	}
	if seen[0].Pattern != "net_flap" || seen[0].Matched != 1 {
		t.Errorf("handler firing = %+v", seen[0])
	}
}

func TestEngine_Patterns(t *testing.T) {
	clock := newFakeClock()
	eng := New(100).WithClock(clock.Now)
	action, _ := countingAction()

	eng.RegisterPattern(&Pattern{
		Name:       "net_flap",
		Predicates: []Predicate{TypeIs(schema.TypeNetworkDisconnect)},
		Window:     time.Minute,
		Threshold:  1,
		Cooldown:   time.Hour,
		Action:     action,
	})

	statuses := eng.Patterns()
	if len(statuses) != 1 {
		t.Fatalf("Patterns() returned %d entries, want 1", len(statuses))
	}
	if !statuses[0].LastFired.IsZero() {
		t.Error("LastFired should be zero before any firing")
	}

	mustAdd(t, eng, disconnectEvent(clock))

	statuses = eng.Patterns()
	if statuses[0].FireCount != 1 {
		t.Errorf("FireCount = %d, want 1", statuses[0].FireCount)
	}
	if !statuses[0].LastFired.Equal(clock.Now()) {
		t.Errorf("LastFired = %v, want %v", statuses[0].LastFired, clock.Now())
	}
}

func TestEngine_RecentEvents(t *testing.T) {
	eng := New(100)

	var last *schema.Event
	for i := 0; i < 5; i++ {
		last = schema.New("tick", "producer", 1, nil)
		if _, err := eng.AddEvent(last); err != nil {
			t.Fatalf("AddEvent() error = %v", err)
		}
	}

	recent := eng.RecentEvents(3)
	if len(recent) != 3 {
		t.Fatalf("RecentEvents(3) returned %d events", len(recent))
	}
	if recent[0].ID != last.ID {
		t.Error("RecentEvents() must return newest first")
	}

	all := eng.RecentEvents(0)
	if len(all) != 5 {
		t.Errorf("RecentEvents(0) returned %d events, want all 5", len(all))
	}
}
