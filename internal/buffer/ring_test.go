package buffer

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"hostmend/internal/schema"
)

func eventAt(ts time.Time) *schema.Event {
	return &schema.Event{
		ID:        uuid.New(),
		Timestamp: ts,
		Type:      "test_event",
		Source:    "test",
		Severity:  3,
	}
}

func TestNewRing(t *testing.T) {
	t.Run("with valid capacity", func(t *testing.T) {
		r := NewRing(100)
		if r.Cap() != 100 {
			t.Errorf("Cap() = %d, want 100", r.Cap())
		}
		if r.Len() != 0 {
			t.Errorf("Len() = %d, want 0", r.Len())
		}
	})

	t.Run("with zero capacity uses default", func(t *testing.T) {
		r := NewRing(0)
		if r.Cap() != DefaultCapacity {
			t.Errorf("Cap() = %d, want %d", r.Cap(), DefaultCapacity)
		}
	})

	t.Run("with negative capacity uses default", func(t *testing.T) {
		r := NewRing(-5)
		if r.Cap() != DefaultCapacity {
			t.Errorf("Cap() = %d, want %d", r.Cap(), DefaultCapacity)
		}
	})
}

func TestRing_Boundedness(t *testing.T) {
	r := NewRing(5)
	now := time.Now()

	ids := make([]uuid.UUID, 8)
	for i := 0; i < 8; i++ {
		e := eventAt(now.Add(time.Duration(i) * time.Second))
		ids[i] = e.ID
		r.Insert(e)
	}

	if r.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", r.Len())
	}

	// The three oldest must have been evicted, oldest-first.
	snap := r.Snapshot()
	if len(snap) != 5 {
		t.Fatalf("Snapshot() length = %d, want 5", len(snap))
	}
	for i, e := range snap {
		if e.ID != ids[i+3] {
			t.Errorf("Snapshot()[%d].ID = %v, want %v", i, e.ID, ids[i+3])
		}
	}

	m := r.Metrics()
	if m.Inserted != 8 {
		t.Errorf("Metrics().Inserted = %d, want 8", m.Inserted)
	}
	if m.Evicted != 3 {
		t.Errorf("Metrics().Evicted = %d, want 3", m.Evicted)
	}
}

func TestRing_InsertionOrder(t *testing.T) {
	r := NewRing(10)
	now := time.Now()

	var ids []uuid.UUID
	for i := 0; i < 4; i++ {
		e := eventAt(now)
		ids = append(ids, e.ID)
		r.Insert(e)
	}

	snap := r.Snapshot()
	for i, e := range snap {
		if e.ID != ids[i] {
			t.Errorf("Snapshot()[%d] out of order", i)
		}
	}
}

func TestRing_Within(t *testing.T) {
	r := NewRing(10)
	now := time.Now()

	old := eventAt(now.Add(-10 * time.Minute))
	edge := eventAt(now.Add(-5 * time.Minute))
	recent := eventAt(now.Add(-1 * time.Minute))
	r.Insert(old)
	r.Insert(edge)
	r.Insert(recent)

	t.Run("excludes events older than window", func(t *testing.T) {
		got := r.Within(5*time.Minute, now)
		if len(got) != 2 {
			t.Fatalf("Within() returned %d events, want 2", len(got))
		}
		if got[0].ID != edge.ID || got[1].ID != recent.ID {
			t.Error("Within() returned wrong events or order")
		}
	})

	t.Run("boundary event is included", func(t *testing.T) {
		// now - e.Timestamp == window counts as inside.
		got := r.Within(10*time.Minute, now)
		if len(got) != 3 {
			t.Errorf("Within() returned %d events, want 3", len(got))
		}
	})

	t.Run("zero window keeps only events at now", func(t *testing.T) {
		got := r.Within(0, now)
		if len(got) != 0 {
			t.Errorf("Within(0) returned %d events, want 0", len(got))
		}
		atNow := eventAt(now)
		r.Insert(atNow)
		got = r.Within(0, now)
		if len(got) != 1 || got[0].ID != atNow.ID {
			t.Errorf("Within(0) should include the event stamped exactly at now")
		}
	})
}

func TestRing_ConcurrentInsert(t *testing.T) {
	const producers = 8
	const perProducer = 500

	r := NewRing(producers * perProducer)
	now := time.Now()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				r.Insert(eventAt(now))
			}
		}()
	}
	wg.Wait()

	if r.Len() != producers*perProducer {
		t.Errorf("Len() = %d, want %d", r.Len(), producers*perProducer)
	}
	m := r.Metrics()
	if m.Inserted != producers*perProducer {
		t.Errorf("Metrics().Inserted = %d, want %d", m.Inserted, producers*perProducer)
	}
	if m.Evicted != 0 {
		t.Errorf("Metrics().Evicted = %d, want 0", m.Evicted)
	}
}

func TestRing_ConcurrentInsertWithEviction(t *testing.T) {
	const producers = 4
	const perProducer = 1000
	const capacity = 100

	r := NewRing(capacity)
	now := time.Now()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				r.Insert(eventAt(now))
			}
		}()
	}
	wg.Wait()

	if r.Len() != capacity {
		t.Errorf("Len() = %d, want %d", r.Len(), capacity)
	}
	m := r.Metrics()
	total := producers * perProducer
	if m.Inserted != uint64(total) {
		t.Errorf("Metrics().Inserted = %d, want %d", m.Inserted, total)
	}
	if m.Evicted != uint64(total-capacity) {
		t.Errorf("Metrics().Evicted = %d, want %d", m.Evicted, total-capacity)
	}
}
