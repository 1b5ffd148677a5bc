package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recWriter struct {
	mu     sync.Mutex
	got    []Event
	block  chan struct{}
	failOn Name
}

func (w *recWriter) WriteEvent(ev Event) error {
	if w.block != nil {
		<-w.block
	}
	if ev.Name == w.failOn {
		return errors.New("boom")
	}
	w.mu.Lock()
	w.got = append(w.got, ev)
	w.mu.Unlock()
	return nil
}

func TestNew_AssignsUniqueIDs(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	a := New(MoneyClicked, "u1", at, Params{"amount": 1.0})
	b := New(MoneyClicked, "u1", at, nil)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("ids: %q %q", a.ID, b.ID)
	}
	if a.At.Location() != time.UTC || !a.At.Equal(at) {
		t.Fatalf("timestamp not normalized to UTC: %v", a.At)
	}
}

func TestAsync_DeliversInOrderAndDrainsOnClose(t *testing.T) {
	w := &recWriter{}
	a := NewAsync(w, 16, nil)
	for i := 0; i < 10; i++ {
		a.Emit(Event{ID: string(rune('a' + i)), Name: MoneyClicked})
	}
	a.Close()
	if len(w.got) != 10 {
		t.Fatalf("delivered %d events, want 10", len(w.got))
	}
	for i, ev := range w.got {
		if ev.ID != string(rune('a'+i)) {
			t.Fatalf("out of order at %d: %q", i, ev.ID)
		}
	}
	a.Emit(Event{Name: GameOver}) // after close: ignored, must not panic
}

func TestAsync_DropsWhenFull(t *testing.T) {
	w := &recWriter{block: make(chan struct{})}
	a := NewAsync(w, 1, nil)
	// One event may be held by the writer goroutine, one sits in the queue; the rest drop.
	for i := 0; i < 10; i++ {
		a.Emit(Event{Name: MoneyClicked})
	}
	if st := a.Stats(); st.DroppedTotal < 8 {
		t.Fatalf("dropped=%d want >= 8", st.DroppedTotal)
	}
	close(w.block)
	a.Close()
}

func TestAsync_CountsWriteFailures(t *testing.T) {
	w := &recWriter{failOn: AuthError}
	a := NewAsync(w, 8, nil)
	a.Emit(Event{Name: AuthError})
	a.Emit(Event{Name: GameSaved})
	a.Close()
	if st := a.Stats(); st.FailedTotal != 1 {
		t.Fatalf("failed=%d want 1", st.FailedTotal)
	}
	if len(w.got) != 1 || w.got[0].Name != GameSaved {
		t.Fatalf("got %+v", w.got)
	}
}

func TestMulti_FansOut(t *testing.T) {
	m1, m2 := NewMemory(), NewMemory()
	Multi{m1, nil, m2, Nop{}}.Emit(Event{Name: PlayerAscended})
	if len(m1.Named(PlayerAscended)) != 1 || len(m2.Events()) != 1 {
		t.Fatalf("fan out failed: %d %d", len(m1.Events()), len(m2.Events()))
	}
}

func TestAsync_EmitRacingCloseDoesNotPanic(t *testing.T) {
	w := &recWriter{}
	a := NewAsync(w, 8, nil)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for i := 0; i < 500; i++ {
				a.Emit(Event{Name: MoneyClicked})
			}
		}()
	}
	close(start)
	a.Close()
	wg.Wait()

	st := a.Stats()
	w.mu.Lock()
	delivered := len(w.got)
	w.mu.Unlock()
	if uint64(delivered)+st.DroppedTotal > 8*500 {
		t.Fatalf("delivered=%d dropped=%d exceeds emitted", delivered, st.DroppedTotal)
	}
}
