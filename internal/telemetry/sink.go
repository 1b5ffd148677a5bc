package telemetry

import (
	"log"
	"sync"
	"sync/atomic"
)

// Sink receives events from the simulation loop. Emit must not block.
type Sink interface {
	Emit(Event)
}

// Writer is a durable event destination (JSONL log, SQLite table).
type Writer interface {
	WriteEvent(Event) error
}

type Nop struct{}

func (Nop) Emit(Event) {}

type Multi []Sink

func (m Multi) Emit(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}

// Async fans events out to a Writer from its own goroutine. When the queue is full
// events are dropped and counted.
type Async struct {
	w      Writer
	logger *log.Logger

	// mu guards ch against a send racing Close.
	mu      sync.RWMutex
	closed  bool
	ch      chan Event
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func NewAsync(w Writer, buffer int, logger *log.Logger) *Async {
	if buffer <= 0 {
		buffer = 4096
	}
	a := &Async{w: w, logger: logger, ch: make(chan Event, buffer)}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.loop()
	}()
	return a
}

func (a *Async) Emit(ev Event) {
	if a == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.ch <- ev:
	default:
		a.dropped.Add(1)
	}
}

func (a *Async) loop() {
	for ev := range a.ch {
		if err := a.w.WriteEvent(ev); err != nil {
			if a.failed.Add(1) == 1 && a.logger != nil {
				a.logger.Printf("telemetry write failed (further failures counted only): %v", err)
			}
		}
	}
}

// Close drains the queue and waits for the writer goroutine.
func (a *Async) Close() {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.ch)
		a.mu.Unlock()
		a.wg.Wait()
	})
}

type AsyncStats struct {
	QueueDepth   int
	DroppedTotal uint64
	FailedTotal  uint64
}

func (a *Async) Stats() AsyncStats {
	return AsyncStats{
		QueueDepth:   len(a.ch),
		DroppedTotal: a.dropped.Load(),
		FailedTotal:  a.failed.Load(),
	}
}

// Memory keeps events in memory (dev/test use).
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Emit(ev Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Named returns the recorded events with the given name, oldest first.
func (m *Memory) Named(name Name) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}
