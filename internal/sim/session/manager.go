package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"capclicker.app/internal/persistence/store"
	"capclicker.app/internal/sim/game"
	"capclicker.app/internal/telemetry"
)

var ErrInUse = errors.New("user already connected")

type entry struct {
	s      *Session
	cancel context.CancelFunc
}

// Manager runs at most one Session per user.
type Manager struct {
	deps Deps
	cfg  Config

	mu       sync.Mutex
	sessions map[string]*entry
	closing  bool
	wg       sync.WaitGroup
}

func NewManager(deps Deps, cfg Config) *Manager {
	deps.applyDefaults()
	cfg.applyDefaults()
	return &Manager{deps: deps, cfg: cfg, sessions: map[string]*entry{}}
}

func (m *Manager) Engine() *game.Engine { return m.deps.Engine }

// Open loads the user's save and starts its session. A save that cannot be restored is
// logged and replaced by a fresh run; the old save is only overwritten by the next save.
func (m *Manager) Open(ctx context.Context, userID string) (*Session, error) {
	if err := store.CheckUserID(userID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInUse, userID)
	}
	// Reserve the slot while loading.
	m.sessions[userID] = &entry{}
	m.mu.Unlock()

	st := m.restore(ctx, userID)

	runCtx, cancel := context.WithCancel(context.Background())
	sess := New(userID, st, m.deps, m.cfg)
	m.mu.Lock()
	if m.closing {
		delete(m.sessions, userID)
		m.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	m.sessions[userID] = &entry{s: sess, cancel: cancel}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer cancel()
		_ = sess.Run(runCtx)
		m.mu.Lock()
		if e, ok := m.sessions[userID]; ok && e.s == sess {
			delete(m.sessions, userID)
		}
		m.mu.Unlock()
	}()
	return sess, nil
}

func (m *Manager) restore(ctx context.Context, userID string) game.State {
	e := m.deps.Engine
	now := m.deps.Now()
	if m.deps.Store == nil {
		return e.NewState(now)
	}
	saved, found, err := m.deps.Store.Load(ctx, userID)
	if err != nil {
		m.deps.Logger.Printf("load user=%s: %v (starting fresh)", userID, err)
		return e.NewState(now)
	}
	if !found {
		return e.NewState(now)
	}
	st, err := e.Adopt(saved)
	if err != nil {
		m.deps.Logger.Printf("load user=%s: %v (starting fresh)", userID, err)
		return e.NewState(now)
	}
	m.deps.Sink.Emit(telemetry.New(telemetry.GameLoaded, userID, now, telemetry.Params{
		"ascension_level":   st.AscensionLevel,
		"lifetime_earnings": st.LifetimeEarnings,
	}))
	return st
}

// Release stops the user's session and waits for its final save.
func (m *Manager) Release(userID string) {
	m.mu.Lock()
	e, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok || e.s == nil {
		return
	}
	e.s.Stop()
	<-e.s.Done()
	m.mu.Lock()
	if cur, ok := m.sessions[userID]; ok && cur.s == e.s {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()
}

// Lookup returns the running session of userID, if any.
func (m *Manager) Lookup(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[userID]
	if !ok || e.s == nil {
		return nil, false
	}
	return e.s, true
}

// Sessions lists the running sessions ordered by user id.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	out := make([]*Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		if e.s != nil {
			out = append(out, e.s)
		}
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID() < out[j].UserID() })
	return out
}

func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.sessions {
		if e.s != nil {
			n++
		}
	}
	return n
}

// Close stops every session and waits for their goroutines. Open fails with ErrClosed
// afterwards, including for users whose save was still loading.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closing = true
	cancels := make([]context.CancelFunc, 0, len(m.sessions))
	for _, e := range m.sessions {
		if e.cancel != nil {
			cancels = append(cancels, e.cancel)
		}
	}
	m.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	m.wg.Wait()
}
