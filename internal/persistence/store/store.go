package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"capclicker.app/internal/persistence/snapshot"
	"capclicker.app/internal/sim/game"
)

var (
	ErrNotFound  = errors.New("save not found")
	ErrBadUserID = errors.New("bad user id")
)

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func CheckUserID(id string) error {
	if !userIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrBadUserID, id)
	}
	return nil
}

// Store persists one save per user. Load reports found=false when the user has no save;
// a save that exists but cannot be decoded is an error. The returned state has not been
// checked against a catalog yet.
type Store interface {
	Load(ctx context.Context, userID string) (game.State, bool, error)
	Save(ctx context.Context, userID string, s game.State) error
}

// SaveSource is the lower level view used by Load and the admin tools.
type SaveSource interface {
	LoadSave(ctx context.Context, userID string) (snapshot.SaveV1, error)
	PutSave(ctx context.Context, sv snapshot.SaveV1) error
}

func load(ctx context.Context, src SaveSource, userID string) (game.State, bool, error) {
	sv, err := src.LoadSave(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return game.State{}, false, nil
	}
	if err != nil {
		return game.State{}, false, err
	}
	if sv.Header.UserID != userID {
		return game.State{}, false, fmt.Errorf("%w: save belongs to %q", snapshot.ErrInvalid, sv.Header.UserID)
	}
	return sv.ToState(), true, nil
}

func save(ctx context.Context, src SaveSource, userID string, s game.State, now time.Time) error {
	if err := CheckUserID(userID); err != nil {
		return err
	}
	return src.PutSave(ctx, snapshot.FromState(userID, s, now))
}

// Memory keeps encoded saves in memory (dev/test use). Saves still pass through
// Marshal/Unmarshal so schema problems surface the same way as on disk.
type Memory struct {
	mu    sync.Mutex
	saves map[string][]byte
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{saves: map[string][]byte{}, now: time.Now}
}

func (m *Memory) Load(ctx context.Context, userID string) (game.State, bool, error) {
	return load(ctx, m, userID)
}

func (m *Memory) Save(ctx context.Context, userID string, s game.State) error {
	return save(ctx, m, userID, s, m.now())
}

func (m *Memory) LoadSave(_ context.Context, userID string) (snapshot.SaveV1, error) {
	m.mu.Lock()
	b, ok := m.saves[userID]
	m.mu.Unlock()
	if !ok {
		return snapshot.SaveV1{}, ErrNotFound
	}
	return snapshot.Unmarshal(b)
}

func (m *Memory) PutSave(_ context.Context, sv snapshot.SaveV1) error {
	b, err := snapshot.Marshal(sv)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.saves[sv.Header.UserID] = b
	m.mu.Unlock()
	return nil
}

// PutRaw stores an undecoded document, bypassing validation.
func (m *Memory) PutRaw(userID string, b []byte) {
	m.mu.Lock()
	m.saves[userID] = append([]byte(nil), b...)
	m.mu.Unlock()
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}
