package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"capclicker.app/internal/persistence/snapshot"
	"capclicker.app/internal/sim/catalogs"
	"capclicker.app/internal/sim/game"
	"capclicker.app/internal/telemetry"
)

var t0 = time.UnixMilli(1_700_000_000_000)

func playedState(t *testing.T) (*game.Engine, game.State) {
	t.Helper()
	e := game.NewEngine(nil, game.Rules{}, game.NewRandSampler(3))
	s := e.NewState(t0)
	s.Money = 500
	s, res := e.Buy(s, "aiBot")
	if !res.OK() {
		t.Fatalf("setup buy: %+v", res)
	}
	s, _ = e.Tick(s, t0.Add(10*time.Second))
	return e, s
}

func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	e, s := playedState(t)

	if _, found, err := st.Load(ctx, "nobody"); found || err != nil {
		t.Fatalf("missing user: found=%v err=%v", found, err)
	}
	if err := st.Save(ctx, "player_1", s); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, found, err := st.Load(ctx, "player_1")
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	adopted, err := e.Adopt(got)
	if err != nil {
		t.Fatalf("adopt: %v", err)
	}
	if !reflect.DeepEqual(adopted, s) {
		t.Fatalf("state changed:\n got=%+v\nwant=%+v", adopted, s)
	}

	s.Money = 1
	if err := st.Save(ctx, "player_1", s); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _, _ = st.Load(ctx, "player_1")
	if got.Money != 1 {
		t.Fatalf("overwrite not visible: money=%v", got.Money)
	}

	if err := st.Save(ctx, "../escape", s); !errors.Is(err, ErrBadUserID) {
		t.Fatalf("expected ErrBadUserID, got %v", err)
	}
}

func TestMemory_Store(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemory_CorruptSaveIsAnError(t *testing.T) {
	m := NewMemory()
	m.PutRaw("p", []byte(`{"header":{"version":1,"user_id":"p","saved_at_ms":0},"money":-5}`))
	if _, found, err := m.Load(context.Background(), "p"); found || !errors.Is(err, snapshot.ErrInvalid) {
		t.Fatalf("found=%v err=%v", found, err)
	}
}

func TestFile_Store(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "saves"))
	if users, err := f.Users(); err != nil || len(users) != 0 {
		t.Fatalf("empty dir: %v %v", users, err)
	}
	exerciseStore(t, f)

	users, err := f.Users()
	if err != nil || !reflect.DeepEqual(users, []string{"player_1"}) {
		t.Fatalf("users: %v err=%v", users, err)
	}
	if _, err := f.LoadSave(context.Background(), "a/b"); !errors.Is(err, ErrBadUserID) {
		t.Fatalf("expected ErrBadUserID, got %v", err)
	}
}

func TestFile_RejectsSaveOfAnotherUser(t *testing.T) {
	dir := t.TempDir()
	f := NewFile(dir)
	_, s := playedState(t)
	sv := snapshot.FromState("mallory", s, t0)
	if err := snapshot.Write(f.Path("alice"), sv); err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.Load(context.Background(), "alice"); !errors.Is(err, snapshot.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestSQLite_StoreAndEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "clicker.sqlite")
	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	exerciseStore(t, db)
	if err := db.UpsertCatalogs(context.Background(), catalogs.Default()); err != nil {
		t.Fatalf("catalogs: %v", err)
	}

	for i, name := range []telemetry.Name{telemetry.GameLoaded, telemetry.MoneyClicked, telemetry.GameSaved} {
		ev := telemetry.New(name, "player_1", t0.Add(time.Duration(i)*time.Second), telemetry.Params{"i": i})
		if err := db.WriteEvent(ev); err != nil {
			t.Fatalf("write event: %v", err)
		}
	}
	var sink telemetry.Sink = db
	sink.Emit(telemetry.New(telemetry.UserLoggedIn, "other", t0, nil))
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := db.WriteEvent(telemetry.Event{}); err != nil {
		t.Fatalf("write after close: %v", err)
	}

	db, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	saves, err := db.ListSaves(context.Background())
	if err != nil || len(saves) != 1 || saves[0].UserID != "player_1" || saves[0].Version != snapshot.Version {
		t.Fatalf("saves: %+v err=%v", saves, err)
	}

	evs, err := db.Events(context.Background(), "player_1", 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("events: got %d want 3", len(evs))
	}
	if evs[0].Name != telemetry.GameSaved || evs[2].Name != telemetry.GameLoaded {
		t.Fatalf("order: %v %v", evs[0].Name, evs[2].Name)
	}
	if evs[0].Params["i"] != float64(2) {
		t.Fatalf("params: %+v", evs[0].Params)
	}
	all, _ := db.Events(context.Background(), "", 10)
	if len(all) != 4 {
		t.Fatalf("all events: got %d want 4", len(all))
	}
	if st := db.Stats(); st.DropEventTotal != 0 || st.EventWriteFailures != 0 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestSQLite_QueueDropsWhenFull(t *testing.T) {
	s := &SQLite{ch: make(chan telemetry.Event, 1)}
	_ = s.WriteEvent(telemetry.Event{ID: "1"})
	_ = s.WriteEvent(telemetry.Event{ID: "2"})
	if st := s.Stats(); st.DropEventTotal != 1 || st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("stats: %+v", st)
	}
}
