package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"capclicker.app/internal/persistence/snapshot"
	"capclicker.app/internal/sim/catalogs"
	"capclicker.app/internal/sim/game"
	"capclicker.app/internal/telemetry"
)

// SQLite keeps saves in a table written synchronously and telemetry events in a second
// table fed by a buffered queue. Events are dropped when the writer falls behind.
type SQLite struct {
	db  *sql.DB
	now func() time.Time

	ch   chan telemetry.Event
	wg   sync.WaitGroup
	once sync.Once

	closed      atomic.Bool
	dropped     atomic.Uint64
	writeFailed atomic.Uint64
}

func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLite{
		db:  db,
		now: time.Now,
		ch:  make(chan telemetry.Event, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS saves (
			user_id TEXT PRIMARY KEY,
			save_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			saved_at_ms INTEGER NOT NULL,
			ascension_level INTEGER NOT NULL,
			lifetime_earnings REAL NOT NULL,
			json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			user_id TEXT NOT NULL,
			at_ms INTEGER NOT NULL,
			params_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_user_at ON events(user_id, at_ms);`,
		`CREATE INDEX IF NOT EXISTS idx_events_name_at ON events(name, at_ms);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains queued events, then closes the database.
func (s *SQLite) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLite) Load(ctx context.Context, userID string) (game.State, bool, error) {
	return load(ctx, s, userID)
}

func (s *SQLite) Save(ctx context.Context, userID string, st game.State) error {
	return save(ctx, s, userID, st, s.now())
}

func (s *SQLite) LoadSave(ctx context.Context, userID string) (snapshot.SaveV1, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT json FROM saves WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.SaveV1{}, ErrNotFound
	}
	if err != nil {
		return snapshot.SaveV1{}, err
	}
	return snapshot.Unmarshal([]byte(raw))
}

func (s *SQLite) PutSave(ctx context.Context, sv snapshot.SaveV1) error {
	b, err := snapshot.Marshal(sv)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO saves(user_id,save_id,version,saved_at_ms,ascension_level,lifetime_earnings,json) VALUES(?,?,?,?,?,?,?)`,
		sv.Header.UserID, sv.Header.SaveID, sv.Header.Version, sv.Header.SavedAtMs,
		sv.AscensionLevel, sv.LifetimeEarnings, string(b),
	)
	return err
}

// UpsertCatalogs records the catalogs the server was started with.
func (s *SQLite) UpsertCatalogs(ctx context.Context, cats *catalogs.Catalogs) error {
	up, err := json.Marshal(cats.Upgrades.Defs)
	if err != nil {
		return err
	}
	of, err := json.Marshal(cats.Offers.Defs)
	if err != nil {
		return err
	}
	now := s.now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	if _, err := stmt.ExecContext(ctx, "upgrades", cats.Upgrades.Digest, string(up), now); err != nil {
		return err
	}
	if _, err := stmt.ExecContext(ctx, "offers", cats.Offers.Digest, string(of), now); err != nil {
		return err
	}
	return tx.Commit()
}

type SaveRow struct {
	UserID           string
	SaveID           string
	Version          int
	SavedAt          time.Time
	AscensionLevel   int
	LifetimeEarnings float64
}

func (s *SQLite) ListSaves(ctx context.Context) ([]SaveRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id,save_id,version,saved_at_ms,ascension_level,lifetime_earnings FROM saves ORDER BY saved_at_ms DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SaveRow
	for rows.Next() {
		var r SaveRow
		var ms int64
		if err := rows.Scan(&r.UserID, &r.SaveID, &r.Version, &ms, &r.AscensionLevel, &r.LifetimeEarnings); err != nil {
			return nil, err
		}
		r.SavedAt = time.UnixMilli(ms).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// WriteEvent queues an event for the events table. It never blocks.
func (s *SQLite) WriteEvent(ev telemetry.Event) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
	return nil
}

// Emit lets the store act as a telemetry sink.
func (s *SQLite) Emit(ev telemetry.Event) { _ = s.WriteEvent(ev) }

// Events returns the newest events first. An empty userID matches every user.
func (s *SQLite) Events(ctx context.Context, userID string, limit int) ([]telemetry.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT id,name,user_id,at_ms,params_json FROM events`
	args := []any{}
	if userID != "" {
		q += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	q += ` ORDER BY at_ms DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []telemetry.Event
	for rows.Next() {
		var ev telemetry.Event
		var name, params string
		var ms int64
		if err := rows.Scan(&ev.ID, &name, &ev.UserID, &ms, &params); err != nil {
			return nil, err
		}
		ev.Name = telemetry.Name(name)
		ev.At = time.UnixMilli(ms).UTC()
		if params != "" && params != "null" {
			if err := json.Unmarshal([]byte(params), &ev.Params); err != nil {
				return nil, fmt.Errorf("event %s params: %w", ev.ID, err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

type Stats struct {
	QueueDepth         int
	QueueCapacity      int
	DropEventTotal     uint64
	EventWriteFailures uint64
}

func (s *SQLite) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:         len(s.ch),
		QueueCapacity:      cap(s.ch),
		DropEventTotal:     s.dropped.Load(),
		EventWriteFailures: s.writeFailed.Load(),
	}
}

func (s *SQLite) loop() {
	ctx := context.Background()
	insert, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(id,name,user_id,at_ms,params_json) VALUES(?,?,?,?,?)`)
	defer func() {
		if insert != nil {
			_ = insert.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)
	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for ev := range s.ch {
		begin()
		if tx == nil || insert == nil {
			s.writeFailed.Add(1)
			continue
		}
		params, _ := json.Marshal(ev.Params)
		if _, err := tx.Stmt(insert).Exec(ev.ID, string(ev.Name), ev.UserID, ev.At.UnixMilli(), string(params)); err != nil {
			s.writeFailed.Add(1)
			_ = tx.Rollback()
			tx = nil
			continue
		}
		opCount++
		// Commit when the queue is idle so recent events become visible promptly.
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}
	commit()
}
