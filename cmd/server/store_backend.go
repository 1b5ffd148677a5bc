package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"capclicker.app/internal/persistence/ingest"
	"capclicker.app/internal/persistence/store"
)

type runtimeStore struct {
	store store.Store
	// db is set for the sqlite backend; it also receives telemetry events.
	db *store.SQLite
}

func (r runtimeStore) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func openRuntimeStore(dataDir, dbPath string, disableDB bool, logger *log.Logger) (runtimeStore, error) {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("CC_STORE_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}
	if disableDB && backend == "sqlite" {
		backend = "file"
	}

	switch backend {
	case "memory":
		logger.Printf("store: memory (progress is lost on restart)")
		return runtimeStore{store: store.NewMemory()}, nil
	case "file":
		dir := filepath.Join(dataDir, "saves")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return runtimeStore{}, err
		}
		logger.Printf("store: file dir=%s", dir)
		return runtimeStore{store: store.NewFile(dir)}, nil
	case "sqlite":
		if strings.TrimSpace(dbPath) == "" {
			dbPath = filepath.Join(dataDir, "index", "capclicker.sqlite")
		}
		db, err := store.OpenSQLite(dbPath)
		if err != nil {
			return runtimeStore{}, err
		}
		logger.Printf("store: sqlite path=%s", dbPath)
		return runtimeStore{store: db, db: db}, nil
	default:
		return runtimeStore{}, fmt.Errorf("unsupported CC_STORE_BACKEND=%q", backend)
	}
}

// openIngest enables the remote telemetry forwarder when CC_TELEMETRY_INGEST_URL is set.
func openIngest(logger *log.Logger) (*ingest.Forwarder, error) {
	endpoint := strings.TrimSpace(os.Getenv("CC_TELEMETRY_INGEST_URL"))
	if endpoint == "" {
		return nil, nil
	}
	fwd, err := ingest.Open(ingest.Config{
		Endpoint:      endpoint,
		Token:         strings.TrimSpace(os.Getenv("CC_TELEMETRY_INGEST_TOKEN")),
		Source:        strings.TrimSpace(os.Getenv("CC_TELEMETRY_SOURCE")),
		BatchSize:     envInt("CC_TELEMETRY_INGEST_BATCH", 128),
		FlushInterval: time.Duration(envInt("CC_TELEMETRY_INGEST_FLUSH_MS", 500)) * time.Millisecond,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Printf("telemetry ingest: %s", endpoint)
	return fwd, nil
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
