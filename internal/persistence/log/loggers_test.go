package log

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"capclicker.app/internal/telemetry"
)

func TestEventLogger_RoundTripAndRotation(t *testing.T) {
	dir := t.TempDir()
	l := NewEventLogger(dir)
	clock := time.Date(2024, 5, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	at := time.Date(2024, 5, 1, 10, 59, 0, 0, time.UTC)
	if err := l.WriteEvent(telemetry.Event{ID: "1", Name: telemetry.MoneyClicked, UserID: "u", At: at, Params: telemetry.Params{"amount": 1.5}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.WriteEvent(telemetry.Event{ID: "2", Name: telemetry.UpgradePurchased, UserID: "u", At: at}); err != nil {
		t.Fatalf("write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := l.WriteEvent(telemetry.Event{ID: "3", Name: telemetry.GameOver, UserID: "u", At: at}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	first, err := ReadEvents(filepath.Join(dir, "events", "events-2024-05-01-10.jsonl.zst"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(first) != 2 || first[0].ID != "1" || first[1].Name != telemetry.UpgradePurchased {
		t.Fatalf("first hour: %+v", first)
	}
	if got := first[0].Params["amount"]; got != 1.5 {
		t.Fatalf("params: got %v", got)
	}

	second, err := ReadEvents(filepath.Join(dir, "events", "events-2024-05-01-11.jsonl.zst"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(second) != 1 || second[0].Name != telemetry.GameOver {
		t.Fatalf("second hour: %+v", second)
	}
}

func TestReadEvents_MissingFile(t *testing.T) {
	if _, err := ReadEvents(filepath.Join(t.TempDir(), "nope.jsonl.zst")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}
