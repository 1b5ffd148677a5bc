package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"capclicker.app/internal/persistence/snapshot"
	"capclicker.app/internal/persistence/store"
	"capclicker.app/internal/sim/game"
)

type RunMeta struct {
	UserID           string  `json:"user_id"`
	Run              int     `json:"run"`
	AscensionLevel   int     `json:"ascension_level"`
	LifetimeEarnings float64 `json:"lifetime_earnings"`
	Money            float64 `json:"money"`
	Reputation       float64 `json:"reputation"`
	Climate          float64 `json:"climate"`
	Snapshot         string  `json:"snapshot"`
	CreatedAt        string  `json:"created_at"`
}

// Dir keeps the final state of every finished run under `base/<user>/run_<NNN>/`.
type Dir struct {
	base string
}

func NewDir(base string) *Dir { return &Dir{base: base} }

// ArchiveRun stores the state a run ended with, right before it was ascended away.
// Run numbers start at 1, so the run ended at level L is run L+1.
func (d *Dir) ArchiveRun(userID string, ended game.State, at time.Time) (string, error) {
	if err := store.CheckUserID(userID); err != nil {
		return "", err
	}
	run := ended.AscensionLevel + 1
	runDir := filepath.Join(d.base, userID, fmt.Sprintf("run_%03d", run))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	dst := filepath.Join(runDir, "final.save.zst")
	if err := snapshot.Write(dst, snapshot.FromState(userID, ended, at)); err != nil {
		return "", err
	}

	meta := RunMeta{
		UserID:           userID,
		Run:              run,
		AscensionLevel:   ended.AscensionLevel,
		LifetimeEarnings: ended.LifetimeEarnings,
		Money:            ended.Money,
		Reputation:       ended.Reputation,
		Climate:          ended.Climate,
		Snapshot:         filepath.Base(dst),
		CreatedAt:        at.UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(runDir, "meta.json"), b, 0o644)
	}
	return dst, nil
}

// Runs lists the archived runs of userID, oldest first.
func (d *Dir) Runs(userID string) ([]RunMeta, error) {
	if err := store.CheckUserID(userID); err != nil {
		return nil, err
	}
	ents, err := os.ReadDir(filepath.Join(d.base, userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []RunMeta
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		b, err := os.ReadFile(filepath.Join(d.base, userID, e.Name(), "meta.json"))
		if err != nil {
			continue
		}
		var m RunMeta
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Run < out[j].Run })
	return out, nil
}

func (d *Dir) SnapshotPath(userID string, run int) string {
	return filepath.Join(d.base, userID, fmt.Sprintf("run_%03d", run), "final.save.zst")
}
