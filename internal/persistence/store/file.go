package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"capclicker.app/internal/persistence/snapshot"
	"capclicker.app/internal/sim/game"
)

const saveExt = ".save.zst"

// File stores each user's save as <dir>/<user_id>.save.zst.
type File struct {
	dir string
	now func() time.Time
}

func NewFile(dir string) *File {
	return &File{dir: dir, now: time.Now}
}

func (f *File) Path(userID string) string {
	return filepath.Join(f.dir, userID+saveExt)
}

func (f *File) Load(ctx context.Context, userID string) (game.State, bool, error) {
	return load(ctx, f, userID)
}

func (f *File) Save(ctx context.Context, userID string, s game.State) error {
	return save(ctx, f, userID, s, f.now())
}

func (f *File) LoadSave(_ context.Context, userID string) (snapshot.SaveV1, error) {
	if err := CheckUserID(userID); err != nil {
		return snapshot.SaveV1{}, err
	}
	sv, err := snapshot.Read(f.Path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return sv, ErrNotFound
	}
	return sv, err
}

func (f *File) PutSave(_ context.Context, sv snapshot.SaveV1) error {
	if err := CheckUserID(sv.Header.UserID); err != nil {
		return err
	}
	return snapshot.Write(f.Path(sv.Header.UserID), sv)
}

// Users lists the user ids with a save on disk, sorted.
func (f *File) Users() ([]string, error) {
	ents, err := os.ReadDir(f.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), saveExt) {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), saveExt))
	}
	sort.Strings(out)
	return out, nil
}
