package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/onnwee/shooting-star/db"
)

// Store persists the current day. Load returns (nil, nil) when nothing usable
// is stored: never saved, unreadable or corrupt. Callers treat all of those as
// "generate a new day". Save replaces whatever was stored before.
type Store interface {
	Load(ctx context.Context) (*Day, error)
	Save(ctx context.Context, d *Day) error
}

// DefaultPath is where FileStore keeps the schedule when none is configured.
const DefaultPath = "data/schedule.json"

// FileStore keeps the schedule as a JSON file.
type FileStore struct {
	Path string
}

// NewFileStore returns a store writing to path (DefaultPath when empty).
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultPath
	}
	return &FileStore{Path: path}
}

func (s *FileStore) Load(ctx context.Context) (*Day, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		slog.Warn("schedule file unreadable; treating as absent", slog.String("path", s.Path), slog.Any("err", err), slog.String("component", "schedule"))
		return nil, nil
	}
	d, err := Decode(data)
	if err != nil {
		slog.Warn("schedule file corrupt; treating as absent", slog.String("path", s.Path), slog.Any("err", err), slog.String("component", "schedule"))
		return nil, nil
	}
	return d, nil
}

// Save writes atomically: temp file in the same directory, fsync, rename.
func (s *FileStore) Save(ctx context.Context, d *Day) error {
	if d == nil {
		return errors.New("schedule is nil")
	}
	data, err := Encode(d)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create schedule dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".schedule-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp schedule: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write schedule: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync schedule: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close schedule: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		return fmt.Errorf("replace schedule: %w", err)
	}
	return nil
}

// KVKey is the kv row KVStore uses.
const KVKey = "schedule:current"

// KVStore keeps the schedule in the database kv table next to the ledger.
type KVStore struct {
	DB      *sql.DB
	Dialect db.Dialect
}

func NewKVStore(dbx *sql.DB, d db.Dialect) *KVStore {
	return &KVStore{DB: dbx, Dialect: d}
}

// Load returns a database error as an error (the caller decides whether to
// skip the tick); only a missing or corrupt row reads as absent.
func (s *KVStore) Load(ctx context.Context) (*Day, error) {
	raw, ok, err := db.GetKV(ctx, s.DB, s.Dialect, KVKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	d, err := Decode([]byte(raw))
	if err != nil {
		slog.Warn("stored schedule corrupt; treating as absent", slog.Any("err", err), slog.String("component", "schedule"))
		return nil, nil
	}
	return d, nil
}

func (s *KVStore) Save(ctx context.Context, d *Day) error {
	if d == nil {
		return errors.New("schedule is nil")
	}
	data, err := Encode(d)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}
	return db.PutKV(ctx, s.DB, s.Dialect, KVKey, string(data))
}
