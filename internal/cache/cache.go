package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"

	"github.com/tnunamak/tokentorch/internal/api"
)

const DefaultTTL = 60 * time.Second

// ErrMiss is returned when no cached snapshot exists.
var ErrMiss = errors.New("cache miss")

type Entry struct {
	Usage     *api.UsageResponse `json:"usage"`
	FetchedAt time.Time          `json:"fetched_at"`
}

func (e *Entry) IsValid(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return now.Sub(e.FetchedAt) < ttl
}

// Store keeps the most recent usage snapshot so short-lived commands do not
// hit the API on every invocation.
type Store interface {
	Read(ctx context.Context) (*Entry, error)
	Write(ctx context.Context, usage *api.UsageResponse, fetchedAt time.Time) error
	Close() error
}

func DefaultDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tokentorch"), nil
}

// FileStore writes the snapshot as JSON under dir, one file per organization.
type FileStore struct {
	dir   string
	orgID string
}

func NewFileStore(dir, orgID string) *FileStore {
	return &FileStore{dir: dir, orgID: orgID}
}

func (s *FileStore) path() string {
	if s.orgID == "" {
		return filepath.Join(s.dir, "usage.json")
	}
	return filepath.Join(s.dir, "usage-"+filepath.Base(s.orgID)+".json")
}

func (s *FileStore) Read(_ context.Context) (*Entry, error) {
	data, err := os.ReadFile(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return decode(data)
}

func (s *FileStore) Write(_ context.Context, usage *api.UsageResponse, fetchedAt time.Time) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := sonic.Marshal(Entry{Usage: usage, FetchedAt: fetchedAt})
	if err != nil {
		return err
	}

	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	return os.Rename(tmp, s.path())
}

func (s *FileStore) Close() error { return nil }

func decode(data []byte) (*Entry, error) {
	var entry Entry
	if err := sonic.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	if entry.Usage == nil {
		return nil, ErrMiss
	}
	return &entry, nil
}
