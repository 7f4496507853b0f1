package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tnunamak/tokentorch/internal/api"
	"github.com/tnunamak/tokentorch/internal/forecast"
)

func sampleUsage() *api.UsageResponse {
	return &api.UsageResponse{
		FiveHour: &forecast.Bucket{Utilization: 42, ResetsAt: "2026-01-15T17:00:00Z"},
		SevenDay: &forecast.Bucket{Utilization: 17, ResetsAt: "2026-01-19T09:00:00Z"},
	}
}

func TestEntry_IsValid(t *testing.T) {
	fetched := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	e := &Entry{FetchedAt: fetched}

	assert.True(t, e.IsValid(fetched.Add(30*time.Second), 0))
	assert.False(t, e.IsValid(fetched.Add(60*time.Second), 0))
	assert.True(t, e.IsValid(fetched.Add(90*time.Second), 2*time.Minute))
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested")
	s := NewFileStore(dir, "org-1")

	_, err := s.Read(ctx)
	assert.ErrorIs(t, err, ErrMiss)

	fetched := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Write(ctx, sampleUsage(), fetched))

	entry, err := s.Read(ctx)
	require.NoError(t, err)
	assert.True(t, fetched.Equal(entry.FetchedAt))
	assert.Equal(t, sampleUsage(), entry.Usage)

	_, err = os.Stat(filepath.Join(dir, "usage-org-1.json.tmp"))
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, s.Close())
}

func TestFileStore_Corrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "usage.json"), []byte("{oops"), 0644))

	_, err := NewFileStore(dir, "").Read(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
}

func TestFileStore_PerOrganization(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fetched := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, NewFileStore(dir, "org-old").Write(ctx, sampleUsage(), fetched))

	_, err := NewFileStore(dir, "org-new").Read(ctx)
	assert.ErrorIs(t, err, ErrMiss)

	_, err = os.Stat(filepath.Join(dir, "usage-org-old.json"))
	assert.NoError(t, err)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	s, err := NewRedisStore(ctx, RedisConfig{Addr: mr.Addr(), Key: "tokentorch:usage:org-1", TTL: time.Minute})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, err = s.Read(ctx)
	assert.ErrorIs(t, err, ErrMiss)

	fetched := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Write(ctx, sampleUsage(), fetched))
	assert.Equal(t, time.Minute, mr.TTL("tokentorch:usage:org-1"))

	entry, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42.0, entry.Usage.FiveHour.Utilization)

	mr.FastForward(2 * time.Minute)
	_, err = s.Read(ctx)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestNewRedisStore_Errors(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	mr.Close()
	_, err = NewRedisStore(context.Background(), RedisConfig{Addr: mr.Addr(), Key: "k"})
	assert.Error(t, err)
}
