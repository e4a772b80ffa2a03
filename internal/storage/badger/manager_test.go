package badger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "badger")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManager_StoresShareOneDatabase(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	job := models.NewJob("j1", "nightly", "scan", nil)
	require.NoError(t, m.JobStorage().SaveJob(ctx, job))

	entry := &models.CacheEntry{
		Key:            "scan:/repo:abc1234",
		RepositoryPath: "/repo",
		ShortCommit:    "abc1234",
		CachedAt:       time.Now().UTC(),
	}
	require.NoError(t, m.CacheStore().PutEntry(entry))

	got, err := m.JobStorage().GetJob(ctx, "j1")
	require.NoError(t, err)
	require.NotNil(t, got)

	cached, err := m.CacheStore().GetEntry(entry.Key)
	require.NoError(t, err)
	require.NotNil(t, cached)
}

func TestManager_RunGC_FreshDatabaseRewritesNothing(t *testing.T) {
	m := newTestManager(t)

	rewritten, err := m.RunGC()
	require.NoError(t, err)
	assert.Zero(t, rewritten)
}

func TestManager_ResetOnStartupWipesData(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")
	ctx := context.Background()

	m, err := NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: dir})
	require.NoError(t, err)
	require.NoError(t, m.JobStorage().SaveJob(ctx, models.NewJob("j1", "nightly", "scan", nil)))
	require.NoError(t, m.Close())

	m, err = NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: dir, ResetOnStartup: true})
	require.NoError(t, err)
	defer m.Close()

	got, err := m.JobStorage().GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
