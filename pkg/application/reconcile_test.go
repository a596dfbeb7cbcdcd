package application

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/metrics"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(state *State) (*Reconciler, *storage.CacheStore) {
	store := storage.NewCacheStore(state.Fs(), discardLogger())
	return NewReconciler(state.Fs(), store, DefaultLockPolicy, metrics.NewNopRecorder(), discardLogger()), store
}

func seedCollection(state *State, modified, description string) *entity.Collection {
	c := entity.NewCollection(entity.Entry{
		SourceURL:    base + "pfc",
		Alias:        "pfc",
		Description:  description,
		LastModified: modified,
	})
	c.Datasets().Add(&entity.Dataset{
		Entry: entity.Entry{
			SourceURL:    base + "pfc/pfc-1",
			Alias:        "pfc-1",
			Description:  description,
			LastModified: modified,
		},
		Content: description,
	})
	state.Collections.Add(c)
	return c
}

func TestReconcile_PersistsWhenNoCache(t *testing.T) {
	state := newTestState(t)
	r, store := newTestReconciler(state)
	seedCollection(state, "2023-01-01", "live")

	require.NoError(t, r.Reconcile(context.Background(), state.Collections, state.DataDir()))

	cached, _, err := store.LoadCollection(filepath.Join(state.DataDir(), "pfc"))
	require.NoError(t, err)
	assert.Equal(t, "live", cached.Description)

	ds, _, err := store.LoadDataset(filepath.Join(state.DataDir(), "pfc", "pfc-1"))
	require.NoError(t, err)
	assert.Equal(t, "live", ds.Content)
}

func TestReconcile_NewerWins(t *testing.T) {
	tests := []struct {
		name       string
		cached     string
		live       string
		wantMemory string
		wantCache  string
	}{
		{"memory newer overwrites cache", "2020-01-01", "2023-01-01", "live", "live"},
		{"cache newer replaces memory", "2023-01-01", "2020-01-01", "cached", "cached"},
		{"tie keeps cache", "2023-01-01", "2023-01-01", "cached", "cached"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := newTestState(t)
			r, store := newTestReconciler(state)

			// Seed the cache from a first hierarchy.
			seedCollection(state, tt.cached, "cached")
			require.NoError(t, r.Reconcile(context.Background(), state.Collections, state.DataDir()))

			state.Collections.Reset()
			live := seedCollection(state, tt.live, "live")
			require.NoError(t, r.Reconcile(context.Background(), state.Collections, state.DataDir()))

			assert.Equal(t, tt.wantMemory, live.Description)
			ds, ok := live.Datasets().Find("pfc-1")
			require.True(t, ok)
			assert.Equal(t, tt.wantMemory, ds.Content)
			assert.Equal(t, 1, live.Datasets().Len())

			cached, _, err := store.LoadCollection(filepath.Join(state.DataDir(), "pfc"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantCache, cached.Description)
			cachedDS, _, err := store.LoadDataset(filepath.Join(state.DataDir(), "pfc", "pfc-1"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantCache, cachedDS.Content)
		})
	}
}

func TestReconcile_CorruptCacheIsOverwritten(t *testing.T) {
	state := newTestState(t)
	r, store := newTestReconciler(state)
	seedCollection(state, "2020-01-01", "live")

	dir := filepath.Join(state.DataDir(), "pfc")
	require.NoError(t, state.Fs().MkdirAll(dir, 0o755))
	require.NoError(t, writeFile(state, filepath.Join(dir, storage.BlobName), "garbage"))

	require.NoError(t, r.Reconcile(context.Background(), state.Collections, state.DataDir()))

	cached, _, err := store.LoadCollection(dir)
	require.NoError(t, err)
	assert.Equal(t, "live", cached.Description)
}

func TestReconcile_LockContention(t *testing.T) {
	state := newTestState(t)
	store := storage.NewCacheStore(state.Fs(), discardLogger())
	r := NewReconciler(state.Fs(), store, LockPolicy{MaxAttempts: 3, Backoff: time.Millisecond}, metrics.NewNopRecorder(), discardLogger())
	c := seedCollection(state, "2020-01-01", "live")

	state.Collections.Mutex().Lock()
	err := r.Reconcile(context.Background(), state.Collections, state.DataDir())
	state.Collections.Mutex().Unlock()
	assert.True(t, errors.Is(err, entity.ErrLockContended))

	c.Datasets().Mutex().Lock()
	err = r.Reconcile(context.Background(), state.Collections, state.DataDir())
	c.Datasets().Mutex().Unlock()
	assert.True(t, errors.Is(err, entity.ErrLockContended))
}

func writeFile(state *State, path, content string) error {
	f, err := state.Fs().Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(content)
	return err
}
