package application

import (
	"context"
	"testing"

	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/metrics"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleKeyFor(name string) entity.AcquisitionKey {
	return entity.AcquisitionKey{Collection: "pfc", Dataset: "pfc-1", Filename: name}
}

func TestLoader_LoadPersisted(t *testing.T) {
	state := newTestState(t)
	r, _ := newTestReconciler(state)
	seedCollection(state, "2023-01-01", "cached")
	require.NoError(t, r.Reconcile(context.Background(), state.Collections, state.DataDir()))

	// A directory without a blob and a stray file are ignored.
	require.NoError(t, state.Fs().MkdirAll(state.DataDir()+"/empty", 0o755))
	require.NoError(t, writeFile(state, state.DataDir()+"/seen.bloom", "x"))

	fresh, err := NewState(state.Fs(), state.WorkingDir())
	require.NoError(t, err)
	loader := NewLoader(storage.NewCacheStore(fresh.Fs(), discardLogger()), fresh, metrics.NewNopRecorder(), discardLogger())

	collections, datasets, err := loader.LoadPersisted()
	require.NoError(t, err)
	assert.Equal(t, 1, collections)
	assert.Equal(t, 1, datasets)

	c, ok := fresh.Collections.Find("pfc")
	require.True(t, ok)
	assert.Equal(t, "cached", c.Description)
	d, ok := c.Datasets().Find("pfc-1")
	require.True(t, ok)
	assert.Equal(t, "cached", d.Content)

	// Loading twice does not duplicate entries.
	collections, datasets, err = loader.LoadPersisted()
	require.NoError(t, err)
	assert.Zero(t, collections)
	assert.Zero(t, datasets)
	assert.Equal(t, 1, fresh.Collections.Len())
}
