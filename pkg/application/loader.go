package application

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/WangYihang/crcns-mirror/pkg/domain/repository"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/metrics"
	"github.com/spf13/afero"
)

// Loader rebuilds the hierarchy from the cache alone
type Loader struct {
	store    repository.CacheStore
	state    *State
	recorder *metrics.Recorder
	logger   *slog.Logger
}

// NewLoader creates a loader
func NewLoader(store repository.CacheStore, state *State, recorder *metrics.Recorder, logger *slog.Logger) *Loader {
	return &Loader{
		store:    store,
		state:    state,
		recorder: recorder,
		logger:   logger.With(slog.String("component", "loader")),
	}
}

// LoadPersisted adds every cached collection under the data directory,
// with the datasets cached in its subdirectories, to the state. Unreadable
// blobs are skipped.
func (l *Loader) LoadPersisted() (int, int, error) {
	root := l.state.DataDir()
	fs := l.state.Fs()

	entries, err := afero.ReadDir(fs, root)
	if err != nil {
		return 0, 0, fmt.Errorf("read %s: %w", root, err)
	}

	var numCollections, numDatasets int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if !l.store.Exists(dir) {
			continue
		}
		c, result, _ := l.store.LoadCollection(dir)
		l.recorder.CacheLoads.WithLabelValues(result.String()).Inc()
		if result != repository.Loaded {
			continue
		}

		target := c
		if existing, ok := l.state.Collections.Find(c.Alias); ok {
			target = existing
		} else if l.state.Collections.Add(c) {
			numCollections++
		}

		children, err := afero.ReadDir(fs, dir)
		if err != nil {
			l.logger.Warn("unreadable collection directory", slog.String("dir", dir), slog.Any("error", err))
			continue
		}
		for _, child := range children {
			if !child.IsDir() {
				continue
			}
			dsDir := filepath.Join(dir, child.Name())
			if !l.store.Exists(dsDir) {
				continue
			}
			d, result, _ := l.store.LoadDataset(dsDir)
			l.recorder.CacheLoads.WithLabelValues(result.String()).Inc()
			if result != repository.Loaded {
				continue
			}
			if target.Datasets().Add(d) {
				numDatasets++
			}
		}
	}

	l.logger.Info("cache loaded",
		slog.Int("collections", numCollections),
		slog.Int("datasets", numDatasets),
	)
	return numCollections, numDatasets, nil
}
