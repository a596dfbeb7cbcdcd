package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"

	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	"github.com/WangYihang/crcns-mirror/pkg/domain/repository"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/metrics"
	"github.com/spf13/afero"
)

// Reconciler merges the in-memory hierarchy with the on-disk cache. For
// every entry the newer side wins; on a tie the cache wins.
type Reconciler struct {
	fs       afero.Fs
	store    repository.CacheStore
	policy   LockPolicy
	recorder *metrics.Recorder
	logger   *slog.Logger
}

// NewReconciler creates a reconciler
func NewReconciler(fs afero.Fs, store repository.CacheStore, policy LockPolicy, recorder *metrics.Recorder, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		fs:       fs,
		store:    store,
		policy:   policy,
		recorder: recorder,
		logger:   logger.With(slog.String("component", "reconciler")),
	}
}

// Reconcile walks every collection and dataset of collections against the
// cache rooted at root. Write failures are collected and returned together;
// lock contention aborts the walk.
func (r *Reconciler) Reconcile(ctx context.Context, collections *entity.CollectionList, root string) error {
	if err := lockWithRetry(ctx, collections.Mutex(), r.policy, "collections"); err != nil {
		return err
	}
	snapshot := append([]*entity.Collection(nil), collections.ItemsLocked()...)
	collections.Mutex().Unlock()

	var errs []error
	for _, c := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.reconcileCollection(ctx, collections, c, root); err != nil {
			if errors.Is(err, entity.ErrLockContended) {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Reconciler) reconcileCollection(ctx context.Context, collections *entity.CollectionList, c *entity.Collection, root string) error {
	if err := lockWithRetry(ctx, collections.Mutex(), r.policy, "collections"); err != nil {
		return err
	}
	live := c.Entry
	collections.Mutex().Unlock()

	dir := filepath.Join(root, live.Alias)
	if err := r.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	var errs []error
	cacheWins := false
	if r.store.Exists(dir) {
		cached, result, _ := r.store.LoadCollection(dir)
		r.recorder.CacheLoads.WithLabelValues(result.String()).Inc()
		if result == repository.Loaded && entity.CompareTimestamps(live.LastModified, cached.LastModified) <= 0 {
			cacheWins = true
			if err := lockWithRetry(ctx, collections.Mutex(), r.policy, "collections"); err != nil {
				return err
			}
			c.ReplaceContent(cached)
			collections.Mutex().Unlock()
		}
	}
	if cacheWins {
		r.decided("collection", "cache", live.Alias)
	} else {
		if err := r.store.SaveCollection(c, dir); err != nil {
			errs = append(errs, err)
		}
		r.decided("collection", "memory", live.Alias)
	}

	if err := r.reconcileDatasets(ctx, c, root); err != nil {
		if errors.Is(err, entity.ErrLockContended) {
			return err
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Reconciler) reconcileDatasets(ctx context.Context, c *entity.Collection, root string) error {
	list := c.Datasets()
	if err := lockWithRetry(ctx, list.Mutex(), r.policy, "datasets of "+c.Alias); err != nil {
		return err
	}
	defer list.Mutex().Unlock()

	var errs []error
	for _, d := range list.ItemsLocked() {
		dir := datasetDir(root, c.Alias, d)
		if err := r.fs.MkdirAll(dir, 0o755); err != nil {
			errs = append(errs, fmt.Errorf("create %s: %w", dir, err))
			continue
		}

		if r.store.Exists(dir) {
			cached, result, _ := r.store.LoadDataset(dir)
			r.recorder.CacheLoads.WithLabelValues(result.String()).Inc()
			if result == repository.Loaded && entity.CompareTimestamps(d.LastModified, cached.LastModified) <= 0 {
				*d = *cached
				r.decided("dataset", "cache", d.Alias)
				continue
			}
		}
		if err := r.store.SaveDataset(d, dir); err != nil {
			errs = append(errs, err)
			continue
		}
		r.decided("dataset", "memory", d.Alias)
	}
	return errors.Join(errs...)
}

func (r *Reconciler) decided(kind, winner, alias string) {
	r.recorder.Reconciled.WithLabelValues(kind, winner).Inc()
	r.logger.Debug("reconciled", slog.String("kind", kind), slog.String("alias", alias), slog.String("winner", winner))
}

// datasetDir places a dataset by its URL path, falling back to
// root/collection/alias when the dataset has no usable URL.
func datasetDir(root, collection string, d *entity.Dataset) string {
	if u, err := url.Parse(d.SourceURL); err == nil && d.SourceURL != "" {
		return entity.DatasetDir(root, u)
	}
	return filepath.Join(root, collection, d.Alias)
}
