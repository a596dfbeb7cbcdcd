package application

import (
	"context"
	"log/slog"
	"net/url"
	"sync/atomic"

	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	"golang.org/x/sync/errgroup"
)

// branch runs the tasks spawned for one collection of a crawl
type branch struct {
	uc          *CrawlUseCase
	logger      *slog.Logger
	fail        func(BranchFailure)
	newDatasets *atomic.Int64
}

// crawlCollection extracts the collection at u, spawns one task per child
// dataset URL and then publishes the collection.
func (b *branch) crawlCollection(ctx context.Context, u *url.URL, children []*url.URL, datasets *errgroup.Group) {
	fresh, failure := b.extractCollection(ctx, u)
	if failure != nil {
		b.fail(*failure)
		return
	}

	// A collection already in memory, from the cache or an earlier crawl,
	// keeps its identity and dataset list.
	target := fresh
	existing, known := b.uc.state.Collections.Refresh(fresh)
	if known {
		target = existing
	}

	alias, list := fresh.Alias, target.Datasets()
	for _, du := range children {
		b.uc.spawned()
		datasets.Go(func() error {
			defer b.uc.finish()
			b.crawlDataset(ctx, alias, list, du)
			return nil
		})
	}

	if !known && b.uc.state.Collections.Add(target) {
		atomic.AddInt64(&b.uc.metrics.CollectionsFound, 1)
		b.uc.notifyDiscovery("collection", u, alias)
	}
	if err := b.uc.catalog.WriteCollection(fresh); err != nil {
		b.logger.Warn("failed to write catalog record", slog.Any("error", err))
	}
}

// crawlDataset extracts the dataset at u and adds it to the dataset list
// of the collection named collection.
func (b *branch) crawlDataset(ctx context.Context, collection string, list *entity.DatasetList, u *url.URL) {
	if ctx.Err() != nil {
		b.fail(BranchFailure{URL: u.String(), Kind: "dataset", Reason: "transport", Err: ctx.Err()})
		return
	}

	d, failure := b.extractDataset(ctx, u)
	if failure != nil {
		b.fail(*failure)
		return
	}

	if list.Upsert(d) {
		atomic.AddInt64(&b.uc.metrics.DatasetsFound, 1)
		b.uc.notifyDiscovery("dataset", u, d.Alias)
	}
	if !b.uc.seen.TestAndAdd(u.String()) {
		b.newDatasets.Add(1)
		atomic.AddInt64(&b.uc.metrics.NewDatasets, 1)
	}
	if err := b.uc.catalog.WriteDataset(collection, d); err != nil {
		b.logger.Warn("failed to write catalog record", slog.Any("error", err))
	}
}

func (b *branch) extractCollection(ctx context.Context, u *url.URL) (*entity.Collection, *BranchFailure) {
	raw := u.String()
	resp, doc, failure := b.uc.fetchPage(ctx, "collection", raw)
	if failure != nil {
		return nil, failure
	}

	sel := b.uc.config.Selectors
	title, err := doc.Text(sel.CollectionTitle)
	if err != nil {
		return nil, &BranchFailure{URL: raw, Kind: "collection", Reason: "extraction", Err: err}
	}
	modified, err := doc.Text(sel.CollectionModified)
	if err != nil {
		return nil, &BranchFailure{URL: raw, Kind: "collection", Reason: "extraction", Err: err}
	}

	return entity.NewCollection(entity.Entry{
		SourceURL:    raw,
		RawMarkup:    resp,
		Alias:        entity.CollectionAlias(u),
		Description:  title,
		LastModified: modified,
	}), nil
}

func (b *branch) extractDataset(ctx context.Context, u *url.URL) (*entity.Dataset, *BranchFailure) {
	raw := u.String()
	resp, doc, failure := b.uc.fetchPage(ctx, "dataset", raw)
	if failure != nil {
		return nil, failure
	}

	sel := b.uc.config.Selectors
	description, err := doc.Text(sel.DatasetDescription)
	if err != nil {
		return nil, &BranchFailure{URL: raw, Kind: "dataset", Reason: "extraction", Err: err}
	}
	content, err := doc.Text(sel.DatasetContent)
	if err != nil {
		return nil, &BranchFailure{URL: raw, Kind: "dataset", Reason: "extraction", Err: err}
	}

	return &entity.Dataset{
		Entry: entity.Entry{
			SourceURL:    raw,
			RawMarkup:    resp,
			Alias:        entity.DatasetAlias(u),
			Description:  description,
			LastModified: entity.Now(),
		},
		Content: content,
	}, nil
}
