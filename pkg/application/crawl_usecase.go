package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	"github.com/WangYihang/crcns-mirror/pkg/domain/repository"
	"github.com/WangYihang/crcns-mirror/pkg/domain/service"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/markup"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/metrics"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// CrawlUseCase rebuilds the collection/dataset hierarchy from the
// repository's pages.
type CrawlUseCase struct {
	config CrawlConfig

	// Services
	fetcher service.PageFetcher
	parser  service.MarkupParser

	// Repositories
	seen    repository.SeenFilter
	catalog repository.CatalogWriter

	state    *State
	recorder *metrics.Recorder
	logger   *slog.Logger

	metrics          *entity.Metrics
	metricsLock      sync.RWMutex
	active           sync.Map
	metricsObservers []MetricsObserver
}

// CrawlConfig holds the use case configuration
type CrawlConfig struct {
	SitemapURL         string
	LinkFilter         string
	Selectors          markup.Selectors
	DatasetConcurrency int
	// SeenFile is where the seen-dataset filter is persisted; empty disables persistence
	SeenFile string
}

// MetricsObserver observes metrics changes
type MetricsObserver interface {
	OnMetricsUpdate(metrics *entity.Metrics)
	AddDiscovery(kind, alias string) // Notify when a collection or dataset is added
}

// BranchFailure records why one crawl branch was abandoned
type BranchFailure struct {
	URL    string
	Kind   string // sitemap, collection or dataset
	Reason string // transport or extraction
	Err    error
}

func (f BranchFailure) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", f.Kind, f.URL, f.Reason, f.Err)
}

// CrawlReport summarizes a finished crawl
type CrawlReport struct {
	RunID       string
	Collections int
	Datasets    int
	NewDatasets int
	Failures    []BranchFailure
	Duration    time.Duration
	// Err is set when the sitemap itself could not be read
	Err error
}

// CrawlHandle tracks a running crawl. Waiting on it is optional: results
// land in the shared state as branches finish.
type CrawlHandle struct {
	done   chan struct{}
	report *CrawlReport
}

// Done is closed once every branch has finished
func (h *CrawlHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until every branch has finished and returns the report
func (h *CrawlHandle) Wait() *CrawlReport {
	<-h.done
	return h.report
}

// NewCrawlUseCase creates a new crawl use case
func NewCrawlUseCase(
	config CrawlConfig,
	fetcher service.PageFetcher,
	parser service.MarkupParser,
	seen repository.SeenFilter,
	catalog repository.CatalogWriter,
	state *State,
	recorder *metrics.Recorder,
	logger *slog.Logger,
) *CrawlUseCase {
	if config.DatasetConcurrency <= 0 {
		config.DatasetConcurrency = 1
	}
	return &CrawlUseCase{
		config:           config,
		fetcher:          fetcher,
		parser:           parser,
		seen:             seen,
		catalog:          catalog,
		state:            state,
		recorder:         recorder,
		logger:           logger.With(slog.String("component", "crawler")),
		metrics:          &entity.Metrics{},
		metricsObservers: make([]MetricsObserver, 0),
	}
}

// RegisterMetricsObserver registers a metrics observer
func (uc *CrawlUseCase) RegisterMetricsObserver(observer MetricsObserver) {
	uc.metricsObservers = append(uc.metricsObservers, observer)
}

// notifyMetricsObservers notifies all registered observers
func (uc *CrawlUseCase) notifyMetricsObservers() {
	metrics := uc.GetMetrics()
	for _, observer := range uc.metricsObservers {
		observer.OnMetricsUpdate(metrics)
	}
}

// Crawl starts a crawl and returns immediately
func (uc *CrawlUseCase) Crawl(ctx context.Context) *CrawlHandle {
	handle := &CrawlHandle{
		done:   make(chan struct{}),
		report: &CrawlReport{RunID: uuid.NewString()},
	}

	uc.metricsLock.Lock()
	*uc.metrics = entity.Metrics{RunID: handle.report.RunID, StartTime: time.Now()}
	uc.metricsLock.Unlock()

	go func() {
		defer close(handle.done)

		tickerCtx, stop := context.WithCancel(ctx)
		go uc.updateMetricsPeriodically(tickerCtx)

		uc.run(ctx, handle.report)

		stop()
		uc.notifyMetricsObservers()
	}()
	return handle
}

// Execute runs a crawl to completion. The returned error is only set when
// the sitemap could not be read; branch failures are in the report.
func (uc *CrawlUseCase) Execute(ctx context.Context) (*CrawlReport, error) {
	report := uc.Crawl(ctx).Wait()
	return report, report.Err
}

func (uc *CrawlUseCase) run(ctx context.Context, report *CrawlReport) {
	start := time.Now()
	logger := uc.logger.With(slog.String("run", report.RunID))
	logger.Info("crawl started", slog.String("sitemap", uc.config.SitemapURL))

	_, doc, err := uc.fetchPage(ctx, "sitemap", uc.config.SitemapURL)
	if err != nil {
		report.Err = err
		report.Failures = append(report.Failures, *err)
		logger.Error("sitemap unavailable", slog.Any("error", err))
		return
	}

	urls := HarvestLinks(doc.Links(), uc.config.LinkFilter)
	collectionURLs, datasetURLs := Partition(urls)
	logger.Info("sitemap harvested",
		slog.Int("links", len(urls)),
		slog.Int("collections", len(collectionURLs)),
		slog.Int("datasets", len(datasetURLs)),
	)

	var (
		collections errgroup.Group
		datasets    errgroup.Group
		mu          sync.Mutex
	)
	datasets.SetLimit(uc.config.DatasetConcurrency)

	fail := func(f BranchFailure) {
		mu.Lock()
		report.Failures = append(report.Failures, f)
		mu.Unlock()
		if f.Reason == "extraction" {
			atomic.AddInt64(&uc.metrics.ExtractErrors, 1)
		} else {
			atomic.AddInt64(&uc.metrics.FetchErrors, 1)
		}
		uc.recorder.FetchErrors.WithLabelValues(f.Kind, f.Reason).Inc()
		logger.Warn("branch failed",
			slog.String("kind", f.Kind),
			slog.String("url", f.URL),
			slog.String("reason", f.Reason),
			slog.Any("error", f.Err),
		)
	}
	var newDatasets atomic.Int64

	for _, cu := range collectionURLs {
		children := DatasetsOf(cu, datasetURLs)
		uc.spawned()
		collections.Go(func() error {
			defer uc.finish()
			b := &branch{uc: uc, logger: logger, fail: fail, newDatasets: &newDatasets}
			b.crawlCollection(ctx, cu, children, &datasets)
			return nil
		})
	}

	// Collection tasks spawn every dataset task before returning, so the
	// dataset group is complete once the collection group is.
	collections.Wait()
	datasets.Wait()

	if uc.config.SeenFile != "" {
		if err := uc.seen.Save(uc.config.SeenFile); err != nil {
			logger.Warn("failed to save seen filter", slog.Any("error", err))
		}
	}

	report.Collections = uc.state.Collections.Len()
	for _, c := range uc.state.Collections.Snapshot() {
		report.Datasets += c.Datasets().Len()
	}
	report.NewDatasets = int(newDatasets.Load())
	report.Duration = time.Since(start)
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].URL < report.Failures[j].URL
	})
	uc.recorder.CrawlDurations.Observe(report.Duration.Seconds())

	logger.Info("crawl finished",
		slog.Int("collections", report.Collections),
		slog.Int("datasets", report.Datasets),
		slog.Int("new_datasets", report.NewDatasets),
		slog.Int("failures", len(report.Failures)),
		slog.Duration("elapsed", report.Duration),
	)
}

// fetchPage fetches and parses one page, classifying failures
func (uc *CrawlUseCase) fetchPage(ctx context.Context, kind, rawURL string) (string, service.Document, *BranchFailure) {
	uc.active.Store(rawURL, struct{}{})
	defer uc.active.Delete(rawURL)

	resp, err := uc.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return "", nil, &BranchFailure{URL: rawURL, Kind: kind, Reason: "transport", Err: err}
	}
	atomic.AddInt64(&uc.metrics.PagesFetched, 1)
	uc.recorder.PagesFetched.WithLabelValues(kind).Inc()

	doc, err := uc.parser.Parse(resp.Body)
	if err != nil {
		return "", nil, &BranchFailure{URL: rawURL, Kind: kind, Reason: "extraction", Err: err}
	}
	return resp.Body, doc, nil
}

func (uc *CrawlUseCase) spawned() {
	atomic.AddInt64(&uc.metrics.TasksSpawned, 1)
}

func (uc *CrawlUseCase) finish() {
	atomic.AddInt64(&uc.metrics.TasksDone, 1)
}

// updateMetricsPeriodically periodically updates and notifies observers
func (uc *CrawlUseCase) updateMetricsPeriodically(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			uc.notifyMetricsObservers()
		}
	}
}

// GetMetrics returns the current metrics
func (uc *CrawlUseCase) GetMetrics() *entity.Metrics {
	uc.metricsLock.RLock()
	defer uc.metricsLock.RUnlock()

	m := entity.Metrics{
		RunID:            uc.metrics.RunID,
		PagesFetched:     atomic.LoadInt64(&uc.metrics.PagesFetched),
		FetchErrors:      atomic.LoadInt64(&uc.metrics.FetchErrors),
		ExtractErrors:    atomic.LoadInt64(&uc.metrics.ExtractErrors),
		CollectionsFound: atomic.LoadInt64(&uc.metrics.CollectionsFound),
		DatasetsFound:    atomic.LoadInt64(&uc.metrics.DatasetsFound),
		NewDatasets:      atomic.LoadInt64(&uc.metrics.NewDatasets),
		TasksSpawned:     atomic.LoadInt64(&uc.metrics.TasksSpawned),
		TasksDone:        atomic.LoadInt64(&uc.metrics.TasksDone),
		StartTime:        uc.metrics.StartTime,
		LastUpdateTime:   time.Now(),
	}
	uc.active.Range(func(k, _ any) bool {
		m.ActiveURLs = append(m.ActiveURLs, k.(string))
		return true
	})
	sort.Strings(m.ActiveURLs)
	return &m
}

// notifyDiscovery tells observers about a new entry
func (uc *CrawlUseCase) notifyDiscovery(kind string, u *url.URL, alias string) {
	uc.recorder.Discovered.WithLabelValues(kind).Inc()
	for _, observer := range uc.metricsObservers {
		observer.AddDiscovery(kind, alias)
	}
	uc.logger.Debug("discovered", slog.String("kind", kind), slog.String("alias", alias), slog.String("url", u.String()))
}
