package application

import (
	"context"
	"sync"
	"testing"

	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/markup"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/metrics"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sitemapURL = "https://crcns.org/sitemap"
	base       = "https://crcns.org/data-sets/"
)

func collectionPage(title, modified string) string {
	return `<html><body><h1 id="parent-fieldname-title">` + title + `</h1>
<span class="documentModified">` + modified + `</span></body></html>`
}

func datasetPage(description, content string) string {
	return `<html><body><div class="documentDescription">` + description + `</div>
<div id="content"><p>` + content + `</p></div></body></html>`
}

func testPages() map[string]string {
	return map[string]string{
		sitemapURL: `<html><body>
<a href="` + base + `pfc">pfc</a>
<a href="` + base + `pfc/pfc-1">pfc-1</a>
<a href="` + base + `pfc/pfc-2">pfc-2</a>
<a href="` + base + `pfc/pfc-2">pfc-2 again</a>
<a href="` + base + `hc">hc</a>
<a href="` + base + `hc/hc-3">hc-3</a>
<a href="` + base + `vc">vc</a>
<a href="` + base + `vc/pvc-1">pvc-1</a>
<a href="https://crcns.org/about">about</a>
</body></html>`,
		base + "pfc":       collectionPage("PFC", "2014-07-08"),
		base + "pfc/pfc-1": datasetPage("Rat mPFC", "Spikes"),
		base + "pfc/pfc-2": `<html><body>no description here</body></html>`,
		base + "hc":        collectionPage("Hippocampus", "2015-01-01"),
		base + "hc/hc-3":   datasetPage("CA1 recordings", "LFP"),
		// vc is unreachable, so pvc-1 is never fetched
	}
}

type recordingObserver struct {
	mu          sync.Mutex
	discoveries []string
	updates     int
}

func (o *recordingObserver) OnMetricsUpdate(*entity.Metrics) {
	o.mu.Lock()
	o.updates++
	o.mu.Unlock()
}

func (o *recordingObserver) AddDiscovery(kind, alias string) {
	o.mu.Lock()
	o.discoveries = append(o.discoveries, kind+":"+alias)
	o.mu.Unlock()
}

func newTestCrawler(t *testing.T, state *State, fetcher *pageFetcher, seen *storage.BloomFilter) *CrawlUseCase {
	t.Helper()
	return NewCrawlUseCase(
		CrawlConfig{
			SitemapURL:         sitemapURL,
			LinkFilter:         "/data-sets/",
			Selectors:          markup.DefaultSelectors(),
			DatasetConcurrency: 2,
			SeenFile:           "/work/data/seen.bloom",
		},
		fetcher,
		markup.NewParser(),
		seen,
		storage.NopCatalogWriter{},
		state,
		metrics.NewNopRecorder(),
		discardLogger(),
	)
}

func TestCrawl_BuildsHierarchy(t *testing.T) {
	state := newTestState(t)
	fetcher := &pageFetcher{pages: testPages()}
	seen := storage.NewBloomFilter(state.Fs(), storage.Config{Size: 1000, FalsePositiveRate: 0.001})
	uc := newTestCrawler(t, state, fetcher, seen)
	observer := &recordingObserver{}
	uc.RegisterMetricsObserver(observer)

	report, err := uc.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Collections)
	assert.Equal(t, 2, report.Datasets)
	assert.Equal(t, 2, report.NewDatasets)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, base+"pfc/pfc-2", report.Failures[0].URL)
	assert.Equal(t, "extraction", report.Failures[0].Reason)
	assert.Equal(t, base+"vc", report.Failures[1].URL)
	assert.Equal(t, "transport", report.Failures[1].Reason)

	pfc, ok := state.Collections.Find("pfc")
	require.True(t, ok)
	assert.Equal(t, "PFC", pfc.Description)
	assert.Equal(t, "2014-07-08", pfc.LastModified)
	assert.NotEmpty(t, pfc.RawMarkup)

	datasets := pfc.Datasets().Snapshot()
	require.Len(t, datasets, 1)
	assert.Equal(t, "pfc-1", datasets[0].Alias)
	assert.Equal(t, "Rat mPFC", datasets[0].Description)
	assert.Equal(t, "Spikes", datasets[0].Content)
	_, parsed := entity.ParseTimestamp(datasets[0].LastModified)
	assert.True(t, parsed)

	hc, ok := state.Collections.Find("hc")
	require.True(t, ok)
	assert.Equal(t, 1, hc.Datasets().Len())

	_, ok = state.Collections.Find("vc")
	assert.False(t, ok)
	for _, call := range fetcher.calls {
		assert.NotEqual(t, base+"vc/pvc-1", call)
	}

	assert.Contains(t, observer.discoveries, "collection:pfc")
	assert.Contains(t, observer.discoveries, "dataset:hc-3")
	assert.Positive(t, observer.updates)

	m := uc.GetMetrics()
	assert.Equal(t, report.RunID, m.RunID)
	assert.Equal(t, int64(1), m.ExtractErrors)
	assert.Equal(t, int64(1), m.FetchErrors)
	assert.Equal(t, m.TasksSpawned, m.TasksDone)
}

func TestCrawl_RecrawlKeepsAliasesUnique(t *testing.T) {
	state := newTestState(t)
	fetcher := &pageFetcher{pages: testPages()}
	seen := storage.NewBloomFilter(state.Fs(), storage.Config{Size: 1000, FalsePositiveRate: 0.001})

	first := newTestCrawler(t, state, fetcher, seen).Crawl(context.Background())
	second := newTestCrawler(t, state, fetcher, seen).Crawl(context.Background())
	first.Wait()
	report := second.Wait()

	assert.Equal(t, 2, state.Collections.Len())
	assert.Equal(t, 2, report.Datasets)

	aliases := map[string]bool{}
	for _, c := range state.Collections.Snapshot() {
		assert.False(t, aliases[c.Alias], "duplicate collection %s", c.Alias)
		aliases[c.Alias] = true
		seenDS := map[string]bool{}
		for _, d := range c.Datasets().Snapshot() {
			assert.False(t, seenDS[d.Alias], "duplicate dataset %s", d.Alias)
			seenDS[d.Alias] = true
		}
	}

	// The filter was persisted, so a fresh run finds nothing new.
	reloaded := storage.NewBloomFilter(state.Fs(), storage.Config{Size: 1000, FalsePositiveRate: 0.001})
	require.NoError(t, reloaded.Load("/work/data/seen.bloom"))
	third, err := newTestCrawler(t, state, fetcher, reloaded).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, third.NewDatasets)
}

func TestCrawl_SitemapFailure(t *testing.T) {
	state := newTestState(t)
	uc := newTestCrawler(t, state, &pageFetcher{pages: map[string]string{}},
		storage.NewBloomFilter(afero.NewMemMapFs(), storage.Config{Size: 10, FalsePositiveRate: 0.01}))

	report, err := uc.Execute(context.Background())
	require.Error(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "sitemap", report.Failures[0].Kind)
	assert.Equal(t, 0, state.Collections.Len())
}
