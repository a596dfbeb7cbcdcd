package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crcns_mirror"

// Recorder exposes crawl and transfer counters to Prometheus
type Recorder struct {
	PagesFetched   *prometheus.CounterVec
	FetchErrors    *prometheus.CounterVec
	Discovered     *prometheus.CounterVec
	CacheLoads     *prometheus.CounterVec
	Reconciled     *prometheus.CounterVec
	Acquisitions   *prometheus.CounterVec
	BytesAcquired  prometheus.Counter
	ManifestSkips  *prometheus.CounterVec
	CrawlDurations prometheus.Histogram
}

// NewRecorder registers every collector on reg
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		PagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Markup pages fetched, by page kind.",
		}, []string{"kind"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "branch_failures_total",
			Help:      "Crawl branches aborted, by page kind and failure kind.",
		}, []string{"kind", "reason"}),
		Discovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_discovered_total",
			Help:      "Collections and datasets added to the hierarchy.",
		}, []string{"kind"}),
		CacheLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_loads_total",
			Help:      "Cache reads by outcome.",
		}, []string{"outcome"}),
		Reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_total",
			Help:      "Reconciliation decisions by entry kind and winner.",
		}, []string{"kind", "winner"}),
		Acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisitions_total",
			Help:      "File acquisitions by status.",
		}, []string{"status"}),
		BytesAcquired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquired_bytes_total",
			Help:      "Bytes written by file acquisitions.",
		}),
		ManifestSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manifest_lines_skipped_total",
			Help:      "Malformed manifest lines skipped, by file.",
		}, []string{"file"}),
		CrawlDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crawl_duration_seconds",
			Help:      "Wall time of complete crawl runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}

	reg.MustRegister(
		r.PagesFetched,
		r.FetchErrors,
		r.Discovered,
		r.CacheLoads,
		r.Reconciled,
		r.Acquisitions,
		r.BytesAcquired,
		r.ManifestSkips,
		r.CrawlDurations,
	)
	return r
}

// NewNopRecorder returns a recorder bound to a private registry
func NewNopRecorder() *Recorder {
	return NewRecorder(prometheus.NewRegistry())
}

// Exporter serves /metrics for a gatherer
type Exporter struct {
	server *http.Server
}

// NewExporter creates an exporter listening on addr, e.g. ":2112"
func NewExporter(addr string, gatherer prometheus.Gatherer) *Exporter {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &Exporter{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Serve blocks until the exporter is closed
func (e *Exporter) Serve() error {
	if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops the exporter
func (e *Exporter) Close() error {
	return e.server.Close()
}

// Handler returns the metrics handler, for tests and embedding
func (e *Exporter) Handler() http.Handler {
	return e.server.Handler
}
