package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/WangYihang/crcns-mirror/pkg/application"
	"github.com/WangYihang/crcns-mirror/pkg/config"
	"github.com/WangYihang/crcns-mirror/pkg/domain/repository"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/http"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/manifest"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/markup"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/metrics"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/storage"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
)

// Environment variables carrying the download credentials
const (
	EnvUsername = "CRCNS_USERNAME"
	EnvPassword = "CRCNS_PASSWORD"
)

// App bundles the assembled components
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	State    *application.State
	Registry *prometheus.Registry
	Recorder *metrics.Recorder
	Store    *storage.CacheStore
	Seen     *storage.BloomFilter

	Loader     *application.Loader
	Reconciler *application.Reconciler
	Acquirer   *application.Acquirer
	Manifests  *application.ManifestResolver

	closers []io.Closer
}

// Close releases files opened during assembly
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

// SeenFile is where the seen-dataset filter is persisted
func (a *App) SeenFile() string {
	return filepath.Join(a.State.DataDir(), a.Config.Dedup.BloomFilterFile)
}

// Assembler assembles all components for the application
type Assembler struct {
	options *Options
	fs      afero.Fs
	stderr  io.Writer
}

// NewAssembler creates a new assembler working on the OS filesystem
func NewAssembler(options *Options) *Assembler {
	return &Assembler{options: options, fs: afero.NewOsFs(), stderr: os.Stderr}
}

// WithFs replaces the filesystem, for tests
func (a *Assembler) WithFs(fs afero.Fs) *Assembler {
	a.fs = fs
	return a
}

// Assemble wires every component except the crawler
func (a *Assembler) Assemble() (*App, error) {
	if err := a.options.Validate(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(a.options.ConfigFile)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg}
	logger, err := a.newLogger(app)
	if err != nil {
		return nil, err
	}
	app.Logger = logger

	workDir, err := filepath.Abs(a.options.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	state, err := application.NewState(a.fs, workDir)
	if err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	app.State = state

	app.Registry = prometheus.NewRegistry()
	app.Recorder = metrics.NewRecorder(app.Registry)
	app.Store = storage.NewCacheStore(a.fs, logger)

	app.Seen = storage.NewBloomFilter(a.fs, storage.Config{
		Size:              cfg.Dedup.BloomFilterSize,
		FalsePositiveRate: cfg.Dedup.BloomFilterFalsePositive,
	})
	if err := app.Seen.Load(app.SeenFile()); err != nil {
		logger.Warn("failed to load seen filter", slog.String("file", app.SeenFile()), slog.Any("error", err))
	}

	fileFetcher := http.NewFileFetcher(http.FileFetcherConfig{
		Endpoint:    cfg.Repository.DownloadEndpoint,
		Credentials: a.credentials(logger),
		UserAgent:   cfg.HTTP.UserAgent,
		Timeout:     cfg.HTTP.Timeout,
	})

	app.Loader = application.NewLoader(app.Store, state, app.Recorder, logger)
	app.Reconciler = application.NewReconciler(a.fs, app.Store, application.DefaultLockPolicy, app.Recorder, logger)
	app.Acquirer = application.NewAcquirer(fileFetcher, state, app.Recorder, logger)
	app.Manifests = application.NewManifestResolver(app.Acquirer, state, manifest.JoinMode(a.options.JoinMode), app.Recorder, logger)
	return app, nil
}

// AssembleCrawl wires a crawler writing catalog records to catalog
func (a *Assembler) AssembleCrawl(app *App, catalog repository.CatalogWriter, concurrency int) *application.CrawlUseCase {
	cfg := app.Config
	if concurrency <= 0 {
		concurrency = cfg.Crawl.DatasetConcurrency
	}

	fetcher := http.NewFetcher(http.Config{
		Timeout:           cfg.HTTP.Timeout,
		MaxResponseSize:   cfg.HTTP.MaxResponseSize,
		UserAgent:         cfg.HTTP.UserAgent,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
	})

	return application.NewCrawlUseCase(
		application.CrawlConfig{
			SitemapURL:         cfg.Repository.SitemapURL,
			LinkFilter:         cfg.Repository.LinkFilter,
			Selectors:          cfg.Selectors,
			DatasetConcurrency: concurrency,
			SeenFile:           app.SeenFile(),
		},
		fetcher,
		markup.NewParser(),
		app.Seen,
		catalog,
		app.State,
		app.Recorder,
		app.Logger,
	)
}

// credentials reads the download credentials from the environment after
// loading the dotenv file, if there is one. Variables already set win.
func (a *Assembler) credentials(logger *slog.Logger) http.Credentials {
	if a.options.EnvFile != "" {
		if err := godotenv.Load(a.options.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to load env file", slog.String("file", a.options.EnvFile), slog.Any("error", err))
		}
	}
	return http.Credentials{
		Username: os.Getenv(EnvUsername),
		Password: os.Getenv(EnvPassword),
	}
}

func (a *Assembler) newLogger(app *App) (*slog.Logger, error) {
	out := a.stderr
	if a.options.LogFile != "" {
		f, err := os.OpenFile(a.options.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		app.closers = append(app.closers, f)
		out = f
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: a.options.Level()})), nil
}
