package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/WangYihang/crcns-mirror/pkg/application"
	"github.com/WangYihang/crcns-mirror/pkg/common"
	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	"github.com/WangYihang/crcns-mirror/pkg/domain/repository"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/markup"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/metrics"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/storage"
	"github.com/WangYihang/crcns-mirror/pkg/interface/presenter"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jessevdk/go-flags"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// runtime is shared by every command of one invocation
type runtime struct {
	ctx    context.Context
	opts   *Options
	stdout io.Writer
	stderr io.Writer
	fs     afero.Fs
}

// NewParser builds the command line parser. Commands run inside
// ParseArgs and observe ctx for cancellation.
func NewParser(ctx context.Context, stdout, stderr io.Writer) *flags.Parser {
	opts := &Options{}
	rt := &runtime{ctx: ctx, opts: opts, stdout: stdout, stderr: stderr}

	parser := flags.NewParser(opts, flags.Default)
	parser.Usage = "[OPTIONS] <command>"

	commands := []struct {
		name, short, long string
		data              any
	}{
		{"crawl", "Crawl the repository catalog", "Crawl the sitemap, every collection and every dataset page, then reconcile the result with the local cache.", &CrawlCommand{rt: rt}},
		{"load", "Load the cached catalog", "Rebuild the catalog from the local cache without network access.", &LoadCommand{rt: rt}},
		{"collections", "List collections", "List the cached collections.", &CollectionsCommand{rt: rt}},
		{"datasets", "List the datasets of a collection", "List the cached datasets of one collection.", &DatasetsCommand{rt: rt}},
		{"show", "Show a dataset description", "Render the content of a dataset page as Markdown.", &ShowCommand{rt: rt}},
		{"files", "List the files of a dataset", "Fetch the file listing and checksums of a dataset and list its files.", &FilesCommand{rt: rt}},
		{"get", "Download dataset files", "Download files of a dataset into the mirror tree. Files already present are skipped.", &GetCommand{rt: rt}},
		{"verify", "Verify downloaded files", "Compare sizes and MD5 checksums of downloaded files with the published ones.", &VerifyCommand{rt: rt}},
		{"version", "Print version", "Print version information.", &VersionCommand{rt: rt}},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, c.long, c.data); err != nil {
			panic(fmt.Sprintf("register command %s: %v", c.name, err))
		}
	}
	return parser
}

// assemble wires the application and starts the metrics exporter if asked
func (rt *runtime) assemble() (*App, *Assembler, error) {
	asm := NewAssembler(rt.opts)
	asm.stderr = rt.stderr
	if rt.fs != nil {
		asm.WithFs(rt.fs)
	}

	app, err := asm.Assemble()
	if err != nil {
		return nil, nil, err
	}

	if rt.opts.MetricsAddr != "" {
		exporter := metrics.NewExporter(rt.opts.MetricsAddr, app.Registry)
		go func() {
			if err := exporter.Serve(); err != nil {
				app.Logger.Error("metrics exporter stopped", slog.Any("error", err))
			}
		}()
		app.closers = append(app.closers, exporter)
	}
	return app, asm, nil
}

// loadCached assembles the application and loads the cached catalog
func (rt *runtime) loadCached() (*App, error) {
	app, _, err := rt.assemble()
	if err != nil {
		return nil, err
	}
	if _, _, err := app.Loader.LoadPersisted(); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// DatasetArgs names a dataset
type DatasetArgs struct {
	Collection string `positional-arg-name:"collection" description:"Collection alias, e.g. pfc"`
	Dataset    string `positional-arg-name:"dataset" description:"Dataset alias, e.g. pfc-1"`
}

// CrawlCommand crawls the repository
type CrawlCommand struct {
	Output      string `short:"o" long:"output" description:"Catalog JSON lines file, empty to disable" default:"catalog.jsonl"`
	Concurrency int    `long:"concurrency" description:"Concurrent dataset page fetches, 0 uses the profile value"`
	Dashboard   bool   `long:"dashboard" description:"Show interactive TUI dashboard"`
	Load        bool   `long:"load" description:"Load the cached catalog before crawling"`

	rt *runtime
}

// Execute implements flags.Commander
func (c *CrawlCommand) Execute([]string) error {
	if c.Dashboard && c.rt.opts.LogFile == "" {
		c.rt.opts.LogFile = filepath.Join(c.rt.opts.WorkDir, "crawl.log")
	}

	app, asm, err := c.rt.assemble()
	if err != nil {
		return err
	}
	defer app.Close()

	if c.Load {
		if _, _, err := app.Loader.LoadPersisted(); err != nil {
			return err
		}
	}

	var catalog repository.CatalogWriter = storage.NopCatalogWriter{}
	if c.Output != "" {
		w, err := storage.NewCatalogWriter(app.State.Fs(), c.Output)
		if err != nil {
			return fmt.Errorf("create catalog: %w", err)
		}
		defer w.Close()
		catalog = w
	}

	useCase := asm.AssembleCrawl(app, catalog, c.Concurrency)
	report := c.run(useCase, app.Logger)

	if err := app.Reconciler.Reconcile(c.rt.ctx, app.State.Collections, app.State.DataDir()); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	presenter.RenderReport(c.rt.stdout, report)
	return report.Err
}

func (c *CrawlCommand) run(useCase *application.CrawlUseCase, logger *slog.Logger) *application.CrawlReport {
	if !c.Dashboard {
		return useCase.Crawl(c.rt.ctx).Wait()
	}

	ctx, cancel := context.WithCancel(c.rt.ctx)
	defer cancel()

	dashboard := presenter.NewDashboard()
	useCase.RegisterMetricsObserver(dashboard)
	p := tea.NewProgram(dashboard, tea.WithAltScreen())

	handle := useCase.Crawl(ctx)
	go func() {
		<-handle.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		logger.Error("dashboard failed", slog.Any("error", err))
	}
	// Leaving the dashboard early abandons the remaining branches.
	cancel()
	return handle.Wait()
}

// LoadCommand rebuilds the catalog from the cache
type LoadCommand struct {
	rt *runtime
}

// Execute implements flags.Commander
func (c *LoadCommand) Execute([]string) error {
	app, _, err := c.rt.assemble()
	if err != nil {
		return err
	}
	defer app.Close()

	collections, datasets, err := app.Loader.LoadPersisted()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.rt.stdout, "Loaded %d collections and %d datasets from %s\n", collections, datasets, app.State.DataDir())
	return nil
}

// CollectionsCommand lists collections
type CollectionsCommand struct {
	rt *runtime
}

// Execute implements flags.Commander
func (c *CollectionsCommand) Execute([]string) error {
	app, err := c.rt.loadCached()
	if err != nil {
		return err
	}
	defer app.Close()

	presenter.RenderCollections(c.rt.stdout, app.State.Collections.Snapshot())
	return nil
}

// DatasetsCommand lists the datasets of a collection
type DatasetsCommand struct {
	Args struct {
		Collection string `positional-arg-name:"collection" description:"Collection alias, e.g. pfc"`
	} `positional-args:"yes" required:"yes"`

	rt *runtime
}

// Execute implements flags.Commander
func (c *DatasetsCommand) Execute([]string) error {
	app, err := c.rt.loadCached()
	if err != nil {
		return err
	}
	defer app.Close()

	collection, _, err := app.State.Select(c.Args.Collection, "")
	if err != nil {
		return err
	}
	presenter.RenderDatasets(c.rt.stdout, collection)
	return nil
}

// ShowCommand renders a dataset page
type ShowCommand struct {
	Args DatasetArgs `positional-args:"yes" required:"yes"`
	Raw  bool        `long:"raw" description:"Print the extracted plain text instead of Markdown"`

	rt *runtime
}

// Execute implements flags.Commander
func (c *ShowCommand) Execute([]string) error {
	app, err := c.rt.loadCached()
	if err != nil {
		return err
	}
	defer app.Close()

	_, dataset, err := app.State.Select(c.Args.Collection, c.Args.Dataset)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.rt.stdout, "# %s\n\n%s\n\n", dataset.Alias, dataset.Description)
	if c.Raw || dataset.RawMarkup == "" {
		fmt.Fprintln(c.rt.stdout, dataset.Content)
		return nil
	}

	doc, err := markup.NewParser().Parse(dataset.RawMarkup)
	if err != nil {
		return err
	}
	html, err := doc.HTML(app.Config.Selectors.DatasetContent)
	if err != nil {
		return err
	}
	md, err := presenter.NewMarkdownRenderer().Render(html, dataset.SourceURL)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.rt.stdout, md)
	return nil
}

// resolve selects the dataset and resolves its manifest
func (rt *runtime) resolve(args DatasetArgs) (*App, entity.FileManifest, error) {
	app, err := rt.loadCached()
	if err != nil {
		return nil, nil, err
	}
	if _, _, err := app.State.Select(args.Collection, args.Dataset); err != nil {
		app.Close()
		return nil, nil, err
	}
	files, err := app.Manifests.Resolve(rt.ctx, args.Collection, args.Dataset)
	if err != nil {
		app.Close()
		return nil, nil, err
	}
	return app, files, nil
}

// FilesCommand lists the files of a dataset
type FilesCommand struct {
	Args DatasetArgs `positional-args:"yes" required:"yes"`

	rt *runtime
}

// Execute implements flags.Commander
func (c *FilesCommand) Execute([]string) error {
	app, files, err := c.rt.resolve(c.Args)
	if err != nil {
		return err
	}
	defer app.Close()

	presenter.RenderFiles(c.rt.stdout, files)
	return nil
}

// GetCommand downloads dataset files
type GetCommand struct {
	Args struct {
		Collection string   `positional-arg-name:"collection" description:"Collection alias, e.g. pfc"`
		Dataset    string   `positional-arg-name:"dataset" description:"Dataset alias, e.g. pfc-1"`
		Files      []string `positional-arg-name:"file" description:"Files to download, all when omitted"`
	} `positional-args:"yes"`
	Parallel int  `short:"p" long:"parallel" description:"Concurrent downloads" default:"4"`
	NoBars   bool `long:"no-progress" description:"Do not draw progress bars"`

	rt *runtime
}

// Execute implements flags.Commander
func (c *GetCommand) Execute([]string) error {
	if c.Args.Collection == "" || c.Args.Dataset == "" {
		return fmt.Errorf("get needs a collection and a dataset")
	}

	app, files, err := c.rt.resolve(DatasetArgs{Collection: c.Args.Collection, Dataset: c.Args.Dataset})
	if err != nil {
		return err
	}
	defer app.Close()

	selected, err := selectFiles(files, c.Args.Files)
	if err != nil {
		return err
	}

	var view *presenter.TransferView
	if !c.NoBars {
		view = presenter.NewTransferView(c.rt.ctx, c.rt.stderr)
	}

	var g errgroup.Group
	g.SetLimit(max(c.Parallel, 1))
	for _, f := range selected {
		key := entity.AcquisitionKey{Collection: c.Args.Collection, Dataset: c.Args.Dataset, Filename: f.RemotePath}
		progress := app.State.Progress.Register(key)
		if view != nil {
			view.Track(key, progress.C())
		}
		g.Go(func() error {
			_, err := app.Acquirer.Acquire(c.rt.ctx, key, progress)
			return err
		})
	}
	err = g.Wait()
	if view != nil {
		view.Wait()
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(c.rt.stdout, "%d files in %s\n", len(selected), app.State.DatasetDir(c.Args.Collection, c.Args.Dataset))
	return nil
}

func selectFiles(files entity.FileManifest, names []string) (entity.FileManifest, error) {
	if len(names) == 0 {
		return files, nil
	}
	index := make(map[string]entity.FileRecord, len(files))
	for _, f := range files {
		index[f.RemotePath] = f
	}
	out := make(entity.FileManifest, 0, len(names))
	for _, name := range names {
		f, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("file %s: %w", name, entity.ErrNotFound)
		}
		out = append(out, f)
	}
	return out, nil
}

// VerifyCommand checks downloaded files
type VerifyCommand struct {
	Args DatasetArgs `positional-args:"yes" required:"yes"`

	rt *runtime
}

// Execute implements flags.Commander
func (c *VerifyCommand) Execute([]string) error {
	app, _, err := c.rt.resolve(c.Args)
	if err != nil {
		return err
	}
	defer app.Close()

	files, err := app.Manifests.Verify()
	if err != nil {
		return err
	}
	presenter.RenderFiles(c.rt.stdout, files)

	var verified int
	for _, f := range files {
		if f.Verified() {
			verified++
		}
	}
	fmt.Fprintf(c.rt.stdout, "%d / %d verified\n", verified, len(files))
	return nil
}

// VersionCommand prints the version
type VersionCommand struct {
	rt *runtime
}

// Execute implements flags.Commander
func (c *VersionCommand) Execute([]string) error {
	fmt.Fprintln(c.rt.stdout, common.PV.String())
	return nil
}
