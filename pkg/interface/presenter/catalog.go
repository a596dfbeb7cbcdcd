package presenter

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/WangYihang/crcns-mirror/pkg/application"
	"github.com/WangYihang/crcns-mirror/pkg/common"
	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	"github.com/charmbracelet/lipgloss"
	"github.com/microcosm-cc/bluemonday"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	aliasStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
)

// RenderCollections lists collections with their dataset counts
func RenderCollections(w io.Writer, collections []*entity.Collection) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Collections (%d)", len(collections))))
	for _, c := range collections {
		fmt.Fprintf(w, "%s %s %s\n",
			aliasStyle.Width(12).Render(c.Alias),
			dimStyle.Render(fmt.Sprintf("%3d datasets", c.Datasets().Len())),
			truncate(c.Description, lineWidth()-30),
		)
	}
}

// RenderDatasets lists the datasets of c
func RenderDatasets(w io.Writer, c *entity.Collection) {
	datasets := c.Datasets().Snapshot()
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s: %s (%d datasets)", c.Alias, c.Description, len(datasets))))
	for _, d := range datasets {
		fmt.Fprintf(w, "%s %s\n",
			aliasStyle.Width(12).Render(d.Alias),
			truncate(d.Description, lineWidth()-14),
		)
	}
}

// RenderFiles lists a manifest with its verification state
func RenderFiles(w io.Writer, files entity.FileManifest) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Files (%d, %s)", len(files), humanSize(files.TotalSize()))))
	for _, f := range files {
		status := dimStyle.Render("remote")
		switch {
		case f.Verified():
			status = okStyle.Render("verified")
		case f.LocalChecksum != "":
			status = badStyle.Render("mismatch")
		}
		fmt.Fprintf(w, "%-10s %10s %s  %s\n", status, humanSize(f.RemoteSize), dimStyle.Render(f.RemoteChecksum), f.RemotePath)
	}
}

// RenderReport summarizes a crawl
func RenderReport(w io.Writer, report *application.CrawlReport) {
	fmt.Fprintln(w, titleStyle.Render("Crawl finished"))
	fmt.Fprintf(w, "Run:          %s\n", report.RunID)
	fmt.Fprintf(w, "Collections:  %d\n", report.Collections)
	fmt.Fprintf(w, "Datasets:     %d (%d new)\n", report.Datasets, report.NewDatasets)
	fmt.Fprintf(w, "Duration:     %s\n", report.Duration.Round(time.Millisecond))
	if len(report.Failures) == 0 {
		return
	}
	fmt.Fprintln(w, badStyle.Render(fmt.Sprintf("Failures (%d)", len(report.Failures))))
	for _, f := range report.Failures {
		fmt.Fprintf(w, "  %-10s %-10s %s: %v\n", f.Kind, f.Reason, f.URL, f.Err)
	}
}

// MarkdownRenderer turns dataset page content into Markdown. Scraped
// markup is sanitized first, so scripts and inline handlers never reach
// the terminal.
type MarkdownRenderer struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
}

// NewMarkdownRenderer creates a renderer supporting tables
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{
		policy: bluemonday.UGCPolicy(),
		conv:   converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Render converts html, resolving relative links against sourceURL
func (r *MarkdownRenderer) Render(html, sourceURL string) (string, error) {
	md, err := r.conv.ConvertString(r.policy.Sanitize(html), converter.WithDomain(sourceURL))
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}

func lineWidth() int {
	if common.TerminalWidth <= 0 {
		return 100
	}
	return common.TerminalWidth
}

func truncate(s string, n int) string {
	if n <= 3 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func humanSize(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
