package presenter

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxRecent = 50

// Dashboard is a TUI dashboard for crawl progress
type Dashboard struct {
	metrics   *entity.Metrics
	recent    []string // most recent discoveries, oldest first
	bar       progress.Model
	width     int
	height    int
	startTime time.Time
	mu        sync.RWMutex
}

type tickMsg time.Time

// NewDashboard creates a new TUI dashboard
func NewDashboard() *Dashboard {
	return &Dashboard{
		metrics:   &entity.Metrics{},
		bar:       progress.New(progress.WithDefaultGradient()),
		startTime: time.Now(),
	}
}

// Init initializes the dashboard
func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

// Update handles dashboard updates
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "Q", "ctrl+c":
			return d, tea.Quit
		}

	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		d.bar.Width = max(msg.Width-4, 10)
		return d, nil

	case tickMsg:
		return d, tickCmd()
	}

	return d, nil
}

// View renders the dashboard
func (d *Dashboard) View() string {
	if d.width == 0 {
		return "Initializing..."
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	header := d.renderHeader()
	footer := d.renderFooter()

	availableHeight := d.height - lipgloss.Height(header) - lipgloss.Height(footer)
	if availableHeight < 0 {
		availableHeight = 0
	}
	halfHeight := availableHeight / 2
	leftWidth := d.width / 2
	rightWidth := d.width - leftWidth

	row1 := lipgloss.JoinHorizontal(
		lipgloss.Top,
		d.renderCrawlStats(leftWidth, halfHeight),
		d.renderErrorStats(rightWidth, halfHeight),
	)
	row2 := lipgloss.JoinHorizontal(
		lipgloss.Top,
		d.renderActive(leftWidth, availableHeight-halfHeight),
		d.renderRecentDiscoveries(rightWidth, availableHeight-halfHeight),
	)

	return lipgloss.JoinVertical(lipgloss.Left, header, row1, row2, footer)
}

// OnMetricsUpdate implements application.MetricsObserver
func (d *Dashboard) OnMetricsUpdate(metrics *entity.Metrics) {
	d.mu.Lock()
	d.metrics = metrics
	d.mu.Unlock()
}

// AddDiscovery implements application.MetricsObserver
func (d *Dashboard) AddDiscovery(kind, alias string) {
	d.mu.Lock()
	d.recent = append(d.recent, kind+" "+alias)
	if len(d.recent) > maxRecent {
		d.recent = d.recent[len(d.recent)-maxRecent:]
	}
	d.mu.Unlock()
}

func (d *Dashboard) renderHeader() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7D56F4")).
		Padding(0, 1)

	timeStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#999999"))

	title := titleStyle.Render("CRCNS Mirror")
	info := timeStyle.Render(fmt.Sprintf(" Run: %s | Running: %s | Time: %s",
		shortID(d.metrics.RunID),
		formatElapsed(time.Since(d.startTime)),
		time.Now().Format("15:04:05"),
	))

	var fraction float64
	if d.metrics.TasksSpawned > 0 {
		fraction = float64(d.metrics.TasksDone) / float64(d.metrics.TasksSpawned)
	}
	return lipgloss.JoinVertical(lipgloss.Left, title+info, " "+d.bar.ViewAs(fraction))
}

func (d *Dashboard) renderCrawlStats(width, height int) string {
	stats := []string{
		"Crawl",
		"",
		fmt.Sprintf("Pages Fetched:     %d", d.metrics.PagesFetched),
		fmt.Sprintf("Tasks:             %d / %d", d.metrics.TasksDone, d.metrics.TasksSpawned),
		fmt.Sprintf("Collections:       %d", d.metrics.CollectionsFound),
		fmt.Sprintf("Datasets:          %d", d.metrics.DatasetsFound),
		fmt.Sprintf("New Datasets:      %d", d.metrics.NewDatasets),
	}

	elapsed := time.Since(d.startTime).Seconds()
	if elapsed > 0 {
		stats = append(stats,
			"",
			fmt.Sprintf("Page Rate:         %.1f pages/s", float64(d.metrics.PagesFetched)/elapsed),
		)
	}

	return panel("#874BFD", width, height).Render(strings.Join(stats, "\n"))
}

func (d *Dashboard) renderErrorStats(width, height int) string {
	stats := []string{
		"Failures",
		"",
		fmt.Sprintf("Transport:         %d", d.metrics.FetchErrors),
		fmt.Sprintf("Extraction:        %d", d.metrics.ExtractErrors),
	}

	attempts := d.metrics.PagesFetched + d.metrics.FetchErrors
	if attempts > 0 {
		stats = append(stats,
			"",
			fmt.Sprintf("Success Rate:      %.1f%%", float64(d.metrics.PagesFetched)/float64(attempts)*100),
		)
	}

	return panel("#FF6B6B", width, height).Render(strings.Join(stats, "\n"))
}

func (d *Dashboard) renderActive(width, height int) string {
	lines := []string{
		fmt.Sprintf("In Flight (%d)", len(d.metrics.ActiveURLs)),
		"",
	}
	lines = append(lines, tail(d.metrics.ActiveURLs, height-6)...)
	return panel("#4ECDC4", width, height).Render(strings.Join(lines, "\n"))
}

func (d *Dashboard) renderRecentDiscoveries(width, height int) string {
	lines := []string{
		fmt.Sprintf("Recent Discoveries (%d)", len(d.recent)),
		"",
	}
	if len(d.recent) == 0 {
		lines = append(lines, "Nothing discovered yet...")
	}
	for _, r := range tail(d.recent, height-6) {
		lines = append(lines, "  • "+r)
	}
	return panel("#04B575", width, height).Render(strings.Join(lines, "\n"))
}

func (d *Dashboard) renderFooter() string {
	footerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#626262")).
		Padding(1, 0)

	return footerStyle.Render("Press 'q' or 'Ctrl+C' to quit")
}

func panel(color string, width, height int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(color)).
		Padding(1, 2).
		Width(max(width-2, 0)). // border
		Height(max(height-2, 0))
}

// tail returns the last n items of s
func tail(s []string, n int) []string {
	if n <= 0 {
		return nil
	}
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatElapsed(elapsed time.Duration) string {
	hours := int(elapsed.Hours())
	minutes := int(elapsed.Minutes()) % 60
	seconds := int(elapsed.Seconds()) % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*500, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run starts the dashboard
func (d *Dashboard) Run() error {
	p := tea.NewProgram(d, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
