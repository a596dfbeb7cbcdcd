package presenter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/WangYihang/crcns-mirror/pkg/application"
	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHumanSize(t *testing.T) {
	tests := []struct {
		n    uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 30, "5.0 GiB"},
	}
	for _, tt := range tests {
		if got := humanSize(tt.n); got != tt.want {
			t.Errorf("humanSize(%d) = %s, want %s", tt.n, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "", truncate("anything", 2))
}

func TestRenderFiles(t *testing.T) {
	var buf bytes.Buffer
	RenderFiles(&buf, entity.FileManifest{
		{RemotePath: "a.dat", RemoteSize: 5, RemoteChecksum: "abc", LocalSize: 5, LocalChecksum: "abc"},
		{RemotePath: "b.dat", RemoteSize: 5, RemoteChecksum: "abc", LocalSize: 5, LocalChecksum: "def"},
		{RemotePath: "c.dat", RemoteSize: 2048, RemoteChecksum: "abc"},
	})

	out := buf.String()
	assert.Contains(t, out, "Files (3, 2.0 KiB)")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "verified")
	assert.Contains(t, lines[2], "mismatch")
	assert.Contains(t, lines[3], "remote")
}

func TestRenderCatalog(t *testing.T) {
	c := entity.NewCollection(entity.Entry{Alias: "pfc", Description: "Prefrontal cortex"})
	c.Datasets().Add(&entity.Dataset{Entry: entity.Entry{Alias: "pfc-1", Description: "Rat mPFC"}})

	var buf bytes.Buffer
	RenderCollections(&buf, []*entity.Collection{c})
	assert.Contains(t, buf.String(), "Collections (1)")
	assert.Contains(t, buf.String(), "1 datasets")

	buf.Reset()
	RenderDatasets(&buf, c)
	assert.Contains(t, buf.String(), "pfc-1")
	assert.Contains(t, buf.String(), "Rat mPFC")
}

func TestRenderReport(t *testing.T) {
	var buf bytes.Buffer
	RenderReport(&buf, &application.CrawlReport{
		RunID:       "run",
		Collections: 2,
		Datasets:    3,
		NewDatasets: 1,
		Failures: []application.BranchFailure{
			{URL: "https://crcns.org/data-sets/vc", Kind: "collection", Reason: "transport", Err: errors.New("refused")},
		},
	})
	out := buf.String()
	assert.Contains(t, out, "Datasets:     3 (1 new)")
	assert.Contains(t, out, "Failures (1)")
	assert.Contains(t, out, "https://crcns.org/data-sets/vc: refused")
}

func TestMarkdownRenderer(t *testing.T) {
	md, err := NewMarkdownRenderer().Render(
		`<div id="content"><h2>Summary</h2><script>alert(1)</script><p>See <a href="https://crcns.org/data-sets/pfc/pfc-1/about">details</a>.</p></div>`,
		"https://crcns.org/data-sets/pfc/pfc-1",
	)
	require.NoError(t, err)
	assert.Contains(t, md, "## Summary")
	assert.Contains(t, md, "[details](https://crcns.org/data-sets/pfc/pfc-1/about)")
	assert.NotContains(t, md, "alert")
}

func TestDashboard_KeepsRecentDiscoveries(t *testing.T) {
	d := NewDashboard()
	for i := 0; i < maxRecent+10; i++ {
		d.AddDiscovery("dataset", fmt.Sprintf("pfc-%d", i))
	}
	assert.Len(t, d.recent, maxRecent)
	assert.Equal(t, "dataset pfc-10", d.recent[0])

	d.OnMetricsUpdate(&entity.Metrics{TasksSpawned: 4, TasksDone: 2, PagesFetched: 3})
	assert.Equal(t, "Initializing...", d.View())

	model, _ := d.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	view := model.View()
	assert.Contains(t, view, "Pages Fetched:     3")
	assert.Contains(t, view, "Tasks:             2 / 4")
	assert.Contains(t, view, "pfc-59")
}

func TestTransferView(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	view := NewTransferView(ctx, io.Discard)
	updates := make(chan float64, 3)
	view.Track(entity.AcquisitionKey{Filename: "a.dat"}, updates)
	updates <- 0.5
	updates <- 1
	close(updates)

	failed := make(chan float64)
	view.Track(entity.AcquisitionKey{Filename: "b.dat"}, failed)
	close(failed)

	view.Wait()
}
