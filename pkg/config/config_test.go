package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://crcns.org/sitemap", cfg.Repository.SitemapURL)
	assert.Equal(t, "div#content", cfg.Selectors.DatasetContent)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
repository:
  sitemap_url: http://localhost:8080/sitemap
http:
  timeout: 5s
selectors:
  dataset_content: main
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/sitemap", cfg.Repository.SitemapURL)
	assert.Equal(t, "/data-sets/", cfg.Repository.LinkFilter)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "main", cfg.Selectors.DatasetContent)
	assert.Equal(t, "h1#parent-fieldname-title", cfg.Selectors.CollectionTitle)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Crawl.DatasetConcurrency = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Dedup.BloomFilterFalsePositive = 1
	assert.Error(t, cfg.Validate())
}
