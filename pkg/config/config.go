package config

import (
	"fmt"
	"os"
	"time"

	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/markup"
	"gopkg.in/yaml.v3"
)

// Config describes the remote repository and the local mirror layout
type Config struct {
	Repository RepositoryConfig `yaml:"repository"`
	Selectors  markup.Selectors `yaml:"selectors"`
	HTTP       HTTPConfig       `yaml:"http"`
	Crawl      CrawlConfig      `yaml:"crawl"`
	Dedup      DedupConfig      `yaml:"dedup"`
}

type RepositoryConfig struct {
	SitemapURL       string `yaml:"sitemap_url"`
	LinkFilter       string `yaml:"link_filter"`
	DownloadEndpoint string `yaml:"download_endpoint"`
}

type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	MaxResponseSize   int64         `yaml:"max_response_size"`
	UserAgent         string        `yaml:"user_agent"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

type CrawlConfig struct {
	DatasetConcurrency int `yaml:"dataset_concurrency"`
}

type DedupConfig struct {
	BloomFilterSize          uint    `yaml:"bloom_filter_size"`
	BloomFilterFalsePositive float64 `yaml:"bloom_filter_false_positive"`
	BloomFilterFile          string  `yaml:"bloom_filter_file"`
}

// Default returns the CRCNS profile
func Default() *Config {
	return &Config{
		Repository: RepositoryConfig{
			SitemapURL:       "https://crcns.org/sitemap",
			LinkFilter:       "/data-sets/",
			DownloadEndpoint: "https://portal.nersc.gov/project/crcns/download/index.php",
		},
		Selectors: markup.DefaultSelectors(),
		HTTP: HTTPConfig{
			Timeout:           30 * time.Second,
			MaxResponseSize:   10 << 20,
			UserAgent:         "crcns-mirror/1.0",
			RequestsPerSecond: 4,
		},
		Crawl: CrawlConfig{DatasetConcurrency: 8},
		Dedup: DedupConfig{
			BloomFilterSize:          100000,
			BloomFilterFalsePositive: 0.001,
			BloomFilterFile:          "seen.bloom",
		},
	}
}

// Load overlays the YAML file at path onto the defaults. Keys absent from
// the file keep their default value.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the values a run cannot work without
func (c *Config) Validate() error {
	if c.Repository.SitemapURL == "" {
		return fmt.Errorf("repository.sitemap_url must be set")
	}
	if c.Repository.DownloadEndpoint == "" {
		return fmt.Errorf("repository.download_endpoint must be set")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0, got %s", c.HTTP.Timeout)
	}
	if c.HTTP.MaxResponseSize <= 0 {
		return fmt.Errorf("http.max_response_size must be > 0, got %d", c.HTTP.MaxResponseSize)
	}
	if c.Crawl.DatasetConcurrency <= 0 {
		return fmt.Errorf("crawl.dataset_concurrency must be > 0, got %d", c.Crawl.DatasetConcurrency)
	}
	if c.Dedup.BloomFilterFalsePositive <= 0 || c.Dedup.BloomFilterFalsePositive >= 1 {
		return fmt.Errorf("dedup.bloom_filter_false_positive must be between 0 and 1, got %f", c.Dedup.BloomFilterFalsePositive)
	}
	return nil
}
