package repository

import (
	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
)

// SeenFilter remembers dataset URLs across crawl runs
type SeenFilter interface {
	// TestAndAdd reports whether url was seen before and records it
	TestAndAdd(url string) bool
	// Save persists the filter state
	Save(filename string) error
	// Load restores the filter state
	Load(filename string) error
}

// CatalogWriter streams discovered entries
type CatalogWriter interface {
	// WriteCollection writes a collection record
	WriteCollection(c *entity.Collection) error
	// WriteDataset writes a dataset record belonging to collection
	WriteDataset(collection string, d *entity.Dataset) error
	// Close flushes and closes the writer
	Close() error
}

// LoadResult classifies a cache read
type LoadResult int

const (
	Loaded LoadResult = iota
	NotFound
	Corrupt
)

func (r LoadResult) String() string {
	return [...]string{"loaded", "not_found", "corrupt"}[r]
}

// CacheStore persists single entries under a directory
type CacheStore interface {
	// SaveCollection writes c into dir
	SaveCollection(c *entity.Collection, dir string) error
	// SaveDataset writes d into dir
	SaveDataset(d *entity.Dataset, dir string) error
	// LoadCollection reads the collection stored in dir. On anything but
	// Loaded the sentinel collection is returned.
	LoadCollection(dir string) (*entity.Collection, LoadResult, error)
	// LoadDataset reads the dataset stored in dir
	LoadDataset(dir string) (*entity.Dataset, LoadResult, error)
	// Exists reports whether dir holds a cache blob
	Exists(dir string) bool
}

// ProgressSink receives the fractional progress of one transfer
type ProgressSink interface {
	// Publish records a new progress value in [0, 1]
	Publish(fraction float64)
	// Close signals that no more values will follow
	Close()
}
