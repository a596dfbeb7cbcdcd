package storage

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	"github.com/spf13/afero"
)

// CatalogRecord is one line of the catalog file
type CatalogRecord struct {
	Kind         string `json:"kind"`
	Collection   string `json:"collection"`
	Alias        string `json:"alias"`
	SourceURL    string `json:"source_url"`
	Description  string `json:"description"`
	LastModified string `json:"last_modified"`
}

// CatalogWriter implements repository.CatalogWriter as JSON lines
type CatalogWriter struct {
	file    afero.File
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewCatalogWriter creates a new catalog writer
func NewCatalogWriter(fs afero.Fs, filename string) (*CatalogWriter, error) {
	file, err := fs.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	return &CatalogWriter{
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

// WriteCollection writes a collection record
func (w *CatalogWriter) WriteCollection(c *entity.Collection) error {
	return w.write(CatalogRecord{
		Kind:         "collection",
		Collection:   c.Alias,
		Alias:        c.Alias,
		SourceURL:    c.SourceURL,
		Description:  c.Description,
		LastModified: c.LastModified,
	})
}

// WriteDataset writes a dataset record
func (w *CatalogWriter) WriteDataset(collection string, d *entity.Dataset) error {
	return w.write(CatalogRecord{
		Kind:         "dataset",
		Collection:   collection,
		Alias:        d.Alias,
		SourceURL:    d.SourceURL,
		Description:  d.Description,
		LastModified: d.LastModified,
	})
}

func (w *CatalogWriter) write(record CatalogRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.encoder.Encode(record)
}

// Close closes the writer
func (w *CatalogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// NopCatalogWriter discards every record
type NopCatalogWriter struct{}

func (NopCatalogWriter) WriteCollection(*entity.Collection) error { return nil }

func (NopCatalogWriter) WriteDataset(string, *entity.Dataset) error { return nil }

func (NopCatalogWriter) Close() error { return nil }
