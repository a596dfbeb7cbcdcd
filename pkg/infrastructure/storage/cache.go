package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	"github.com/WangYihang/crcns-mirror/pkg/domain/repository"
	"github.com/spf13/afero"
)

// BlobName is the cache file written into every collection and dataset directory
const BlobName = "ds.bin"

// collectionBlob is the persisted form of a collection. Datasets are
// persisted in their own directories.
type collectionBlob struct {
	Entry entity.Entry
}

type datasetBlob struct {
	Entry   entity.Entry
	Content string
}

// CacheStore implements repository.CacheStore with gob blobs
type CacheStore struct {
	fs     afero.Fs
	logger *slog.Logger
}

// NewCacheStore creates a cache store on fs
func NewCacheStore(fs afero.Fs, logger *slog.Logger) *CacheStore {
	return &CacheStore{
		fs:     fs,
		logger: logger.With(slog.String("component", "cache")),
	}
}

// Exists reports whether dir holds a cache blob
func (s *CacheStore) Exists(dir string) bool {
	ok, err := afero.Exists(s.fs, filepath.Join(dir, BlobName))
	return err == nil && ok
}

// SaveCollection writes c into dir
func (s *CacheStore) SaveCollection(c *entity.Collection, dir string) error {
	return s.save(dir, collectionBlob{Entry: c.Entry})
}

// SaveDataset writes d into dir
func (s *CacheStore) SaveDataset(d *entity.Dataset, dir string) error {
	return s.save(dir, datasetBlob{Entry: d.Entry, Content: d.Content})
}

// LoadCollection reads the collection stored in dir
func (s *CacheStore) LoadCollection(dir string) (*entity.Collection, repository.LoadResult, error) {
	var blob collectionBlob
	result, err := s.load(dir, &blob)
	if result != repository.Loaded {
		return entity.DefaultCollection(), result, err
	}
	return entity.NewCollection(blob.Entry), result, nil
}

// LoadDataset reads the dataset stored in dir
func (s *CacheStore) LoadDataset(dir string) (*entity.Dataset, repository.LoadResult, error) {
	var blob datasetBlob
	result, err := s.load(dir, &blob)
	if result != repository.Loaded {
		return entity.DefaultDataset(), result, err
	}
	return &entity.Dataset{Entry: blob.Entry, Content: blob.Content}, result, nil
}

func (s *CacheStore) save(dir string, v any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", dir, err)
	}
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, BlobName)
	if err := afero.WriteFile(s.fs, path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	s.logger.Debug("cache written", slog.String("path", path))
	return nil
}

func (s *CacheStore) load(dir string, v any) (repository.LoadResult, error) {
	path := filepath.Join(dir, BlobName)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if exists, _ := afero.Exists(s.fs, path); !exists {
			s.logger.Warn("cache missing", slog.String("path", path))
			return repository.NotFound, nil
		}
		s.logger.Warn("cache unreadable", slog.String("path", path), slog.Any("error", err))
		return repository.Corrupt, fmt.Errorf("read %s: %w", path, err)
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		s.logger.Warn("cache corrupt", slog.String("path", path), slog.Any("error", err))
		return repository.Corrupt, fmt.Errorf("decode %s: %w", path, err)
	}
	return repository.Loaded, nil
}
