package application

import (
	"path/filepath"
	"sync"

	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/storage"
	"github.com/spf13/afero"
)

// DataDirName is the subtree of the working directory holding the mirror
const DataDirName = "data"

// State is the application context shared by every use case. Each field
// has its own lock and no operation holds two of them at once.
type State struct {
	workingDir string
	fs         afero.Fs

	Collections *entity.CollectionList
	Progress    *storage.ProgressRegistry

	collectionMu sync.RWMutex
	collection   *entity.Collection

	datasetMu sync.RWMutex
	dataset   *entity.Dataset

	filesMu sync.RWMutex
	files   entity.FileManifest
}

// NewState creates the application context rooted at workingDir and
// creates its data directory.
func NewState(fs afero.Fs, workingDir string) (*State, error) {
	s := &State{
		workingDir:  workingDir,
		fs:          fs,
		Collections: entity.NewCollectionList(),
		Progress:    storage.NewProgressRegistry(),
		collection:  entity.DefaultCollection(),
		dataset:     entity.DefaultDataset(),
	}
	if err := fs.MkdirAll(s.DataDir(), 0o755); err != nil {
		return nil, err
	}
	return s, nil
}

// WorkingDir returns the working directory
func (s *State) WorkingDir() string {
	return s.workingDir
}

// DataDir returns the root of the mirror tree
func (s *State) DataDir() string {
	return filepath.Join(s.workingDir, DataDirName)
}

// DatasetDir returns the local directory of a dataset's files
func (s *State) DatasetDir(collection, dataset string) string {
	return filepath.Join(s.DataDir(), collection, dataset)
}

// Fs returns the filesystem the state lives on
func (s *State) Fs() afero.Fs {
	return s.fs
}

// WorkingCollection returns the selected collection
func (s *State) WorkingCollection() *entity.Collection {
	s.collectionMu.RLock()
	defer s.collectionMu.RUnlock()
	return s.collection
}

// SetWorkingCollection selects a collection
func (s *State) SetWorkingCollection(c *entity.Collection) {
	s.collectionMu.Lock()
	s.collection = c
	s.collectionMu.Unlock()
}

// WorkingDataset returns the selected dataset
func (s *State) WorkingDataset() *entity.Dataset {
	s.datasetMu.RLock()
	defer s.datasetMu.RUnlock()
	return s.dataset
}

// SetWorkingDataset selects a dataset
func (s *State) SetWorkingDataset(d *entity.Dataset) {
	s.datasetMu.Lock()
	s.dataset = d
	s.datasetMu.Unlock()
}

// WorkingFiles returns a copy of the manifest of the selected dataset
func (s *State) WorkingFiles() entity.FileManifest {
	s.filesMu.RLock()
	defer s.filesMu.RUnlock()

	out := make(entity.FileManifest, len(s.files))
	copy(out, s.files)
	return out
}

// SetWorkingFiles replaces the working manifest
func (s *State) SetWorkingFiles(files entity.FileManifest) {
	s.filesMu.Lock()
	s.files = files
	s.filesMu.Unlock()
}

// Select makes the named collection and dataset the working pair
func (s *State) Select(collection, dataset string) (*entity.Collection, *entity.Dataset, error) {
	c, ok := s.Collections.Find(collection)
	if !ok {
		return nil, nil, &LookupError{Kind: "collection", Alias: collection}
	}
	s.SetWorkingCollection(c)
	if dataset == "" {
		return c, nil, nil
	}

	d, ok := c.Datasets().Find(dataset)
	if !ok {
		return c, nil, &LookupError{Kind: "dataset", Alias: dataset}
	}
	s.SetWorkingDataset(d)
	return c, d, nil
}

// LookupError reports an unknown alias
type LookupError struct {
	Kind  string
	Alias string
}

func (e *LookupError) Error() string {
	return e.Kind + " " + e.Alias + ": " + entity.ErrNotFound.Error()
}

func (e *LookupError) Unwrap() error {
	return entity.ErrNotFound
}
