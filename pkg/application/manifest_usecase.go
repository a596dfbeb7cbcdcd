package application

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/manifest"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/metrics"
)

// ManifestResolver builds the file manifest of a dataset from the two
// listing files the repository publishes next to the data.
type ManifestResolver struct {
	acquirer *Acquirer
	state    *State
	mode     manifest.JoinMode
	recorder *metrics.Recorder
	logger   *slog.Logger
}

// NewManifestResolver creates a resolver
func NewManifestResolver(acquirer *Acquirer, state *State, mode manifest.JoinMode, recorder *metrics.Recorder, logger *slog.Logger) *ManifestResolver {
	return &ManifestResolver{
		acquirer: acquirer,
		state:    state,
		mode:     mode,
		recorder: recorder,
		logger:   logger.With(slog.String("component", "manifest")),
	}
}

// Resolve acquires the listing files if needed, parses them and publishes
// the manifest as the working files.
func (m *ManifestResolver) Resolve(ctx context.Context, collection, dataset string) (entity.FileManifest, error) {
	dir := m.state.DatasetDir(collection, dataset)

	for _, name := range []string{manifest.FileListName, manifest.ChecksumsName} {
		key := entity.AcquisitionKey{Collection: collection, Dataset: dataset, Filename: name}
		if _, err := m.acquirer.AcquireRegistered(ctx, key); err != nil {
			return nil, err
		}
	}

	fs := m.state.Fs()
	listFile, err := fs.Open(filepath.Join(dir, manifest.FileListName))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", manifest.FileListName, err)
	}
	defer listFile.Close()
	files, skippedFiles, err := manifest.ParseFileList(listFile)
	if err != nil {
		return nil, err
	}

	sumFile, err := fs.Open(filepath.Join(dir, manifest.ChecksumsName))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", manifest.ChecksumsName, err)
	}
	defer sumFile.Close()
	sums, skippedSums, err := manifest.ParseChecksums(sumFile)
	if err != nil {
		return nil, err
	}

	m.recorder.ManifestSkips.WithLabelValues(manifest.FileListName).Add(float64(skippedFiles))
	m.recorder.ManifestSkips.WithLabelValues(manifest.ChecksumsName).Add(float64(skippedSums))
	if m.mode == manifest.JoinPositional && len(files) != len(sums) {
		m.logger.Warn("listing lengths differ, truncating",
			slog.Int("files", len(files)),
			slog.Int("checksums", len(sums)),
		)
	}

	result := manifest.Join(dir, files, sums, m.mode)
	m.state.SetWorkingFiles(result)
	m.logger.Info("manifest resolved",
		slog.String("collection", collection),
		slog.String("dataset", dataset),
		slog.Int("files", len(result)),
		slog.Int("skipped_lines", skippedFiles+skippedSums),
	)
	return result, nil
}

// Verify hashes every local file of the working manifest and publishes
// the updated records.
func (m *ManifestResolver) Verify() (entity.FileManifest, error) {
	files := m.state.WorkingFiles()
	for i, r := range files {
		verified, err := manifest.Verify(m.state.Fs(), r)
		if err != nil {
			return nil, err
		}
		files[i] = verified
	}
	m.state.SetWorkingFiles(files)
	return files, nil
}
