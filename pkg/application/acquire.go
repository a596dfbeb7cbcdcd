package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	"github.com/WangYihang/crcns-mirror/pkg/domain/repository"
	"github.com/WangYihang/crcns-mirror/pkg/domain/service"
	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/metrics"
	"github.com/spf13/afero"
)

const chunkSize = 32 * 1024

// Acquirer downloads repository files into the mirror tree
type Acquirer struct {
	fetcher  service.FileFetcher
	state    *State
	recorder *metrics.Recorder
	logger   *slog.Logger
}

// NewAcquirer creates an acquirer writing below state's data directory
func NewAcquirer(fetcher service.FileFetcher, state *State, recorder *metrics.Recorder, logger *slog.Logger) *Acquirer {
	return &Acquirer{
		fetcher:  fetcher,
		state:    state,
		recorder: recorder,
		logger:   logger.With(slog.String("component", "acquirer")),
	}
}

// LocalPath returns where key is stored
func (a *Acquirer) LocalPath(key entity.AcquisitionKey) (string, error) {
	dir := a.state.DatasetDir(key.Collection, key.Dataset)
	return safeJoin(dir, key.Filename)
}

// AcquireRegistered acquires key and reports progress through the state's
// progress registry.
func (a *Acquirer) AcquireRegistered(ctx context.Context, key entity.AcquisitionKey) (*entity.AcquireResult, error) {
	return a.Acquire(ctx, key, a.state.Progress.Register(key))
}

// Acquire downloads key unless it already exists locally. Progress values
// are published after every chunk and progress is closed on return. A
// failed transfer leaves the partial file in place.
func (a *Acquirer) Acquire(ctx context.Context, key entity.AcquisitionKey, progress repository.ProgressSink) (*entity.AcquireResult, error) {
	defer progress.Close()

	logger := a.logger.With(slog.String("file", key.String()))
	target, err := a.LocalPath(key)
	if err != nil {
		return nil, err
	}
	result := &entity.AcquireResult{Key: key, LocalPath: target}

	fs := a.state.Fs()
	if exists, _ := afero.Exists(fs, target); exists {
		progress.Publish(1)
		result.Status = entity.AcquireSkipped
		a.recorder.Acquisitions.WithLabelValues(result.Status.String()).Inc()
		logger.Debug("already present, skipping")
		return result, nil
	}

	dl, err := a.fetcher.Open(ctx, key.Dataset+"/"+key.Filename)
	if err != nil {
		a.recorder.Acquisitions.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	defer dl.Body.Close()

	if dl.Size < 0 {
		a.recorder.Acquisitions.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("acquire %s: %w", key, entity.ErrMissingContentLength)
	}

	if err := fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}
	file, err := fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", target, err)
	}
	defer file.Close()

	logger.Info("downloading", slog.Int64("size", dl.Size))
	written, err := stream(file, dl.Body, dl.Size, progress)
	result.Bytes = written
	a.recorder.BytesAcquired.Add(float64(written))
	if err != nil {
		result.Status = entity.AcquireFailed
		a.recorder.Acquisitions.WithLabelValues(result.Status.String()).Inc()
		logger.Error("download failed", slog.Int64("written", written), slog.Any("error", err))
		return result, fmt.Errorf("acquire %s: %w", key, err)
	}

	progress.Publish(1)
	result.Status = entity.AcquireCompleted
	a.recorder.Acquisitions.WithLabelValues(result.Status.String()).Inc()
	logger.Info("downloaded", slog.Int64("bytes", written))
	return result, nil
}

// stream copies src to dst chunk by chunk, publishing written/total after
// every chunk.
func stream(dst io.Writer, src io.Reader, total int64, progress repository.ProgressSink) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
			if total > 0 {
				progress.Publish(min(float64(written)/float64(total), 1))
			}
		}
		if errors.Is(rerr, io.EOF) {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// safeJoin joins a repository relative name under dir, refusing names
// that would leave dir.
func safeJoin(dir, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) {
		return "", fmt.Errorf("%q: %w", name, entity.ErrPathTraversal)
	}
	joined := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", name, entity.ErrPathTraversal)
	}
	return joined, nil
}
