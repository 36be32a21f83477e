package fetch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/exploopio/findingscope/pkg/compress"
	"github.com/exploopio/findingscope/pkg/errors"
	"github.com/exploopio/findingscope/pkg/finding"
	"github.com/exploopio/findingscope/pkg/logger"
)

// FileFetcher reads findings from a local JSON file. Files ending in .zst or
// .gz are decompressed first.
type FileFetcher struct {
	path   string
	logger logger.Logger
}

// NewFileFetcher creates a fetcher for path.
func NewFileFetcher(path string, l logger.Logger) *FileFetcher {
	return &FileFetcher{path: path, logger: logger.OrNop(l)}
}

// Source returns the file path.
func (f *FileFetcher) Source() string {
	return f.path
}

// Fetch reads and decodes the file. A missing file is a not-found failure.
func (f *FileFetcher) Fetch(ctx context.Context) (*finding.DecodeResult, error) {
	const op = "fetch.FileFetcher.Fetch"

	if err := ctx.Err(); err != nil {
		kind := errors.FetchFailure(err)
		return nil, errors.E(kind, op, errors.Describe(kind), err)
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		kind := errors.FetchFailure(err)
		return nil, errors.E(kind, op, errors.Describe(kind), err)
	}

	data, err = compress.For(fileAlgorithm(f.path)).Decompress(data)
	if err != nil {
		return nil, errors.E(errors.KindUnknown, op, "decompress file", err)
	}

	result, err := finding.Decode(data)
	if err != nil {
		return nil, errors.E(errors.KindUnknown, op, "malformed payload", err)
	}
	f.logger.Debug("read %d records from %s (%d skipped)", len(result.Records), f.path, result.Skipped)
	return result, nil
}

func fileAlgorithm(path string) compress.Algorithm {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".zstd":
		return compress.AlgorithmZSTD
	case ".gz":
		return compress.AlgorithmGzip
	default:
		return compress.AlgorithmNone
	}
}

// DefaultDebounce coalesces bursts of file events into one change.
const DefaultDebounce = 200 * time.Millisecond

// Watch calls onChange after path is written, created or renamed into place,
// coalescing events within debounce. The parent directory is watched so
// editors that replace the file atomically are seen. Watch blocks until ctx
// is done.
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func(), l logger.Logger) error {
	l = logger.OrNop(l)
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.E(errors.KindInternal, "fetch.Watch", "create watcher", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.E(errors.KindInvalidInput, "fetch.Watch", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return errors.E(errors.KindNotFound, "fetch.Watch", "watch directory", err)
	}
	l.Info("watching %s for changes", abs)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			l.Debug("file event %s on %s", ev.Op, ev.Name)
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.Warn("watch %s: %v", abs, err)
		}
	}
}
