// Package watch re-runs a callback when input files change.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/datashades/converge/internal/logger"
)

// DefaultDebounce coalesces bursts of writes from editors and config
// management tools.
const DefaultDebounce = 2 * time.Second

// Options configure Files.
type Options struct {
	Debounce time.Duration
	Logger   *logger.Logger
}

// Files calls fn every time one of paths is written, created or renamed
// into place, at most once per debounce window. It blocks until ctx is
// done and returns nil then. Errors from fn are logged, not returned.
//
// Parent directories are watched rather than the files themselves so that
// atomic replacement (write temp file, rename) is seen.
func Files(ctx context.Context, paths []string, opts Options, fn func(ctx context.Context) error) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	log := opts.Logger

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	targets := make(map[string]struct{}, len(paths))
	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", p, err)
		}
		targets[abs] = struct{}{}
		dir := filepath.Dir(abs)
		if _, seen := dirs[dir]; seen {
			continue
		}
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		dirs[dir] = struct{}{}
	}

	// fire is buffered so a pending trigger survives while fn runs.
	fire := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if _, watched := targets[filepath.Clean(event.Name)]; !watched {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			log.WithFields(map[string]any{"file": event.Name, "op": event.Op.String()}).Debug("input changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(opts.Debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn(fmt.Sprintf("watch error: %v", err))
		case <-fire:
			if err := fn(ctx); err != nil {
				log.Error(err, "triggered run failed")
			}
		}
	}
}
