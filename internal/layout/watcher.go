package layout

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/obar/kmonad/internal/logging"
)

// Watcher monitors a layout file and reports changes for live reload.
// The parent directory is watched rather than the file itself, so editors
// that replace the file on save are still seen.
type Watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	log      *logging.Logger
	onChange func()
	debounce time.Duration
}

// NewWatcher creates a watcher for the given layout path. onChange runs
// after the file settles following a write or replacement.
func NewWatcher(path string, onChange func(), log *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		path:     abs,
		fsw:      fsw,
		log:      log.WithComponent("watcher"),
		onChange: onChange,
		debounce: 100 * time.Millisecond,
	}, nil
}

// Run delivers change notifications until the context is cancelled.
// Rapid event bursts from editors collapse into one notification.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.log.Debug("layout file %s: %s", ev.Op, ev.Name)
			pending = time.After(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error: %v", err)

		case <-pending:
			pending = nil
			w.onChange()
		}
	}
}
