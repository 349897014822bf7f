package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fefsmon/jobrate/pkg/errors"
	"github.com/fefsmon/jobrate/pkg/utils"
)

// Watcher reloads the configuration file when it changes and hands every
// configuration that validates to a callback. A reload that fails is logged
// and the previous configuration stays in effect.
type Watcher struct {
	path     string
	load     func() (*Configuration, error)
	onChange func(*Configuration)
	debounce time.Duration
	logger   *utils.StructuredLogger

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWatcher watches path. load builds the new configuration, typically a
// closure over Load with the command line options.
func NewWatcher(path string, load func() (*Configuration, error), onChange func(*Configuration), logger *utils.StructuredLogger) (*Watcher, error) {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeConfigLoad, "failed to create fsnotify watcher").
			WithComponent("config").
			WithCause(err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	return &Watcher{
		path:     filepath.Clean(abs),
		load:     load,
		onChange: onChange,
		debounce: 250 * time.Millisecond,
		logger:   logger.WithComponent("config-watcher"),
		watcher:  watcher,
	}, nil
}

// Start begins watching. The directory is watched rather than the file so
// that editors which replace the file by rename are followed.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to watch config directory").
			WithComponent("config").
			WithContext("file", w.path).
			WithCause(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.processEvents(ctx)

	w.logger.Info("Watching configuration", map[string]interface{}{"file": w.path})
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("Configuration file changed", map[string]interface{}{"op": event.Op.String()})
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Configuration watcher error", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.load()
	if err != nil {
		w.logger.Warn("Configuration reload rejected, keeping previous settings", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	w.logger.Info("Configuration reloaded", nil)
	w.onChange(cfg)
}
