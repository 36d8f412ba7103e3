package skills

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the library when skill files change on disk. Events are
// debounced so an editor's write-rename dance triggers one reload.
type Watcher struct {
	library  *Library
	watcher  *fsnotify.Watcher
	debounce time.Duration
	timerMu  sync.Mutex
	timer    *time.Timer
	done     chan struct{}
	stopOnce sync.Once
	logger   zerolog.Logger
}

// NewWatcher creates a watcher over the library's directory.
func NewWatcher(library *Library, logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		library:  library,
		watcher:  fsw,
		debounce: 200 * time.Millisecond,
		done:     make(chan struct{}),
		logger:   logger.With().Str("component", "skills").Logger(),
	}, nil
}

// Start begins watching and reloading.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.library.dir); err != nil {
		return fmt.Errorf("failed to watch skills directory: %w", err)
	}

	go w.eventLoop()
	w.logger.Info().Str("path", w.library.dir).Msg("Skills watcher started")
	return nil
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if strings.HasSuffix(event.Name, ".md") {
				w.scheduleReload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Watcher error")
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.library.Load(); err != nil {
			w.logger.Error().Err(err).Msg("Skill reload failed")
			return
		}
		w.logger.Debug().Msg("Skills reloaded")
	})
}
