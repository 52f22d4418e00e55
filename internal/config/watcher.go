package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"credbroker/pkg/logging"
)

// DebounceInterval is the time to wait before triggering a reload after
// the last file change is detected. Editors often write a config file
// several times in quick succession.
const DebounceInterval = 500 * time.Millisecond

// Watcher monitors the config file for changes and reloads it. Provider
// and tuning changes apply to flows started after the reload; in-flight
// flows keep the endpoints they were created with.
type Watcher struct {
	mu sync.Mutex

	configPath string
	onReload   func(BrokerConfig)

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	debounceTimer *time.Timer
	debounceMu    sync.Mutex
}

// NewWatcher creates a watcher for the config.yaml inside configPath.
// onReload is called with the freshly loaded configuration after every
// successful reload.
func NewWatcher(configPath string, onReload func(BrokerConfig)) *Watcher {
	return &Watcher{
		configPath: configPath,
		onReload:   onReload,
	}
}

// Start begins watching for configuration changes.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(w.configPath); err != nil {
		watcher.Close()
		return err
	}

	w.fsWatcher = watcher
	w.stopCh = make(chan struct{})
	w.running = true

	// Capture channels before releasing lock to avoid race conditions
	eventsCh := watcher.Events
	errorsCh := watcher.Errors

	go w.processEvents(eventsCh, errorsCh)

	logging.Info("ConfigWatcher", "Watching %s for configuration changes", w.configPath)
	return nil
}

// processEvents handles fsnotify events.
// The channels are passed as parameters to avoid race conditions with Stop().
func (w *Watcher) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("ConfigWatcher", err, "fsnotify error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != configFileName {
		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	logging.Debug("ConfigWatcher", "Configuration file changed: %s", event.Name)
	w.triggerReloadDebounced()
}

// triggerReloadDebounced reloads after a debounce period so that several
// rapid writes coalesce into one reload.
func (w *Watcher) triggerReloadDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(DebounceInterval, func() {
		w.mu.Lock()
		running := w.running
		callback := w.onReload
		w.mu.Unlock()

		if !running || callback == nil {
			return
		}

		cfg, err := LoadConfig(w.configPath)
		if err != nil {
			logging.Error("ConfigWatcher", err, "Reload failed, keeping previous configuration")
			return
		}

		callback(cfg)
	})
}

// Stop gracefully stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	if w.fsWatcher != nil {
		if err := w.fsWatcher.Close(); err != nil {
			logging.Warn("ConfigWatcher", "Error closing fsnotify watcher: %v", err)
		}
		w.fsWatcher = nil
	}

	return nil
}
