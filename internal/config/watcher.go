package config

import (
	"errors"
	"os"
	"sync"
	"time"
)

// ErrMissingConfigFile is returned by NewConfigWatcher when mgr has no
// backing file, since there is nothing on disk to poll.
var ErrMissingConfigFile = errors.New("config: watcher requires a manager with a backing file")

// DefaultWatchPollInterval and DefaultWatchDebounce are ConfigWatcher's
// zero-value defaults.
const (
	DefaultWatchPollInterval = 100 * time.Millisecond
	DefaultWatchDebounce     = 200 * time.Millisecond
)

// ConfigWatcher polls a Manager's backing file for mtime/size changes and
// calls Manager.Reload once a burst of changes settles, so an operator
// editing the YAML file on disk doesn't need to restart the engine. Unlike
// the teacher's watcher, which carried its own copy of the load/validate/
// swap sequence and a separate OnChange callback, this one defers all of
// that to the Manager it watches — Manager is the single place a config
// transition happens, whether triggered by a poll or a direct Reload call.
type ConfigWatcher struct {
	mgr          *Manager
	pollInterval time.Duration
	debounce     time.Duration
	lastModTime  time.Time
	lastSize     int64
	stopCh       chan struct{}
	stoppedCh    chan struct{}
	mu           sync.Mutex
	running      bool
}

// NewConfigWatcher builds a watcher over mgr's backing file. A zero
// pollInterval or debounce falls back to DefaultWatchPollInterval /
// DefaultWatchDebounce.
func NewConfigWatcher(mgr *Manager, pollInterval, debounce time.Duration) (*ConfigWatcher, error) {
	if mgr.ConfigFile() == "" {
		return nil, ErrMissingConfigFile
	}

	if pollInterval == 0 {
		pollInterval = DefaultWatchPollInterval
	}
	if debounce == 0 {
		debounce = DefaultWatchDebounce
	}

	info, err := os.Stat(mgr.ConfigFile())
	if err != nil {
		return nil, err
	}

	return &ConfigWatcher{
		mgr:          mgr,
		pollInterval: pollInterval,
		debounce:     debounce,
		lastModTime:  info.ModTime(),
		lastSize:     info.Size(),
		stopCh:       make(chan struct{}),
		stoppedCh:    make(chan struct{}),
	}, nil
}

// Start begins polling the backing file on its own goroutine.
func (w *ConfigWatcher) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.watchLoop()
}

// Stop halts polling and waits for the watch goroutine to exit.
func (w *ConfigWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh
}

// watchLoop polls at pollInterval and, once a change has been quiet for
// debounce, calls Manager.Reload. A write in progress typically touches
// mtime/size more than once in quick succession; the debounce timer resets
// on every new change so Reload fires once the file has settled rather than
// mid-write.
func (w *ConfigWatcher) watchLoop() {
	defer close(w.stoppedCh)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var pendingReload bool
	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case <-ticker.C:
			changed, err := w.checkFileChanged()
			if err != nil {
				continue
			}

			if changed {
				pendingReload = true
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.NewTimer(w.debounce)
				debounceCh = debounceTimer.C
			}

		case <-debounceCh:
			if pendingReload {
				_ = w.mgr.Reload() // a rejected reload (bad YAML, failed validation) just keeps the prior config active
				pendingReload = false
			}
			debounceTimer = nil
			debounceCh = nil
		}
	}
}

// checkFileChanged reports whether the backing file's mtime or size has
// moved since the last check.
func (w *ConfigWatcher) checkFileChanged() (bool, error) {
	info, err := os.Stat(w.mgr.ConfigFile())
	if err != nil {
		return false, err
	}

	modTime := info.ModTime()
	size := info.Size()

	if modTime != w.lastModTime || size != w.lastSize {
		w.lastModTime = modTime
		w.lastSize = size
		return true, nil
	}

	return false, nil
}

// IsRunning reports whether the watcher's poll goroutine is active.
func (w *ConfigWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
