// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	applog "keydetect/internal/log"
)

// HotConfig couples a Config with its source file and reloads it when the
// file changes, notifying subscribers with the fresh value. Reload errors
// keep the previous configuration in place.
type HotConfig struct {
	path    string
	watcher *fsnotify.Watcher

	mu   sync.RWMutex
	cfg  *Config
	subs []func(*Config)

	done      chan struct{}
	closeOnce sync.Once
}

// NewHotConfig loads the configuration from path and prepares it for
// watching. Watch must be called to start reloading.
func NewHotConfig(path string) (*HotConfig, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return &HotConfig{
		path: path,
		cfg:  cfg,
		done: make(chan struct{}),
	}, nil
}

// Get returns the most recently loaded configuration.
func (hc *HotConfig) Get() *Config {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.cfg
}

// OnReload registers a callback invoked with each successfully reloaded
// configuration. Register all callbacks before calling Watch; callbacks
// run on the watcher goroutine.
func (hc *HotConfig) OnReload(fn func(*Config)) {
	hc.mu.Lock()
	hc.subs = append(hc.subs, fn)
	hc.mu.Unlock()
}

// Watch starts monitoring the config file. Editors that replace the file
// on save emit Create rather than Write, so both trigger a reload.
func (hc *HotConfig) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Add(hc.path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", hc.path, err)
	}
	hc.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					hc.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				applog.Warnf("config: watcher error: %v", err)
			case <-hc.done:
				return
			}
		}
	}()

	applog.Infof("config: watching %s for changes", hc.path)
	return nil
}

func (hc *HotConfig) reload() {
	cfg, err := LoadConfig(hc.path)
	if err != nil {
		applog.Warnf("config: reload failed, keeping previous configuration: %v", err)
		return
	}

	hc.mu.Lock()
	hc.cfg = cfg
	subs := hc.subs
	hc.mu.Unlock()

	applog.Infof("config: reloaded %s", hc.path)
	for _, fn := range subs {
		fn(cfg)
	}
}

// Close stops watching. The last loaded configuration stays available
// through Get.
func (hc *HotConfig) Close() error {
	var err error
	hc.closeOnce.Do(func() {
		close(hc.done)
		if hc.watcher != nil {
			err = hc.watcher.Close()
		}
	})
	return err
}
