package config

import "sync"

// Watcher defines the behavior we expect from any configuration watcher
type Watcher interface {
	GetCurrentConfig() *Config
	Subscribe() <-chan *Config
	Close() error
}

// Verify at compile time that StaticWatcher implements Watcher
var _ Watcher = (*StaticWatcher)(nil)

// StaticWatcher serves a fixed configuration. It is used when the server
// runs from defaults and environment variables without a config file.
type StaticWatcher struct {
	cfg *Config

	mu          sync.Mutex
	subscribers []chan *Config
}

// NewStaticWatcher wraps cfg.
func NewStaticWatcher(cfg *Config) *StaticWatcher {
	return &StaticWatcher{cfg: cfg}
}

// GetCurrentConfig returns the wrapped configuration.
func (w *StaticWatcher) GetCurrentConfig() *Config {
	return w.cfg
}

// Subscribe returns a channel that only ever closes.
func (w *StaticWatcher) Subscribe() <-chan *Config {
	ch := make(chan *Config)
	w.mu.Lock()
	w.subscribers = append(w.subscribers, ch)
	w.mu.Unlock()
	return ch
}

// Close closes every subscriber channel.
func (w *StaticWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subscribers {
		close(ch)
	}
	w.subscribers = nil
	return nil
}
