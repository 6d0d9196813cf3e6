package config

import (
	"errors"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/marmos91/dittobin/internal/logger"
)

// ReloadFunc receives a configuration that was reloaded and validated after
// the file changed on disk.
type ReloadFunc func(*Config)

// Watcher reloads a configuration file when it changes.
//
// Only settings that are safe to change at runtime are applied by
// ApplyRuntime: the log level and format. Everything else takes effect on
// the next start.
type Watcher struct {
	path string
	v    *viper.Viper

	mu      sync.Mutex
	current *Config
	reloads int
	onLoad  []ReloadFunc
}

// NewWatcher starts watching path. cfg is the configuration currently in use.
func NewWatcher(path string, cfg *Config) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config watcher requires a file path")
	}

	w := &Watcher{path: path, v: viper.New(), current: cfg}
	w.v.SetConfigFile(path)
	if err := w.v.ReadInConfig(); err != nil {
		return nil, err
	}
	w.v.OnConfigChange(w.handle)
	w.v.WatchConfig()
	return w, nil
}

// OnReload registers fn to run after every successful reload.
func (w *Watcher) OnReload(fn ReloadFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onLoad = append(w.onLoad, fn)
}

// Current returns the last configuration that loaded successfully.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reloads returns how many reloads succeeded.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *Watcher) handle(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	w.reload()
}

// reload re-reads the file. An invalid file is logged and ignored so the
// running configuration stays in effect.
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logger.Warn("Configuration reload rejected", "path", w.path, logger.Err(err))
		return
	}

	w.mu.Lock()
	w.current = cfg
	w.reloads++
	callbacks := append([]ReloadFunc(nil), w.onLoad...)
	w.mu.Unlock()

	logger.Info("Configuration reloaded", "path", w.path)
	for _, fn := range callbacks {
		fn(cfg)
	}
}

// ApplyRuntime applies the runtime-adjustable settings of cfg.
func ApplyRuntime(cfg *Config) {
	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
}
