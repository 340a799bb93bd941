package am

import (
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/logger"
)

// ReloadCallback receives each validated configuration after a file change
type ReloadCallback func(*Config) error

// ConfigWatcher reloads the active config file when it changes on disk and
// hands the result to registered callbacks. A running server uses it to pick
// up jobs.max_workers, retention and allowed origins without a restart.
type ConfigWatcher struct {
	path    string
	fsw     *fsnotify.Watcher
	log     *zap.SugaredLogger
	loader  func() (*Config, error)
	ownSave atomic.Bool // set by UpdateSetting so its own write is not reloaded

	mu             sync.Mutex
	callbacks      []ReloadCallback
	pending        *time.Timer
	debouncePeriod time.Duration
}

var (
	globalWatcher   *ConfigWatcher
	globalWatcherMu sync.Mutex
)

// editor and UpdateSetting backups
var backupSuffix = regexp.MustCompile(`\.back[1-3]$`)

// NewConfigWatcher watches the directory holding path, since editors often
// replace the file instead of writing it in place.
func NewConfigWatcher(path string) (*ConfigWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, errors.Wrapf(err, "failed to watch config file %s", path)
	}

	return &ConfigWatcher{
		path:           filepath.Clean(path),
		fsw:            fsw,
		log:            logger.ComponentLogger("am.watcher"),
		debouncePeriod: 500 * time.Millisecond,
		loader: func() (*Config, error) {
			Reset()
			return Load()
		},
	}, nil
}

func (cw *ConfigWatcher) OnReload(cb ReloadCallback) {
	cw.mu.Lock()
	cw.callbacks = append(cw.callbacks, cb)
	cw.mu.Unlock()
}

// MarkOwnWrite suppresses the reload for the next change event
func (cw *ConfigWatcher) MarkOwnWrite() {
	cw.ownSave.Store(true)
}

// Start runs the event loop until Stop
func (cw *ConfigWatcher) Start() {
	go cw.loop()
}

func (cw *ConfigWatcher) Stop() error {
	return cw.fsw.Close()
}

func (cw *ConfigWatcher) loop() {
	for {
		select {
		case ev, ok := <-cw.fsw.Events:
			if !ok {
				return
			}
			if !cw.concerns(ev) {
				continue
			}
			if cw.ownSave.CompareAndSwap(true, false) {
				cw.log.Debugw("Ignoring config write made by am set", "file", ev.Name)
				continue
			}
			cw.log.Infow("Config file changed", "file", ev.Name, "op", ev.Op.String())
			cw.debounce()

		case err, ok := <-cw.fsw.Errors:
			if !ok {
				return
			}
			cw.log.Warnw("Config watcher error", logger.FieldError, err)
		}
	}
}

// concerns reports whether ev is a write or create of the watched file
func (cw *ConfigWatcher) concerns(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != cw.path || backupSuffix.MatchString(ev.Name) {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)
}

// debounce collapses a burst of events into one reload
func (cw *ConfigWatcher) debounce() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.pending != nil {
		cw.pending.Stop()
	}
	cw.pending = time.AfterFunc(cw.debouncePeriod, func() {
		if err := cw.reload(); err != nil {
			cw.log.Errorw("Config reload rejected", logger.FieldError, err)
		}
	})
}

// reload keeps the previous configuration when the new one fails to load or validate
func (cw *ConfigWatcher) reload() error {
	cfg, err := cw.loader()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "reloaded config is invalid")
	}
	cw.log.Infow("Config reloaded", "path", cw.path)

	cw.mu.Lock()
	callbacks := append([]ReloadCallback(nil), cw.callbacks...)
	cw.mu.Unlock()

	for _, cb := range callbacks {
		if err := cb(cfg); err != nil {
			cw.log.Warnw("Config reload callback failed", logger.FieldError, err)
		}
	}
	return nil
}

// SetGlobalWatcher registers the server's watcher so UpdateSetting can mark its writes
func SetGlobalWatcher(w *ConfigWatcher) {
	globalWatcherMu.Lock()
	globalWatcher = w
	globalWatcherMu.Unlock()
}

func GetGlobalWatcher() *ConfigWatcher {
	globalWatcherMu.Lock()
	defer globalWatcherMu.Unlock()
	return globalWatcher
}
