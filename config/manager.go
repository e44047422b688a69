package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Manager owns the council config file. Every accepted change is validated, written atomically
// and then handed to the Watch callback; edits made to the file by hand arrive the same way.
type Manager struct {
	path     string
	debounce time.Duration
	log      logrus.FieldLogger

	mu       sync.Mutex
	cfg      Config
	onChange func(Config)
	watching bool
}

type ManagerOption func(*Manager)

func WithConfigPath(path string) ManagerOption {
	return func(m *Manager) {
		if path != "" {
			m.path = path
		}
	}
}

// WithDebounce sets how long the watcher waits for a burst of file events to settle.
func WithDebounce(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.debounce = d
		}
	}
}

func WithLogger(log logrus.FieldLogger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithInitialConfig seeds a config file that does not exist yet. An existing file wins.
func WithInitialConfig(cfg *Config) ManagerOption {
	return func(m *Manager) {
		if cfg != nil {
			m.cfg = *cfg
		}
	}
}

// NewManager loads the config file, creating it from defaults (or WithInitialConfig) when missing.
// Without WithConfigPath the file lives under the user config dir.
func NewManager(opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		debounce: 300 * time.Millisecond,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.WithField("component", "config")

	if m.path == "" {
		path, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		m.path = path
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	cfg, err := readConfig(m.path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		cfg = m.cfg
		if reflect.DeepEqual(cfg, Config{}) {
			cfg = *DefaultConfigWithRoot(filepath.Dir(m.path))
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if err := writeConfigFile(m.path, cfg); err != nil {
			return nil, fmt.Errorf("write initial config: %w", err)
		}
	default:
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", m.path, err)
	}
	m.cfg = cfg
	return m, nil
}

// DefaultPath is <user config dir>/AnalystCouncil/config.json, or ./config.json when the user
// config dir is unknown.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		if dir, err = os.Getwd(); err != nil {
			return "", err
		}
		return filepath.Join(dir, "config.json"), nil
	}
	return filepath.Join(dir, "AnalystCouncil", "config.json"), nil
}

func (m *Manager) Get() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

func (m *Manager) Path() string {
	return m.path
}

// Update replaces the whole config.
func (m *Manager) Update(next Config) error {
	if err := next.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	if reflect.DeepEqual(m.cfg, next) {
		m.mu.Unlock()
		return nil
	}
	if err := writeConfigFile(m.path, next); err != nil {
		m.mu.Unlock()
		return err
	}
	m.cfg = next
	cb := m.onChange
	m.mu.Unlock()

	if cb != nil {
		cb(next)
	}
	return nil
}

// UpdateFromJSON merges a JSON object over the current config. Keys that are not config fields
// are rejected.
func (m *Manager) UpdateFromJSON(patch string) error {
	next, err := applyPatch(m.Get(), []byte(patch))
	if err != nil {
		return err
	}
	return m.Update(next)
}

// Set updates one field addressed by its json tag, e.g. Set("quote_provider", "longport").
// The value is read as JSON first (numbers, booleans) and as a plain string otherwise.
func (m *Manager) Set(key, value string) error {
	current := m.Get()
	next, err := applyPatch(current, []byte(fmt.Sprintf("{%q: %s}", key, value)))
	if err != nil {
		quoted, _ := json.Marshal(value)
		if next, err = applyPatch(current, []byte(fmt.Sprintf("{%q: %s}", key, quoted))); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return m.Update(next)
}

func applyPatch(base Config, patch []byte) (Config, error) {
	dec := json.NewDecoder(bytes.NewReader(patch))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&base); err != nil {
		return Config{}, fmt.Errorf("parse config json: %w", err)
	}
	return base, nil
}

// Watch calls onChange with every valid config written to the file by someone else. Invalid edits
// are logged and ignored. The watcher stops with ctx.
func (m *Manager) Watch(ctx context.Context, onChange func(Config)) error {
	m.mu.Lock()
	m.onChange = onChange
	if m.watching {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// the directory is watched because editors and writeConfigFile replace the file by rename
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	m.mu.Lock()
	m.watching = true
	m.mu.Unlock()
	go m.watchLoop(ctx, watcher)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	settle := time.NewTimer(m.debounce)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.watching = false
			m.mu.Unlock()
			return
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(m.path) ||
				evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			settle.Reset(m.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.log.WithError(err).Warn("config watcher error")
		case <-settle.C:
			m.reload()
		}
	}
}

func (m *Manager) reload() {
	cfg, err := readConfig(m.path)
	if errors.Is(err, os.ErrNotExist) {
		// mid-rename, the next event brings the new file
		return
	}
	if err != nil {
		m.log.WithError(err).Error("config reload failed")
		return
	}
	if err := cfg.Validate(); err != nil {
		m.log.WithError(err).Error("config validation failed, keeping previous config")
		return
	}

	m.mu.Lock()
	// our own writes land here too and are already applied
	if reflect.DeepEqual(m.cfg, cfg) {
		m.mu.Unlock()
		return
	}
	m.cfg = cfg
	cb := m.onChange
	m.mu.Unlock()

	m.log.WithField("path", m.path).Info("config reloaded")
	if cb != nil {
		cb(cfg)
	}
}

// readConfig decodes path over the defaults, so fields missing from the file keep their defaults.
func readConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := *DefaultConfigWithRoot(filepath.Dir(path))
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// writeConfigFile replaces path atomically with cfg as indented JSON.
func writeConfigFile(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.json")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
