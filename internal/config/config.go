// Package config provides configuration loading for the contex engine,
// including fsnotify-driven hot-reload for the two fields safe to change
// without restarting an in-flight encode.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for an embedding process. Every field
// maps to an ambient or domain concern named in the engine's component
// design; there is no HTTP/auth/storage-backend surface because the core
// is an in-process library, not a service.
type Config struct {
	Canonicalization CanonicalizationConfig `yaml:"canonicalization"`
	Schema           SchemaConfig           `yaml:"schema"`
	Tokenizer        TokenizerConfig        `yaml:"tokenizer"`
	TokenMemory      TokenMemoryConfig      `yaml:"token_memory"`
	Logging          LoggingConfig          `yaml:"logging"`
}

// CanonicalizationConfig has no tunables today; it exists so the
// canonicalizer's normalization version can be pinned in config if a
// future revision needs one, without reshaping Config.
type CanonicalizationConfig struct {
	Version string `yaml:"version"`
}

// SchemaConfig controls schema-registry behavior.
type SchemaConfig struct {
	// UnificationThreshold is the Single-Schema-Mode cutoff (spec §3),
	// overriding internal/tens.SingleSchemaFieldThreshold. An Engine built
	// with WithConfigWatcher reads this via Watcher.UnificationThreshold()
	// on every EncodeBinary/EncodeText/EncodeIR call, so a reload is
	// visible starting with the next call; it never affects a call already
	// in progress, since schema lifetimes are scoped to one encode call.
	UnificationThreshold int `yaml:"unification_threshold"`
}

// TokenizerConfig controls the tokenizer adapter's cache.
type TokenizerConfig struct {
	CacheSize int `yaml:"cache_size"`
}

// TokenMemoryConfig controls the content-addressed store.
type TokenMemoryConfig struct {
	RootDir string `yaml:"root_dir"`
}

// LoggingConfig controls the default slog sink.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns a configuration with the engine's default values.
func DefaultConfig() *Config {
	return &Config{
		Schema: SchemaConfig{
			UnificationThreshold: 200,
		},
		Tokenizer: TokenizerConfig{
			CacheSize: 10_000,
		},
		TokenMemory: TokenMemoryConfig{
			RootDir: ".contex",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file and environment variables.
// Environment variables override file configuration. An empty path loads
// defaults plus environment overrides only.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		// #nosec G304 -- path is caller-controlled, not derived from untrusted input
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CONTEX_UNIFICATION_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Schema.UnificationThreshold = n
		}
	}
	if v := os.Getenv("CONTEX_TOKENIZER_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Tokenizer.CacheSize = n
		}
	}
	if v := os.Getenv("CONTEX_TOKEN_MEMORY_ROOT"); v != "" {
		c.TokenMemory.RootDir = v
	}
	if v := os.Getenv("CONTEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CONTEX_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate checks the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Schema.UnificationThreshold < 0 {
		return fmt.Errorf("unification_threshold must be >= 0, got %d", c.Schema.UnificationThreshold)
	}
	if c.Tokenizer.CacheSize < 0 {
		return fmt.Errorf("tokenizer cache_size must be >= 0, got %d", c.Tokenizer.CacheSize)
	}
	if c.TokenMemory.RootDir == "" {
		return fmt.Errorf("token_memory.root_dir must not be empty")
	}
	level := strings.ToLower(c.Logging.Level)
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}
	return nil
}

// Watcher hot-reloads the unification threshold and tokenizer cache size
// from a config file as it changes on disk. These are the only two fields
// safe to change without restarting an in-flight encode: schema and
// dictionary state are scoped to a single encode call (spec §3 Lifecycle),
// so a change only ever affects encodes that start after it lands.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	mu      sync.RWMutex
	current *Config
	onError func(error)
}

// NewWatcher loads path once, then watches it for changes. onError (may be
// nil) receives reload failures; the previously loaded config is kept on
// a failed reload so a transient or invalid write never disables a
// running process.
func NewWatcher(path string, onError func(error)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch config file: %w", err)
	}

	w := &Watcher{path: path, watcher: fw, current: cfg, onError: onError}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		if w.onError != nil {
			w.onError(fmt.Errorf("reload config: %w", err))
		}
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	// Only the threshold and cache size are safe to hot-swap; carry the
	// rest of the previously loaded config forward unchanged.
	w.current.Schema.UnificationThreshold = cfg.Schema.UnificationThreshold
	w.current.Tokenizer.CacheSize = cfg.Tokenizer.CacheSize
}

// UnificationThreshold returns the current (possibly hot-reloaded) value.
func (w *Watcher) UnificationThreshold() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current.Schema.UnificationThreshold
}

// TokenizerCacheSize returns the current (possibly hot-reloaded) value.
func (w *Watcher) TokenizerCacheSize() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current.Tokenizer.CacheSize
}

// Close stops watching the config file.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
