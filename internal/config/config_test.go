package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Schema.UnificationThreshold != 200 {
		t.Errorf("expected default unification_threshold 200, got %d", cfg.Schema.UnificationThreshold)
	}
	if cfg.Tokenizer.CacheSize != 10_000 {
		t.Errorf("expected default tokenizer cache_size 10000, got %d", cfg.Tokenizer.CacheSize)
	}
	if cfg.TokenMemory.RootDir != ".contex" {
		t.Errorf("expected default root_dir .contex, got %s", cfg.TokenMemory.RootDir)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default logging level info, got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected default logging format json, got %s", cfg.Logging.Format)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid default", func(c *Config) {}, false},
		{"negative threshold", func(c *Config) { c.Schema.UnificationThreshold = -1 }, true},
		{"negative cache size", func(c *Config) { c.Tokenizer.CacheSize = -1 }, true},
		{"empty root dir", func(c *Config) { c.TokenMemory.RootDir = "" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"zero threshold is valid", func(c *Config) { c.Schema.UnificationThreshold = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected an error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestLoad_FromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contex.yaml")
	contents := `
schema:
  unification_threshold: 50
tokenizer:
  cache_size: 500
token_memory:
  root_dir: /tmp/cache
logging:
  level: debug
  format: text
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Schema.UnificationThreshold != 50 {
		t.Errorf("expected unification_threshold 50, got %d", cfg.Schema.UnificationThreshold)
	}
	if cfg.Tokenizer.CacheSize != 500 {
		t.Errorf("expected cache_size 500, got %d", cfg.Tokenizer.CacheSize)
	}
	if cfg.TokenMemory.RootDir != "/tmp/cache" {
		t.Errorf("expected root_dir /tmp/cache, got %s", cfg.TokenMemory.RootDir)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	os.Setenv("CONTEX_UNIFICATION_THRESHOLD", "75")
	os.Setenv("CONTEX_TOKENIZER_CACHE_SIZE", "999")
	os.Setenv("CONTEX_LOG_LEVEL", "warn")
	defer func() {
		os.Unsetenv("CONTEX_UNIFICATION_THRESHOLD")
		os.Unsetenv("CONTEX_TOKENIZER_CACHE_SIZE")
		os.Unsetenv("CONTEX_LOG_LEVEL")
	}()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Schema.UnificationThreshold != 75 {
		t.Errorf("expected env override 75, got %d", cfg.Schema.UnificationThreshold)
	}
	if cfg.Tokenizer.CacheSize != 999 {
		t.Errorf("expected env override 999, got %d", cfg.Tokenizer.CacheSize)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected env override warn, got %s", cfg.Logging.Level)
	}
}

func TestLoad_InvalidFileIsRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("schema:\n  unification_threshold: -5\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected Load to reject an invalid configuration")
	}
}

func TestWatcher_HotReloadsThresholdAndCacheSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contex.yaml")
	initial := "schema:\n  unification_threshold: 200\ntokenizer:\n  cache_size: 10000\n"
	if err := os.WriteFile(path, []byte(initial), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	var lastErr error
	w, err := NewWatcher(path, func(e error) { lastErr = e })
	if err != nil {
		t.Fatalf("NewWatcher returned error: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	if w.UnificationThreshold() != 200 {
		t.Fatalf("expected initial threshold 200, got %d", w.UnificationThreshold())
	}

	updated := "schema:\n  unification_threshold: 64\ntokenizer:\n  cache_size: 2048\n"
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("rewrite config file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.UnificationThreshold() == 64 && w.TokenizerCacheSize() == 2048 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if w.UnificationThreshold() != 64 {
		t.Errorf("expected hot-reloaded threshold 64, got %d", w.UnificationThreshold())
	}
	if w.TokenizerCacheSize() != 2048 {
		t.Errorf("expected hot-reloaded cache size 2048, got %d", w.TokenizerCacheSize())
	}
	if lastErr != nil {
		t.Errorf("unexpected reload error: %v", lastErr)
	}
}
