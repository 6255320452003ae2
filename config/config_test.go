package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
http:
  port: 8080
cache:
  size: 0
log:
  level: debug
`)

	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if config.HTTP.Port != 8080 {
		t.Errorf("expected port 8080, got %d", config.HTTP.Port)
	}
	if config.HTTP.ReadTimeout != 15*time.Second {
		t.Errorf("default read timeout lost: %v", config.HTTP.ReadTimeout)
	}
	if config.Cache.Size != 0 {
		t.Errorf("explicit cache size 0 should disable the cache, got %d", config.Cache.Size)
	}
	if config.Model.Dir != "models" || config.Training.NumTrees != 100 || config.Training.Seed != 42 {
		t.Errorf("unexpected defaults: %+v", config)
	}
	if config.Log.Level != "debug" || config.Log.Format != "console" {
		t.Errorf("unexpected log config: %+v", config.Log)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("PHISHGUARD_HOME", "/srv/phishguard")
	path := writeConfig(t, t.TempDir(), `
model:
  dir: ${PHISHGUARD_HOME}/models
database:
  path: $PHISHGUARD_HOME/app.db
http:
  request_timeout: 3s
`)

	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if config.Model.Dir != "/srv/phishguard/models" || config.Database.Path != "/srv/phishguard/app.db" {
		t.Errorf("env not expanded: %q %q", config.Model.Dir, config.Database.Path)
	}
	if config.HTTP.RequestTimeout != 3*time.Second {
		t.Errorf("expected 3s request timeout, got %v", config.HTTP.RequestTimeout)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad port", "http:\n  port: 70000\n"},
		{"negative cache", "cache:\n  size: -1\n"},
		{"bad ratio", "training:\n  test_ratio: 1.5\n"},
		{"bad rate limit", "rate_limit:\n  enabled: true\n  burst: 0\n"},
		{"bad yaml", "http: [\n"},
		{"bad proxy", "http:\n  trusted_proxies: [\"not-an-ip\"]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.body)
			if _, err := Load(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadTrustedProxies(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
http:
  trusted_proxies:
    - 10.0.0.0/8
    - 127.0.0.1
`)

	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(config.HTTP.TrustedProxies) != 2 || config.HTTP.TrustedProxies[0] != "10.0.0.0/8" {
		t.Errorf("unexpected trusted proxies: %v", config.HTTP.TrustedProxies)
	}
	if len(Default().HTTP.TrustedProxies) != 0 {
		t.Error("no proxy should be trusted by default")
	}
}

func TestLoadOrDefault(t *testing.T) {
	config, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if config.HTTP.Port != Default().HTTP.Port {
		t.Errorf("expected defaults, got %+v", config.HTTP)
	}
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "log:\n  level: info\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	if err := Watch(ctx, path, nil, func(c *Config) { changes <- c }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-changes:
		if c.Log.Level != "debug" {
			t.Errorf("expected reloaded level debug, got %q", c.Log.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config change not observed")
	}
}
