package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: gate-terminal-1
feed:
  url: wss://feed.example.com/ws
  gates: [gate_1, gate_2]
  reconnect_base_delay: 2s
api:
  rest_url: https://parking.example.com/api
store:
  type: postgres
  postgres:
    host: localhost
    port: 5432
    name: parking
    user: sync
    password: secret
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "gate-terminal-1" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "gate-terminal-1")
	}
	if cfg.Feed.URL != "wss://feed.example.com/ws" {
		t.Errorf("Feed.URL = %q", cfg.Feed.URL)
	}
	if len(cfg.Feed.Gates) != 2 || cfg.Feed.Gates[1] != "gate_2" {
		t.Errorf("Feed.Gates = %v", cfg.Feed.Gates)
	}
	if cfg.Feed.ReconnectBaseDelay != 2*time.Second {
		t.Errorf("Feed.ReconnectBaseDelay = %v, want 2s", cfg.Feed.ReconnectBaseDelay)
	}
	if cfg.Store.Postgres.Host != "localhost" {
		t.Errorf("Store.Postgres.Host = %q, want %q", cfg.Store.Postgres.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
store:
  postgres:
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Store.Postgres.Password != "secret123" {
		t.Errorf("Store.Postgres.Password = %q, want %q", cfg.Store.Postgres.Password, "secret123")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("PARKING_FEED_URL", "ws://override:9000/ws")
	t.Setenv("PARKING_FEED_MAX_RECONNECT_ATTEMPTS", "9")
	t.Setenv("PARKING_STORE_REDIS_ADDR", "redis:6379")
	t.Setenv("PARKING_FEED_GATES", "gate_a,gate_b")

	yaml := `
feed:
  url: ws://from-file/ws
  max_reconnect_attempts: 3
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Feed.URL != "ws://override:9000/ws" {
		t.Errorf("Feed.URL = %q, want env override", cfg.Feed.URL)
	}
	if cfg.Feed.MaxReconnectAttempts != 9 {
		t.Errorf("Feed.MaxReconnectAttempts = %d, want 9", cfg.Feed.MaxReconnectAttempts)
	}
	if cfg.Store.Redis.Addr != "redis:6379" {
		t.Errorf("Store.Redis.Addr = %q", cfg.Store.Redis.Addr)
	}
	if strings.Join(cfg.Feed.Gates, ",") != "gate_a,gate_b" {
		t.Errorf("Feed.Gates = %v", cfg.Feed.Gates)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
feed:
  url: ws://localhost:8080/ws
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Feed.ReconnectBaseDelay != DefaultReconnectBaseDelay {
		t.Errorf("Feed.ReconnectBaseDelay = %v, want default %v", cfg.Feed.ReconnectBaseDelay, DefaultReconnectBaseDelay)
	}
	if cfg.Feed.ReconnectMaxDelay != 30*time.Second {
		t.Errorf("Feed.ReconnectMaxDelay = %v, want 30s", cfg.Feed.ReconnectMaxDelay)
	}
	if cfg.Feed.MaxReconnectAttempts != 5 {
		t.Errorf("Feed.MaxReconnectAttempts = %d, want 5", cfg.Feed.MaxReconnectAttempts)
	}
	if cfg.Cache.MaxAge != 5*time.Minute {
		t.Errorf("Cache.MaxAge = %v, want 5m", cfg.Cache.MaxAge)
	}
	if cfg.Store.Type != StoreFile {
		t.Errorf("Store.Type = %q, want %q", cfg.Store.Type, StoreFile)
	}
	if cfg.Store.Postgres.Port != DefaultDBPort {
		t.Errorf("Store.Postgres.Port = %d, want default %d", cfg.Store.Postgres.Port, DefaultDBPort)
	}
	if cfg.API.RateBurst != 0 {
		t.Errorf("API.RateBurst = %d, want 0 without a rate limit", cfg.API.RateBurst)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, "feed:\n  url: http://not-a-websocket\n")

	_, err := LoadAndValidate(path)
	if err == nil || !strings.Contains(err.Error(), "feed.url must use ws or wss") {
		t.Fatalf("LoadAndValidate error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{Feed: FeedConfig{URL: "ws://localhost/ws"}}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing feed url",
			mutate:  func(c *Config) { c.Feed.URL = "" },
			wantErr: "feed.url is required",
		},
		{
			name:    "jitter out of range",
			mutate:  func(c *Config) { c.Feed.ReconnectJitter = 1.5 },
			wantErr: "feed.reconnect_jitter must be between 0 and 1, got 1.5",
		},
		{
			name: "max delay below base delay",
			mutate: func(c *Config) {
				c.Feed.ReconnectMaxDelay = time.Second
			},
			wantErr: "feed.reconnect_max_delay (1s) cannot be less than reconnect_base_delay (3s)",
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.Store.Type = "etcd" },
			wantErr: `store.type "etcd" is not supported`,
		},
		{
			name:    "postgres without host",
			mutate:  func(c *Config) { c.Store.Type = StorePostgres },
			wantErr: "store.postgres.host is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Store.Type = StorePostgres
				c.Store.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10}
			},
			wantErr: "store.postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "redis without addr",
			mutate:  func(c *Config) { c.Store.Type = StoreRedis },
			wantErr: "store.redis.addr is required",
		},
		{
			name:    "mongo without uri",
			mutate:  func(c *Config) { c.Store.Type = StoreMongo },
			wantErr: "store.mongo.uri is required",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: `log.format must be console or json, got "xml"`,
		},
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
