package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. PARKING_FEED_URL.
const EnvPrefix = "PARKING"

// Config is the top-level configuration of a parking-sync terminal.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Feed     FeedConfig     `yaml:"feed"`
	API      APIConfig      `yaml:"api"`
	Store    StoreConfig    `yaml:"store"`
	Cache    CacheConfig    `yaml:"cache"`
	Poller   PollerConfig   `yaml:"poller"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
}

// InstanceConfig identifies this terminal.
type InstanceConfig struct {
	ID string `yaml:"id" split_words:"true"`
}

// FeedConfig configures the live occupancy feed connection.
type FeedConfig struct {
	URL                  string        `yaml:"url" split_words:"true"`
	ClientID             string        `yaml:"client_id" split_words:"true"`
	Gates                []string      `yaml:"gates" split_words:"true"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay" split_words:"true"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay" split_words:"true"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" split_words:"true"`
	ReconnectJitter      float64       `yaml:"reconnect_jitter" split_words:"true"`
	ForceReconnectDelay  time.Duration `yaml:"force_reconnect_delay" split_words:"true"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval" split_words:"true"`
	DialTimeout          time.Duration `yaml:"dial_timeout" split_words:"true"`
	WriteTimeout         time.Duration `yaml:"write_timeout" split_words:"true"`
	ReadLimit            int64         `yaml:"read_limit" split_words:"true"`
	MaxPendingMessages   int           `yaml:"max_pending_messages" split_words:"true"`
}

// APIConfig configures the REST client used to seed the cache.
type APIConfig struct {
	RestURL    string        `yaml:"rest_url" split_words:"true"`
	Timeout    time.Duration `yaml:"timeout" split_words:"true"`
	MaxRetries int           `yaml:"max_retries" split_words:"true"`
	RateLimit  float64       `yaml:"rate_limit" split_words:"true"` // requests per second, 0 = unlimited
	RateBurst  int           `yaml:"rate_burst" split_words:"true"`
}

// Store backends.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMongo    = "mongo"
)

// StoreConfig selects and configures the durable state backend.
type StoreConfig struct {
	Type     string        `yaml:"type" split_words:"true"`
	File     FileConfig    `yaml:"file"`
	Postgres DBConfig      `yaml:"postgres"`
	Redis    RedisConfig   `yaml:"redis"`
	Mongo    MongoConfig   `yaml:"mongo"`
	Timeout  time.Duration `yaml:"timeout" split_words:"true"`
}

// FileConfig configures the file store.
type FileConfig struct {
	Dir string `yaml:"dir" split_words:"true"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `yaml:"host" split_words:"true"`
	Port     int    `yaml:"port" split_words:"true"`
	Name     string `yaml:"name" split_words:"true"`
	User     string `yaml:"user" split_words:"true"`
	Password string `yaml:"password" split_words:"true"`
	SSLMode  string `yaml:"sslmode" split_words:"true"`
	MaxConns int    `yaml:"max_conns" split_words:"true"`
	MinConns int    `yaml:"min_conns" split_words:"true"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr      string `yaml:"addr" split_words:"true"`
	Password  string `yaml:"password" split_words:"true"`
	DB        int    `yaml:"db" split_words:"true"`
	KeyPrefix string `yaml:"key_prefix" split_words:"true"`
}

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI        string `yaml:"uri" split_words:"true"`
	Database   string `yaml:"database" split_words:"true"`
	Collection string `yaml:"collection" split_words:"true"`
}

// CacheConfig configures the zone cache and its persistence.
type CacheConfig struct {
	MaxAge       time.Duration `yaml:"max_age" split_words:"true"`
	SaveInterval time.Duration `yaml:"save_interval" split_words:"true"`
}

// PollerConfig configures periodic REST reconciliation. A zero interval
// disables the poller.
type PollerConfig struct {
	Interval time.Duration `yaml:"interval" split_words:"true"`
}

// HTTPConfig configures the operator status endpoint. An empty address
// disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr" split_words:"true"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" split_words:"true"`
	Format string `yaml:"format" split_words:"true"` // "console" or "json"
}

// Load reads the YAML file at path, expanding ${VAR} references, then
// applies PARKING_* environment overrides. Defaults are not applied.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process env overrides: %w", err)
	}

	return cfg, nil
}

// LoadWithDefaults loads the config and fills unset fields with defaults.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads the config, applies defaults and validates it.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
