package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Feed.validate(); err != nil {
		return err
	}

	if c.API.RestURL == "" {
		return errors.New("api.rest_url is required")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}
	if c.API.RateLimit < 0 {
		return errors.New("api.rate_limit must be >= 0")
	}

	if err := c.Store.validate(); err != nil {
		return err
	}

	if c.Cache.MaxAge <= 0 {
		return errors.New("cache.max_age must be > 0")
	}
	if c.Poller.Interval < 0 {
		return errors.New("poller.interval must be >= 0")
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}

	return nil
}

func (f *FeedConfig) validate() error {
	if f.URL == "" {
		return errors.New("feed.url is required")
	}
	u, err := url.Parse(f.URL)
	if err != nil {
		return fmt.Errorf("feed.url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("feed.url must use ws or wss, got %q", u.Scheme)
	}
	if f.MaxReconnectAttempts < 0 {
		return errors.New("feed.max_reconnect_attempts must be >= 0")
	}
	if f.ReconnectMaxDelay < f.ReconnectBaseDelay {
		return fmt.Errorf("feed.reconnect_max_delay (%s) cannot be less than reconnect_base_delay (%s)",
			f.ReconnectMaxDelay, f.ReconnectBaseDelay)
	}
	if f.ReconnectJitter < 0 || f.ReconnectJitter > 1 {
		return fmt.Errorf("feed.reconnect_jitter must be between 0 and 1, got %g", f.ReconnectJitter)
	}
	return nil
}

func (s *StoreConfig) validate() error {
	switch s.Type {
	case StoreMemory:
	case StoreFile:
		if s.File.Dir == "" {
			return errors.New("store.file.dir is required")
		}
	case StorePostgres:
		return s.Postgres.validate("store.postgres")
	case StoreRedis:
		if s.Redis.Addr == "" {
			return errors.New("store.redis.addr is required")
		}
	case StoreMongo:
		if s.Mongo.URI == "" {
			return errors.New("store.mongo.uri is required")
		}
	default:
		return fmt.Errorf("store.type %q is not supported", s.Type)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
