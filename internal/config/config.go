package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains runtime configuration required by the service.
type Config struct {
	DBURL      string `yaml:"db_url"`
	DBMaxConns int32  `yaml:"db_max_conns"`

	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// APIKeys maps apiKey -> client name. When empty, writes are open.
	// In the YAML file it is written the other way round (client: key).
	APIKeys map[string]string `yaml:"-"`

	Feed FeedConfig `yaml:"feed"`
	Log  LogConfig  `yaml:"log"`
}

// FeedConfig describes the machine feed connection.
type FeedConfig struct {
	URL              string        `yaml:"url"`
	Token            string        `yaml:"token"`
	InitialBackoff   time.Duration `yaml:"initial_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ReadLimit        int64         `yaml:"read_limit"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type fileConfig struct {
	Config  `yaml:",inline"`
	APIKeys map[string]string `yaml:"api_keys"`
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then environment variables:
//
//	DB_URL, DB_MAX_CONNS, HTTP_ADDR, FEED_URL, FEED_TOKEN,
//	API_KEYS ("client:key,client:key"), LOG_LEVEL, LOG_JSON
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		fc := fileConfig{Config: cfg}
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg = fc.Config
		cfg.APIKeys = map[string]string{}
		for client, key := range fc.APIKeys {
			if client == "" || key == "" {
				return Config{}, errors.New("api_keys entries must be non-empty")
			}
			cfg.APIKeys[key] = client
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		HTTPAddr:        ":5000",
		ShutdownTimeout: 10 * time.Second,
		APIKeys:         map[string]string{},
		Feed: FeedConfig{
			InitialBackoff:   time.Second,
			MaxBackoff:       30 * time.Second,
			WriteTimeout:     10 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			ReadLimit:        1 << 20,
		},
		Log: LogConfig{Level: "info"},
	}
}

func (c *Config) applyEnv() error {
	if v := env("DB_URL"); v != "" {
		c.DBURL = v
	}
	if v := env("DB_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return errors.New("DB_MAX_CONNS must be a positive integer")
		}
		c.DBMaxConns = int32(n)
	}
	if v := env("HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := env("FEED_URL"); v != "" {
		c.Feed.URL = v
	}
	if v := env("FEED_TOKEN"); v != "" {
		c.Feed.Token = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := env("LOG_JSON"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.New("LOG_JSON must be a boolean")
		}
		c.Log.JSON = b
	}

	apiKeysRaw := env("API_KEYS")
	if apiKeysRaw == "" {
		return nil
	}
	keys := map[string]string{}
	for _, p := range strings.Split(apiKeysRaw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 {
			return errors.New(`API_KEYS must be "client:key,client:key"`)
		}
		client := strings.TrimSpace(parts[0])
		key := strings.TrimSpace(parts[1])
		if client == "" || key == "" {
			return errors.New(`API_KEYS must be "client:key,client:key"`)
		}
		keys[key] = client
	}
	c.APIKeys = keys
	return nil
}

// applyDefaults fills values a YAML file may have zeroed.
func (c *Config) applyDefaults() {
	d := defaults()
	if c.HTTPAddr == "" {
		c.HTTPAddr = d.HTTPAddr
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.Feed.InitialBackoff <= 0 {
		c.Feed.InitialBackoff = d.Feed.InitialBackoff
	}
	if c.Feed.MaxBackoff <= 0 {
		c.Feed.MaxBackoff = d.Feed.MaxBackoff
	}
	if c.Feed.WriteTimeout <= 0 {
		c.Feed.WriteTimeout = d.Feed.WriteTimeout
	}
	if c.Feed.HandshakeTimeout <= 0 {
		c.Feed.HandshakeTimeout = d.Feed.HandshakeTimeout
	}
	if c.Feed.ReadLimit <= 0 {
		c.Feed.ReadLimit = d.Feed.ReadLimit
	}
	if c.APIKeys == nil {
		c.APIKeys = map[string]string{}
	}
}

func (c *Config) validate() error {
	if c.DBURL == "" {
		return errors.New("DB_URL required")
	}
	if c.Feed.URL == "" {
		return errors.New("FEED_URL required")
	}
	if !strings.HasPrefix(c.Feed.URL, "ws://") && !strings.HasPrefix(c.Feed.URL, "wss://") {
		return fmt.Errorf("feed url %q must use ws:// or wss://", c.Feed.URL)
	}
	if c.Feed.MaxBackoff < c.Feed.InitialBackoff {
		return errors.New("feed.max_backoff must be >= feed.initial_backoff")
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
