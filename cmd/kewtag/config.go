package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// configFileName is searched for walking up from the working directory
// when --config is not given.
const configFileName = "kewtag.yaml"

// Config is the serve configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Registry RegistryConfig `yaml:"registry"`
	Notify   NotifyConfig   `yaml:"notify"`
	Render   RenderConfig   `yaml:"render"`
	Redis    RedisConfig    `yaml:"redis"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ScanRate        float64       `yaml:"scan_rate"` // scans per second per client; 0 disables
	ScanBurst       int           `yaml:"scan_burst"`
	ScanLimiter     string        `yaml:"scan_limiter"` // memory | redis
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects and configures the entity store.
type StoreConfig struct {
	Driver        string `yaml:"driver"` // memory | badger | redis | mongo | postgres
	BadgerPath    string `yaml:"badger_path"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	Codec         string `yaml:"codec"` // json | msgpack | protobuf; badger and redis only
}

// RegistryConfig selects the code reservation registry.
type RegistryConfig struct {
	Driver   string        `yaml:"driver"` // none | memory | redis | postgres
	TTL      time.Duration `yaml:"ttl"`
	Attempts int           `yaml:"attempts"`
}

// NotifyConfig selects the lifecycle event publisher.
type NotifyConfig struct {
	Driver  string   `yaml:"driver"` // none, nats, kafka or a comma-separated list
	URL     string   `yaml:"url"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Subject string   `yaml:"subject_prefix"`
	Codec   string   `yaml:"codec"`
}

// RenderConfig sets the QR image sizes in pixels.
type RenderConfig struct {
	StandardSize int  `yaml:"standard_size"`
	PrintSize    int  `yaml:"print_size"`
	Border       bool `yaml:"border"`
}

// RedisConfig is shared by every Redis-backed component.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DefaultConfig returns a configuration that serves from memory on :8080.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ScanRate:        5,
			ScanBurst:       20,
			ScanLimiter:     "memory",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver:        "memory",
			MongoDatabase: "kewtag",
		},
		Registry: RegistryConfig{Driver: "none"},
		Notify:   NotifyConfig{Driver: "none"},
		Render: RenderConfig{
			StandardSize: 256,
			PrintSize:    1024,
			Border:       true,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
	}
}

// LoadConfig reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path searches for kewtag.yaml walking up
// from the working directory; finding none is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// findConfigFile searches for kewtag.yaml walking up from current directory.
func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(dir, configFileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// applyEnv overrides fields from KEWTAG_* environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"KEWTAG_ADDR":           &c.Server.Addr,
		"KEWTAG_STORE":          &c.Store.Driver,
		"KEWTAG_BADGER_PATH":    &c.Store.BadgerPath,
		"KEWTAG_MONGO_URI":      &c.Store.MongoURI,
		"KEWTAG_POSTGRES_DSN":   &c.Store.PostgresDSN,
		"KEWTAG_REDIS_ADDR":     &c.Redis.Addr,
		"KEWTAG_REDIS_PASSWORD": &c.Redis.Password,
		"KEWTAG_REGISTRY":       &c.Registry.Driver,
		"KEWTAG_NOTIFY":         &c.Notify.Driver,
		"KEWTAG_NATS_URL":       &c.Notify.URL,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	if v, ok := lookup("KEWTAG_SCAN_RATE"); ok {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("KEWTAG_SCAN_RATE: %w", err)
		}
		c.Server.ScanRate = rate
	}
	return nil
}

// Validate checks driver names and the settings each driver needs.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.ScanRate < 0 || c.Server.ScanBurst < 0 {
		errs = append(errs, errors.New("server.scan_rate and server.scan_burst must not be negative"))
	}
	if c.Server.ScanRate > 0 && c.Server.ScanBurst == 0 {
		errs = append(errs, errors.New("server.scan_burst must be positive when scan_rate is set"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	switch c.Server.ScanLimiter {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("server.scan_limiter: unknown limiter %q", c.Server.ScanLimiter))
	}

	switch c.Store.Driver {
	case "memory", "redis":
	case "badger":
		// empty path keeps badger in memory
	case "mongo":
		if c.Store.MongoURI == "" {
			errs = append(errs, errors.New("store.mongo_uri is required for the mongo store"))
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	if _, err := codecByName(c.Store.Codec); err != nil {
		errs = append(errs, fmt.Errorf("store.codec: %w", err))
	}

	switch c.Registry.Driver {
	case "none", "memory", "redis":
	case "postgres":
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required for the postgres registry"))
		}
	default:
		errs = append(errs, fmt.Errorf("registry.driver: unknown driver %q", c.Registry.Driver))
	}

	for _, driver := range notifyDrivers(c.Notify.Driver) {
		switch driver {
		case "nats":
			if c.Notify.URL == "" {
				errs = append(errs, errors.New("notify.url is required for nats"))
			}
		case "kafka":
			if len(c.Notify.Brokers) == 0 {
				errs = append(errs, errors.New("notify.brokers is required for kafka"))
			}
		default:
			errs = append(errs, fmt.Errorf("notify.driver: unknown driver %q", driver))
		}
	}
	if _, err := codecByName(c.Notify.Codec); err != nil {
		errs = append(errs, fmt.Errorf("notify.codec: %w", err))
	}

	if c.Render.StandardSize <= 0 || c.Render.PrintSize <= 0 {
		errs = append(errs, errors.New("render sizes must be positive"))
	}
	return errors.Join(errs...)
}
