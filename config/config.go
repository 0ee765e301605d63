package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Lifecycle  LifecycleConfig  `yaml:"lifecycle"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
}

// AuthConfig holds the secret used to verify bearer tokens issued by the identity provider.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// DelayConfig is a half-open [min, max) range in seconds.
type DelayConfig struct {
	MinSeconds float64 `yaml:"min_seconds"`
	MaxSeconds float64 `yaml:"max_seconds"`
}

// Min returns the lower bound as a duration.
func (d DelayConfig) Min() time.Duration {
	return time.Duration(d.MinSeconds * float64(time.Second))
}

// Max returns the upper bound as a duration.
func (d DelayConfig) Max() time.Duration {
	return time.Duration(d.MaxSeconds * float64(time.Second))
}

// LifecycleConfig controls automatic advancement of book requests.
type LifecycleConfig struct {
	PendingDelay             DelayConfig   `yaml:"pending_delay"`
	NavigatingDelay          DelayConfig   `yaml:"navigating_delay"`
	ReadyDelay               DelayConfig   `yaml:"ready_delay"`
	AllowConcurrentRequests  bool          `yaml:"allow_concurrent_requests"`
	ActivePageSize           int           `yaml:"active_page_size"`
	HistoryPageSize          int           `yaml:"history_page_size"`
	ReconcileIntervalSeconds int           `yaml:"reconcile_interval_seconds"`
	ReconcileInterval        time.Duration `yaml:"-"` // Ignored by YAML parser
	Seed                     int64         `yaml:"seed"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableChangeFeed       bool   `yaml:"enable_change_feed"`
}

// Load reads the configuration from the given path, then applies .env and environment overrides.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("could not read .env file: %v", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("LUNA_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("VAPID_PUBLIC_KEY"); v != "" {
		cfg.Push.PublicKey = v
	}
	if v := os.Getenv("VAPID_PRIVATE_KEY"); v != "" {
		cfg.Push.PrivateKey = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	lc := &cfg.Lifecycle
	lc.PendingDelay = defaultDelay(lc.PendingDelay, 5, 35)
	lc.NavigatingDelay = defaultDelay(lc.NavigatingDelay, 5, 35)
	lc.ReadyDelay = defaultDelay(lc.ReadyDelay, 10, 30)
	if lc.ActivePageSize <= 0 {
		lc.ActivePageSize = 10
	}
	if lc.HistoryPageSize <= 0 {
		lc.HistoryPageSize = 20
	}
	if lc.ReconcileIntervalSeconds <= 0 {
		lc.ReconcileIntervalSeconds = 30
	}
	lc.ReconcileInterval = time.Duration(lc.ReconcileIntervalSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}
}

func defaultDelay(d DelayConfig, min, max float64) DelayConfig {
	if d.MinSeconds <= 0 && d.MaxSeconds <= 0 {
		return DelayConfig{MinSeconds: min, MaxSeconds: max}
	}
	if d.MaxSeconds < d.MinSeconds {
		log.Printf("delay range [%v, %v) is inverted; using the minimum only", d.MinSeconds, d.MaxSeconds)
		d.MaxSeconds = d.MinSeconds
	}
	return d
}
