// Package config loads the qu process configuration: which backend to talk
// to, the named connection sessions, worker and HTTP settings, and logging.
//
// Values are layered: built-in defaults, then the YAML file, then QU_*
// environment variables. LoadDotEnv populates the environment from .env
// files before that.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	qu "github.com/gabteles/qu-mongoid"
	"github.com/gabteles/qu-mongoid/cron"
	"github.com/gabteles/qu-mongoid/queue"
)

// Backend names accepted in Config.Backend.
const (
	BackendMongo    = "mongo"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

var backends = []string{BackendMongo, BackendRedis, BackendPostgres, BackendMemory}

// Config represents the complete process configuration.
type Config struct {
	Backend      string             `yaml:"backend"`
	Session      string             `yaml:"session"`
	Sessions     map[string]Session `yaml:"sessions"`
	Database     string             `yaml:"database"`
	Namespace    string             `yaml:"namespace"`
	MaxRetries   int                `yaml:"max_retries"`
	RetryDelay   time.Duration      `yaml:"retry_delay"`
	PollInterval time.Duration      `yaml:"poll_interval"`
	StrictPop    bool               `yaml:"strict_pop"`
	Worker       WorkerConfig       `yaml:"worker"`
	HTTP         HTTPConfig         `yaml:"http"`
	Logging      LoggingConfig      `yaml:"logging"`
	Audit        AuditConfig        `yaml:"audit"`
	Schedules    []ScheduleConfig   `yaml:"schedules"`
}

// Session is a named connection target.
type Session struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// WorkerConfig holds worker pool settings for `qu serve`.
type WorkerConfig struct {
	Queues          []string      `yaml:"queues"`
	Concurrency     int           `yaml:"concurrency"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Limits          []LimitConfig `yaml:"limits"`
}

// LimitConfig throttles reservations from one queue.
type LimitConfig struct {
	Queue          string  `yaml:"queue"`
	MaxConcurrency int     `yaml:"max_concurrency"`
	RateLimit      float64 `yaml:"rate_limit"`
	RateBurst      int     `yaml:"rate_burst"`
}

// HTTPConfig holds admin API server settings. An empty Addr disables the
// server.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuditConfig enables the lifecycle audit trail. Sink is "log" (the
// process logger) or "store" (the namespace's audit collection).
type AuditConfig struct {
	Enabled bool     `yaml:"enabled"`
	Sink    string   `yaml:"sink"`
	Actions []string `yaml:"actions"`
}

// ScheduleConfig enqueues a job on a cron schedule while `qu serve` runs.
type ScheduleConfig struct {
	Name  string `yaml:"name"`
	Cron  string `yaml:"cron"`
	Queue string `yaml:"queue"`
	Tag   string `yaml:"tag"`
	Args  []any  `yaml:"args"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// Default returns built-in defaults. The storage settings mirror
// qu.DefaultConfig.
func Default() *Config {
	base := qu.DefaultConfig()
	return &Config{
		Backend:      BackendMongo,
		Session:      base.Session,
		Database:     base.Database,
		Namespace:    base.Namespace,
		MaxRetries:   base.MaxRetries,
		RetryDelay:   base.RetryDelay,
		PollInterval: base.PollInterval,
		Worker: WorkerConfig{
			Queues:          []string{qu.DefaultQueue},
			Concurrency:     1,
			ShutdownTimeout: 30 * time.Second,
		},
		HTTP: HTTPConfig{
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Audit: AuditConfig{Sink: "log"},
	}
}

// Load reads the YAML file at path over Default and then applies QU_*
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := FromEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files (".env" when none)
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if !slices.Contains(backends, c.Backend) {
		return fmt.Errorf("unknown backend %q (want one of %v)", c.Backend, backends)
	}
	if len(c.Sessions) > 0 {
		if _, ok := c.Sessions[c.Session]; !ok {
			return fmt.Errorf("session %q is not defined in sessions", c.Session)
		}
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must not be negative")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be greater than 0")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}
	if len(c.Worker.Queues) == 0 {
		return fmt.Errorf("worker queues must not be empty")
	}
	for _, l := range c.Worker.Limits {
		if l.Queue == "" {
			return fmt.Errorf("worker limit without queue")
		}
		if l.MaxConcurrency < 0 || l.RateLimit < 0 || l.RateBurst < 0 {
			return fmt.Errorf("worker limit for %q must not be negative", l.Queue)
		}
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}
	if c.Audit.Enabled && c.Audit.Sink != "log" && c.Audit.Sink != "store" {
		return fmt.Errorf("unknown audit sink %q", c.Audit.Sink)
	}
	seen := make(map[string]bool, len(c.Schedules))
	for _, e := range c.Entries() {
		if err := e.Validate(); err != nil {
			return err
		}
		if seen[e.Name] {
			return fmt.Errorf("duplicate schedule %q", e.Name)
		}
		seen[e.Name] = true
	}
	return nil
}

// Store resolves the storage settings of the selected session. For the
// mongo backend a missing URI falls back to the hosted-Mongo environment
// variables.
func (c *Config) Store() qu.Config {
	out := qu.Config{
		MaxRetries:   c.MaxRetries,
		RetryDelay:   c.RetryDelay,
		PollInterval: c.PollInterval,
		Session:      c.Session,
		Database:     c.Database,
		Namespace:    c.Namespace,
	}
	if s, ok := c.Sessions[c.Session]; ok {
		out.URI = s.URI
		if s.Database != "" {
			out.Database = s.Database
		}
	}
	if c.Backend == BackendMongo {
		out.ApplyEnv()
	}
	return out
}

// Limits converts the configured throttle limits.
func (c *Config) Limits() []queue.Limit {
	out := make([]queue.Limit, 0, len(c.Worker.Limits))
	for _, l := range c.Worker.Limits {
		out = append(out, queue.Limit{
			Name:           l.Queue,
			MaxConcurrency: l.MaxConcurrency,
			RateLimit:      l.RateLimit,
			RateBurst:      l.RateBurst,
		})
	}
	return out
}

// Entries converts the configured schedules.
func (c *Config) Entries() []cron.Entry {
	out := make([]cron.Entry, 0, len(c.Schedules))
	for _, s := range c.Schedules {
		out = append(out, cron.Entry{
			Name:     s.Name,
			Schedule: s.Cron,
			Queue:    s.Queue,
			Tag:      s.Tag,
			Args:     s.Args,
		})
	}
	return out
}
