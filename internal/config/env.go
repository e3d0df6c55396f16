package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// FromEnv overlays QU_* environment variables onto cfg. QU_URI sets the URI
// of the selected session, creating it when needed.
func FromEnv(cfg *Config) error {
	if v := os.Getenv("QU_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("QU_SESSION"); v != "" {
		cfg.Session = v
	}
	if v := os.Getenv("QU_URI"); v != "" {
		if cfg.Sessions == nil {
			cfg.Sessions = make(map[string]Session)
		}
		s := cfg.Sessions[cfg.Session]
		s.URI = v
		cfg.Sessions[cfg.Session] = s
	}
	if v := os.Getenv("QU_DATABASE"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("QU_NAMESPACE"); v != "" {
		cfg.Namespace = v
	}
	if err := envInt("QU_MAX_RETRIES", &cfg.MaxRetries); err != nil {
		return err
	}
	if err := envDuration("QU_RETRY_DELAY", &cfg.RetryDelay); err != nil {
		return err
	}
	if err := envDuration("QU_POLL_INTERVAL", &cfg.PollInterval); err != nil {
		return err
	}
	if v := os.Getenv("QU_STRICT_POP"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("QU_STRICT_POP: %w", err)
		}
		cfg.StrictPop = b
	}
	if v := os.Getenv("QU_QUEUES"); v != "" {
		cfg.Worker.Queues = splitList(v)
	}
	if err := envInt("QU_CONCURRENCY", &cfg.Worker.Concurrency); err != nil {
		return err
	}
	if err := envDuration("QU_JOB_TIMEOUT", &cfg.Worker.JobTimeout); err != nil {
		return err
	}
	if v := os.Getenv("QU_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("QU_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("QU_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("QU_AUDIT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("QU_AUDIT: %w", err)
		}
		cfg.Audit.Enabled = b
	}
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
