package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application. It is built once at
// startup and passed by pointer into each component; nothing reads the
// environment after LoadFromEnv returns.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Mautic      MauticConfig      `yaml:"mautic"`
	Retry       RetryConfig       `yaml:"retry"`
	Health      HealthConfig      `yaml:"health"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	CORS        CORSConfig        `yaml:"cors"`
	Admin       AdminConfig       `yaml:"admin"`
	Audit       AuditConfig       `yaml:"audit"`
	Unsubscribe UnsubscribeConfig `yaml:"unsubscribe"`
	SES         SESConfig         `yaml:"ses"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MauticConfig holds Mautic API configuration. Credentials never leave the
// server process.
type MauticConfig struct {
	BaseURL             string `yaml:"base_url"`
	Username            string `yaml:"username"`
	Password            string `yaml:"password"`
	TimeoutSeconds      int    `yaml:"timeout_seconds"`
	ProbeTimeoutSeconds int    `yaml:"probe_timeout_seconds"`
	// DNCReason is the Mautic DNC reason code sent with every add. There is
	// no default: 1 (unsubscribed), 2 (bounced) or 3 (manual) must be chosen
	// deliberately.
	DNCReason  int    `yaml:"dnc_reason"`
	DNCComment string `yaml:"dnc_comment"`
}

// Timeout returns the configured timeout for contact and DNC calls.
func (c MauticConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ProbeTimeout returns the configured timeout for health probes.
func (c MauticConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

// RetryConfig bounds DNC add attempts. There is no backoff: Delay is a fixed
// pause between attempts.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	DelayMS     int `yaml:"delay_ms"`
}

// Delay returns the pause between attempts.
func (c RetryConfig) Delay() time.Duration {
	return time.Duration(c.DelayMS) * time.Millisecond
}

// HealthConfig holds the upstream health cache window.
type HealthConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

// TTL returns the cache window as a duration
func (c HealthConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// DatabaseConfig holds the audit log database settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig holds the rate limiter backend. An empty Addr disables rate limiting.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RateLimitConfig holds the per-IP limit for POST /api/unsubscribe.
type RateLimitConfig struct {
	Requests      int `yaml:"requests"`
	WindowSeconds int `yaml:"window_seconds"`
}

// Window returns the limiter window as a duration
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// CORSConfig holds the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AdminConfig holds the action query credentials. An empty APIKey disables
// GET /api/actions.
type AdminConfig struct {
	APIKey string `yaml:"api_key"`
}

// AuditConfig holds audit log write settings.
type AuditConfig struct {
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`
}

// WriteTimeout returns the per-record write deadline.
func (c AuditConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// UnsubscribeConfig holds request handling knobs.
type UnsubscribeConfig struct {
	ResponseFloorMS int `yaml:"response_floor_ms"`
	OriginMaxLen    int `yaml:"origin_max_len"`
}

// DefaultResponseFloorMS covers a search plus one DNC add against a healthy
// Mautic, so not_found and ok answers fall in the same latency class.
const DefaultResponseFloorMS = 1500

// ResponseFloor returns the minimum duration of an ok response. A negative
// response_floor_ms disables padding.
func (c UnsubscribeConfig) ResponseFloor() time.Duration {
	if c.ResponseFloorMS < 0 {
		return 0
	}
	return time.Duration(c.ResponseFloorMS) * time.Millisecond
}

// SESConfig holds the optional AWS SES suppression mirror settings.
type SESConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Reason    string `yaml:"reason"`
}

// Load reads and parses the configuration file. A missing file yields the
// defaults so env-only deployments work.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Mautic.TimeoutSeconds == 0 {
		cfg.Mautic.TimeoutSeconds = 15
	}
	if cfg.Mautic.ProbeTimeoutSeconds == 0 {
		cfg.Mautic.ProbeTimeoutSeconds = 5
	}
	if cfg.Mautic.DNCComment == "" {
		cfg.Mautic.DNCComment = "Unsubscribed via website"
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 2
	}
	if cfg.Health.TTLSeconds == 0 {
		cfg.Health.TTLSeconds = 30
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 5
	}
	if cfg.RateLimit.Requests == 0 {
		cfg.RateLimit.Requests = 5
	}
	if cfg.RateLimit.WindowSeconds == 0 {
		cfg.RateLimit.WindowSeconds = 60
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"https://simplify-erp.de", "https://www.simplify-erp.de"}
	}
	if cfg.Audit.WriteTimeoutSeconds == 0 {
		cfg.Audit.WriteTimeoutSeconds = 5
	}
	if cfg.Unsubscribe.ResponseFloorMS == 0 {
		cfg.Unsubscribe.ResponseFloorMS = DefaultResponseFloorMS
	}
	if cfg.Unsubscribe.OriginMaxLen == 0 {
		cfg.Unsubscribe.OriginMaxLen = 255
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "eu-central-1"
	}
	if cfg.SES.Reason == "" {
		cfg.SES.Reason = "COMPLAINT"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("MAUTIC_BASE_URL"); v != "" {
		cfg.Mautic.BaseURL = v
	}
	if v := os.Getenv("MAUTIC_USERNAME"); v != "" {
		cfg.Mautic.Username = v
	}
	if v := os.Getenv("MAUTIC_PASSWORD"); v != "" {
		cfg.Mautic.Password = v
	}
	if v := os.Getenv("MAUTIC_DNC_REASON"); v != "" {
		reason, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("MAUTIC_DNC_REASON: %w", err)
		}
		cfg.Mautic.DNCReason = reason
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.CORS.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("ADMIN_API_KEY"); v != "" {
		cfg.Admin.APIKey = v
	}
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		requests, window, err := ParseRate(v)
		if err != nil {
			return nil, fmt.Errorf("RATE_LIMIT: %w", err)
		}
		cfg.RateLimit.Requests = requests
		cfg.RateLimit.WindowSeconds = int(window / time.Second)
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_MIRROR"); v != "" {
		cfg.SES.Enabled = strings.EqualFold(v, "true") || v == "1"
	}

	return cfg, nil
}

// Validate reports configuration the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Mautic.BaseURL == "" {
		errs = append(errs, errors.New("mautic.base_url is required"))
	}
	if c.Mautic.Username == "" || c.Mautic.Password == "" {
		errs = append(errs, errors.New("mautic credentials are required"))
	}
	if c.Mautic.DNCReason < 1 || c.Mautic.DNCReason > 3 {
		errs = append(errs, fmt.Errorf("mautic.dnc_reason must be 1, 2 or 3 (got %d)", c.Mautic.DNCReason))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be positive (got %d)", c.Retry.MaxAttempts))
	}
	if c.Retry.DelayMS < 0 {
		errs = append(errs, fmt.Errorf("retry.delay_ms must not be negative (got %d)", c.Retry.DelayMS))
	}
	return errors.Join(errs...)
}

// ParseRate parses limits in the "5/minute" form. Units: second, minute, hour.
func ParseRate(v string) (int, time.Duration, error) {
	count, unit, ok := strings.Cut(strings.TrimSpace(v), "/")
	if !ok {
		return 0, 0, fmt.Errorf("invalid rate %q", v)
	}
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n <= 0 {
		return 0, 0, fmt.Errorf("invalid rate count %q", count)
	}
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "second", "s":
		return n, time.Second, nil
	case "minute", "m":
		return n, time.Minute, nil
	case "hour", "h":
		return n, time.Hour, nil
	default:
		return 0, 0, fmt.Errorf("invalid rate unit %q", unit)
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
