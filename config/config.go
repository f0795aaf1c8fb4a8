// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Resources []ResourceConfig `yaml:"resources"`
	Admission AdmissionConfig  `yaml:"admission"`
	Store     StoreConfig      `yaml:"store"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Notify    NotifyConfig     `yaml:"notify"`
	AWS       AWSConfig        `yaml:"aws,omitempty"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// AdminTokenHash is the bcrypt hash of the bearer token required on
	// the usage endpoints. Empty disables authentication. File values are
	// env-expanded, which clobbers the $2a prefix; set it via
	// QUOTAMON_ADMIN_TOKEN_HASH instead.
	AdminTokenHash string `yaml:"admin_token_hash"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ResourceConfig declares the monthly quota for one metered resource.
// A limit of 0 tracks usage without enforcing anything.
type ResourceConfig struct {
	Name              string  `yaml:"name"`
	Limit             int64   `yaml:"limit"`
	WarningThreshold  float64 `yaml:"warning_threshold"`
	CriticalThreshold float64 `yaml:"critical_threshold"`
}

// AdmissionConfig configures how availability checks behave when the
// counter store cannot be reached.
type AdmissionConfig struct {
	FailOpen *bool `yaml:"fail_open"` // default: true
}

// StoreConfig selects the usage counter backend.
type StoreConfig struct {
	Backend  string         `yaml:"backend"` // "memory", "sqlite", "dynamodb", "redis"
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb,omitempty"`
	Redis    RedisConfig    `yaml:"redis,omitempty"`
}

// SQLiteConfig configures the SQLite counter store.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// DynamoDBConfig configures the DynamoDB counter store.
type DynamoDBConfig struct {
	Table  string `yaml:"table"`
	Region string `yaml:"region,omitempty"`
}

// RedisConfig configures the Redis counter store.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password,omitempty"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix,omitempty"`
	TTL       time.Duration `yaml:"ttl,omitempty"`
}

// MetricsConfig selects where usage metrics are published.
type MetricsConfig struct {
	Backend       string        `yaml:"backend"` // "prometheus", "cloudwatch", "noop"
	Namespace     string        `yaml:"namespace"`
	Region        string        `yaml:"region,omitempty"`
	BufferSize    int           `yaml:"buffer_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// NotifyConfig selects how quota alerts are delivered.
type NotifyConfig struct {
	Backend string        `yaml:"backend"` // "sns", "email", "webhook", "noop"
	SNS     SNSConfig     `yaml:"sns,omitempty"`
	Email   EmailConfig   `yaml:"email,omitempty"`
	Webhook WebhookConfig `yaml:"webhook,omitempty"`
}

// SNSConfig configures the SNS notifier.
type SNSConfig struct {
	TopicARN string `yaml:"topic_arn"`
	Region   string `yaml:"region,omitempty"`
}

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Secret  string        `yaml:"secret,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// AWSConfig holds settings shared by the DynamoDB, CloudWatch, and SNS
// backends. Leave it empty to use the ambient credential chain (the SDK
// already reads AWS_ACCESS_KEY_ID and friends from the environment).
// Static credentials and the endpoint override are for local stacks
// such as DynamoDB Local or LocalStack.
type AWSConfig struct {
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty"`
}

// EmailConfig configures the SMTP notifier.
type EmailConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	Username    string   `yaml:"username,omitempty"`
	Password    string   `yaml:"password,omitempty"`
	From        string   `yaml:"from"`
	FromName    string   `yaml:"from_name,omitempty"`
	Recipients  []string `yaml:"recipients"`
	UseTLS      bool     `yaml:"use_tls"`
	ImplicitTLS bool     `yaml:"implicit_tls"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// FailOpen reports whether availability checks admit calls when the
// counter store is unreachable. Unset means fail open.
func (c *Config) FailOpen() bool {
	return c.Admission.FailOpen == nil || *c.Admission.FailOpen
}

// Resource returns the quota declaration for the named resource.
func (c *Config) Resource(name string) (ResourceConfig, bool) {
	for _, r := range c.Resources {
		if r.Name == name {
			return r, true
		}
	}
	return ResourceConfig{}, false
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// This is useful for Docker deployments where no config file is needed.
//
// Environment variables:
//
//	QUOTAMON_RESOURCE           - Resource name to monitor (required)
//	QUOTAMON_LIMIT              - Monthly call limit (default: 0, tracking only)
//	QUOTAMON_WARNING_THRESHOLD  - Warning threshold ratio (default: 0.80)
//	QUOTAMON_CRITICAL_THRESHOLD - Critical threshold ratio (default: 0.95)
//	QUOTAMON_FAIL_OPEN          - Admit calls on store failure (default: true)
//	QUOTAMON_STORE_BACKEND      - Counter store: memory, sqlite, dynamodb, redis (default: memory)
//	QUOTAMON_METRICS_BACKEND    - Metrics sink: prometheus, cloudwatch, noop (default: prometheus)
//	QUOTAMON_NOTIFY_BACKEND     - Alert channel: sns, email, webhook, noop (default: noop)
//	QUOTAMON_SERVER_HOST        - Server host (default: 0.0.0.0)
//	QUOTAMON_SERVER_PORT        - Server port (default: 8080)
//	QUOTAMON_LOG_LEVEL          - Log level: debug, info, warn, error (default: info)
//	QUOTAMON_LOG_FORMAT         - Log format: json or console (default: json)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment variables.
// This is the recommended method for Docker deployments.
func LoadWithFallback(path string) (*Config, error) {
	// Try loading from file first
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	// Check if we have enough env vars to run
	if HasEnvConfig() {
		return LoadFromEnv()
	}

	// No config available
	return nil, fmt.Errorf("no configuration found: provide config file or set QUOTAMON_RESOURCE")
}

// HasEnvConfig returns true if essential environment variables are set.
func HasEnvConfig() bool {
	return os.Getenv("QUOTAMON_RESOURCE") != ""
}

// applyEnvOverrides applies QUOTAMON_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("QUOTAMON_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("QUOTAMON_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("QUOTAMON_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("QUOTAMON_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if v := os.Getenv("QUOTAMON_ADMIN_TOKEN_HASH"); v != "" {
		cfg.Server.AdminTokenHash = v
	}

	// Resource configuration. QUOTAMON_RESOURCE declares or overrides a
	// single resource, which covers the common one-API deployment.
	if name := os.Getenv("QUOTAMON_RESOURCE"); name != "" {
		r := upsertResource(cfg, name)
		if v := os.Getenv("QUOTAMON_LIMIT"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				r.Limit = n
			}
		}
		if v := os.Getenv("QUOTAMON_WARNING_THRESHOLD"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				r.WarningThreshold = f
			}
		}
		if v := os.Getenv("QUOTAMON_CRITICAL_THRESHOLD"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				r.CriticalThreshold = f
			}
		}
	}

	// Admission configuration
	if v := os.Getenv("QUOTAMON_FAIL_OPEN"); v != "" {
		b := parseBool(v)
		cfg.Admission.FailOpen = &b
	}

	// Store configuration
	if v := os.Getenv("QUOTAMON_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("QUOTAMON_SQLITE_PATH"); v != "" {
		cfg.Store.SQLite.Path = v
	}
	if v := os.Getenv("QUOTAMON_DYNAMODB_TABLE"); v != "" {
		cfg.Store.DynamoDB.Table = v
	}
	if v := os.Getenv("QUOTAMON_DYNAMODB_REGION"); v != "" {
		cfg.Store.DynamoDB.Region = v
	}
	if v := os.Getenv("QUOTAMON_REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("QUOTAMON_REDIS_PASSWORD"); v != "" {
		cfg.Store.Redis.Password = v
	}
	if v := os.Getenv("QUOTAMON_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.Redis.DB = n
		}
	}

	// Metrics configuration
	if v := os.Getenv("QUOTAMON_METRICS_BACKEND"); v != "" {
		cfg.Metrics.Backend = v
	}
	if v := os.Getenv("QUOTAMON_METRICS_NAMESPACE"); v != "" {
		cfg.Metrics.Namespace = v
	}
	if v := os.Getenv("QUOTAMON_METRICS_REGION"); v != "" {
		cfg.Metrics.Region = v
	}

	// Notify configuration
	if v := os.Getenv("QUOTAMON_NOTIFY_BACKEND"); v != "" {
		cfg.Notify.Backend = v
	}
	if v := os.Getenv("QUOTAMON_SNS_TOPIC_ARN"); v != "" {
		cfg.Notify.SNS.TopicARN = v
	}
	if v := os.Getenv("QUOTAMON_SNS_REGION"); v != "" {
		cfg.Notify.SNS.Region = v
	}
	if v := os.Getenv("QUOTAMON_WEBHOOK_URL"); v != "" {
		cfg.Notify.Webhook.URL = v
	}
	if v := os.Getenv("QUOTAMON_WEBHOOK_SECRET"); v != "" {
		cfg.Notify.Webhook.Secret = v
	}
	if v := os.Getenv("QUOTAMON_SMTP_HOST"); v != "" {
		cfg.Notify.Email.Host = v
	}
	if v := os.Getenv("QUOTAMON_SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Notify.Email.Port = port
		}
	}
	if v := os.Getenv("QUOTAMON_SMTP_USERNAME"); v != "" {
		cfg.Notify.Email.Username = v
	}
	if v := os.Getenv("QUOTAMON_SMTP_PASSWORD"); v != "" {
		cfg.Notify.Email.Password = v
	}
	if v := os.Getenv("QUOTAMON_SMTP_FROM"); v != "" {
		cfg.Notify.Email.From = v
	}
	if v := os.Getenv("QUOTAMON_EMAIL_RECIPIENTS"); v != "" {
		var recipients []string
		for _, r := range strings.Split(v, ",") {
			if r = strings.TrimSpace(r); r != "" {
				recipients = append(recipients, r)
			}
		}
		cfg.Notify.Email.Recipients = recipients
	}

	// Logging configuration
	if v := os.Getenv("QUOTAMON_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("QUOTAMON_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// upsertResource returns the resource entry with the given name,
// appending a new one if it does not exist yet.
func upsertResource(cfg *Config, name string) *ResourceConfig {
	for i := range cfg.Resources {
		if cfg.Resources[i].Name == name {
			return &cfg.Resources[i]
		}
	}
	cfg.Resources = append(cfg.Resources, ResourceConfig{Name: name})
	return &cfg.Resources[len(cfg.Resources)-1]
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	for i := range cfg.Resources {
		if cfg.Resources[i].WarningThreshold == 0 {
			cfg.Resources[i].WarningThreshold = 0.80
		}
		if cfg.Resources[i].CriticalThreshold == 0 {
			cfg.Resources[i].CriticalThreshold = 0.95
		}
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = "quotamon.db"
	}

	if cfg.Metrics.Backend == "" {
		cfg.Metrics.Backend = "prometheus"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "QuotaMonitor"
	}
	if cfg.Metrics.BufferSize == 0 {
		cfg.Metrics.BufferSize = 20
	}
	if cfg.Metrics.FlushInterval == 0 {
		cfg.Metrics.FlushInterval = 10 * time.Second
	}

	if cfg.Notify.Backend == "" {
		cfg.Notify.Backend = "noop"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Resources))
	for i, r := range cfg.Resources {
		if r.Name == "" {
			return fmt.Errorf("resources[%d].name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("resources[%d]: duplicate resource %q", i, r.Name)
		}
		seen[r.Name] = true
		if r.Limit < 0 {
			return fmt.Errorf("resources[%d]: limit must not be negative, got %d", i, r.Limit)
		}
		if r.WarningThreshold <= 0 || r.WarningThreshold >= 1 {
			return fmt.Errorf("resources[%d]: warning_threshold must be in (0, 1), got %g", i, r.WarningThreshold)
		}
		if r.CriticalThreshold <= 0 || r.CriticalThreshold >= 1 {
			return fmt.Errorf("resources[%d]: critical_threshold must be in (0, 1), got %g", i, r.CriticalThreshold)
		}
		if r.WarningThreshold >= r.CriticalThreshold {
			return fmt.Errorf("resources[%d]: warning_threshold must be below critical_threshold", i)
		}
	}

	validStoreBackends := map[string]bool{
		"memory": true, "sqlite": true, "dynamodb": true, "redis": true,
	}
	if !validStoreBackends[cfg.Store.Backend] {
		return fmt.Errorf("store.backend must be one of: memory, sqlite, dynamodb, redis, got %q", cfg.Store.Backend)
	}
	if cfg.Store.Backend == "dynamodb" && cfg.Store.DynamoDB.Table == "" {
		return fmt.Errorf("store.dynamodb.table is required when store.backend is 'dynamodb'")
	}
	if cfg.Store.Backend == "redis" && cfg.Store.Redis.Addr == "" {
		return fmt.Errorf("store.redis.addr is required when store.backend is 'redis'")
	}

	validMetricsBackends := map[string]bool{
		"prometheus": true, "cloudwatch": true, "noop": true,
	}
	if !validMetricsBackends[cfg.Metrics.Backend] {
		return fmt.Errorf("metrics.backend must be one of: prometheus, cloudwatch, noop, got %q", cfg.Metrics.Backend)
	}

	validNotifyBackends := map[string]bool{
		"sns": true, "email": true, "webhook": true, "noop": true,
	}
	if !validNotifyBackends[cfg.Notify.Backend] {
		return fmt.Errorf("notify.backend must be one of: sns, email, webhook, noop, got %q", cfg.Notify.Backend)
	}
	if cfg.Notify.Backend == "sns" && cfg.Notify.SNS.TopicARN == "" {
		return fmt.Errorf("notify.sns.topic_arn is required when notify.backend is 'sns'")
	}
	if cfg.Notify.Backend == "webhook" && cfg.Notify.Webhook.URL == "" {
		return fmt.Errorf("notify.webhook.url is required when notify.backend is 'webhook'")
	}
	if cfg.Notify.Backend == "email" {
		if cfg.Notify.Email.Host == "" {
			return fmt.Errorf("notify.email.host is required when notify.backend is 'email'")
		}
		if cfg.Notify.Email.From == "" {
			return fmt.Errorf("notify.email.from is required when notify.backend is 'email'")
		}
		if len(cfg.Notify.Email.Recipients) == 0 {
			return fmt.Errorf("notify.email.recipients is required when notify.backend is 'email'")
		}
	}

	if cfg.AWS.AccessKeyID != "" && cfg.AWS.SecretAccessKey == "" {
		return fmt.Errorf("aws.secret_access_key is required when aws.access_key_id is set")
	}

	return nil
}
