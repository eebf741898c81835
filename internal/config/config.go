package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Identity     IdentityConfig     `yaml:"identity"`
	Storage      StorageConfig      `yaml:"storage"`
	Notification NotificationConfig `yaml:"notification"`
	Search       SearchConfig       `yaml:"search"`
	Cache        CacheConfig        `yaml:"cache"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Invite       InviteConfig       `yaml:"invite"`
	Importer     ImporterConfig     `yaml:"importer"`
	Admin        AdminConfig        `yaml:"admin"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	Port                   string   `yaml:"port"`
	AllowOrigins           []string `yaml:"allow_origins"`
	ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Type     string         `yaml:"type"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	LogSQL   bool           `yaml:"log_sql"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// SQLiteConfig contains embedded database settings
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// IdentityConfig contains chat-platform ID token verification settings
type IdentityConfig struct {
	ChannelID     string `yaml:"channel_id"`
	ChannelSecret string `yaml:"channel_secret"`
	Issuer        string `yaml:"issuer"`
}

// StorageConfig contains object storage settings
type StorageConfig struct {
	Bucket            string `yaml:"bucket"`
	Region            string `yaml:"region"`
	Endpoint          string `yaml:"endpoint"`
	AccessKeyID       string `yaml:"access_key_id"`
	SecretAccessKey   string `yaml:"secret_access_key"`
	UploadTTLMinutes  int    `yaml:"upload_ttl_minutes"`
	DownloadTTLMinute int    `yaml:"download_ttl_minutes"`
}

// NotificationConfig contains push delivery settings
type NotificationConfig struct {
	Driver                  string `yaml:"driver"` // nats or log
	NATSURL                 string `yaml:"nats_url"`
	Subject                 string `yaml:"subject"`
	QueueSize               int    `yaml:"queue_size"`
	Workers                 int    `yaml:"workers"`
	SendTimeoutSeconds      int    `yaml:"send_timeout_seconds"`
	BreakerFailureThreshold int    `yaml:"breaker_failure_threshold"`
	BreakerResetSeconds     int    `yaml:"breaker_reset_seconds"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings
type MeilisearchConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
	Index  string `yaml:"index"`
}

// CacheConfig contains Redis settings for the marketplace count cache
type CacheConfig struct {
	RedisAddr       string `yaml:"redis_addr"`
	RedisPassword   string `yaml:"redis_password"`
	CountTTLSeconds int    `yaml:"count_ttl_seconds"`
}

// SchedulerConfig contains cron settings
type SchedulerConfig struct {
	VacancyScanEnabled bool   `yaml:"vacancy_scan_enabled"`
	VacancyScanTime    string `yaml:"vacancy_scan_time"`
	CleanupEnabled     bool   `yaml:"cleanup_enabled"`
	CleanupTime        string `yaml:"cleanup_time"`
	Timezone           string `yaml:"timezone"`
}

// RateLimitConfig contains per-user rate limiting settings
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	RequestsPerHour   int  `yaml:"requests_per_hour"`
}

// InviteConfig contains agent invite settings
type InviteConfig struct {
	BaseURL  string `yaml:"base_url"`
	TTLHours int    `yaml:"ttl_hours"`
}

// ImporterConfig contains listing import settings
type ImporterConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent"`
	// AllowPrivateHosts lets imports reach loopback and private networks.
	AllowPrivateHosts bool `yaml:"allow_private_hosts"`
}

// AdminConfig contains admin API settings
type AdminConfig struct {
	Token string `yaml:"token"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"` // text or json
	LogRequests bool   `yaml:"log_requests"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                   "8080",
			AllowOrigins:           []string{"http://localhost:3000"},
			ShutdownTimeoutSeconds: 10,
		},
		Database: DatabaseConfig{
			Type:   "sqlite",
			SQLite: SQLiteConfig{Path: "assetace.db"},
		},
		Identity: IdentityConfig{
			Issuer: "https://access.line.me",
		},
		Storage: StorageConfig{
			Region:            "ap-southeast-1",
			UploadTTLMinutes:  15,
			DownloadTTLMinute: 60,
		},
		Notification: NotificationConfig{
			Driver:                  "log",
			Subject:                 "assetace.notify",
			QueueSize:               256,
			Workers:                 2,
			SendTimeoutSeconds:      10,
			BreakerFailureThreshold: 5,
			BreakerResetSeconds:     60,
		},
		Search: SearchConfig{
			Meilisearch: MeilisearchConfig{Index: "listings"},
		},
		Cache: CacheConfig{
			CountTTLSeconds: 30,
		},
		Scheduler: SchedulerConfig{
			VacancyScanEnabled: true,
			VacancyScanTime:    "09:00",
			CleanupEnabled:     true,
			CleanupTime:        "03:30",
			Timezone:           "Asia/Bangkok",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 10,
			RequestsPerHour:   120,
		},
		Invite: InviteConfig{
			BaseURL:  "http://localhost:3000/agent",
			TTLHours: 24 * 7,
		},
		Importer: ImporterConfig{
			TimeoutSeconds: 15,
			UserAgent:      "Mozilla/5.0 (compatible; AssetAceImporter/1.0)",
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "text",
			LogRequests: true,
		},
	}
}

// LoadConfig loads configuration from a YAML file, then applies environment overrides
func LoadConfig(filepath string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	// If file doesn't exist, keep defaults
	if _, err := os.Stat(filepath); err == nil {
		data, err := os.ReadFile(filepath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	config.applyEnv()
	return config, nil
}

// applyEnv lets deployment environments override secrets and endpoints
func (c *Config) applyEnv() {
	c.Server.Port = getEnvOrConfig("PORT", c.Server.Port)
	c.Database.Type = getEnvOrConfig("DB_TYPE", c.Database.Type)
	c.Database.MySQL.Host = getEnvOrConfig("DB_HOST", c.Database.MySQL.Host)
	c.Database.MySQL.User = getEnvOrConfig("DB_USER", c.Database.MySQL.User)
	c.Database.MySQL.Password = getEnvOrConfig("DB_PASSWORD", c.Database.MySQL.Password)
	c.Database.MySQL.Database = getEnvOrConfig("DB_NAME", c.Database.MySQL.Database)
	c.Database.Postgres.Host = getEnvOrConfig("PG_HOST", c.Database.Postgres.Host)
	c.Database.Postgres.User = getEnvOrConfig("PG_USER", c.Database.Postgres.User)
	c.Database.Postgres.Password = getEnvOrConfig("PG_PASSWORD", c.Database.Postgres.Password)
	c.Database.Postgres.Database = getEnvOrConfig("PG_NAME", c.Database.Postgres.Database)
	c.Database.SQLite.Path = getEnvOrConfig("SQLITE_PATH", c.Database.SQLite.Path)
	c.Identity.ChannelID = getEnvOrConfig("LINE_CHANNEL_ID", c.Identity.ChannelID)
	c.Identity.ChannelSecret = getEnvOrConfig("LINE_CHANNEL_SECRET", c.Identity.ChannelSecret)
	c.Storage.Bucket = getEnvOrConfig("S3_BUCKET", c.Storage.Bucket)
	c.Storage.Region = getEnvOrConfig("AWS_REGION", c.Storage.Region)
	c.Storage.Endpoint = getEnvOrConfig("S3_ENDPOINT", c.Storage.Endpoint)
	c.Storage.AccessKeyID = getEnvOrConfig("AWS_ACCESS_KEY_ID", c.Storage.AccessKeyID)
	c.Storage.SecretAccessKey = getEnvOrConfig("AWS_SECRET_ACCESS_KEY", c.Storage.SecretAccessKey)
	c.Notification.Driver = getEnvOrConfig("NOTIFY_DRIVER", c.Notification.Driver)
	c.Notification.NATSURL = getEnvOrConfig("NATS_URL", c.Notification.NATSURL)
	c.Search.Meilisearch.Host = getEnvOrConfig("MEILISEARCH_HOST", c.Search.Meilisearch.Host)
	c.Search.Meilisearch.APIKey = getEnvOrConfig("MEILISEARCH_KEY", c.Search.Meilisearch.APIKey)
	c.Cache.RedisAddr = getEnvOrConfig("REDIS_ADDR", c.Cache.RedisAddr)
	c.Cache.RedisPassword = getEnvOrConfig("REDIS_PASSWORD", c.Cache.RedisPassword)
	c.Invite.BaseURL = getEnvOrConfig("INVITE_BASE_URL", c.Invite.BaseURL)
	c.Admin.Token = getEnvOrConfig("ADMIN_TOKEN", c.Admin.Token)
	c.Logging.Level = getEnvOrConfig("LOG_LEVEL", c.Logging.Level)

	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.MySQL.Port = port
		}
	}
}

// getEnvOrConfig returns the environment value if set, otherwise the config value
func getEnvOrConfig(envKey, configValue string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	return configValue
}

// ShutdownTimeout returns the graceful shutdown timeout as a duration
func (c *ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// UploadTTL returns the presigned upload lifetime
func (c *StorageConfig) UploadTTL() time.Duration {
	return time.Duration(c.UploadTTLMinutes) * time.Minute
}

// DownloadTTL returns the presigned download lifetime
func (c *StorageConfig) DownloadTTL() time.Duration {
	return time.Duration(c.DownloadTTLMinute) * time.Minute
}

// SendTimeout returns the per-message delivery timeout
func (c *NotificationConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// BreakerReset returns the circuit breaker reset timeout
func (c *NotificationConfig) BreakerReset() time.Duration {
	return time.Duration(c.BreakerResetSeconds) * time.Second
}

// CountTTL returns how long first-page totals stay cached
func (c *CacheConfig) CountTTL() time.Duration {
	return time.Duration(c.CountTTLSeconds) * time.Second
}

// TTL returns the invite lifetime
func (c *InviteConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// Timeout returns the importer fetch timeout
func (c *ImporterConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
