package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Catalog   CatalogConfig
	Refresh   RefreshConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// CatalogConfig holds snapshot cache, merge and cost settings
type CatalogConfig struct {
	ValidityPeriod        time.Duration // max age of a snapshot served as fresh
	StaleRetention        time.Duration // how long a replaced snapshot remains a fallback
	ServeStale            bool
	MergeDebounce         time.Duration
	MergeTimeout          time.Duration
	PriorityMergeTimeout  time.Duration
	HistoryDays           int
	CostWindowDays        int
	ManufactureDepartment string
	SalesDepartment       string
	SetPrefix             string
	AllocationMethod      string
}

// RefreshConfig holds source refresh settings
type RefreshConfig struct {
	Enabled         bool
	DefaultInterval time.Duration
	Intervals       map[string]time.Duration // per source key
	FetchTimeout    time.Duration
	LeaseTTL        time.Duration
	RefreshOnStart  bool
}

// IntervalFor returns the refresh interval of a source
func (r RefreshConfig) IntervalFor(sourceKey string) time.Duration {
	if d, ok := r.Intervals[strings.ToLower(sourceKey)]; ok && d > 0 {
		return d
	}
	return r.DefaultInterval
}

// StorageConfig holds object storage settings for source exports
type StorageConfig struct {
	Enabled         bool
	Endpoint        string
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	ExportedSources []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry metrics and traces
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Trace sampling ratio (0.0 to 1.0)
	ServiceName       string
	Insecure          bool // Use insecure (non-TLS) connection (development only)
	ExportInterval    time.Duration
	LogsEnabled       bool // Export zap logs to the collector as well
	DBTraceEnabled    bool
	DBLogFullSQL      bool // Include query variables in DB spans (development only)
	DBSlowQueryThresh time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with CATALOG_ prefix (e.g., CATALOG_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// booleans that default to true need an explicit default
	v.SetDefault("catalog.serve_stale", true)
	v.SetDefault("refresh.enabled", true)
	v.SetDefault("refresh.refresh_on_start", true)

	intervals, err := parseIntervals(v.GetStringMapString("refresh.intervals"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Enabled:         v.GetBool("database.enabled"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:   v.GetBool("redis.enabled"),
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Catalog: CatalogConfig{
			ValidityPeriod:        v.GetDuration("catalog.validity_period"),
			StaleRetention:        v.GetDuration("catalog.stale_retention"),
			ServeStale:            v.GetBool("catalog.serve_stale"),
			MergeDebounce:         v.GetDuration("catalog.merge_debounce"),
			MergeTimeout:          v.GetDuration("catalog.merge_timeout"),
			PriorityMergeTimeout:  v.GetDuration("catalog.priority_merge_timeout"),
			HistoryDays:           v.GetInt("catalog.history_days"),
			CostWindowDays:        v.GetInt("catalog.cost_window_days"),
			ManufactureDepartment: v.GetString("catalog.manufacture_department"),
			SalesDepartment:       v.GetString("catalog.sales_department"),
			SetPrefix:             v.GetString("catalog.set_prefix"),
			AllocationMethod:      v.GetString("catalog.allocation_method"),
		},
		Refresh: RefreshConfig{
			Enabled:         v.GetBool("refresh.enabled"),
			DefaultInterval: v.GetDuration("refresh.default_interval"),
			Intervals:       intervals,
			FetchTimeout:    v.GetDuration("refresh.fetch_timeout"),
			LeaseTTL:        v.GetDuration("refresh.lease_ttl"),
			RefreshOnStart:  v.GetBool("refresh.refresh_on_start"),
		},
		Storage: StorageConfig{
			Enabled:         v.GetBool("storage.enabled"),
			Endpoint:        v.GetString("storage.endpoint"),
			Region:          v.GetString("storage.region"),
			Bucket:          v.GetString("storage.bucket"),
			Prefix:          v.GetString("storage.prefix"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
			ExportedSources: v.GetStringSlice("storage.exported_sources"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseIntervals(raw map[string]string) (map[string]time.Duration, error) {
	intervals := make(map[string]time.Duration, len(raw))
	for key, value := range raw {
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("refresh.intervals.%s: %w", key, err)
		}
		intervals[strings.ToLower(key)] = d
	}
	return intervals, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "catalog-cache"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "catalog"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "catalog:refresh-lease:"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// a cold read may wait for a priority merge
		cfg.HTTP.WriteTimeout = 3 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 64 << 20 // 64MB, pushed source datasets can be large
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if cfg.Catalog.ValidityPeriod == 0 {
		cfg.Catalog.ValidityPeriod = 5 * time.Minute
	}
	if cfg.Catalog.StaleRetention == 0 {
		cfg.Catalog.StaleRetention = 30 * time.Minute
	}
	if cfg.Catalog.MergeDebounce == 0 {
		cfg.Catalog.MergeDebounce = 2 * time.Second
	}
	if cfg.Catalog.MergeTimeout == 0 {
		cfg.Catalog.MergeTimeout = 2 * time.Minute
	}
	if cfg.Catalog.PriorityMergeTimeout == 0 {
		cfg.Catalog.PriorityMergeTimeout = 2 * time.Minute
	}
	if cfg.Catalog.HistoryDays == 0 {
		cfg.Catalog.HistoryDays = 730
	}
	if cfg.Catalog.CostWindowDays == 0 {
		cfg.Catalog.CostWindowDays = 365
	}
	if cfg.Catalog.ManufactureDepartment == "" {
		cfg.Catalog.ManufactureDepartment = "VYROBA"
	}
	if cfg.Catalog.SalesDepartment == "" {
		cfg.Catalog.SalesDepartment = "OBCHOD"
	}
	if cfg.Catalog.SetPrefix == "" {
		cfg.Catalog.SetPrefix = "SET"
	}
	if cfg.Catalog.AllocationMethod == "" {
		cfg.Catalog.AllocationMethod = "difficulty_weighted"
	}
	if cfg.Refresh.DefaultInterval == 0 {
		cfg.Refresh.DefaultInterval = 15 * time.Minute
	}
	if cfg.Refresh.Intervals == nil {
		cfg.Refresh.Intervals = map[string]time.Duration{}
	}
	if cfg.Refresh.FetchTimeout == 0 {
		cfg.Refresh.FetchTimeout = 5 * time.Minute
	}
	if cfg.Refresh.LeaseTTL == 0 {
		cfg.Refresh.LeaseTTL = 2 * cfg.Refresh.FetchTimeout
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "exports"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "catalog-cache"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 30 * time.Second
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Catalog.ValidityPeriod < 0 || c.Catalog.StaleRetention < 0 {
		return fmt.Errorf("catalog.validity_period and catalog.stale_retention cannot be negative")
	}
	if c.Catalog.MergeDebounce < 0 {
		return fmt.Errorf("catalog.merge_debounce cannot be negative")
	}
	if c.Catalog.HistoryDays < 0 || c.Catalog.CostWindowDays < 0 {
		return fmt.Errorf("catalog.history_days and catalog.cost_window_days cannot be negative")
	}
	for key, d := range c.Refresh.Intervals {
		if d <= 0 {
			return fmt.Errorf("refresh.intervals.%s must be positive", key)
		}
	}
	if c.Refresh.DefaultInterval <= 0 {
		return fmt.Errorf("refresh.default_interval must be positive")
	}

	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	if c.App.Env == "production" {
		if c.Database.Enabled && c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.Enabled && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
