package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTOML(t *testing.T, content string) (*Config, error) {
	t.Helper()
	v := viper.New()
	v.SetConfigType("toml")
	require.NoError(t, v.ReadConfig(strings.NewReader(content)))
	return fromViper(v)
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "catalog-cache", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "catalog", cfg.Database.DBName)
		assert.Equal(t, 10, cfg.Database.MaxOpenConns)
		assert.Equal(t, 2, cfg.Database.MaxIdleConns)
		assert.False(t, cfg.Redis.Enabled)
		assert.Equal(t, "catalog:refresh-lease:", cfg.Redis.KeyPrefix)

		assert.Equal(t, 5*time.Minute, cfg.Catalog.ValidityPeriod)
		assert.Equal(t, 30*time.Minute, cfg.Catalog.StaleRetention)
		assert.True(t, cfg.Catalog.ServeStale)
		assert.Equal(t, 2*time.Second, cfg.Catalog.MergeDebounce)
		assert.Equal(t, 2*time.Minute, cfg.Catalog.MergeTimeout)
		assert.Equal(t, 730, cfg.Catalog.HistoryDays)
		assert.Equal(t, "SET", cfg.Catalog.SetPrefix)
		assert.Equal(t, "difficulty_weighted", cfg.Catalog.AllocationMethod)

		assert.True(t, cfg.Refresh.Enabled)
		assert.True(t, cfg.Refresh.RefreshOnStart)
		assert.Equal(t, 15*time.Minute, cfg.Refresh.DefaultInterval)
		assert.Equal(t, 10*time.Minute, cfg.Refresh.LeaseTTL)
		assert.Equal(t, "exports", cfg.Storage.Prefix)
		assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
		assert.Equal(t, 200*time.Millisecond, cfg.Telemetry.DBSlowQueryThresh)
		assert.False(t, cfg.Telemetry.DBTraceEnabled)
	})

	t.Run("loads values from environment variables with CATALOG prefix", func(t *testing.T) {
		t.Setenv("CATALOG_APP_NAME", "test-app")
		t.Setenv("CATALOG_APP_PORT", "9000")
		t.Setenv("CATALOG_DATABASE_HOST", "testdb.local")
		t.Setenv("CATALOG_DATABASE_PORT", "5433")
		t.Setenv("CATALOG_REDIS_ENABLED", "true")
		t.Setenv("CATALOG_CATALOG_VALIDITY_PERIOD", "90s")
		t.Setenv("CATALOG_CATALOG_SERVE_STALE", "false")
		t.Setenv("CATALOG_REFRESH_FETCH_TIMEOUT", "1m")
		t.Setenv("CATALOG_STORAGE_EXPORTED_SOURCES", "ErpStock Lots")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, 90*time.Second, cfg.Catalog.ValidityPeriod)
		assert.False(t, cfg.Catalog.ServeStale)
		assert.Equal(t, time.Minute, cfg.Refresh.FetchTimeout)
		assert.Equal(t, 2*time.Minute, cfg.Refresh.LeaseTTL)
		assert.Equal(t, []string{"ErpStock", "Lots"}, cfg.Storage.ExportedSources)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		t.Setenv("CATALOG_DATABASE_MAX_OPEN_CONNS", "3")
		t.Setenv("CATALOG_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("validates negative merge debounce", func(t *testing.T) {
		t.Setenv("CATALOG_CATALOG_MERGE_DEBOUNCE", "-1s")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "merge_debounce")
	})
}

func TestLoad_RefreshIntervals(t *testing.T) {
	cfg, err := loadTOML(t, `
[refresh]
default_interval = "10m"

[refresh.intervals]
ErpStock = "1m"
SalesHistory = "6h"
`)
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Refresh.IntervalFor("ErpStock"))
	assert.Equal(t, 6*time.Hour, cfg.Refresh.IntervalFor("SalesHistory"))
	assert.Equal(t, 10*time.Minute, cfg.Refresh.IntervalFor("Lots"))
}

func TestLoad_InvalidRefreshInterval(t *testing.T) {
	_, err := loadTOML(t, `
[refresh.intervals]
ErpStock = "soon"
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh.intervals.erpstock")
}

func TestLoad_StorageRequiresBucket(t *testing.T) {
	_, err := loadTOML(t, `
[storage]
enabled = true
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.bucket")
}

func TestLoad_ProductionValidation(t *testing.T) {
	t.Run("requires database.password in production", func(t *testing.T) {
		_, err := loadTOML(t, `
[app]
env = "production"
[database]
enabled = true
sslmode = "require"
`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		_, err := loadTOML(t, `
[app]
env = "production"
[database]
enabled = true
password = "secret"
`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("rejects wildcard CORS in production", func(t *testing.T) {
		_, err := loadTOML(t, `
[app]
env = "production"
[http]
cors_allow_origins = ["*"]
`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cors_allow_origins")
	})

	t.Run("rejects full SQL in DB spans in production", func(t *testing.T) {
		_, err := loadTOML(t, `
[app]
env = "production"
[telemetry]
db_log_full_sql = true
`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telemetry.db_log_full_sql")
	})

	t.Run("passes without database in production", func(t *testing.T) {
		cfg, err := loadTOML(t, `
[app]
env = "production"
`)
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestLoad_TelemetrySamplingRatio(t *testing.T) {
	cfg, err := loadTOML(t, `
[telemetry]
enabled = true
sampling_ratio = 0.25
db_trace_enabled = true
db_slow_query_threshold = "50ms"
`)
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.Telemetry.SamplingRatio)
	assert.True(t, cfg.Telemetry.DBTraceEnabled)
	assert.Equal(t, 50*time.Millisecond, cfg.Telemetry.DBSlowQueryThresh)

	_, err = loadTOML(t, `
[telemetry]
sampling_ratio = 1.5
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telemetry.sampling_ratio")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "catalog", Password: "pass@word#123", DBName: "catalog", SSLMode: "require"}

	dsn := d.DSN()
	assert.Contains(t, dsn, "db:5432/catalog")
	assert.Contains(t, dsn, "sslmode=require")
	assert.Contains(t, dsn, "pass%40word%23123")
}

func TestRedisConfig_Addr(t *testing.T) {
	r := RedisConfig{Host: "redis", Port: 6380}
	assert.Equal(t, "redis:6380", r.Addr())
}
