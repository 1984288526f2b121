package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type tracedRow struct {
	ID   uint `gorm:"primaryKey"`
	Code string
}

func newTracedDB(t *testing.T, cfg DBTracingConfig) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedRow{}))
	require.NoError(t, NewDBTracingPlugin(cfg, zap.NewNop()).Register(db))
	return db
}

func TestDBTracingPlugin_Disabled(t *testing.T) {
	recorder := useSpanRecorder(t)
	db := newTracedDB(t, DBTracingConfig{Enabled: false})

	require.NoError(t, db.WithContext(context.Background()).Create(&tracedRow{Code: "P-1"}).Error)
	assert.Empty(t, recorder.Ended())
}

func TestDBTracingPlugin_AnnotatesSpans(t *testing.T) {
	recorder := useSpanRecorder(t)
	db := newTracedDB(t, DBTracingConfig{Enabled: true, DBSystem: "sqlite"})

	ctx := context.Background()
	require.NoError(t, db.WithContext(ctx).Create(&tracedRow{Code: "P-1"}).Error)

	spans := recorder.Ended()
	require.NotEmpty(t, spans)
	attrs := attrMap(spans[len(spans)-1].Attributes())
	assert.Equal(t, int64(1), attrs["db.rows_affected"].AsInt64())
	assert.Equal(t, "traced_rows", attrs["db.sql.table"].AsString())
	_, slow := attrs["db.slow_query"]
	assert.False(t, slow)
}

func TestDBTracingPlugin_FlagsSlowQueries(t *testing.T) {
	recorder := useSpanRecorder(t)
	db := newTracedDB(t, DBTracingConfig{Enabled: true, SlowQueryThresh: time.Nanosecond})

	var rows []tracedRow
	require.NoError(t, db.WithContext(context.Background()).Find(&rows).Error)

	spans := recorder.Ended()
	require.NotEmpty(t, spans)
	attrs := attrMap(spans[len(spans)-1].Attributes())
	assert.Equal(t, attribute.BOOL, attrs["db.slow_query"].Type())
	assert.True(t, attrs["db.slow_query"].AsBool())
}

func TestDBTracingPlugin_MarksErrors(t *testing.T) {
	recorder := useSpanRecorder(t)
	db := newTracedDB(t, DBTracingConfig{Enabled: true})

	err := db.WithContext(context.Background()).Exec("SELECT * FROM missing_table").Error
	require.Error(t, err)

	spans := recorder.Ended()
	require.NotEmpty(t, spans)
	assert.Equal(t, codes.Error, spans[len(spans)-1].Status().Code)
}

func TestNewDBTracingPlugin_Defaults(t *testing.T) {
	p := NewDBTracingPlugin(DBTracingConfig{}, zap.NewNop())
	assert.Equal(t, 200*time.Millisecond, p.config.SlowQueryThresh)
	assert.Equal(t, "postgresql", p.config.DBSystem)
}
