package storage

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"token_chat/pkg/config"
)

func TestNewDBRejectsUnknownDriver(t *testing.T) {
	_, err := NewDB(config.DBConfig{Driver: "mysql"})
	assert.Error(t, err)
}

func TestNewDBSQLite(t *testing.T) {
	db, err := NewDB(config.DBConfig{Driver: "sqlite", FilePath: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	defer db.Close()

	type widget struct {
		ID   uint
		Name string
	}
	require.NoError(t, db.AutoMigrate(&widget{}))
	require.NoError(t, db.Create(&widget{Name: "a"}).Error)

	var count int64
	require.NoError(t, db.Model(&widget{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGormLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := newGormLogger(zerolog.New(&buf))
	ctx := context.Background()
	sql := func() (string, int64) { return "SELECT 1", 1 }

	// 預設只記錄錯誤與慢查詢
	l.Trace(ctx, time.Now(), sql, nil)
	assert.Empty(t, buf.String())

	l.Trace(ctx, time.Now(), sql, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())

	l.Trace(ctx, time.Now(), sql, errors.New("boom"))
	assert.Contains(t, buf.String(), "boom")
	buf.Reset()

	l.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	assert.Contains(t, buf.String(), "slow query")
	buf.Reset()

	silent := l.LogMode(logger.Silent)
	silent.Trace(ctx, time.Now(), sql, errors.New("boom"))
	assert.Empty(t, buf.String())
}
