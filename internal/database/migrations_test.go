package database

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// openTestDB 创建内存数据库
func openTestDB(t *testing.T) (*gorm.DB, *logrus.Logger) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// 内存数据库每个连接各自独立，限制为单连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	log := logrus.New()
	log.SetOutput(io.Discard)
	return db, log
}

func TestMigrateCreatesTables(t *testing.T) {
	db, log := openTestDB(t)
	require.NoError(t, Migrate(db, log))

	for _, table := range []string{"file_records", "short_key_sequences", "reserved_short_keys", "file_operation_logs", "schema_versions"} {
		assert.True(t, db.Migrator().HasTable(table), "missing table %s", table)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db, log := openTestDB(t)
	require.NoError(t, Migrate(db, log))
	require.NoError(t, Migrate(db, log))

	// 重复迁移不产生重复的基础数据
	var reservedCount int64
	require.NoError(t, db.Model(&ReservedShortKey{}).Count(&reservedCount).Error)
	assert.Equal(t, int64(20), reservedCount)

	var seqCount int64
	require.NoError(t, db.Model(&ShortKeySequence{}).Count(&seqCount).Error)
	assert.Equal(t, int64(1), seqCount)
}

func TestMigrateSeedsInitialSequence(t *testing.T) {
	db, log := openTestDB(t)
	require.NoError(t, Migrate(db, log))

	var seq ShortKeySequence
	require.NoError(t, db.Where("key_length = ?", 4).First(&seq).Error)
	assert.Equal(t, int64(0), seq.CurrentSequence)
	// 62^4 * 0.999
	assert.Equal(t, int64(14761559), seq.MaxPossible)
	assert.False(t, seq.Exhausted)
}

func TestMigrateRejectsNewerSchema(t *testing.T) {
	db, log := openTestDB(t)
	require.NoError(t, Migrate(db, log))

	require.NoError(t, db.Create(&SchemaVersion{Version: CurrentSchemaVersion + 1}).Error)

	err := Migrate(db, log)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaTooNew)
}

func TestAccessCountTrigger(t *testing.T) {
	db, log := openTestDB(t)
	require.NoError(t, Migrate(db, log))

	key := "aB3x"
	record := &FileRecord{
		UUIDKey:          "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		OriginalFilename: "photo.jpg",
		FileExtension:    ".jpg",
		FileSize:         100,
		MimeType:         "image/jpeg",
		FileHash:         "hash-1",
		ObjectKey:        "aB3x.jpg",
		ShortKey:         &key,
		Status:           StatusActive,
	}
	require.NoError(t, db.Create(record).Error)

	// access类型日志触发访问计数递增
	require.NoError(t, db.Create(&FileOperationLog{
		FileRecordID:  record.ID,
		OperationType: OperationAccess,
	}).Error)

	// 非access类型日志不影响计数
	require.NoError(t, db.Create(&FileOperationLog{
		FileRecordID:  record.ID,
		OperationType: OperationUpload,
	}).Error)

	var updated FileRecord
	require.NoError(t, db.First(&updated, record.ID).Error)
	assert.Equal(t, int64(1), updated.AccessCount)
	assert.NotNil(t, updated.LastAccessedAt)
}

func TestSequenceExhaustionTrigger(t *testing.T) {
	db, log := openTestDB(t)
	require.NoError(t, Migrate(db, log))

	// 序列计数到达上限时触发器自动标记耗尽
	require.NoError(t, db.Model(&ShortKeySequence{}).
		Where("key_length = ?", 4).
		Updates(map[string]interface{}{"current_sequence": 10, "max_possible": 10}).Error)

	var seq ShortKeySequence
	require.NoError(t, db.Where("key_length = ?", 4).First(&seq).Error)
	assert.True(t, seq.Exhausted)
}
