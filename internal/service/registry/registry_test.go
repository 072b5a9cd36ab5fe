package registry

import (
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/valorvie/uploadr2/internal/database"
	"github.com/valorvie/uploadr2/internal/service/shortkey"
)

// setupRegistry 创建基于内存数据库的注册表实例
func setupRegistry(t *testing.T) (FileRegistry, *gorm.DB, *shortkey.Generator) {
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
	require.NoError(t, database.Migrate(db, log))

	gen := shortkey.NewGenerator(log, 12)
	return NewFileRegistry(db, gen, log), db, gen
}

// insertTombstone 预置占用指定短链名的逻辑删除记录
// 该记录通过活跃记录预检，但仍会命中短链名唯一索引
func insertTombstone(t *testing.T, db *gorm.DB, key string) {
	record := &database.FileRecord{
		UUIDKey:          fmt.Sprintf("dddddddd-0000-0000-0000-%012d", len(key)),
		OriginalFilename: "tombstone.jpg",
		FileExtension:    ".jpg",
		FileSize:         1,
		MimeType:         "image/jpeg",
		FileHash:         fmt.Sprintf("tombstone-hash-%s", key),
		HashAlgorithm:    "sha512",
		ShortKey:         &key,
		ShortKeyLength:   len(key),
		Status:           database.StatusDeleted,
	}
	require.NoError(t, db.Create(record).Error)
}

// sampleRecord 构造测试用注册记录
func sampleRecord(n int) *NewRecord {
	return &NewRecord{
		UUIDKey:          fmt.Sprintf("00000000-0000-0000-0000-%012d", n),
		OriginalFilename: fmt.Sprintf("photo_%d.jpg", n),
		FileExtension:    ".jpg",
		FileSize:         int64(1000 + n),
		MimeType:         "image/jpeg",
		FileHash:         fmt.Sprintf("hash-%064d", n),
		HashAlgorithm:    "sha512",
	}
}

func TestStoreAssignsShortKey(t *testing.T) {
	reg, _, _ := setupRegistry(t)

	created, err := reg.Store(sampleRecord(1))
	require.NoError(t, err)
	require.NotNil(t, created.ShortKey)
	assert.Len(t, *created.ShortKey, 4)
	assert.Equal(t, 4, created.ShortKeyLength)
	assert.NotNil(t, created.ShortKeyMintedAt)
	assert.Equal(t, *created.ShortKey+".jpg", created.ObjectKey)
	assert.Equal(t, database.StatusActive, created.Status)
}

func TestStoreDuplicateHash(t *testing.T) {
	reg, _, _ := setupRegistry(t)

	first, err := reg.Store(sampleRecord(1))
	require.NoError(t, err)

	// 同一内容再次注册应报告重复，且不产生新记录
	dup := sampleRecord(1)
	dup.OriginalFilename = "renamed.jpg"
	_, err = reg.Store(dup)
	var dupErr *DuplicateFileError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, first.FileHash, dupErr.FileHash)

	existing, err := reg.FindByHash(first.FileHash)
	require.NoError(t, err)
	assert.Equal(t, first.ID, existing.ID)
	assert.Equal(t, "photo_1.jpg", existing.OriginalFilename)
}

func TestStoreConcurrentUniqueKeys(t *testing.T) {
	reg, _, _ := setupRegistry(t)

	const workers = 20
	var wg sync.WaitGroup
	results := make([]*database.FileRecord, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = reg.Store(sampleRecord(i))
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		key := *results[i].ShortKey
		assert.False(t, seen[key], "duplicate short key %s", key)
		seen[key] = true
	}
}

func TestFindByShortKeyBumpsAccessCount(t *testing.T) {
	reg, db, _ := setupRegistry(t)

	created, err := reg.Store(sampleRecord(1))
	require.NoError(t, err)
	key := *created.ShortKey

	for i := 0; i < 3; i++ {
		_, err := reg.FindByShortKey(key)
		require.NoError(t, err)
	}

	// 访问计数由触发器在插入访问日志时递增
	var record database.FileRecord
	require.NoError(t, db.Where("short_key = ?", key).First(&record).Error)
	assert.Equal(t, int64(3), record.AccessCount)
	assert.NotNil(t, record.LastAccessedAt)
}

func TestFindByShortKeyNotFound(t *testing.T) {
	reg, _, _ := setupRegistry(t)

	_, err := reg.FindByShortKey("zzzz")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestFindByHashNotFound(t *testing.T) {
	reg, _, _ := setupRegistry(t)

	_, err := reg.FindByHash("missing-hash")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestUpdateUploadInfoIdempotent(t *testing.T) {
	reg, db, _ := setupRegistry(t)

	created, err := reg.Store(sampleRecord(1))
	require.NoError(t, err)

	url := "https://pub-example.r2.dev/images/" + created.ObjectKey
	found, err := reg.UpdateUploadInfo(created.UUIDKey, created.ObjectKey, url)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = reg.UpdateUploadInfo(created.UUIDKey, created.ObjectKey, url)
	require.NoError(t, err)
	assert.True(t, found)

	var record database.FileRecord
	require.NoError(t, db.Where("uuid_key = ?", created.UUIDKey).First(&record).Error)
	assert.Equal(t, url, record.UploadURL)
}

func TestUpdateUploadInfoMissingRecord(t *testing.T) {
	reg, _, _ := setupRegistry(t)

	found, err := reg.UpdateUploadInfo("00000000-0000-0000-0000-000000000099", "k.jpg", "https://x/k.jpg")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUpdateUploadInfoSkipsDeletedRecord(t *testing.T) {
	reg, db, _ := setupRegistry(t)

	created, err := reg.Store(sampleRecord(1))
	require.NoError(t, err)
	require.NoError(t, db.Model(&database.FileRecord{}).
		Where("uuid_key = ?", created.UUIDKey).
		Update("status", database.StatusDeleted).Error)

	// 逻辑删除的记录不接受回填，返回未找到
	found, err := reg.UpdateUploadInfo(created.UUIDKey, "new.jpg", "https://x/new.jpg")
	require.NoError(t, err)
	assert.False(t, found)

	var record database.FileRecord
	require.NoError(t, db.Where("uuid_key = ?", created.UUIDKey).First(&record).Error)
	assert.Empty(t, record.UploadURL)
}

func TestStoreRetriesAfterShortKeyConflict(t *testing.T) {
	reg, db, gen := setupRegistry(t)

	// 逻辑删除的记录仍占用唯一索引，但不会被活跃记录预检发现
	insertTombstone(t, db, "zzzz")

	var calls int
	gen.SetDrawFunc(func(length int) (string, error) {
		calls++
		if calls == 1 {
			return "zzzz", nil
		}
		return "yyyy", nil
	})

	created, err := reg.Store(sampleRecord(1))
	require.NoError(t, err)
	assert.Equal(t, "yyyy", *created.ShortKey)
	assert.GreaterOrEqual(t, calls, 2)
}

func TestStoreFailsAfterRepeatedShortKeyConflicts(t *testing.T) {
	reg, db, gen := setupRegistry(t)

	insertTombstone(t, db, "zzzz")
	gen.SetDrawFunc(func(length int) (string, error) {
		return "zzzz", nil
	})

	_, err := reg.Store(sampleRecord(1))
	var allocErr *AllocationFailedError
	require.ErrorAs(t, err, &allocErr)
	assert.Equal(t, 3, allocErr.Attempts)

	// 失败的注册不留下残余记录
	var count int64
	require.NoError(t, db.Model(&database.FileRecord{}).
		Where("status = ?", database.StatusActive).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestGetStatistics(t *testing.T) {
	reg, _, _ := setupRegistry(t)

	for i := 0; i < 3; i++ {
		_, err := reg.Store(sampleRecord(i))
		require.NoError(t, err)
	}
	png := sampleRecord(100)
	png.FileExtension = ".png"
	png.MimeType = "image/png"
	_, err := reg.Store(png)
	require.NoError(t, err)

	stats, err := reg.GetStatistics()
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalFiles)
	assert.Equal(t, int64(4), stats.FilesWithKey)
	assert.Equal(t, int64(3), stats.ByExtension[".jpg"])
	assert.Equal(t, int64(1), stats.ByExtension[".png"])
	require.NotNil(t, stats.ShortKeys)
	assert.Equal(t, int64(4), stats.ShortKeys.MintedCount)
}
