// Package registry 提供文件注册表服务
// 负责文件记录的持久化、基于内容哈希的去重和短链名的分配
// 短链名分配的临界区由进程级互斥锁串行化，数据库唯一索引为最终仲裁
package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/valorvie/uploadr2/internal/database"
	"github.com/valorvie/uploadr2/internal/service/shortkey"
)

// maxStoreAttempts 短链名唯一索引冲突时的最大重试次数
const maxStoreAttempts = 3

// ErrFileNotFound 文件记录不存在
var ErrFileNotFound = errors.New("file record not found")

// DuplicateFileError 文件内容已存在于注册表中
type DuplicateFileError struct {
	FileHash string // 冲突的内容哈希
}

// Error 实现error接口
func (e *DuplicateFileError) Error() string {
	return fmt.Sprintf("file with hash %s already registered", e.FileHash)
}

// AllocationFailedError 多次重试后仍无法分配唯一短链名
type AllocationFailedError struct {
	Attempts int // 已尝试次数
	LastErr  error
}

// Error 实现error接口
func (e *AllocationFailedError) Error() string {
	return fmt.Sprintf("failed to allocate unique short key after %d attempts: %v", e.Attempts, e.LastErr)
}

// Unwrap 返回底层错误
func (e *AllocationFailedError) Unwrap() error { return e.LastErr }

// NewRecord 待注册的文件信息
type NewRecord struct {
	UUIDKey          string // 基于内容哈希的规范标识符
	OriginalFilename string // 原始文件名
	FileExtension    string // 文件扩展名（含点号，已小写）
	FileSize         int64  // 文件大小（字节）
	MimeType         string // MIME类型
	FileHash         string // 内容哈希（十六进制）
	HashAlgorithm    string // 哈希算法名称
}

// Statistics 注册表统计信息
type Statistics struct {
	TotalFiles       int64                `json:"total_files"`        // 活跃文件总数
	FilesWithKey     int64                `json:"files_with_key"`     // 已分配短链名的文件数
	TotalBytes       int64                `json:"total_bytes"`        // 活跃文件总字节数
	TotalAccessCount int64                `json:"total_access_count"` // 访问总次数
	ByExtension      map[string]int64     `json:"by_extension"`       // 按扩展名分组的文件数
	ShortKeys        *shortkey.Statistics `json:"short_keys"`         // 短链名键空间统计
}

// FileRegistry 文件注册表服务接口
type FileRegistry interface {
	// 注册文件并分配短链名，内容重复时返回DuplicateFileError
	Store(record *NewRecord) (*database.FileRecord, error)

	// 根据内容哈希查找活跃文件记录
	FindByHash(fileHash string) (*database.FileRecord, error)

	// 根据短链名查找活跃文件记录并记录一次访问
	FindByShortKey(key string) (*database.FileRecord, error)

	// 回填上传结果（对象键和访问URL）
	// 返回是否存在匹配的活跃记录，记录缺失时由调用方决定是否重建
	UpdateUploadInfo(uuidKey, objectKey, uploadURL string) (bool, error)

	// 获取注册表统计信息
	GetStatistics() (*Statistics, error)
}

// fileRegistry 文件注册表实现
type fileRegistry struct {
	db  *gorm.DB
	gen *shortkey.Generator
	log *logrus.Logger
	// mu 串行化"选择长度 → 生成候选 → 插入"的临界区
	// 进程内并发上传持有同一把锁，跨进程冲突由唯一索引兜底
	mu sync.Mutex
}

// NewFileRegistry 创建文件注册表实例
func NewFileRegistry(db *gorm.DB, gen *shortkey.Generator, log *logrus.Logger) FileRegistry {
	return &fileRegistry{
		db:  db,
		gen: gen,
		log: log,
	}
}

// Store 注册文件并分配短链名
// 同一内容哈希重复注册时返回DuplicateFileError
// 短链名唯一索引冲突时在有限次数内重新生成候选
func (r *fileRegistry) Store(record *NewRecord) (*database.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= maxStoreAttempts; attempt++ {
		created, err := r.storeOnce(record)
		if err == nil {
			r.log.Infof("[文件注册表] 注册文件成功: %s (短链名: %s)", record.OriginalFilename, *created.ShortKey)
			return created, nil
		}

		var dup *DuplicateFileError
		if errors.As(err, &dup) {
			return nil, err
		}

		if !isShortKeyConflict(err) {
			return nil, err
		}

		// 短链名被并发进程抢占，重新生成候选
		lastErr = err
		r.log.Warnf("[文件注册表] 短链名冲突，重试注册 (%d/%d): %v", attempt, maxStoreAttempts, err)
	}

	return nil, &AllocationFailedError{Attempts: maxStoreAttempts, LastErr: lastErr}
}

// storeOnce 执行单次注册尝试
// 在事务内完成短链名生成、记录插入和上传操作日志
func (r *fileRegistry) storeOnce(record *NewRecord) (*database.FileRecord, error) {
	var created *database.FileRecord

	err := r.db.Transaction(func(tx *gorm.DB) error {
		key, keyLength, err := r.gen.Mint(tx)
		if err != nil {
			return err
		}

		now := time.Now()
		fileRecord := &database.FileRecord{
			UUIDKey:          record.UUIDKey,
			OriginalFilename: record.OriginalFilename,
			FileExtension:    record.FileExtension,
			FileSize:         record.FileSize,
			MimeType:         record.MimeType,
			FileHash:         record.FileHash,
			HashAlgorithm:    record.HashAlgorithm,
			ObjectKey:        key + strings.ToLower(record.FileExtension),
			ShortKey:         &key,
			ShortKeyLength:   keyLength,
			ShortKeyMintedAt: &now,
			Status:           database.StatusActive,
		}

		if err := tx.Create(fileRecord).Error; err != nil {
			if isHashConflict(err) {
				return &DuplicateFileError{FileHash: record.FileHash}
			}
			return err
		}

		opLog := &database.FileOperationLog{
			FileRecordID:  fileRecord.ID,
			OperationType: database.OperationUpload,
			Details:       fmt.Sprintf("registered %s (%d bytes)", record.OriginalFilename, record.FileSize),
		}
		if err := tx.Create(opLog).Error; err != nil {
			return fmt.Errorf("failed to log upload operation: %w", err)
		}

		created = fileRecord
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// FindByHash 根据内容哈希查找活跃文件记录
// 记录不存在时返回ErrFileNotFound
func (r *fileRegistry) FindByHash(fileHash string) (*database.FileRecord, error) {
	var record database.FileRecord
	err := r.db.Where("file_hash = ? AND status = ?", fileHash, database.StatusActive).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query file by hash: %w", err)
	}
	return &record, nil
}

// FindByShortKey 根据短链名查找活跃文件记录
// 查找成功时插入一条访问操作日志，数据库触发器据此递增访问计数
// 返回的记录反映插入日志前的计数值
func (r *fileRegistry) FindByShortKey(key string) (*database.FileRecord, error) {
	var record database.FileRecord
	err := r.db.Where("short_key = ? AND status = ?", key, database.StatusActive).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query file by short key: %w", err)
	}

	opLog := &database.FileOperationLog{
		FileRecordID:  record.ID,
		OperationType: database.OperationAccess,
		Details:       fmt.Sprintf("accessed via short key %s", key),
	}
	if err := r.db.Create(opLog).Error; err != nil {
		// 访问日志失败不影响查找结果
		r.log.Warnf("[文件注册表] 记录访问日志失败: %v", err)
	}

	return &record, nil
}

// UpdateUploadInfo 回填上传结果
// 只更新活跃记录，逻辑删除的记录不受影响
// 返回false表示没有匹配的活跃记录，调用方可据此重建记录
func (r *fileRegistry) UpdateUploadInfo(uuidKey, objectKey, uploadURL string) (bool, error) {
	result := r.db.Model(&database.FileRecord{}).
		Where("uuid_key = ? AND status = ?", uuidKey, database.StatusActive).
		Updates(map[string]interface{}{
			"object_key": objectKey,
			"upload_url": uploadURL,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update upload info: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	r.log.Debugf("[文件注册表] 更新上传信息: %s -> %s", uuidKey, uploadURL)
	return true, nil
}

// GetStatistics 获取注册表统计信息
func (r *fileRegistry) GetStatistics() (*Statistics, error) {
	stats := &Statistics{ByExtension: make(map[string]int64)}

	active := func() *gorm.DB {
		return r.db.Model(&database.FileRecord{}).Where("status = ?", database.StatusActive)
	}

	if err := active().Count(&stats.TotalFiles).Error; err != nil {
		return nil, fmt.Errorf("failed to count files: %w", err)
	}
	if err := active().Where("short_key IS NOT NULL").Count(&stats.FilesWithKey).Error; err != nil {
		return nil, fmt.Errorf("failed to count files with short key: %w", err)
	}

	var sums struct {
		TotalBytes       int64
		TotalAccessCount int64
	}
	if err := active().
		Select("COALESCE(SUM(file_size), 0) AS total_bytes, COALESCE(SUM(access_count), 0) AS total_access_count").
		Scan(&sums).Error; err != nil {
		return nil, fmt.Errorf("failed to sum file sizes: %w", err)
	}
	stats.TotalBytes = sums.TotalBytes
	stats.TotalAccessCount = sums.TotalAccessCount

	rows, err := active().
		Select("file_extension, COUNT(*) AS count").
		Group("file_extension").Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to group by extension: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ext string
		var count int64
		if err := rows.Scan(&ext, &count); err != nil {
			return nil, fmt.Errorf("failed to scan extension row: %w", err)
		}
		stats.ByExtension[ext] = count
	}

	keyStats, err := r.gen.GetStatistics(r.db)
	if err != nil {
		return nil, err
	}
	stats.ShortKeys = keyStats

	return stats, nil
}

// isShortKeyConflict 判断错误是否为短链名唯一索引冲突
func isShortKeyConflict(err error) bool {
	return err != nil && strings.Contains(err.Error(), "file_records.short_key")
}

// isHashConflict 判断错误是否为内容哈希或UUID唯一索引冲突
func isHashConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "file_records.file_hash") || strings.Contains(msg, "file_records.uuid_key")
}
