// Package batch 提供批量上传编排
// 负责扫描来源目录、控制并发、驱动单文件处理管线并汇总批次结果
// 取消批次时未调度的文件标记为跳过，执行中的文件完成当前尝试
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/valorvie/uploadr2/config"
	"github.com/valorvie/uploadr2/internal/database"
	"github.com/valorvie/uploadr2/internal/fileutil"
	"github.com/valorvie/uploadr2/internal/hashutil"
	"github.com/valorvie/uploadr2/internal/service/progress"
	"github.com/valorvie/uploadr2/internal/service/registry"
	"github.com/valorvie/uploadr2/internal/service/uploader"
)

// Options 批次运行选项
type Options struct {
	DryRun  bool // 仅扫描和查重，不注册也不上传
	Cleanup bool // 批次结束后清空中转目录
}

// Processor 批量上传处理器
type Processor struct {
	cfg      *config.Config
	registry registry.FileRegistry
	uploader uploader.Uploader
	log      *logrus.Logger
}

// NewProcessor 创建批量上传处理器实例
func NewProcessor(cfg *config.Config, reg registry.FileRegistry, up uploader.Uploader, log *logrus.Logger) *Processor {
	return &Processor{
		cfg:      cfg,
		registry: reg,
		uploader: up,
		log:      log,
	}
}

// Run 执行批量上传
// 扫描来源目录后在并发上限内调度单文件管线，返回批次进度跟踪器
// 单个文件失败不中断批次，context取消后停止调度新文件
func (p *Processor) Run(ctx context.Context, opts Options) (*progress.Tracker, error) {
	if err := fileutil.EnsureDirectories(p.cfg.File.OriginalDir, p.cfg.File.TransferDir); err != nil {
		return nil, err
	}

	files, err := fileutil.Scan(p.cfg.File.OriginalDir, p.cfg.File)
	if err != nil {
		return nil, err
	}

	sizes := make(map[string]int64, len(files))
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		sizes[path] = info.Size()
	}

	tracker := progress.NewTracker(sizes)
	if len(files) == 0 {
		p.log.Infof("[批量处理] 来源目录没有待上传的文件: %s", p.cfg.File.OriginalDir)
		return tracker, nil
	}

	p.log.Infof("[批量处理] 开始处理 %d 个文件 (并发上限: %d)", len(files), p.cfg.Upload.MaxConcurrentUploads)

	semaphore := make(chan struct{}, p.cfg.Upload.MaxConcurrentUploads)
	var wg sync.WaitGroup

	for _, path := range files {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()

			// select在两个case同时就绪时随机选择，先单独检查取消状态
			select {
			case <-ctx.Done():
				tracker.Skip(path)
				return
			default:
			}

			select {
			case <-ctx.Done():
				tracker.Skip(path)
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			if err := p.processFile(ctx, path, sizes[path], tracker, opts); err != nil {
				p.log.Errorf("[批量处理] 处理文件失败: %s - %v", path, err)
			}
		}(path)
	}
	wg.Wait()

	if opts.Cleanup {
		if err := fileutil.CleanupDir(p.cfg.File.TransferDir); err != nil {
			p.log.Warnf("[批量处理] 清空中转目录失败: %v", err)
		}
	}

	summary := tracker.Summary()
	p.log.Infof("[批量处理] 批次完成: 成功 %d, 重复 %d, 失败 %d, 跳过 %d (耗时: %s)",
		summary.Completed, summary.Duplicates, summary.Failed, summary.Skipped, summary.Elapsed.Round(10*time.Millisecond))

	return tracker, nil
}

// processFile 执行单文件处理管线
// 验证、计算哈希、注册表查重、注册、复制中转文件并上传
func (p *Processor) processFile(ctx context.Context, path string, size int64, tracker *progress.Tracker, opts Options) error {
	tracker.SetStatus(path, progress.StatusProcessing)

	if err := fileutil.Validate(path, p.cfg.File); err != nil {
		tracker.Fail(path, err)
		return err
	}

	fileHash, err := hashutil.CalculateFileHash(path, p.cfg.File.HashAlgorithm)
	if err != nil {
		tracker.Fail(path, err)
		return err
	}
	uuidKey := hashutil.HashToUUID(fileHash)

	// 注册表查重优先于远端查重，命中时不发起任何远端请求
	existing, err := p.registry.FindByHash(fileHash)
	if err == nil {
		return p.handleExisting(ctx, path, existing, tracker, opts)
	}
	if !errors.Is(err, registry.ErrFileNotFound) {
		tracker.Fail(path, err)
		return err
	}

	if opts.DryRun {
		p.log.Infof("[批量处理] 试运行: 将上传 %s (标识: %s)", path, uuidKey)
		tracker.Skip(path)
		return nil
	}

	rec := p.buildRecord(path, fileHash, uuidKey, size)
	record, err := p.registry.Store(rec)
	if err != nil {
		var dup *registry.DuplicateFileError
		if errors.As(err, &dup) {
			// 并发注册竞争中落败，按已有记录处理
			existing, findErr := p.registry.FindByHash(fileHash)
			if findErr != nil {
				tracker.Fail(path, findErr)
				return findErr
			}
			return p.handleExisting(ctx, path, existing, tracker, opts)
		}
		tracker.Fail(path, err)
		return err
	}

	return p.uploadRecord(ctx, path, rec, *record.ShortKey, record.ObjectKey, tracker)
}

// handleExisting 处理内容已注册的文件
// 已有上传结果时直接复用URL，否则补传遗留的未完成上传
func (p *Processor) handleExisting(ctx context.Context, path string, record *database.FileRecord, tracker *progress.Tracker, opts Options) error {
	shortKey := ""
	if record.ShortKey != nil {
		shortKey = *record.ShortKey
	}

	if record.UploadURL != "" {
		p.log.Infof("[批量处理] 文件内容已注册，跳过上传: %s (短链名: %s)", path, shortKey)
		tracker.Duplicate(path, shortKey, record.UploadURL)
		return nil
	}

	if opts.DryRun {
		p.log.Infof("[批量处理] 试运行: 将补传 %s (短链名: %s)", path, shortKey)
		tracker.Skip(path)
		return nil
	}

	// 上次批次中断遗留的记录，补齐上传
	p.log.Warnf("[批量处理] 发现未完成的上传，补传: %s (短链名: %s)", path, shortKey)
	rec := &registry.NewRecord{
		UUIDKey:          record.UUIDKey,
		OriginalFilename: record.OriginalFilename,
		FileExtension:    record.FileExtension,
		FileSize:         record.FileSize,
		MimeType:         record.MimeType,
		FileHash:         record.FileHash,
		HashAlgorithm:    record.HashAlgorithm,
	}
	return p.uploadRecord(ctx, path, rec, shortKey, record.ObjectKey, tracker)
}

// uploadRecord 复制中转文件、执行上传并回填结果
// 上传期间记录被删除时重新注册后再回填
func (p *Processor) uploadRecord(ctx context.Context, path string, rec *registry.NewRecord, shortKey, objectKey string, tracker *progress.Tracker) error {
	transferPath, err := p.stageTransferFile(path, rec.UUIDKey)
	if err != nil {
		tracker.Fail(path, err)
		return err
	}

	tracker.SetStatus(path, progress.StatusUploading)
	result, err := p.uploader.UploadFile(ctx, transferPath, objectKey)
	if err != nil {
		// 记录保留在注册表中，下次批次补传
		tracker.Fail(path, err)
		return err
	}

	found, err := p.registry.UpdateUploadInfo(rec.UUIDKey, result.ObjectKey, result.URL)
	if err != nil {
		tracker.Fail(path, err)
		return err
	}
	if !found {
		p.log.Warnf("[批量处理] 上传结果没有对应的活跃记录，重新注册: %s", path)
		recreated, err := p.registry.Store(rec)
		if err != nil {
			tracker.Fail(path, err)
			return err
		}
		shortKey = *recreated.ShortKey
		if _, err := p.registry.UpdateUploadInfo(recreated.UUIDKey, result.ObjectKey, result.URL); err != nil {
			tracker.Fail(path, err)
			return err
		}
	}

	tracker.Complete(path, shortKey, result.URL)
	return nil
}

// stageTransferFile 将来源文件复制到中转目录
// 中转文件名包含清理后的原始文件名和规范标识，便于人工排查
func (p *Processor) stageTransferFile(path, uuidKey string) (string, error) {
	transferName := hashutil.FilenameWithOriginalName(path, uuidKey)
	transferPath := fileutil.UniquePath(filepath.Join(p.cfg.File.TransferDir, transferName))
	if err := fileutil.CopyFile(path, transferPath); err != nil {
		return "", err
	}
	return transferPath, nil
}

// buildRecord 构造待注册的文件信息
func (p *Processor) buildRecord(path, fileHash, uuidKey string, size int64) *registry.NewRecord {
	return &registry.NewRecord{
		UUIDKey:          uuidKey,
		OriginalFilename: filepath.Base(path),
		FileExtension:    strings.ToLower(filepath.Ext(path)),
		FileSize:         size,
		MimeType:         fileutil.GuessMimeType(path),
		FileHash:         fileHash,
		HashAlgorithm:    p.cfg.File.HashAlgorithm,
	}
}
