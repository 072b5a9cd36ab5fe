// Package uploader 提供带重试机制的文件上传服务
// 封装存储提供商，实现指数退避重试、重复检测和访问URL生成
package uploader

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/valorvie/uploadr2/config"
	"github.com/valorvie/uploadr2/internal/fileutil"
	"github.com/valorvie/uploadr2/internal/service/storage"
)

// Result 单个文件的上传结果
type Result struct {
	ObjectKey string // 对象键
	URL       string // 访问URL
	Duplicate bool   // 对象已存在，本次未执行上传
}

// Uploader 文件上传服务接口
type Uploader interface {
	// 上传本地文件，对象已存在时跳过上传直接返回URL
	UploadFile(ctx context.Context, localPath, objectKey string) (*Result, error)

	// 生成对象的访问URL
	FileURL(objectKey string) string

	// 测试与存储服务的连接
	TestConnection(ctx context.Context) error

	// 删除远端对象
	DeleteFile(ctx context.Context, objectKey string) error
}

// uploader 文件上传服务实现
type uploader struct {
	provider   storage.Provider
	storageCfg config.StorageConfig
	uploadCfg  config.UploadConfig
	log        *logrus.Logger
	// sleep 退避等待函数，测试中可替换以避免真实等待
	sleep func(ctx context.Context, d time.Duration) error
}

// NewUploader 创建文件上传服务实例
func NewUploader(provider storage.Provider, storageCfg config.StorageConfig, uploadCfg config.UploadConfig, log *logrus.Logger) Uploader {
	return &uploader{
		provider:   provider,
		storageCfg: storageCfg,
		uploadCfg:  uploadCfg,
		log:        log,
		sleep:      sleepContext,
	}
}

// UploadFile 上传本地文件
// 开启重复检测时先查询对象是否存在，存在则跳过上传
// 上传失败按指数退避重试，重试耗尽后返回最后一次错误
func (u *uploader) UploadFile(ctx context.Context, localPath, objectKey string) (*Result, error) {
	if u.uploadCfg.CheckDuplicate {
		exists, err := u.provider.FileExists(ctx, objectKey)
		if err != nil {
			return nil, err
		}
		if exists {
			u.log.Infof("[上传器] 对象已存在，跳过上传: %s", objectKey)
			return &Result{
				ObjectKey: objectKey,
				URL:       u.FileURL(objectKey),
				Duplicate: true,
			}, nil
		}
	}

	if err := u.uploadWithRetry(ctx, localPath, objectKey); err != nil {
		return nil, err
	}

	return &Result{
		ObjectKey: objectKey,
		URL:       u.FileURL(objectKey),
	}, nil
}

// uploadWithRetry 带重试机制的上传
// 共尝试 maxRetries+1 次，第n次失败后等待 retryDelay * 2^n 秒
func (u *uploader) uploadWithRetry(ctx context.Context, localPath, objectKey string) error {
	totalAttempts := u.uploadCfg.MaxRetries + 1

	var lastErr error
	for attempt := 0; attempt < totalAttempts; attempt++ {
		err := u.doUpload(ctx, localPath, objectKey)
		if err == nil {
			u.log.Infof("[上传器] 文件上传成功: %s -> %s", localPath, objectKey)
			return nil
		}

		lastErr = err
		u.log.Warnf("[上传器] 上传尝试 %d/%d 失败: %s - %v", attempt+1, totalAttempts, localPath, err)

		if attempt < u.uploadCfg.MaxRetries {
			delay := time.Duration(u.uploadCfg.RetryDelaySeconds*float64(uint(1)<<uint(attempt))*1000) * time.Millisecond
			if err := u.sleep(ctx, delay); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("upload failed after %d retries: %w", u.uploadCfg.MaxRetries, lastErr)
}

// doUpload 执行单次上传
// 每次尝试重新打开文件，避免复用已消耗的读取器
// 单次尝试与批次取消解耦，进行中的上传完整结束而不是被中途掐断
// 取消只在退避等待和批次调度处生效
func (u *uploader) doUpload(ctx context.Context, localPath, objectKey string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", localPath, err)
	}

	contentType := fileutil.GuessMimeType(localPath)
	return u.provider.UploadFile(context.WithoutCancel(ctx), objectKey, file, info.Size(), contentType)
}

// FileURL 生成对象的访问URL
// 配置了自定义域名时使用自定义域名，否则从endpoint推导公开访问地址
func (u *uploader) FileURL(objectKey string) string {
	if u.storageCfg.CustomDomain != "" {
		return u.storageCfg.CustomDomain + "/" + objectKey
	}

	publicEndpoint := strings.Replace(u.storageCfg.Endpoint, "https://", "https://pub-", 1)
	return fmt.Sprintf("%s/%s/%s", publicEndpoint, u.storageCfg.Bucket, objectKey)
}

// TestConnection 测试与存储服务的连接
func (u *uploader) TestConnection(ctx context.Context) error {
	return u.provider.TestConnection(ctx)
}

// DeleteFile 删除远端对象
func (u *uploader) DeleteFile(ctx context.Context, objectKey string) error {
	return u.provider.DeleteFile(ctx, objectKey)
}

// sleepContext 可被取消的等待
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
