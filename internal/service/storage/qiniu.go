package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/qiniu/go-sdk/v7/auth/qbox"
	qiniustorage "github.com/qiniu/go-sdk/v7/storage"

	"github.com/valorvie/uploadr2/config"
)

// QiniuProvider 七牛云Kodo提供商实现
type QiniuProvider struct {
	mac    *qbox.Mac
	bucket string
	region *qiniustorage.Region
}

// NewQiniuProvider 创建七牛云Kodo提供商实例
func NewQiniuProvider(cfg config.StorageConfig) (*QiniuProvider, error) {
	mac := qbox.NewMac(cfg.AccessKey, cfg.SecretKey)

	region, err := qiniustorage.GetRegion(cfg.AccessKey, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to get qiniu region: %w", err)
	}

	return &QiniuProvider{
		mac:    mac,
		bucket: cfg.Bucket,
		region: region,
	}, nil
}

// UploadFile 上传文件到七牛云Kodo
func (p *QiniuProvider) UploadFile(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	putPolicy := qiniustorage.PutPolicy{
		Scope: fmt.Sprintf("%s:%s", p.bucket, objectKey),
	}
	upToken := putPolicy.UploadToken(p.mac)

	cfg := qiniustorage.Config{
		Region:   p.region,
		UseHTTPS: true,
	}

	formUploader := qiniustorage.NewFormUploader(&cfg)
	ret := qiniustorage.PutRet{}
	putExtra := qiniustorage.PutExtra{}
	if contentType != "" {
		putExtra.MimeType = contentType
	}

	if err := formUploader.Put(ctx, &ret, upToken, objectKey, reader, size, &putExtra); err != nil {
		return fmt.Errorf("failed to upload file to qiniu kodo: %w", err)
	}

	return nil
}

// FileExists 检查文件是否存在
func (p *QiniuProvider) FileExists(ctx context.Context, objectKey string) (bool, error) {
	bucketManager := qiniustorage.NewBucketManager(p.mac, &qiniustorage.Config{
		Region: p.region,
	})

	_, err := bucketManager.Stat(p.bucket, objectKey)
	if err != nil {
		if strings.Contains(err.Error(), "no such file or directory") {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence in qiniu kodo: %w", err)
	}

	return true, nil
}

// DeleteFile 删除七牛云Kodo文件
func (p *QiniuProvider) DeleteFile(ctx context.Context, objectKey string) error {
	bucketManager := qiniustorage.NewBucketManager(p.mac, &qiniustorage.Config{
		Region: p.region,
	})

	if err := bucketManager.Delete(p.bucket, objectKey); err != nil {
		return fmt.Errorf("failed to delete file from qiniu kodo: %w", err)
	}

	return nil
}

// TestConnection 测试连接
func (p *QiniuProvider) TestConnection(ctx context.Context) error {
	bucketManager := qiniustorage.NewBucketManager(p.mac, &qiniustorage.Config{
		Region: p.region,
	})

	// 尝试列出存储桶中的文件（限制为1个）
	_, _, _, _, err := bucketManager.ListFiles(p.bucket, "", "", "", 1)
	if err != nil {
		return fmt.Errorf("failed to connect to qiniu kodo: %w", err)
	}

	return nil
}
