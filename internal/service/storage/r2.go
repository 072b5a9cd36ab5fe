package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/valorvie/uploadr2/config"
)

// R2Provider Cloudflare R2提供商实现
// R2兼容S3协议，使用S3客户端访问
type R2Provider struct {
	client *minio.Client
	bucket string
}

// NewR2Provider 创建Cloudflare R2提供商实例
func NewR2Provider(cfg config.StorageConfig) (*R2Provider, error) {
	// S3客户端要求endpoint不带协议前缀
	endpoint := strings.TrimPrefix(cfg.Endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	secure := !strings.HasPrefix(cfg.Endpoint, "http://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: "auto",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create r2 client: %w", err)
	}

	return &R2Provider{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// UploadFile 上传文件到R2
func (p *R2Provider) UploadFile(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	options := minio.PutObjectOptions{}
	if contentType != "" {
		options.ContentType = contentType
	}

	_, err := p.client.PutObject(ctx, p.bucket, objectKey, reader, size, options)
	if err != nil {
		return fmt.Errorf("failed to upload file to r2: %w", err)
	}

	return nil
}

// FileExists 检查文件是否存在
func (p *R2Provider) FileExists(ctx context.Context, objectKey string) (bool, error) {
	_, err := p.client.StatObject(ctx, p.bucket, objectKey, minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence in r2: %w", err)
	}

	return true, nil
}

// DeleteFile 删除R2文件
func (p *R2Provider) DeleteFile(ctx context.Context, objectKey string) error {
	err := p.client.RemoveObject(ctx, p.bucket, objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete file from r2: %w", err)
	}

	return nil
}

// TestConnection 测试连接
func (p *R2Provider) TestConnection(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("failed to connect to r2: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", p.bucket)
	}

	return nil
}
