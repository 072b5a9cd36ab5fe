package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/valorvie/uploadr2/config"
)

// AliyunProvider 阿里云OSS提供商实现
type AliyunProvider struct {
	client *oss.Client
	bucket *oss.Bucket
}

// NewAliyunProvider 创建阿里云OSS提供商实例
func NewAliyunProvider(cfg config.StorageConfig) (*AliyunProvider, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://oss-%s.aliyuncs.com", cfg.Region)
	}

	client, err := oss.New(endpoint, cfg.AccessKey, cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create aliyun oss client: %w", err)
	}

	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket %s: %w", cfg.Bucket, err)
	}

	return &AliyunProvider{
		client: client,
		bucket: bucket,
	}, nil
}

// UploadFile 上传文件到阿里云OSS
func (p *AliyunProvider) UploadFile(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	options := []oss.Option{}
	if contentType != "" {
		options = append(options, oss.ContentType(contentType))
	}

	if err := p.bucket.PutObject(objectKey, reader, options...); err != nil {
		return fmt.Errorf("failed to upload file to aliyun oss: %w", err)
	}

	return nil
}

// FileExists 检查文件是否存在
func (p *AliyunProvider) FileExists(ctx context.Context, objectKey string) (bool, error) {
	exists, err := p.bucket.IsObjectExist(objectKey)
	if err != nil {
		return false, fmt.Errorf("failed to check file existence in aliyun oss: %w", err)
	}

	return exists, nil
}

// DeleteFile 删除阿里云OSS文件
func (p *AliyunProvider) DeleteFile(ctx context.Context, objectKey string) error {
	if err := p.bucket.DeleteObject(objectKey); err != nil {
		return fmt.Errorf("failed to delete file from aliyun oss: %w", err)
	}

	return nil
}

// TestConnection 测试连接
func (p *AliyunProvider) TestConnection(ctx context.Context) error {
	exists, err := p.client.IsBucketExist(p.bucket.BucketName)
	if err != nil {
		return fmt.Errorf("failed to connect to aliyun oss: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", p.bucket.BucketName)
	}

	return nil
}
