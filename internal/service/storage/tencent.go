package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tencentyun/cos-go-sdk-v5"

	"github.com/valorvie/uploadr2/config"
)

// TencentProvider 腾讯云COS提供商实现
type TencentProvider struct {
	client *cos.Client
	bucket string
}

// NewTencentProvider 创建腾讯云COS提供商实例
func NewTencentProvider(cfg config.StorageConfig) (*TencentProvider, error) {
	bucketURL := fmt.Sprintf("https://%s.cos.%s.myqcloud.com", cfg.Bucket, cfg.Region)
	if cfg.Endpoint != "" {
		bucketURL = cfg.Endpoint
	}

	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bucket URL: %w", err)
	}

	client := cos.NewClient(&cos.BaseURL{BucketURL: u}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		},
	})

	return &TencentProvider{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// UploadFile 上传文件到腾讯云COS
func (p *TencentProvider) UploadFile(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	options := &cos.ObjectPutOptions{}
	if contentType != "" {
		options.ObjectPutHeaderOptions = &cos.ObjectPutHeaderOptions{
			ContentType: contentType,
		}
	}

	_, err := p.client.Object.Put(ctx, objectKey, reader, options)
	if err != nil {
		return fmt.Errorf("failed to upload file to tencent cos: %w", err)
	}

	return nil
}

// FileExists 检查文件是否存在
func (p *TencentProvider) FileExists(ctx context.Context, objectKey string) (bool, error) {
	_, err := p.client.Object.Head(ctx, objectKey, nil)
	if err != nil {
		if cos.IsNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence in tencent cos: %w", err)
	}

	return true, nil
}

// DeleteFile 删除腾讯云COS文件
func (p *TencentProvider) DeleteFile(ctx context.Context, objectKey string) error {
	_, err := p.client.Object.Delete(ctx, objectKey)
	if err != nil {
		return fmt.Errorf("failed to delete file from tencent cos: %w", err)
	}

	return nil
}

// TestConnection 测试连接
func (p *TencentProvider) TestConnection(ctx context.Context) error {
	_, err := p.client.Bucket.Head(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to tencent cos: %w", err)
	}

	return nil
}
