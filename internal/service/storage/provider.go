// Package storage 提供对象存储抽象层
// 支持Cloudflare R2、阿里云OSS、腾讯云COS和七牛云Kodo四种提供商
// 通过工厂根据配置创建对应的提供商实例
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/valorvie/uploadr2/config"
)

// ErrUnsupportedProvider 不支持的存储提供商
var ErrUnsupportedProvider = errors.New("unsupported storage provider")

// Provider 对象存储提供商接口
type Provider interface {
	// 上传文件
	UploadFile(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error

	// 检查文件是否存在
	FileExists(ctx context.Context, objectKey string) (bool, error)

	// 删除文件
	DeleteFile(ctx context.Context, objectKey string) error

	// 测试连接
	TestConnection(ctx context.Context) error
}

// NewProvider 根据配置创建存储提供商实例
func NewProvider(cfg config.StorageConfig) (Provider, error) {
	switch cfg.Provider {
	case "r2":
		return NewR2Provider(cfg)
	case "aliyun":
		return NewAliyunProvider(cfg)
	case "tencent":
		return NewTencentProvider(cfg)
	case "qiniu":
		return NewQiniuProvider(cfg)
	default:
		return nil, ErrUnsupportedProvider
	}
}
