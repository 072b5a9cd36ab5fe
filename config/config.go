// Package config 提供应用程序配置的加载和验证功能
// 使用viper读取配置文件和环境变量，使用validator进行范围和枚举校验
// 配置在启动时一次性构建为强类型结构体，随后只读传递给各组件
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
// 所有字段在Load中完成加载和验证，运行期间不再变化
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Upload   UploadConfig   `mapstructure:"upload"`
	File     FileConfig     `mapstructure:"file"`
	ShortKey ShortKeyConfig `mapstructure:"short_key"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

// StorageConfig 对象存储配置
// 支持Cloudflare R2（S3兼容接口）、阿里云OSS、腾讯云COS和七牛云Kodo
type StorageConfig struct {
	Provider     string `mapstructure:"provider" validate:"required,oneof=r2 aliyun tencent qiniu"` // 存储提供商
	Endpoint     string `mapstructure:"endpoint" validate:"required,url"`                           // 服务端点URL
	AccessKey    string `mapstructure:"access_key" validate:"required"`                             // 访问密钥ID
	SecretKey    string `mapstructure:"secret_key" validate:"required"`                             // 访问密钥Secret
	Bucket       string `mapstructure:"bucket" validate:"required"`                                 // 存储桶名称
	Region       string `mapstructure:"region"`                                                     // 服务区域（部分提供商需要）
	CustomDomain string `mapstructure:"custom_domain" validate:"omitempty,url"`                     // 自定义域名，用于生成完整的访问URL
}

// UploadConfig 上传行为配置
type UploadConfig struct {
	MaxConcurrentUploads int     `mapstructure:"max_concurrent_uploads" validate:"min=1,max=20"` // 最大并发上传数量
	MaxRetries           int     `mapstructure:"max_retries" validate:"min=0,max=10"`            // 最大重试次数
	RetryDelaySeconds    float64 `mapstructure:"retry_delay_seconds" validate:"min=0.1,max=60"`  // 重试基础延迟时间（秒），按指数退避
	CheckDuplicate       bool    `mapstructure:"check_duplicate"`                                // 是否启用重复文件检查
}

// FileConfig 文件处理配置
type FileConfig struct {
	OriginalDir      string   `mapstructure:"original_dir" validate:"required"`                 // 原始文件目录
	TransferDir      string   `mapstructure:"transfer_dir" validate:"required"`                 // 中转文件目录
	SupportedFormats []string `mapstructure:"supported_formats" validate:"min=1"`               // 支持的文件格式（副档名，不含点号）
	MaxFileSizeMB    int      `mapstructure:"max_file_size_mb" validate:"min=1,max=500"`        // 最大文件大小（MB）
	ValidateFileType bool     `mapstructure:"validate_file_type"`                               // 是否验证文件类型
	HashAlgorithm    string   `mapstructure:"hash_algorithm" validate:"oneof=sha256 sha512 md5"` // 内容哈希算法
}

// ShortKeyConfig 短链名生成配置
type ShortKeyConfig struct {
	MaxLength int `mapstructure:"max_length" validate:"min=4,max=32"` // 短链名最大长度（硬上限，达到后需人工干预）
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Path         string `mapstructure:"path" validate:"required"`       // SQLite数据库文件路径
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"min=1"` // 最大打开连接数
}

// LogConfig 日志配置
type LogConfig struct {
	Level    string `mapstructure:"level" validate:"oneof=debug info warn error"` // 日志级别
	Format   string `mapstructure:"format" validate:"oneof=json text"`            // 日志格式
	Output   string `mapstructure:"output" validate:"oneof=console file both"`    // 输出方式
	FilePath string `mapstructure:"file_path"`                                    // 日志文件路径
}

// MaxFileSizeBytes 获取最大文件大小（字节）
func (c FileConfig) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.provider", "r2")
	v.SetDefault("upload.max_concurrent_uploads", 5)
	v.SetDefault("upload.max_retries", 3)
	v.SetDefault("upload.retry_delay_seconds", 1.0)
	v.SetDefault("upload.check_duplicate", true)
	v.SetDefault("file.original_dir", "images/original")
	v.SetDefault("file.transfer_dir", "images/transfer")
	v.SetDefault("file.supported_formats", []string{"jpg", "jpeg", "png", "gif", "bmp", "tiff", "webp"})
	v.SetDefault("file.max_file_size_mb", 50)
	v.SetDefault("file.validate_file_type", true)
	v.SetDefault("file.hash_algorithm", "sha512")
	v.SetDefault("short_key.max_length", 12)
	v.SetDefault("database.path", "data/uploadr2.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.file_path", "logs/uploadr2.log")
}

// Load 加载配置
// 从指定配置文件读取配置，环境变量（UPLOADR2_前缀）可覆盖所有配置项
// 参数:
//   configPath - 配置文件路径，为空时按默认路径查找，文件缺失时使用默认值
// 返回:
//   *Config - 验证通过的配置实例
//   error - 加载或验证失败时返回错误信息
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// 配置文件缺失时使用默认值和环境变量
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// 环境变量覆盖，例如 UPLOADR2_STORAGE_ACCESS_KEY
	v.SetEnvPrefix("UPLOADR2")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 规范化自定义域名，移除末尾斜线
	cfg.Storage.CustomDomain = strings.TrimRight(cfg.Storage.CustomDomain, "/")

	// 副档名统一为小写
	for i, format := range cfg.File.SupportedFormats {
		cfg.File.SupportedFormats[i] = strings.ToLower(strings.TrimSpace(format))
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
