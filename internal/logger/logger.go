// Package logger 提供日志系统的构建功能
// 基于logrus实现，支持级别、格式和输出方式的配置
// 日志实例在启动时构建一次，显式传递给各组件，不使用包级全局状态
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/valorvie/uploadr2/config"
)

// New 构建日志实例
// 参数:
//   cfg - 日志配置
// 返回:
//   *logrus.Logger - 配置完成的日志实例
//   error - 构建失败时返回错误信息
func New(cfg config.LogConfig) (*logrus.Logger, error) {
	log := logrus.New()

	// 设置日志级别
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	log.SetLevel(level)

	// 设置日志格式
	switch cfg.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	// 设置输出
	output, err := buildOutput(cfg)
	if err != nil {
		return nil, err
	}
	log.SetOutput(output)

	return log, nil
}

// buildOutput 构建日志输出目标
func buildOutput(cfg config.LogConfig) (io.Writer, error) {
	switch cfg.Output {
	case "console":
		return os.Stdout, nil
	case "file":
		return openLogFile(cfg.FilePath)
	case "both":
		file, err := openLogFile(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		return io.MultiWriter(os.Stdout, file), nil
	default:
		return os.Stdout, nil
	}
}

// openLogFile 打开日志文件，必要时创建日志目录
func openLogFile(path string) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return file, nil
}
