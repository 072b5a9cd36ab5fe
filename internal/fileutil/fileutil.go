// Package fileutil 提供文件处理相关的辅助功能
// 包含文件验证、目录扫描、唯一文件名和MIME类型判断
package fileutil

import (
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/valorvie/uploadr2/config"
)

// IsSupportedFormat 检查文件是否为支持的格式
// 同时检查副档名白名单和MIME类型的一致性
func IsSupportedFormat(path string, supportedFormats []string) bool {
	extension := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	supported := false
	for _, format := range supportedFormats {
		if extension == format {
			supported = true
			break
		}
	}
	if !supported {
		return false
	}

	// MIME类型与图片格式不一致时拒绝
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType != "" && !strings.HasPrefix(mimeType, "image/") {
		return false
	}
	return true
}

// Validate 验证文件是否符合上传要求
// 依次检查文件存在性、类型白名单和大小限制
// 返回:
//   error - 验证失败时返回描述性错误，通过时返回nil
func Validate(path string, cfg config.FileConfig) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %s", path)
		}
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}

	if info.IsDir() {
		return fmt.Errorf("not a regular file: %s", path)
	}

	if cfg.ValidateFileType && !IsSupportedFormat(path, cfg.SupportedFormats) {
		return fmt.Errorf("unsupported file format: %s", filepath.Ext(path))
	}

	if info.Size() > cfg.MaxFileSizeBytes() {
		return fmt.Errorf("file too large: %.2fMB (max: %dMB)",
			float64(info.Size())/1024/1024, cfg.MaxFileSizeMB)
	}

	return nil
}

// Scan 递归扫描目录中符合要求的文件
// 返回按路径排序的有效文件列表，目录不存在时返回空列表
func Scan(dir string, cfg config.FileConfig) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if validateErr := Validate(path, cfg); validateErr == nil {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory %s: %w", dir, err)
	}

	sort.Strings(files)
	return files, nil
}

// UniquePath 生成不与现有文件冲突的路径
// 路径被占用时在文件名后追加递增序号
func UniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	extension := filepath.Ext(path)
	base := strings.TrimSuffix(path, extension)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, extension)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// GuessMimeType 根据副档名判断MIME类型
// 无法判断时返回application/octet-stream
func GuessMimeType(path string) string {
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}

// CopyFile 复制文件到目标路径
// 目标目录不存在时自动创建
func CopyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}

	source, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", src, err)
	}
	defer source.Close()

	target, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create target file %s: %w", dst, err)
	}
	defer target.Close()

	if _, err := io.Copy(target, source); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// CleanupDir 清理目录中的所有普通文件
// 保留目录本身和子目录结构
func CleanupDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// EnsureDirectories 确保所需目录存在
func EnsureDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
