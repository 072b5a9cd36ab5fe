// Package hashutil 提供文件内容哈希和内容标识派生功能
// 内容标识是文件字节内容的确定性函数，与文件名无关，用于重复检测
package hashutil

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// newHasher 根据算法名称创建哈希实例
func newHasher(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case "sha512":
		return sha512.New(), nil
	case "sha256":
		return sha256.New(), nil
	case "md5":
		return md5.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algorithm)
	}
}

// CalculateFileHash 计算文件内容哈希值
// 分块读取文件以限制内存占用
// 参数:
//   path - 文件路径
//   algorithm - 哈希算法名称（sha512、sha256、md5）
// 返回:
//   string - 哈希值（十六进制字符串）
//   error - 读取失败或算法不支持时返回错误信息
func CalculateFileHash(path string, algorithm string) (string, error) {
	hasher, err := newHasher(algorithm)
	if err != nil {
		return "", err
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	// 8KB分块读取，避免大文件占用过多内存
	buf := make([]byte, 8192)
	if _, err := io.CopyBuffer(hasher, file, buf); err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// HashToUUID 将哈希值转换为UUID格式的规范标识
// 取哈希值的前32个十六进制字符（不足时以'0'右补齐），
// 格式化为 8-4-4-4-12 的五段式标识
// 该映射是确定性的，碰撞概率由底层哈希函数决定
func HashToUUID(hashValue string) string {
	if len(hashValue) < 32 {
		hashValue = hashValue + strings.Repeat("0", 32-len(hashValue))
	} else {
		hashValue = hashValue[:32]
	}

	raw, err := hex.DecodeString(hashValue)
	if err != nil {
		// 非十六进制输入退化为随机标识，仅在哈希计算被绕过时出现
		return uuid.New().String()
	}

	var id uuid.UUID
	copy(id[:], raw)
	return id.String()
}

// ContentBasedFilename 基于规范标识生成文件名
// 格式: {规范标识}{副档名}
func ContentBasedFilename(path, canonicalID string) string {
	return canonicalID + strings.ToLower(filepath.Ext(path))
}

// FilenameWithOriginalName 生成包含原始文件名和规范标识的文件名
// 格式: {清理后的原始文件名}_{规范标识}{副档名}
// 原始文件名清理后没有可用字符时退化为纯规范标识命名
func FilenameWithOriginalName(path, canonicalID string) string {
	base := filepath.Base(path)
	trimmed := strings.TrimSuffix(base, filepath.Ext(base))
	name := SanitizeFilename(trimmed)
	if name == "file" && trimmed != "file" {
		return ContentBasedFilename(path, canonicalID)
	}

	extension := strings.ToLower(filepath.Ext(base))
	return fmt.Sprintf("%s_%s%s", name, canonicalID, extension)
}

var (
	unsafeChars  = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespace   = regexp.MustCompile(`\s+`)
	controlChars = regexp.MustCompile("[\x00-\x1f\x7f]")
)

// SanitizeFilename 清理文件名中的特殊字符
// 保留中文字符、字母、数字、连字号和底线；清理后为空时返回"file"
func SanitizeFilename(filename string) string {
	sanitized := unsafeChars.ReplaceAllString(filename, "_")
	sanitized = whitespace.ReplaceAllString(sanitized, "_")
	sanitized = controlChars.ReplaceAllString(sanitized, "")
	sanitized = strings.Trim(sanitized, " ._")

	// 限制文件名长度，避免文件系统限制问题
	if len(sanitized) > 200 {
		runes := []rune(sanitized)
		if len(runes) > 100 {
			runes = runes[:100]
		}
		sanitized = strings.TrimRight(string(runes), "._")
	}

	if sanitized == "" {
		return "file"
	}
	return sanitized
}
