// Package shortkey 提供短链名生成功能
// 实现加密安全的短链名生成算法，防止猜测且维持最短长度
// 键空间按长度分段管理，使用率越过阈值时自动升级到下一长度
package shortkey

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/valorvie/uploadr2/internal/database"
)

// Charset 短链名字符集：数字 + 小写字母 + 大写字母（62个字符）
const Charset = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// maxAttemptsPerLength 单个长度内的最大候选生成次数
const maxAttemptsPerLength = 100

// 使用率阈值
const (
	warnUsageRatio    = 0.80 // 超过该比例记录接近满载警告
	exhaustUsageRatio = 0.85 // 超过该比例标记长度已耗尽并升级
)

// reservedRatio 每个长度预留给系统保留字和未来扩展的份额
const reservedRatio = 0.001

// ErrKeyExhausted 已达到短链名最大长度限制
// 该错误不可自动恢复，需要运维人员提高长度上限
var ErrKeyExhausted = errors.New("short key space exhausted at maximum length")

// CollisionError 无法在指定长度内生成唯一短链名
type CollisionError struct {
	Length int // 发生冲突的长度
}

// Error 实现error接口
func (e *CollisionError) Error() string {
	return fmt.Sprintf("unable to generate unique short key at length %d", e.Length)
}

// SequenceStat 单个长度的键空间统计
type SequenceStat struct {
	Length       int     `json:"length"`        // 短链名长度
	Current      int64   `json:"current"`       // 当前已分配数量
	MaxPossible  int64   `json:"max_possible"`  // 最大可分配数量
	UsagePercent float64 `json:"usage_percent"` // 使用率百分比
	Exhausted    bool    `json:"exhausted"`     // 是否已耗尽
}

// Statistics 短链名生成统计信息
type Statistics struct {
	Sequences     []SequenceStat `json:"sequences"`       // 各长度的键空间统计
	ReservedCount int64          `json:"reserved_count"`  // 保留关键字数量
	MintedCount   int64          `json:"minted_count"`    // 已分配短链名数量
	CharsetSize   int            `json:"charset_size"`    // 字符集大小
}

// Generator 短链名生成器
// 所有方法在调用方持有的事务/连接上执行；调用方（文件注册表）
// 负责通过进程级互斥锁串行化"选择长度 → 生成候选 → 插入"的临界区
type Generator struct {
	log       *logrus.Logger
	maxLength int
	// drawKey 候选生成函数，测试中可替换以构造冲突场景
	drawKey func(length int) (string, error)
}

// NewGenerator 创建短链名生成器实例
// 参数:
//   log - 日志实例
//   maxLength - 短链名长度硬上限
func NewGenerator(log *logrus.Logger, maxLength int) *Generator {
	return &Generator{
		log:       log,
		maxLength: maxLength,
		drawKey:   randomKey,
	}
}

// SetDrawFunc 替换候选生成函数
// 供测试注入确定性的候选序列，构造冲突和重试场景
func (g *Generator) SetDrawFunc(fn func(length int) (string, error)) {
	g.drawKey = fn
}

// Mint 生成短链名
// 在传入的数据库句柄上选择可用长度、生成唯一候选并递增序列计数
// 返回:
//   string - 短链名
//   int - 短链名长度
//   error - ErrKeyExhausted（长度上限）、*CollisionError（候选耗尽）或数据库错误
func (g *Generator) Mint(tx *gorm.DB) (string, int, error) {
	length, err := g.currentLength(tx)
	if err != nil {
		return "", 0, err
	}

	key, err := g.mintAtLength(tx, length)
	if err == nil {
		g.log.Debugf("[短链生成器] 生成短链名成功: %s (长度: %d)", key, length)
		return key, length, nil
	}

	var collision *CollisionError
	if !errors.As(err, &collision) {
		return "", 0, err
	}

	// 当前长度无法生成，立即升级到下一长度再尝试一次
	g.log.Warnf("[短链生成器] 长度 %d 候选生成失败，尝试升级到下一长度", length)
	nextLength, err := g.escalate(tx)
	if err != nil {
		return "", 0, err
	}

	key, err = g.mintAtLength(tx, nextLength)
	if err != nil {
		return "", 0, err
	}

	g.log.Infof("[短链生成器] 升级到长度 %d，生成短链名: %s", nextLength, key)
	return key, nextLength, nil
}

// mintAtLength 在指定长度内尝试生成唯一短链名
// 最多尝试 maxAttemptsPerLength 次，接受第一个既非保留字又未被占用的候选
func (g *Generator) mintAtLength(tx *gorm.DB, length int) (string, error) {
	for attempt := 0; attempt < maxAttemptsPerLength; attempt++ {
		candidate, err := g.drawKey(length)
		if err != nil {
			return "", fmt.Errorf("failed to draw short key candidate: %w", err)
		}

		reserved, err := g.isReserved(tx, candidate)
		if err != nil {
			return "", err
		}
		if reserved {
			continue
		}

		exists, err := g.keyExists(tx, candidate)
		if err != nil {
			return "", err
		}
		if exists {
			continue
		}

		if err := g.incrementSequence(tx, length); err != nil {
			return "", err
		}
		return candidate, nil
	}

	return "", &CollisionError{Length: length}
}

// currentLength 获取当前应该使用的长度
// 按长度升序扫描未耗尽的序列，根据使用率决定选用、警告或标记耗尽
// 所有长度均不可用时创建新的长度序列
func (g *Generator) currentLength(tx *gorm.DB) (int, error) {
	var sequences []database.ShortKeySequence
	if err := tx.Where("exhausted = ?", false).Order("key_length ASC").Find(&sequences).Error; err != nil {
		return 0, fmt.Errorf("failed to query key length sequences: %w", err)
	}

	for _, seq := range sequences {
		usageRatio := float64(seq.CurrentSequence) / float64(seq.MaxPossible)

		switch {
		case usageRatio < warnUsageRatio:
			g.log.Debugf("[短链生成器] 选择长度 %d (使用率: %.1f%%)", seq.KeyLength, usageRatio*100)
			return seq.KeyLength, nil
		case usageRatio < exhaustUsageRatio:
			// 接近满载但仍可使用
			g.log.Warnf("[短链生成器] 长度 %d 接近满载 (使用率: %.1f%%)，仍可使用", seq.KeyLength, usageRatio*100)
			return seq.KeyLength, nil
		default:
			// 标记耗尽后继续检查下一个长度，耗尽标记不可逆
			g.log.Warnf("[短链生成器] 长度 %d 使用率过高 (%.1f%%)，标记为已耗尽", seq.KeyLength, usageRatio*100)
			if err := tx.Model(&database.ShortKeySequence{}).
				Where("key_length = ?", seq.KeyLength).
				Update("exhausted", true).Error; err != nil {
				return 0, fmt.Errorf("failed to mark length %d exhausted: %w", seq.KeyLength, err)
			}
		}
	}

	// 所有现有长度已耗尽，创建新的长度序列
	return g.escalate(tx)
}

// escalate 升级到下一个长度
// 在最大现有长度基础上加一并创建序列记录；达到硬上限时返回ErrKeyExhausted
func (g *Generator) escalate(tx *gorm.DB) (int, error) {
	var maxLength int
	row := tx.Model(&database.ShortKeySequence{}).Select("COALESCE(MAX(key_length), 3)")
	if err := row.Scan(&maxLength).Error; err != nil {
		return 0, fmt.Errorf("failed to query max key length: %w", err)
	}

	if maxLength >= g.maxLength {
		return 0, fmt.Errorf("%w: limit %d", ErrKeyExhausted, g.maxLength)
	}

	nextLength := maxLength + 1
	maxPossible := maxPossibleForLength(nextLength)

	if err := tx.Where(database.ShortKeySequence{KeyLength: nextLength}).
		FirstOrCreate(&database.ShortKeySequence{KeyLength: nextLength, MaxPossible: maxPossible}).Error; err != nil {
		return 0, fmt.Errorf("failed to create length sequence %d: %w", nextLength, err)
	}

	g.log.Infof("[短链生成器] 创建新的长度序列: %d (最大组合数: %d)", nextLength, maxPossible)
	return nextLength, nil
}

// isReserved 检查候选是否为保留关键字
func (g *Generator) isReserved(tx *gorm.DB, key string) (bool, error) {
	var count int64
	if err := tx.Model(&database.ReservedShortKey{}).Where("short_key = ?", key).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check reserved key: %w", err)
	}
	return count > 0, nil
}

// keyExists 检查短链名是否已被活跃记录占用
// 此检查仅为乐观预检，最终唯一性由file_records表的唯一索引保证
func (g *Generator) keyExists(tx *gorm.DB, key string) (bool, error) {
	var count int64
	if err := tx.Model(&database.FileRecord{}).
		Where("short_key = ? AND status = ?", key, database.StatusActive).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check short key existence: %w", err)
	}
	return count > 0, nil
}

// incrementSequence 递增指定长度的序列计数
func (g *Generator) incrementSequence(tx *gorm.DB, length int) error {
	if err := tx.Model(&database.ShortKeySequence{}).
		Where("key_length = ?", length).
		Update("current_sequence", gorm.Expr("current_sequence + 1")).Error; err != nil {
		return fmt.Errorf("failed to increment sequence for length %d: %w", length, err)
	}
	return nil
}

// GetStatistics 获取短链名生成统计信息
// 包含各长度的使用情况、保留关键字数量和已分配数量
func (g *Generator) GetStatistics(db *gorm.DB) (*Statistics, error) {
	var sequences []database.ShortKeySequence
	if err := db.Order("key_length ASC").Find(&sequences).Error; err != nil {
		return nil, fmt.Errorf("failed to query key length sequences: %w", err)
	}

	stats := &Statistics{CharsetSize: len(Charset)}
	for _, seq := range sequences {
		usagePercent := 0.0
		if seq.MaxPossible > 0 {
			usagePercent = math.Round(float64(seq.CurrentSequence)/float64(seq.MaxPossible)*10000) / 100
		}
		stats.Sequences = append(stats.Sequences, SequenceStat{
			Length:       seq.KeyLength,
			Current:      seq.CurrentSequence,
			MaxPossible:  seq.MaxPossible,
			UsagePercent: usagePercent,
			Exhausted:    seq.Exhausted,
		})
	}

	if err := db.Model(&database.ReservedShortKey{}).Count(&stats.ReservedCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count reserved keys: %w", err)
	}

	if err := db.Model(&database.FileRecord{}).
		Where("short_key IS NOT NULL AND status = ?", database.StatusActive).
		Count(&stats.MintedCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count minted keys: %w", err)
	}

	return stats, nil
}

// maxPossibleForLength 计算指定长度的最大可分配数量
// 按字符集大小的length次方计算，并扣除预留份额
func maxPossibleForLength(length int) int64 {
	total := math.Pow(float64(len(Charset)), float64(length))
	return int64(total * (1 - reservedRatio))
}

// randomKey 生成指定长度的加密安全随机短链名
// 使用拒绝采样消除取模偏差，保证字符分布均匀
func randomKey(length int) (string, error) {
	// 248 = 62 * 4，为62的最大整数倍，超出部分拒绝重采样
	const limit = byte(len(Charset) * (256 / len(Charset)))

	result := make([]byte, 0, length)
	buf := make([]byte, length*2)
	for len(result) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			result = append(result, Charset[int(b)%len(Charset)])
			if len(result) == length {
				break
			}
		}
	}
	return string(result), nil
}
