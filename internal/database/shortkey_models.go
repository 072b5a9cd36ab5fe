// 短链相关的数据库模型
// 包含短链长度序列、保留关键字和架构版本等核心数据模型
package database

import (
	"time"
)

// ShortKeySequence 短链长度序列模型
// 每个正在使用的短链长度对应一行，记录该长度键空间的分配进度
// current_sequence 单调递增，exhausted 一旦置位不再复用
type ShortKeySequence struct {
	ID              uint      `gorm:"primarykey" json:"id"`                        // 主键ID，自增
	KeyLength       int       `gorm:"uniqueIndex;not null" json:"key_length"`      // 短链名长度（4, 5, 6...）
	CurrentSequence int64     `gorm:"not null;default:0" json:"current_sequence"`  // 当前已分配数量
	MaxPossible     int64     `gorm:"not null" json:"max_possible"`                // 该长度的最大可分配数量（已扣除预留份额）
	Exhausted       bool      `gorm:"not null;default:false" json:"exhausted"`     // 是否已耗尽，置位后不再选择该长度
	CreatedAt       time.Time `json:"created_at"`                                  // 记录创建时间
	UpdatedAt       time.Time `json:"updated_at"`                                  // 记录最后更新时间
}

// TableName 指定ShortKeySequence模型对应的数据库表名
func (ShortKeySequence) TableName() string {
	return "short_key_sequences"
}

// ReservedShortKey 保留短链名模型
// 系统保留字黑名单，避免生成与系统路由或常见词冲突的短链名
type ReservedShortKey struct {
	ID        uint      `gorm:"primarykey" json:"id"`                   // 主键ID，自增
	ShortKey  string    `gorm:"uniqueIndex;not null;size:16" json:"short_key"` // 保留的短链名
	Reason    string    `gorm:"not null;size:100" json:"reason"`        // 保留原因
	CreatedAt time.Time `json:"created_at"`                             // 记录创建时间
}

// TableName 指定ReservedShortKey模型对应的数据库表名
func (ReservedShortKey) TableName() string {
	return "reserved_short_keys"
}

// SchemaVersion 数据库架构版本模型
// 用于启动时的版本门禁检查，防止旧程序操作新版本数据库
type SchemaVersion struct {
	ID        uint      `gorm:"primarykey" json:"id"` // 主键ID，自增
	Version   int       `gorm:"not null" json:"version"`    // 架构版本号
	AppliedAt time.Time `json:"applied_at"`           // 版本应用时间
}

// TableName 指定SchemaVersion模型对应的数据库表名
func (SchemaVersion) TableName() string {
	return "schema_versions"
}
