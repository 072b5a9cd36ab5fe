// 文件相关的数据库模型
// 包含文件记录和操作日志等核心数据模型
package database

import (
	"time"
)

// 文件记录状态常量
const (
	StatusActive   = "active"   // 正常状态
	StatusDeleted  = "deleted"  // 已删除（逻辑删除）
	StatusArchived = "archived" // 已归档
)

// 操作日志类型常量
const (
	OperationUpload = "upload" // 上传操作
	OperationAccess = "access" // 访问操作
	OperationUpdate = "update" // 更新操作
	OperationDelete = "delete" // 删除操作
)

// FileRecord 文件记录模型
// 每个内容哈希对应唯一一条记录，是整个注册表的核心实体
// 支持基于内容的唯一标识、短链公开别名、上传信息和访问统计
type FileRecord struct {
	ID               uint       `gorm:"primarykey" json:"id"`                                // 主键ID，自增
	UUIDKey          string     `gorm:"uniqueIndex;not null;size:36" json:"uuid_key"`        // 由内容哈希派生的UUID格式标识（主要幂等键）
	ShortKey         *string    `gorm:"uniqueIndex;size:16" json:"short_key"`                // 短链名（公开别名），生成前为NULL
	OriginalFilename string     `gorm:"not null;size:255" json:"original_filename"`          // 原始文件名称
	FileExtension    string     `gorm:"not null;size:20" json:"file_extension"`              // 副档名（含点号，小写）
	FileSize         int64      `gorm:"not null" json:"file_size"`                           // 文件大小，单位为字节
	MimeType         string     `gorm:"not null;size:100" json:"mime_type"`                  // MIME类型
	FileHash         string     `gorm:"uniqueIndex;not null;size:128" json:"file_hash"`      // 完整的内容哈希值（十六进制）
	HashAlgorithm    string     `gorm:"not null;size:20;default:sha512" json:"hash_algorithm"` // 哈希算法名称
	ObjectKey        string     `gorm:"size:255" json:"object_key"`                          // 对象存储中的对象键，上传成功后填充
	UploadURL        string     `gorm:"size:500" json:"upload_url"`                          // 完整的公开访问URL，上传成功后填充
	ShortKeyLength   int        `json:"short_key_length"`                                    // 短链名长度
	ShortKeyMintedAt *time.Time `json:"short_key_minted_at"`                                 // 短链名生成时间
	Status           string     `gorm:"not null;size:20;default:active;index" json:"status"` // 记录状态：active、deleted、archived
	AccessCount      int64      `gorm:"default:0" json:"access_count"`                       // 短链访问次数统计（由触发器维护）
	LastAccessedAt   *time.Time `json:"last_accessed_at"`                                    // 最后访问时间（由触发器维护）
	CreatedAt        time.Time  `json:"created_at"`                                          // 记录创建时间
	UpdatedAt        time.Time  `json:"updated_at"`                                          // 记录最后更新时间
}

// TableName 指定FileRecord模型对应的数据库表名
func (FileRecord) TableName() string {
	return "file_records"
}

// FileOperationLog 文件操作日志模型
// 追加式审计记录，记录上传、访问、更新等操作事件
// access类型的日志通过数据库触发器驱动文件记录的访问计数
type FileOperationLog struct {
	ID            uint      `gorm:"primarykey" json:"id"`                        // 主键ID，自增
	FileRecordID  uint      `gorm:"not null;index" json:"file_record_id"`        // 关联的文件记录ID
	OperationType string    `gorm:"not null;size:20;index" json:"operation_type"` // 操作类型：upload、access、update、delete
	Details       string    `gorm:"type:text" json:"details"`                    // JSON格式的操作详情
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                     // 操作时间
}

// TableName 指定FileOperationLog模型对应的数据库表名
func (FileOperationLog) TableName() string {
	return "file_operation_logs"
}
