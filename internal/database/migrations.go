// 数据库迁移相关功能
// 包含架构版本门禁、表结构创建、索引/触发器建立和基础数据初始化
package database

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CurrentSchemaVersion 当前程序支持的数据库架构版本
const CurrentSchemaVersion = 1

// ErrSchemaTooNew 数据库架构版本高于程序支持版本
// 属于启动期致命错误，禁止自动降级迁移
var ErrSchemaTooNew = errors.New("database schema version is newer than supported")

// 初始化保留关键字列表
// 与系统路由、错误码和常见词冲突的短链名禁止生成
var reservedKeySeed = []ReservedShortKey{
	{ShortKey: "api", Reason: "API端点保留"},
	{ShortKey: "admin", Reason: "管理界面保留"},
	{ShortKey: "www", Reason: "网站根目录保留"},
	{ShortKey: "help", Reason: "帮助页面保留"},
	{ShortKey: "test", Reason: "测试用途保留"},
	{ShortKey: "null", Reason: "空值保留"},
	{ShortKey: "temp", Reason: "临时文件保留"},
	{ShortKey: "data", Reason: "数据目录保留"},
	{ShortKey: "file", Reason: "文件关键字保留"},
	{ShortKey: "user", Reason: "用户关键字保留"},
	{ShortKey: "root", Reason: "根目录保留"},
	{ShortKey: "sys", Reason: "系统关键字保留"},
	{ShortKey: "app", Reason: "应用关键字保留"},
	{ShortKey: "web", Reason: "网页关键字保留"},
	{ShortKey: "img", Reason: "图片关键字保留"},
	{ShortKey: "pic", Reason: "图片关键字保留"},
	{ShortKey: "404", Reason: "错误页面保留"},
	{ShortKey: "500", Reason: "错误页面保留"},
	{ShortKey: "403", Reason: "错误页面保留"},
	{ShortKey: "401", Reason: "错误页面保留"},
}

// Migrate 执行数据库迁移
// 依次完成版本门禁检查、表结构迁移、索引和触发器创建、基础数据初始化
// 所有步骤均为幂等操作，可安全重复执行
func Migrate(db *gorm.DB, log *logrus.Logger) error {
	// 先迁移版本表，确保版本检查可以执行
	if err := db.AutoMigrate(&SchemaVersion{}); err != nil {
		return fmt.Errorf("failed to migrate schema version table: %w", err)
	}

	// 架构版本门禁检查
	if err := checkSchemaVersion(db, log); err != nil {
		return err
	}

	// 自动迁移所有表结构
	if err := db.AutoMigrate(
		&FileRecord{},
		&ShortKeySequence{},
		&ReservedShortKey{},
		&FileOperationLog{},
	); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}

	// 创建复合索引
	if err := createIndexes(db, log); err != nil {
		return err
	}

	// 创建触发器
	if err := createTriggers(db, log); err != nil {
		return err
	}

	// 初始化基础数据
	if err := seedBaseData(db, log); err != nil {
		return err
	}

	log.Info("[数据库] 架构迁移完成")
	return nil
}

// checkSchemaVersion 检查数据库架构版本
// 版本高于支持版本时返回致命错误；低于支持版本时记录待迁移警告；
// 无版本记录视为全新数据库，写入当前版本
func checkSchemaVersion(db *gorm.DB, log *logrus.Logger) error {
	var stored SchemaVersion
	err := db.Order("applied_at DESC").First(&stored).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 新数据库，记录当前版本
			if err := db.Create(&SchemaVersion{Version: CurrentSchemaVersion}).Error; err != nil {
				return fmt.Errorf("failed to record schema version: %w", err)
			}
			log.Infof("[数据库] 全新数据库，写入架构版本: %d", CurrentSchemaVersion)
			return nil
		}
		return fmt.Errorf("failed to query schema version: %w", err)
	}

	if stored.Version > CurrentSchemaVersion {
		return fmt.Errorf("%w: stored %d, supported %d", ErrSchemaTooNew, stored.Version, CurrentSchemaVersion)
	}
	if stored.Version < CurrentSchemaVersion {
		// 迁移执行逻辑尚未实现，仅记录警告
		log.Warnf("[数据库] 数据库版本 %d 低于支持版本 %d，存在待执行的迁移", stored.Version, CurrentSchemaVersion)
	}
	return nil
}

// createIndexes 创建复合索引以优化查询性能
func createIndexes(db *gorm.DB, log *logrus.Logger) error {
	indexes := []string{
		// 按状态+时间查询优化
		"CREATE INDEX IF NOT EXISTS idx_file_records_status_created ON file_records(status, created_at)",
		// 副档名统计查询优化
		"CREATE INDEX IF NOT EXISTS idx_file_records_extension_status ON file_records(file_extension, status)",
		// 操作日志按类型+时间查询优化
		"CREATE INDEX IF NOT EXISTS idx_operation_logs_type_created ON file_operation_logs(operation_type, created_at)",
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			log.Errorf("[数据库] 创建索引失败: %s, 错误: %v", indexSQL, err)
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// createTriggers 创建数据库触发器
// 访问计数触发器由access类型的操作日志驱动，保证日志和计数的一致性
func createTriggers(db *gorm.DB, log *logrus.Logger) error {
	triggers := []string{
		// 访问计数更新触发器
		`CREATE TRIGGER IF NOT EXISTS update_access_count
			AFTER INSERT ON file_operation_logs
			FOR EACH ROW
			WHEN NEW.operation_type = 'access'
		BEGIN
			UPDATE file_records
			SET access_count = access_count + 1,
			    last_accessed_at = CURRENT_TIMESTAMP
			WHERE id = NEW.file_record_id;
		END`,
		// 短链序列耗尽检查触发器
		`CREATE TRIGGER IF NOT EXISTS check_sequence_exhaustion
			AFTER UPDATE ON short_key_sequences
			FOR EACH ROW
			WHEN NEW.current_sequence >= NEW.max_possible
		BEGIN
			UPDATE short_key_sequences
			SET exhausted = 1
			WHERE id = NEW.id;
		END`,
	}

	for _, triggerSQL := range triggers {
		if err := db.Exec(triggerSQL).Error; err != nil {
			log.Errorf("[数据库] 创建触发器失败: %v", err)
			return fmt.Errorf("failed to create trigger: %w", err)
		}
	}
	return nil
}

// seedBaseData 初始化基础数据
// 写入保留关键字和初始的4位长度序列，重复执行时跳过已有记录
func seedBaseData(db *gorm.DB, log *logrus.Logger) error {
	// 初始化保留关键字
	for _, reserved := range reservedKeySeed {
		if err := db.Where(ReservedShortKey{ShortKey: reserved.ShortKey}).
			FirstOrCreate(&ReservedShortKey{ShortKey: reserved.ShortKey, Reason: reserved.Reason}).Error; err != nil {
			return fmt.Errorf("failed to seed reserved key %s: %w", reserved.ShortKey, err)
		}
	}

	// 初始化4位长度序列
	// 字符集大小62（数字+小写+大写），预留0.1%份额
	const charsetSize = 62
	const initialLength = 4
	maxPossible := int64(math.Pow(charsetSize, initialLength) * 0.999)

	if err := db.Where(ShortKeySequence{KeyLength: initialLength}).
		FirstOrCreate(&ShortKeySequence{KeyLength: initialLength, MaxPossible: maxPossible}).Error; err != nil {
		return fmt.Errorf("failed to seed initial key length sequence: %w", err)
	}

	log.Debugf("[数据库] 基础数据初始化完成, 保留关键字: %d 个", len(reservedKeySeed))
	return nil
}
