package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/valorvie/uploadr2/config"
)

// Init 初始化数据库连接
// 打开SQLite数据库（WAL模式），执行架构版本检查和迁移
// 参数:
//   cfg - 数据库配置
//   log - 日志实例
// 返回:
//   *gorm.DB - GORM数据库连接实例
//   error - 初始化失败时返回错误信息
func Init(cfg config.DatabaseConfig, log *logrus.Logger) (*gorm.DB, error) {
	// 启用WAL模式和其他SQLite优化选项，busy_timeout设置为30秒
	dsn := cfg.Path + "?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_busy_timeout=30000&_foreign_keys=ON"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// 每个并发任务使用独立连接，连接数与上传并发上限对齐
	sqlDB.SetMaxIdleConns(cfg.MaxOpenConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)

	// 执行架构迁移（含版本门禁检查）
	if err := Migrate(db, log); err != nil {
		return nil, err
	}

	log.Infof("[数据库] 初始化完成, 路径: %s", cfg.Path)
	return db, nil
}
