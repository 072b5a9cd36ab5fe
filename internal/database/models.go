// Package database 定义了数据库相关的模型和结构体
// 包含文件记录、短链序列、保留关键字和操作日志等核心数据模型
package database

// 此文件保留作为数据库模型包的入口文件
// 具体的模型定义已拆分到以下文件：
// - file_models.go: 文件记录相关模型（FileRecord, FileOperationLog）
// - shortkey_models.go: 短链相关模型（ShortKeySequence, ReservedShortKey, SchemaVersion）
