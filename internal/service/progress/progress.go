// Package progress 提供批量上传的进度跟踪
// 跟踪每个文件的处理状态，汇总批次统计并支持导出CSV报告
package progress

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Status 文件处理状态
type Status string

// 文件处理状态常量
const (
	StatusPending    Status = "pending"    // 等待处理
	StatusProcessing Status = "processing" // 哈希计算与注册中
	StatusUploading  Status = "uploading"  // 上传中
	StatusCompleted  Status = "completed"  // 上传完成
	StatusDuplicate  Status = "duplicate"  // 内容重复，未执行上传
	StatusFailed     Status = "failed"     // 处理失败
	StatusSkipped    Status = "skipped"    // 批次取消，未被调度
)

// Item 单个文件的处理状态
type Item struct {
	FilePath   string    `json:"file_path"`   // 本地文件路径
	FileSize   int64     `json:"file_size"`   // 文件大小（字节）
	Status     Status    `json:"status"`      // 当前状态
	ShortKey   string    `json:"short_key"`   // 分配的短链名
	URL        string    `json:"url"`         // 访问URL
	Error      string    `json:"error"`       // 失败原因
	FinishedAt time.Time `json:"finished_at"` // 终态到达时间
}

// Summary 批次汇总统计
type Summary struct {
	Total         int           `json:"total"`          // 文件总数
	Completed     int           `json:"completed"`      // 上传完成数
	Duplicates    int           `json:"duplicates"`     // 重复跳过数
	Failed        int           `json:"failed"`         // 失败数
	Skipped       int           `json:"skipped"`        // 未调度数
	TotalBytes    int64         `json:"total_bytes"`    // 文件总字节数
	UploadedBytes int64         `json:"uploaded_bytes"` // 实际上传字节数
	Elapsed       time.Duration `json:"elapsed"`        // 批次耗时
}

// Tracker 批次进度跟踪器
// 所有方法并发安全
type Tracker struct {
	mu        sync.Mutex
	items     map[string]*Item
	order     []string
	startedAt time.Time
}

// NewTracker 创建进度跟踪器并登记批次内的所有文件
func NewTracker(files map[string]int64) *Tracker {
	t := &Tracker{
		items:     make(map[string]*Item, len(files)),
		startedAt: time.Now(),
	}
	for path, size := range files {
		t.items[path] = &Item{
			FilePath: path,
			FileSize: size,
			Status:   StatusPending,
		}
		t.order = append(t.order, path)
	}
	sort.Strings(t.order)
	return t
}

// SetStatus 更新文件的中间状态
func (t *Tracker) SetStatus(path string, status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if item, ok := t.items[path]; ok {
		item.Status = status
	}
}

// Complete 标记文件上传完成
func (t *Tracker) Complete(path, shortKey, url string) {
	t.finish(path, StatusCompleted, shortKey, url, "")
}

// Duplicate 标记文件内容重复
func (t *Tracker) Duplicate(path, shortKey, url string) {
	t.finish(path, StatusDuplicate, shortKey, url, "")
}

// Fail 标记文件处理失败
func (t *Tracker) Fail(path string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	t.finish(path, StatusFailed, "", "", msg)
}

// Skip 标记文件未被调度
func (t *Tracker) Skip(path string) {
	t.finish(path, StatusSkipped, "", "", "")
}

// finish 将文件置为终态
func (t *Tracker) finish(path string, status Status, shortKey, url, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.items[path]
	if !ok {
		return
	}
	item.Status = status
	item.ShortKey = shortKey
	item.URL = url
	item.Error = errMsg
	item.FinishedAt = time.Now()
}

// Items 返回按路径排序的状态快照
func (t *Tracker) Items() []Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := make([]Item, 0, len(t.order))
	for _, path := range t.order {
		result = append(result, *t.items[path])
	}
	return result
}

// Summary 汇总批次统计
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	summary := Summary{
		Total:   len(t.items),
		Elapsed: time.Since(t.startedAt),
	}
	for _, item := range t.items {
		summary.TotalBytes += item.FileSize
		switch item.Status {
		case StatusCompleted:
			summary.Completed++
			summary.UploadedBytes += item.FileSize
		case StatusDuplicate:
			summary.Duplicates++
		case StatusFailed:
			summary.Failed++
		case StatusSkipped:
			summary.Skipped++
		}
	}
	return summary
}

// ExportCSV 导出批次报告
// 每行一个文件，包含路径、大小、状态、短链名、URL和失败原因
func (t *Tracker) ExportCSV(w io.Writer) error {
	items := t.Items()

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"file_path", "file_size", "status", "short_key", "url", "error"}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, item := range items {
		row := []string{
			item.FilePath,
			fmt.Sprintf("%d", item.FileSize),
			string(item.Status),
			item.ShortKey,
			item.URL,
			item.Error,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
