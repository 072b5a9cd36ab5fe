package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valorvie/uploadr2/config"
	"github.com/valorvie/uploadr2/internal/database"
	"github.com/valorvie/uploadr2/internal/logger"
	"github.com/valorvie/uploadr2/internal/service/batch"
	"github.com/valorvie/uploadr2/internal/service/progress"
	"github.com/valorvie/uploadr2/internal/service/registry"
	"github.com/valorvie/uploadr2/internal/service/shortkey"
	"github.com/valorvie/uploadr2/internal/service/storage"
	"github.com/valorvie/uploadr2/internal/service/uploader"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认搜索当前目录的config.yaml）")
	dryRun := flag.Bool("dry-run", false, "仅扫描和查重，不注册也不上传")
	cleanup := flag.Bool("cleanup", false, "上传成功后删除中转文件")
	testConnection := flag.Bool("test-connection", false, "测试存储连接后退出")
	showStats := flag.Bool("stats", false, "输出注册表统计信息后退出")
	reportPath := flag.String("report", "", "批次完成后导出CSV报告的路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	logg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// 初始化数据库
	db, err := database.Init(cfg.Database, logg)
	if err != nil {
		if errors.Is(err, database.ErrSchemaTooNew) {
			logg.Fatalf("数据库结构版本高于当前程序支持的版本，请升级程序: %v", err)
		}
		logg.Fatalf("初始化数据库失败: %v", err)
	}

	// 初始化存储提供商和各服务
	provider, err := storage.NewProvider(cfg.Storage)
	if err != nil {
		logg.Fatalf("初始化存储提供商失败: %v", err)
	}
	up := uploader.NewUploader(provider, cfg.Storage, cfg.Upload, logg)
	gen := shortkey.NewGenerator(logg, cfg.ShortKey.MaxLength)
	reg := registry.NewFileRegistry(db, gen, logg)

	// 监听中断信号，收到后停止调度新文件
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *testConnection {
		if err := up.TestConnection(ctx); err != nil {
			logg.Fatalf("存储连接测试失败: %v", err)
		}
		fmt.Println("存储连接正常")
		return
	}

	if *showStats {
		stats, err := reg.GetStatistics()
		if err != nil {
			logg.Fatalf("获取统计信息失败: %v", err)
		}
		output, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			logg.Fatalf("序列化统计信息失败: %v", err)
		}
		fmt.Println(string(output))
		return
	}

	// 执行批量上传
	processor := batch.NewProcessor(cfg, reg, up, logg)
	tracker, err := processor.Run(ctx, batch.Options{
		DryRun:  *dryRun,
		Cleanup: *cleanup,
	})
	if err != nil {
		logg.Fatalf("批量上传失败: %v", err)
	}

	if *reportPath != "" {
		if err := exportReport(tracker, *reportPath); err != nil {
			logg.Errorf("导出报告失败: %v", err)
		} else {
			logg.Infof("批次报告已导出: %s", *reportPath)
		}
	}

	printSummary(tracker)
	if tracker.Summary().Failed > 0 {
		os.Exit(1)
	}
}

// exportReport 导出批次CSV报告
func exportReport(tracker *progress.Tracker, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return tracker.ExportCSV(file)
}

// printSummary 输出批次汇总和每个文件的结果
func printSummary(tracker *progress.Tracker) {
	summary := tracker.Summary()
	fmt.Printf("\n批次汇总: 总计 %d, 成功 %d, 重复 %d, 失败 %d, 跳过 %d\n",
		summary.Total, summary.Completed, summary.Duplicates, summary.Failed, summary.Skipped)
	fmt.Printf("上传字节: %d / %d, 耗时: %s\n\n",
		summary.UploadedBytes, summary.TotalBytes, summary.Elapsed.Round(10*time.Millisecond))

	for _, item := range tracker.Items() {
		switch item.Status {
		case progress.StatusCompleted, progress.StatusDuplicate:
			fmt.Printf("  [%s] %s -> %s (%s)\n", item.Status, item.FilePath, item.URL, item.ShortKey)
		case progress.StatusFailed:
			fmt.Printf("  [%s] %s: %s\n", item.Status, item.FilePath, item.Error)
		default:
			fmt.Printf("  [%s] %s\n", item.Status, item.FilePath)
		}
	}
}
