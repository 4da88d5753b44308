package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"wisefido-datamatrix/internal/config"
	logpkg "wisefido-datamatrix/internal/logger"
	"wisefido-datamatrix/internal/pipeline"
	"wisefido-datamatrix/internal/repository"
	"wisefido-datamatrix/internal/sink"
	"wisefido-datamatrix/internal/source"
)

func main() {
	// 加载配置（环境变量为默认值，命令行参数优先）
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	input := flag.String("input", cfg.Recover.InputPath, "截图文件/目录，或 http(s):// 采集服务地址")
	latestN := flag.Int("latest-n", cfg.Recover.LatestN, "只处理最近 N 张截图")
	roiSize := flag.Int("roi-size", cfg.Recover.ROISize, "右下角符号搜索区域边长（像素）")
	outputRoot := flag.String("output-root", cfg.Recover.OutputRoot, "结果数据集根目录")
	workers := flag.Int("workers", cfg.Recover.Workers, "并行解码 worker 数")
	storeDB := flag.Bool("store-db", cfg.Recover.StoreDB, "同时把记录镜像写入数据库")
	flag.Parse()

	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "dm-recover")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 截图来源：本地目录/文件，或远端采集服务
	var src source.ImageSource
	if strings.HasPrefix(*input, "http://") || strings.HasPrefix(*input, "https://") {
		src = source.NewHTTPSource(*input)
	} else {
		src = source.NewDirSource(*input)
	}

	// 结果写入端：JSONL 为权威存储，数据库镜像可选
	writer := sink.RecordWriter(sink.NewJSONLSink(*outputRoot, log))
	if *storeDB {
		db, err := repository.NewPostgresDB(&cfg.Database)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer repository.Close(db)

		repo := repository.NewPostgresDecodeRecordRepository(db)
		if err := repo.EnsureSchema(context.Background()); err != nil {
			log.Fatal("Failed to ensure database schema", zap.Error(err))
		}
		writer = sink.Composite(writer, sink.WriterFunc(repo.Insert))
	}

	recovery := pipeline.NewRecovery(src, writer, *roiSize, *workers, log, nil)

	// Ctrl-C 在图像之间优雅终止
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	summary, err := recovery.Run(ctx, *latestN)
	if err != nil {
		log.Fatal("Recovery run failed", zap.Error(err))
	}

	fmt.Printf("run %s: %d processed, %d ok, %d failed (output: %s)\n",
		summary.RunID, summary.Total, summary.OK, summary.Failed, *outputRoot)
}
