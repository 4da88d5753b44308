package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"wisefido-datamatrix/internal/cache"
	"wisefido-datamatrix/internal/config"
	"wisefido-datamatrix/internal/hl7"
	logpkg "wisefido-datamatrix/internal/logger"
	"wisefido-datamatrix/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-datamatrix")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting wisefido-datamatrix service")

	// 创建床位缓存
	bedCache, err := newBedCache(cfg, log)
	if err != nil {
		log.Fatal("Failed to create bed cache", zap.Error(err))
	}

	// 创建上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	receiver := hl7.NewReceiver(cfg.HL7.ListenAddr, bedCache, log)
	monitor := service.NewMonitorService(cfg, bedCache, log)

	// 监听系统信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// 启动接收端与编码端（各自 goroutine）
	errChan := make(chan error, 2)
	go func() {
		if err := receiver.Start(ctx); err != nil {
			errChan <- err
		}
	}()
	go func() {
		if err := monitor.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	// 等待信号或错误
	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	case err := <-errChan:
		log.Error("Service error", zap.Error(err))
		cancel()
	}

	log.Info("Service stopped")
}

// newBedCache 按配置创建床位缓存后端
func newBedCache(cfg *config.Config, log *zap.Logger) (cache.BedCache, error) {
	switch cfg.Monitor.CacheBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Info("Using redis bed cache",
			zap.String("addr", cfg.Redis.Addr),
			zap.String("key", cfg.Monitor.CacheKey),
		)
		return cache.NewRedisBedCache(client, cfg.Monitor.CacheKey), nil
	default:
		return cache.NewMemoryBedCache(), nil
	}
}
