package config

import (
	"fmt"
	"os"
	"strconv"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config 监护 DataMatrix 服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig

	// HL7 接收端配置
	HL7 struct {
		ListenAddr string
	}

	// 编码端（监护画面符号生成）配置
	Monitor struct {
		// 床位缓存后端：memory（单进程）或 redis（接收端与监护端分进程部署）
		CacheBackend string
		CacheKey     string

		RefreshInterval int    // 符号刷新间隔（秒）
		SymbolSize      int    // 符号渲染尺寸（像素）
		SymbolPath      string // 渲染输出 PNG 路径（显示端读取）
	}

	// 恢复端（截图批量解码）配置
	Recover struct {
		InputPath  string // 截图目录/文件，或 http(s):// 采集服务地址
		LatestN    int    // 只处理最近 N 张
		ROISize    int    // 右下角符号搜索区域边长（像素）
		OutputRoot string // 结果数据集根目录
		Workers    int    // 并行解码 worker 数
		StoreDB    bool   // 是否同时镜像写入数据库
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "wisefido")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.HL7.ListenAddr = getEnv("HL7_LISTEN_ADDR", "0.0.0.0:2575")

	cfg.Monitor.CacheBackend = getEnv("MONITOR_CACHE_BACKEND", "memory")
	cfg.Monitor.CacheKey = getEnv("MONITOR_CACHE_KEY", "dm:beds")
	cfg.Monitor.RefreshInterval = getEnvInt("MONITOR_REFRESH_INTERVAL", 1)
	cfg.Monitor.SymbolSize = getEnvInt("MONITOR_SYMBOL_SIZE", 320)
	cfg.Monitor.SymbolPath = getEnv("MONITOR_SYMBOL_PATH", "./dm_symbol.png")

	cfg.Recover.InputPath = getEnv("RECOVER_INPUT", "./captures")
	cfg.Recover.LatestN = getEnvInt("RECOVER_LATEST_N", 10)
	cfg.Recover.ROISize = getEnvInt("RECOVER_ROI_SIZE", 420)
	cfg.Recover.OutputRoot = getEnv("RECOVER_OUTPUT_ROOT", "./dataset")
	cfg.Recover.Workers = getEnvInt("RECOVER_WORKERS", 4)
	cfg.Recover.StoreDB = getEnv("RECOVER_STORE_DB", "false") == "true"

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if cfg.Monitor.CacheBackend != "memory" && cfg.Monitor.CacheBackend != "redis" {
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Monitor.CacheBackend)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
