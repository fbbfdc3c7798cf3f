package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 控制台编码并输出错误堆栈
	File        string // 日志文件路径，留空只输出到标准输出
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type string // 数据库类型: "mysql"、"postgres"，留空使用内存存储
	DSN  string // 数据库连接字符串
	// CatalogDSN 目录产品所在的 PostgreSQL 库；留空时与收件箱共用 DSN
	CatalogDSN      string
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 配置
type RedisConfig struct {
	Enabled  bool
	Address  string // 格式 "host:port"，默认 "localhost:6379"
	Password string
	DB       int
	// ListCacheTTL 待处理/已绑定列表快照缓存时间
	ListCacheTTL time.Duration
}

// InboxConfig 收件箱业务配置
type InboxConfig struct {
	DedupWindow  time.Duration // 同指纹事件在该窗口内视为重复，默认 30 分钟
	PendingLimit int           // 待处理列表最大条数，默认 50
	LinkedLimit  int           // 已绑定列表最大条数，默认 20
	// SeedProducts 内存存储模式下预置的目录产品 ID（逗号分隔）
	SeedProducts []string
}

// HookConfig 切片脚本上报接口配置
type HookConfig struct {
	Secret     string        // 共享密钥，至少 16 字符
	RateLimit  int           // 单个来源在窗口内允许的请求数
	RateWindow time.Duration // 限流窗口
	MaxBodyKB  int64         // 请求体上限
}

// Config 是系统配置的根结构体
type Config struct {
	Server   ServerConfig
	CORS     CORSConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Inbox    InboxConfig
	Hook     HookConfig
}

const minHookSecretLength = 16

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: SLICER_，例如 SLICER_HOOK_SECRET、SLICER_INBOX_DEDUP_WINDOW
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("slicer")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	dedupWindow, err := time.ParseDuration(v.GetString("inbox.dedup_window"))
	if err != nil {
		return nil, fmt.Errorf("invalid inbox.dedup_window: %w", err)
	}
	if dedupWindow <= 0 {
		return nil, fmt.Errorf("inbox.dedup_window must be positive")
	}

	rateWindow, err := time.ParseDuration(v.GetString("hook.rate_window"))
	if err != nil {
		return nil, fmt.Errorf("invalid hook.rate_window: %w", err)
	}

	connMaxLifetime, err := time.ParseDuration(v.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	listCacheTTL, err := time.ParseDuration(v.GetString("redis.list_cache_ttl"))
	if err != nil {
		listCacheTTL = 10 * time.Second
	}

	hookSecret := v.GetString("hook.secret")
	if len(hookSecret) < minHookSecretLength {
		return nil, fmt.Errorf("SECURITY ERROR: hook secret must be at least %d characters long. Please set SLICER_HOOK_SECRET", minHookSecretLength)
	}

	dbType := strings.ToLower(strings.TrimSpace(v.GetString("database.type")))
	switch dbType {
	case "", "postgres", "mysql":
	default:
		return nil, fmt.Errorf("unsupported database.type %q", dbType)
	}

	corsOrigins := parseList(v.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
			File:        v.GetString("log.file"),
			MaxSizeMB:   v.GetInt("log.max_size_mb"),
			MaxBackups:  v.GetInt("log.max_backups"),
			MaxAgeDays:  v.GetInt("log.max_age_days"),
		},
		Database: DatabaseConfig{
			Type:            dbType,
			DSN:             v.GetString("database.dsn"),
			CatalogDSN:      v.GetString("database.catalog_dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Enabled:      v.GetBool("redis.enabled"),
			Address:      v.GetString("redis.address"),
			Password:     v.GetString("redis.password"),
			DB:           v.GetInt("redis.db"),
			ListCacheTTL: listCacheTTL,
		},
		Inbox: InboxConfig{
			DedupWindow:  dedupWindow,
			PendingLimit: positiveOr(v.GetInt("inbox.pending_limit"), 50),
			LinkedLimit:  positiveOr(v.GetInt("inbox.linked_limit"), 20),
			SeedProducts: parseList(v.GetString("inbox.seed_products")),
		},
		Hook: HookConfig{
			Secret:     hookSecret,
			RateLimit:  positiveOr(v.GetInt("hook.rate_limit"), 60),
			RateWindow: rateWindow,
			MaxBodyKB:  int64(positiveOr(v.GetInt("hook.max_body_kb"), 64)),
		},
	}

	if cfg.Database.Type != "" && cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required when database.type is %s", cfg.Database.Type)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("cors.allowed_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("database.type", "") // 默认为空，使用内存存储
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.catalog_dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.list_cache_ttl", "10s")
	v.SetDefault("inbox.dedup_window", "30m")
	v.SetDefault("inbox.pending_limit", 50)
	v.SetDefault("inbox.linked_limit", 20)
	v.SetDefault("inbox.seed_products", "")
	v.SetDefault("hook.secret", "")
	v.SetDefault("hook.rate_limit", 60)
	v.SetDefault("hook.rate_window", "1m")
	v.SetDefault("hook.max_body_kb", 64)
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

// parseList 将逗号分隔的字符串解析为字符串切片，去除空白项
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载当前目录或父目录的 .env，文件不存在时静默跳过。
// 已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
