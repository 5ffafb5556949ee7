package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" json:"level"`               // 日志级别
	File       string `yaml:"file" json:"file"`                 // 日志文件路径（空表示只输出到控制台）
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`   // 单个日志文件最大大小（MB）
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`   // 保留的旧文件数量
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"` // 保留天数
	Compress   bool   `yaml:"compress" json:"compress"`         // 是否压缩旧文件
}

// PaperBrokerConfig 纸交易券商配置
type PaperBrokerConfig struct {
	AckDelayMs       int     `yaml:"ack_delay_ms" json:"ack_delay_ms"`             // 每个回调之前的延迟（毫秒）
	RateLimit        float64 `yaml:"rate_limit" json:"rate_limit"`                 // 每秒请求数（0 表示不限制）
	Burst            int     `yaml:"burst" json:"burst"`                           // 令牌桶容量
	FillMarketOrders bool    `yaml:"fill_market_orders" json:"fill_market_orders"` // 市价单确认后立即成交
}

// BreakerConfig 对账断路器配置
type BreakerConfig struct {
	MaxConsecutiveErrors int `yaml:"max_consecutive_errors" json:"max_consecutive_errors"` // 连续失败轮数上限（0 表示关闭）
	CooldownSeconds      int `yaml:"cooldown_seconds" json:"cooldown_seconds"`             // 熔断后自动恢复时间（0 表示等待全量同步）
}

// LogicalOrderConfig 静态逻辑订单
type LogicalOrderConfig struct {
	ID             int64  `yaml:"id" json:"id"`
	SerialNumber   int64  `yaml:"serial_number" json:"serial_number"`
	Type           string `yaml:"type" json:"type"`           // BuyLimit / SellStop / ...
	Direction      string `yaml:"direction" json:"direction"` // Entry / Exit / ExitStrategy / Reverse / Change
	Price          string `yaml:"price" json:"price"`
	Position       int64  `yaml:"position" json:"position"`
	Levels         int    `yaml:"levels" json:"levels"`
	LevelSize      int64  `yaml:"level_size" json:"level_size"`
	LevelIncrement string `yaml:"level_increment" json:"level_increment"`
}

// StrategyConfig 策略的初始持仓与逻辑订单
type StrategyConfig struct {
	ID       string               `yaml:"id" json:"id"`
	Position int64                `yaml:"position" json:"position"`
	Orders   []LogicalOrderConfig `yaml:"orders" json:"orders"`
}

// SymbolConfig 标的初始状态
type SymbolConfig struct {
	Symbol          string           `yaml:"symbol" json:"symbol"`
	DesiredPosition int64            `yaml:"desired_position" json:"desired_position"`
	LastPrice       string           `yaml:"last_price" json:"last_price"` // 纸交易市价单成交价
	Strategies      []StrategyConfig `yaml:"strategies" json:"strategies"`
}

// Config 应用配置
type Config struct {
	Log                   LogConfig         `yaml:"log" json:"log"`
	MetricsAddr           string            `yaml:"metrics_addr" json:"metrics_addr"`                       // 指标服务地址（空表示不启用）
	APIAddr               string            `yaml:"api_addr" json:"api_addr"`                               // 状态 API 地址（空表示不启用）
	LedgerPath            string            `yaml:"ledger_path" json:"ledger_path"`                         // badger 目录（空表示内存账本）
	JournalPath           string            `yaml:"journal_path" json:"journal_path"`                       // sqlite 文件（空表示不记录成交）
	ResyncIntervalSeconds int               `yaml:"resync_interval_seconds" json:"resync_interval_seconds"` // 定期从券商全量同步（0 表示关闭）
	CommandBuffer         int               `yaml:"command_buffer" json:"command_buffer"`                   // worker 命令队列长度
	Breaker               BreakerConfig     `yaml:"breaker" json:"breaker"`
	Paper                 PaperBrokerConfig `yaml:"paper" json:"paper"`
	Symbols               []SymbolConfig    `yaml:"symbols" json:"symbols"`
}

// ResyncInterval 全量同步间隔
func (c *Config) ResyncInterval() time.Duration {
	return time.Duration(c.ResyncIntervalSeconds) * time.Second
}

// BreakerCooldown 断路器冷却时间
func (c *Config) BreakerCooldown() time.Duration {
	return time.Duration(c.Breaker.CooldownSeconds) * time.Second
}

// AckDelay 纸交易回调延迟
func (c *Config) AckDelay() time.Duration {
	return time.Duration(c.Paper.AckDelayMs) * time.Millisecond
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
		MetricsAddr:           "127.0.0.1:9090",
		APIAddr:               "127.0.0.1:8080",
		ResyncIntervalSeconds: 60,
		CommandBuffer:         1024,
		Breaker: BreakerConfig{
			MaxConsecutiveErrors: 3,
			CooldownSeconds:      30,
		},
		Paper: PaperBrokerConfig{
			AckDelayMs: 5,
		},
	}
}

// Load 加载配置（优先级：环境变量 > 配置文件 > 默认值）
//
// filePath 为空时只使用默认值与环境变量。
func Load(filePath string) (*Config, error) {
	cfg := Default()
	if filePath != "" {
		if err := loadConfigFile(filePath, cfg); err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return cfg, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON），覆盖 cfg 中已有的默认值
func loadConfigFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return nil
}

// applyEnv 环境变量覆盖
func applyEnv(cfg *Config) {
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", cfg.MetricsAddr)
	cfg.APIAddr = getEnv("API_ADDR", cfg.APIAddr)
	cfg.LedgerPath = getEnv("LEDGER_PATH", cfg.LedgerPath)
	cfg.JournalPath = getEnv("JOURNAL_PATH", cfg.JournalPath)
	cfg.ResyncIntervalSeconds = parseIntEnv("RESYNC_INTERVAL_SECONDS", cfg.ResyncIntervalSeconds)
	cfg.CommandBuffer = parseIntEnv("COMMAND_BUFFER", cfg.CommandBuffer)
	cfg.Breaker.MaxConsecutiveErrors = parseIntEnv("BREAKER_MAX_CONSECUTIVE_ERRORS", cfg.Breaker.MaxConsecutiveErrors)
	cfg.Breaker.CooldownSeconds = parseIntEnv("BREAKER_COOLDOWN_SECONDS", cfg.Breaker.CooldownSeconds)
	cfg.Paper.AckDelayMs = parseIntEnv("PAPER_ACK_DELAY_MS", cfg.Paper.AckDelayMs)
	cfg.Paper.RateLimit = parseFloatEnv("PAPER_RATE_LIMIT", cfg.Paper.RateLimit)
	cfg.Paper.Burst = parseIntEnv("PAPER_BURST", cfg.Paper.Burst)
	cfg.Paper.FillMarketOrders = parseBoolEnv("PAPER_FILL_MARKET_ORDERS", cfg.Paper.FillMarketOrders)
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		return fmt.Errorf("LOG_LEVEL 无效: %q", c.Log.Level)
	}
	if c.ResyncIntervalSeconds < 0 {
		return fmt.Errorf("RESYNC_INTERVAL_SECONDS 不能为负数")
	}
	if c.CommandBuffer <= 0 {
		return fmt.Errorf("COMMAND_BUFFER 必须大于 0")
	}
	if c.Breaker.MaxConsecutiveErrors < 0 || c.Breaker.CooldownSeconds < 0 {
		return fmt.Errorf("breaker 配置不能为负数")
	}
	if c.Paper.AckDelayMs < 0 {
		return fmt.Errorf("PAPER_ACK_DELAY_MS 不能为负数")
	}
	if c.Paper.RateLimit < 0 {
		return fmt.Errorf("PAPER_RATE_LIMIT 不能为负数")
	}

	seen := make(map[string]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		if strings.TrimSpace(s.Symbol) == "" {
			return fmt.Errorf("symbols: 标的不能为空")
		}
		if seen[s.Symbol] {
			return fmt.Errorf("symbols: 重复的标的 %s", s.Symbol)
		}
		seen[s.Symbol] = true

		ids := make(map[int64]bool)
		for _, st := range s.Strategies {
			if st.ID == "" {
				return fmt.Errorf("%s: 策略 ID 不能为空", s.Symbol)
			}
			for _, o := range st.Orders {
				if o.ID <= 0 {
					return fmt.Errorf("%s/%s: 逻辑订单 ID 必须大于 0", s.Symbol, st.ID)
				}
				if ids[o.ID] {
					return fmt.Errorf("%s: 重复的逻辑订单 ID %d", s.Symbol, o.ID)
				}
				ids[o.ID] = true
				if o.Type == "" || o.Direction == "" {
					return fmt.Errorf("%s/%s: 逻辑订单 %d 缺少 type 或 direction", s.Symbol, st.ID, o.ID)
				}
			}
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
