package config

import (
	"fmt"

	"paperhands/pkg/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config 定义整个配置的结构
type Config struct {
	Log           LogConfig           `mapstructure:"log"`
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Ledger        LedgerConfig        `mapstructure:"ledger"`
	MarketData    MarketDataConfig    `mapstructure:"marketdata"`
	Analyzer      AnalyzerConfig      `mapstructure:"analyzer"`
	API           APIConfig           `mapstructure:"api"`
	Monitor       MonitorConfig       `mapstructure:"monitor"`
}

// LogConfig Log 日志配置
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig Kafka 配置（分析结果发布，可选）
type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	TopicResult string `mapstructure:"topic_result"`
}

type ElasticsearchConfig struct {
	Addresses        []string `mapstructure:"addresses"`
	Username         string   `mapstructure:"username"`
	Password         string   `mapstructure:"password"`
	ResultsIndexName string   `mapstructure:"results_index_name"`
}

// LedgerConfig 账本索引API配置
type LedgerConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	RateLimit int    `mapstructure:"rate_limit"`
	Timeout   int    `mapstructure:"timeout"`
}

// MarketDataConfig 行情API配置
type MarketDataConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	RateLimit int    `mapstructure:"rate_limit"`
}

// AnalyzerConfig 分析管线与准入控制配置
type AnalyzerConfig struct {
	MaxConcurrent       int     `mapstructure:"max_concurrent"`        // 并发分析上限
	CooldownMinutes     int     `mapstructure:"cooldown_minutes"`      // 同地址完成后的冷却期
	CacheTTLHours       int     `mapstructure:"cache_ttl_hours"`       // 结果缓存有效期
	MaterialityUSD      float64 `mapstructure:"materiality_usd"`       // 事件美元门槛
	DefaultLookbackDays int     `mapstructure:"default_lookback_days"` // 默认回看窗口
	MaxPipelineMinutes  int     `mapstructure:"max_pipeline_minutes"`  // Processing超时判定
}

type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type MonitorConfig struct {
	Enable         bool   `mapstructure:"enable"`
	PrometheusAddr string `mapstructure:"prometheus_addr"`
}

func InitConfig() Config {
	var config Config

	viper.SetConfigName("config.worker")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config/")

	err := viper.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %s", err))
	}

	if err := mapstructure.Decode(viper.AllSettings(), &config); err != nil {
		panic(fmt.Errorf("fatal error config file: %s", err))
	}

	applyDefaults(&config)

	return config
}

func applyDefaults(config *Config) {
	if config.Analyzer.MaxConcurrent <= 0 {
		config.Analyzer.MaxConcurrent = 5
	}
	if config.Analyzer.CooldownMinutes <= 0 {
		config.Analyzer.CooldownMinutes = 15
	}
	if config.Analyzer.CacheTTLHours <= 0 {
		config.Analyzer.CacheTTLHours = 48
	}
	if config.Analyzer.MaterialityUSD <= 0 {
		config.Analyzer.MaterialityUSD = 100
	}
	if config.Analyzer.DefaultLookbackDays <= 0 {
		config.Analyzer.DefaultLookbackDays = 90
	}
	if config.Analyzer.MaxPipelineMinutes <= 0 {
		config.Analyzer.MaxPipelineMinutes = 10
	}
	if config.API.ListenAddr == "" {
		config.API.ListenAddr = ":8080"
	}
}

func WatchConfig(config *Config) {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		newConfig := InitConfig()
		*config = newConfig
		logger.SetLogLevel(config.Log.Level)
	})
}
