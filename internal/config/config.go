// Package config 提供配置加载和管理功能
package config

import (
	"fmt"
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Vector        VectorConfig        `yaml:"vector" mapstructure:"vector"`
	Embedding     EmbeddingConfig     `yaml:"embedding" mapstructure:"embedding"`
	Rerank        RerankConfig        `yaml:"rerank" mapstructure:"rerank"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Retrieval     RetrievalConfig     `yaml:"retrieval" mapstructure:"retrieval"`
	Usage         UsageConfig         `yaml:"usage" mapstructure:"usage"`
	Chat          ChatConfig          `yaml:"chat" mapstructure:"chat"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// Addr 返回监听地址
func (c HTTPServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// DSN 返回 PostgreSQL 连接串
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig    `yaml:"redis" mapstructure:"redis"`
	TTL   CacheTTLConfig `yaml:"ttl" mapstructure:"ttl"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// CacheTTLConfig 各级缓存过期时间
type CacheTTLConfig struct {
	Answer      time.Duration `yaml:"answer" mapstructure:"answer"`
	Docs        time.Duration `yaml:"docs" mapstructure:"docs"`
	Embedding   time.Duration `yaml:"embedding" mapstructure:"embedding"`
	Suggestions time.Duration `yaml:"suggestions" mapstructure:"suggestions"`
}

// VectorConfig 相似度检索后端配置
type VectorConfig struct {
	// Backend 可选 pgvector / milvus
	Backend string       `yaml:"backend" mapstructure:"backend"`
	Table   string       `yaml:"table" mapstructure:"table"`
	Milvus  MilvusConfig `yaml:"milvus" mapstructure:"milvus"`
}

// MilvusConfig Milvus 配置
type MilvusConfig struct {
	Host       string `yaml:"host" mapstructure:"host"`
	Port       int    `yaml:"port" mapstructure:"port"`
	User       string `yaml:"user" mapstructure:"user"`
	Password   string `yaml:"password" mapstructure:"password"`
	Collection string `yaml:"collection" mapstructure:"collection"`
	SearchEf   int    `yaml:"search_ef" mapstructure:"search_ef"`
}

// RetryConfig 远程调用重试配置
type RetryConfig struct {
	Attempts int           `yaml:"attempts" mapstructure:"attempts"`
	Initial  time.Duration `yaml:"initial" mapstructure:"initial"`
	Max      time.Duration `yaml:"max" mapstructure:"max"`
}

// EmbeddingConfig Embedding 配置
type EmbeddingConfig struct {
	// Provider 可选 dashscope / openai
	Provider  string        `yaml:"provider" mapstructure:"provider"`
	Endpoint  string        `yaml:"endpoint" mapstructure:"endpoint"`
	BaseURL   string        `yaml:"base_url" mapstructure:"base_url"`
	APIKey    string        `yaml:"api_key" mapstructure:"api_key"`
	Model     string        `yaml:"model" mapstructure:"model"`
	Dimension int           `yaml:"dimension" mapstructure:"dimension"`
	BatchSize int           `yaml:"batch_size" mapstructure:"batch_size"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Retry     RetryConfig   `yaml:"retry" mapstructure:"retry"`
}

// RerankConfig 重排序服务配置
type RerankConfig struct {
	Endpoint string        `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey   string        `yaml:"api_key" mapstructure:"api_key"`
	Model    string        `yaml:"model" mapstructure:"model"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Retry    RetryConfig   `yaml:"retry" mapstructure:"retry"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	APIBase     string        `yaml:"api_base" mapstructure:"api_base"`
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// Persona 助手所代表的主页主人
	Persona string `yaml:"persona" mapstructure:"persona"`
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	TopK       int     `yaml:"top_k" mapstructure:"top_k"`
	Threshold  float64 `yaml:"threshold" mapstructure:"threshold"`
	RerankTopN int     `yaml:"rerank_top_n" mapstructure:"rerank_top_n"`
}

// UsageConfig 用量与成本阈值
type UsageConfig struct {
	DailyEmbeddingLimit int64   `yaml:"daily_embedding_limit" mapstructure:"daily_embedding_limit"`
	DailyRerankLimit    int64   `yaml:"daily_rerank_limit" mapstructure:"daily_rerank_limit"`
	DailyLLMTokenLimit  int64   `yaml:"daily_llm_token_limit" mapstructure:"daily_llm_token_limit"`
	MonthlyBudgetCNY    float64 `yaml:"monthly_budget_cny" mapstructure:"monthly_budget_cny"`
}

// ChatConfig 对话接口配置
type ChatConfig struct {
	MaxMessageLength int      `yaml:"max_message_length" mapstructure:"max_message_length"`
	MaxHistory       int      `yaml:"max_history" mapstructure:"max_history"`
	Suggestions      []string `yaml:"suggestions" mapstructure:"suggestions"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	AdminJWT  JWTConfig       `yaml:"admin_jwt" mapstructure:"admin_jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// JWTConfig 管理后台 JWT 校验配置
type JWTConfig struct {
	Secret string `yaml:"secret" mapstructure:"secret"`
	Issuer string `yaml:"issuer" mapstructure:"issuer"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Requests int           `yaml:"requests" mapstructure:"requests"`
	Window   time.Duration `yaml:"window" mapstructure:"window"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}
