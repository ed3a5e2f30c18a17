// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// envPattern 匹配 ${VAR} 或 ${VAR:default}
var envPattern = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// Load 从 configs 目录加载配置
// 按优先级加载：默认配置 -> 环境配置 -> 环境变量
func Load() (*Config, error) {
	dir := os.Getenv("CONFIG_DIR")
	if dir == "" {
		dir = "configs"
	}
	return LoadFrom(dir)
}

// LoadFrom 从指定目录加载配置，config.yaml 不存在时仅使用默认值
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 加载默认配置
	if err := loadConfigFile(v, filepath.Join(dir, "config.yaml"), true); err != nil {
		return nil, err
	}

	// 2. 加载环境特定配置
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	envFile := filepath.Join(dir, fmt.Sprintf("config.%s.yaml", env))
	if err := loadConfigFile(v, envFile, true); err != nil {
		return nil, err
	}

	// 3. 绑定环境变量 (直接覆盖)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值 (兜底)
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadConfigFile 读取文件，执行环境变量替换，并加载到 viper
func loadConfigFile(v *viper.Viper, path string, optional bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	reader := strings.NewReader(expandEnv(string(content)))
	if v.ConfigFileUsed() == "" {
		if err := v.ReadConfig(reader); err != nil {
			return fmt.Errorf("failed to read processed config %s: %w", path, err)
		}
		v.SetConfigFile(path)
	} else {
		if err := v.MergeConfig(reader); err != nil {
			return fmt.Errorf("failed to merge processed config %s: %w", path, err)
		}
	}

	return nil
}

// expandEnv 替换字符串中的 ${VAR:default} 占位符，未定义且无默认值时保留原样
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envPattern.FindStringSubmatch(match)
		key := submatch[1]
		hasDefault := submatch[2] != ""
		defVal := submatch[3]

		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		if hasDefault {
			return defVal
		}
		return match
	})
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	switch c.Vector.Backend {
	case "pgvector", "milvus":
	default:
		return fmt.Errorf("unsupported vector backend %q", c.Vector.Backend)
	}
	switch c.Embedding.Provider {
	case "dashscope", "openai":
	default:
		return fmt.Errorf("unsupported embedding provider %q", c.Embedding.Provider)
	}
	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("retrieval.threshold must be within [0,1], got %v", c.Retrieval.Threshold)
	}
	if c.Retrieval.TopK <= 0 || c.Retrieval.RerankTopN <= 0 {
		return fmt.Errorf("retrieval.top_k and retrieval.rerank_top_n must be positive")
	}
	return nil
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	// 应用默认值
	v.SetDefault("app.name", "homepage-chat-api")
	v.SetDefault("app.version", "v0.0.0")
	v.SetDefault("app.env", "development")

	// HTTP 服务器默认值
	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8000)
	v.SetDefault("server.http.read_timeout", "30s")
	v.SetDefault("server.http.write_timeout", "120s")
	v.SetDefault("server.http.idle_timeout", "120s")

	// 数据库默认值
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.database", "homepage")
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 20)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", "30m")
	v.SetDefault("database.postgres.conn_max_idle_time", "5m")

	// Redis 默认值
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 50)
	v.SetDefault("cache.redis.min_idle_conns", 5)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")

	// 缓存 TTL 默认值
	v.SetDefault("cache.ttl.answer", "24h")
	v.SetDefault("cache.ttl.docs", "1h")
	v.SetDefault("cache.ttl.embedding", "168h")
	v.SetDefault("cache.ttl.suggestions", "5m")

	// 相似度检索默认值
	v.SetDefault("vector.backend", "pgvector")
	v.SetDefault("vector.table", "embeddings")
	v.SetDefault("vector.milvus.host", "localhost")
	v.SetDefault("vector.milvus.port", 19530)
	v.SetDefault("vector.milvus.collection", "homepage_embeddings")
	v.SetDefault("vector.milvus.search_ef", 128)

	// Embedding 默认值
	v.SetDefault("embedding.provider", "dashscope")
	v.SetDefault("embedding.endpoint", "https://dashscope.aliyuncs.com/api/v1/services/embeddings/text-embedding/text-embedding")
	v.SetDefault("embedding.model", "text-embedding-v3")
	v.SetDefault("embedding.dimension", 1024)
	v.SetDefault("embedding.batch_size", 10)
	v.SetDefault("embedding.timeout", "30s")
	v.SetDefault("embedding.retry.attempts", 3)
	v.SetDefault("embedding.retry.initial", "1s")
	v.SetDefault("embedding.retry.max", "10s")

	// Rerank 默认值
	v.SetDefault("rerank.endpoint", "https://dashscope.aliyuncs.com/api/v1/services/rerank/text-rerank/text-rerank")
	v.SetDefault("rerank.model", "gte-rerank")
	v.SetDefault("rerank.timeout", "10s")
	v.SetDefault("rerank.retry.attempts", 3)
	v.SetDefault("rerank.retry.initial", "1s")
	v.SetDefault("rerank.retry.max", "5s")

	// LLM 默认值
	v.SetDefault("llm.api_base", "http://localhost:8317/v1")
	v.SetDefault("llm.model", "glm-4-flash")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.persona", "Arno")

	// 检索默认值
	v.SetDefault("retrieval.top_k", 10)
	v.SetDefault("retrieval.threshold", 0.5)
	v.SetDefault("retrieval.rerank_top_n", 3)

	// 用量阈值默认值
	v.SetDefault("usage.daily_embedding_limit", 1000)
	v.SetDefault("usage.daily_rerank_limit", 500)
	v.SetDefault("usage.daily_llm_token_limit", 100000)
	v.SetDefault("usage.monthly_budget_cny", 50.0)

	// 对话默认值
	v.SetDefault("chat.max_message_length", 2000)
	v.SetDefault("chat.max_history", 20)
	v.SetDefault("chat.suggestions", []string{
		"你的主要技术栈是什么？",
		"介绍一下你做过的项目",
		"你有什么工作经验？",
		"如何联系你？",
	})

	// 可观测性默认值
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")

	// 安全默认值
	v.SetDefault("security.admin_jwt.issuer", "homepage-admin")
	v.SetDefault("security.rate_limit.enabled", true)
	v.SetDefault("security.rate_limit.requests", 20)
	v.SetDefault("security.rate_limit.window", "1m")
	v.SetDefault("security.cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("security.cors.allowed_headers", []string{"Content-Type", "Authorization", "X-Request-ID"})
}
