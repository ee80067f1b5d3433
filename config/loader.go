// =============================================================================
// 📦 queryflow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("QUERYFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 queryflow 的完整配置结构
type Config struct {
	Server      ServerConfig      `yaml:"server" env:"SERVER"`
	Redis       RedisConfig       `yaml:"redis" env:"REDIS"`
	Mongo       MongoConfig       `yaml:"mongo" env:"MONGO"`
	LLM         LLMConfig         `yaml:"llm" env:"LLM"`
	Embedding   EmbeddingConfig   `yaml:"embedding" env:"EMBEDDING"`
	Translation TranslationConfig `yaml:"translation" env:"TRANSLATION"`
	Pipeline    PipelineConfig    `yaml:"pipeline" env:"PIPELINE"`
	Corpus      CorpusConfig      `yaml:"corpus" env:"CORPUS"`
	Log         LogConfig         `yaml:"log" env:"LOG"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 浏览器前端的 CORS 白名单
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	RateLimitRPS       int      `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst     int      `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// RedisConfig Redis 配置（会话历史与 checkpoint）
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Username     string `yaml:"username" env:"USERNAME"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// MongoConfig MongoDB 配置（业务数据库 + RAG 向量索引）
type MongoConfig struct {
	URI      string `yaml:"uri" env:"URI"`
	Database string `yaml:"database" env:"DATABASE"`
	// RAG 语料所在的数据库与集合
	RAGDatabase   string `yaml:"rag_database" env:"RAG_DATABASE"`
	RAGCollection string `yaml:"rag_collection" env:"RAG_COLLECTION"`
	// Atlas Vector Search 索引名
	IndexName     string `yaml:"index_name" env:"INDEX_NAME"`
	EmbeddingPath string `yaml:"embedding_path" env:"EMBEDDING_PATH"`
	ContentField  string `yaml:"content_field" env:"CONTENT_FIELD"`
	// atlas: $vectorSearch；memory: 启动时用语料文件构建进程内索引
	VectorBackend string        `yaml:"vector_backend" env:"VECTOR_BACKEND"`
	MaxPoolSize   uint64        `yaml:"max_pool_size" env:"MAX_POOL_SIZE"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LLMConfig 对话模型配置
type LLMConfig struct {
	Provider    string        `yaml:"provider" env:"PROVIDER"`
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	Model       string        `yaml:"model" env:"MODEL"`
	Temperature float64       `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens   int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// EmbeddingConfig 嵌入模型配置，APIKey/BaseURL 为空时沿用 LLM 配置
type EmbeddingConfig struct {
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	Model      string        `yaml:"model" env:"MODEL"`
	Dimensions int           `yaml:"dimensions" env:"DIMENSIONS"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// TranslationConfig 翻译配置
type TranslationConfig struct {
	Enabled        bool   `yaml:"enabled" env:"ENABLED"`
	SourceLanguage string `yaml:"source_language" env:"SOURCE_LANGUAGE"`
	TargetLanguage string `yaml:"target_language" env:"TARGET_LANGUAGE"`
}

// PipelineConfig 工作流配置
type PipelineConfig struct {
	MaxLLMRetry  int           `yaml:"max_llm_retry" env:"MAX_LLM_RETRY"`
	MaxUserRetry int           `yaml:"max_user_retry" env:"MAX_USER_RETRY"`
	MaxSteps     int           `yaml:"max_steps" env:"MAX_STEPS"`
	TopK         int           `yaml:"top_k" env:"TOP_K"`
	HistoryTTL   time.Duration `yaml:"history_ttl" env:"HISTORY_TTL"`
	// checkpoint 存储: redis, memory
	CheckpointBackend string        `yaml:"checkpoint_backend" env:"CHECKPOINT_BACKEND"`
	CheckpointTTL     time.Duration `yaml:"checkpoint_ttl" env:"CHECKPOINT_TTL"`
}

// CorpusConfig 语法指南语料配置
type CorpusConfig struct {
	Path     string `yaml:"path" env:"PATH"`
	Language string `yaml:"language" env:"LANGUAGE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format      string   `yaml:"format" env:"FORMAT"`
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 滚动日志文件，为空时不写文件
	FilePath   string `yaml:"file_path" env:"FILE_PATH"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" env:"COMPRESS"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	lookupEnv  func(string) (string, bool)
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "QUERYFLOW",
		lookupEnv: os.LookupEnv,
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := l.lookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}

	if c.Pipeline.MaxLLMRetry <= 0 {
		errs = append(errs, "pipeline.max_llm_retry must be positive")
	}
	if c.Pipeline.MaxUserRetry <= 0 {
		errs = append(errs, "pipeline.max_user_retry must be positive")
	}
	if c.Pipeline.MaxSteps <= 0 {
		errs = append(errs, "pipeline.max_steps must be positive")
	}
	if c.Pipeline.TopK <= 0 {
		errs = append(errs, "pipeline.top_k must be positive")
	}
	switch c.Pipeline.CheckpointBackend {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Sprintf("unsupported checkpoint backend %q (supported: redis, memory)", c.Pipeline.CheckpointBackend))
	}

	switch c.Mongo.VectorBackend {
	case "atlas", "memory":
	default:
		errs = append(errs, fmt.Sprintf("unsupported vector backend %q (supported: atlas, memory)", c.Mongo.VectorBackend))
	}
	if c.Mongo.Database == "" {
		errs = append(errs, "mongo.database is required")
	}
	if c.Corpus.Path == "" {
		errs = append(errs, "corpus.path is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "llm.temperature must be between 0 and 2")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
