// =============================================================================
// 📦 queryflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Redis:       DefaultRedisConfig(),
		Mongo:       DefaultMongoConfig(),
		LLM:         DefaultLLMConfig(),
		Embedding:   DefaultEmbeddingConfig(),
		Translation: DefaultTranslationConfig(),
		Pipeline:    DefaultPipelineConfig(),
		Corpus:      DefaultCorpusConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:           8080,
		MetricsPort:        9091,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       120 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		CORSAllowedOrigins: []string{"http://localhost:5173"},
		RateLimitRPS:       20,
		RateLimitBurst:     40,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultMongoConfig 返回默认 MongoDB 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:           "mongodb://localhost:27017",
		Database:      "project_management",
		RAGDatabase:   "rag",
		RAGCollection: "syntax_guidelines",
		IndexName:     "vector_index",
		EmbeddingPath: "embedding",
		ContentField:  "text",
		VectorBackend: "atlas",
		MaxPoolSize:   50,
		Timeout:       30 * time.Second,
	}
}

// DefaultLLMConfig 返回默认对话模型配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		Temperature: 0,
		MaxTokens:   2048,
		Timeout:     60 * time.Second,
	}
}

// DefaultEmbeddingConfig 返回默认嵌入模型配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Timeout:    30 * time.Second,
	}
}

// DefaultTranslationConfig 返回默认翻译配置
func DefaultTranslationConfig() TranslationConfig {
	return TranslationConfig{
		Enabled:        true,
		SourceLanguage: "Vietnamese",
		TargetLanguage: "English",
	}
}

// DefaultPipelineConfig 返回默认工作流配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxLLMRetry:       5,
		MaxUserRetry:      5,
		MaxSteps:          50,
		TopK:              5,
		HistoryTTL:        600 * time.Second,
		CheckpointBackend: "redis",
		CheckpointTTL:     24 * time.Hour,
	}
}

// DefaultCorpusConfig 返回默认语料配置
func DefaultCorpusConfig() CorpusConfig {
	return CorpusConfig{
		Path:     "data/syntax_guideline.json",
		Language: "en",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
		MaxSizeMB:   10,
		MaxBackups:  5,
		MaxAgeDays:  30,
		Compress:    true,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "queryflow",
		SampleRate:   0.1,
	}
}
