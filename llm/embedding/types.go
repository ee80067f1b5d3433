// Package embedding 提供统一的嵌入提供者接口和实现.
package embedding

import (
	"context"
	"time"
)

// Provider 定义统一的嵌入提供者接口.
type Provider interface {
	// EmbedQuery 为单个检索查询生成向量.
	EmbedQuery(ctx context.Context, query string) ([]float64, error)

	// EmbedDocuments 为多个文档生成向量，顺序与输入一致.
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)

	// Name 返回提供者名称.
	Name() string

	// Dimensions 返回默认嵌入维度.
	Dimensions() int
}

// Config 嵌入模型配置.
type Config struct {
	APIKey     string        `json:"api_key" yaml:"api_key"`
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Model      string        `json:"model" yaml:"model"`
	Dimensions int           `json:"dimensions" yaml:"dimensions"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
}
