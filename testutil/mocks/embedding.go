package mocks

import (
	"context"
	"hash/fnv"
	"sync"
)

// MockEmbedder 按文本哈希生成确定性向量
type MockEmbedder struct {
	mu      sync.Mutex
	dims    int
	err     error
	vectors map[string][]float64
	queries []string
}

// NewMockEmbedder 创建指定维度的 MockEmbedder
func NewMockEmbedder(dims int) *MockEmbedder {
	return &MockEmbedder{dims: dims, vectors: map[string][]float64{}}
}

// WithVector 为指定文本固定返回的向量
func (m *MockEmbedder) WithVector(text string, vec []float64) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[text] = vec
	return m
}

// WithError 所有调用返回错误
func (m *MockEmbedder) WithError(err error) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// EmbedQuery 返回文本的向量
func (m *MockEmbedder) EmbedQuery(_ context.Context, text string) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, text)
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	return hashVector(text, m.dims), nil
}

// EmbedDocuments 逐个返回文档向量，顺序与输入一致
func (m *MockEmbedder) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	out := make([][]float64, 0, len(documents))
	for _, d := range documents {
		v, err := m.EmbedQuery(ctx, d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Name 返回提供者名称
func (m *MockEmbedder) Name() string { return "mock-embedding" }

// Dimensions 返回向量维度
func (m *MockEmbedder) Dimensions() int { return m.dims }

// Queries 返回收到的所有查询
func (m *MockEmbedder) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

func hashVector(text string, dims int) []float64 {
	vec := make([]float64, dims)
	for i := range vec {
		h := fnv.New64a()
		_, _ = h.Write([]byte{byte(i)})
		_, _ = h.Write([]byte(text))
		vec[i] = float64(h.Sum64()%1000) / 1000.0
	}
	return vec
}
