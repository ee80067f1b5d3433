// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持按顺序返回脚本化响应与错误注入。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/queryflow/llm"
)

// --- MockProvider 结构 ---

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.Mutex

	// 响应配置：responses 按顺序消费，用尽后重复最后一条
	responses []string
	errs      []error

	promptTokens     int
	completionTokens int

	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	calls []*llm.ChatRequest
}

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		responses:        []string{"Mock response"},
		promptTokens:     10,
		completionTokens: 20,
	}
}

// --- Builder 方法 ---

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	return m.WithResponses(response)
}

// WithResponses 设置按顺序返回的响应
func (m *MockProvider) WithResponses(responses ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append([]string(nil), responses...)
	return m
}

// WithError 所有调用返回同一个错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = []error{err}
	return m
}

// WithErrors 按顺序返回错误，nil 表示该次调用走正常响应
func (m *MockProvider) WithErrors(errs ...error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append([]error(nil), errs...)
	return m
}

// WithTokenUsage 设置 Token 使用量
func (m *MockProvider) WithTokenUsage(prompt, completion int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens = prompt
	m.completionTokens = completion
	return m
}

// WithCompletionFunc 设置自定义 Completion 函数
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// --- llm.Provider 实现 ---

// Name 返回 Provider 名称
func (m *MockProvider) Name() string {
	return "mock"
}

// Completion 返回下一条脚本化响应
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	idx := len(m.calls)
	m.calls = append(m.calls, req)
	fn := m.completionFunc
	var err error
	if len(m.errs) > 0 {
		err = pick(m.errs, idx)
	}
	content := ""
	if len(m.responses) > 0 {
		content = pick(m.responses, idx)
	}
	prompt, completion := m.promptTokens, m.completionTokens
	m.mu.Unlock()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	return &llm.ChatResponse{
		ID:       "mock-response-id",
		Provider: "mock",
		Model:    req.Model,
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: "stop",
			Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
		CreatedAt: time.Now(),
	}, nil
}

// --- 调用记录 ---

// Calls 返回所有请求的副本
func (m *MockProvider) Calls() []*llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*llm.ChatRequest(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastPrompt 返回最后一次请求中用户消息的内容
func (m *MockProvider) LastPrompt() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return "", errors.New("mock provider: no calls recorded")
	}
	msgs := m.calls[len(m.calls)-1].Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			return msgs[i].Content, nil
		}
	}
	return "", errors.New("mock provider: no user message")
}

// pick 返回第 i 个元素，越界时返回最后一个
func pick[T any](items []T, i int) T {
	if i >= len(items) {
		return items[len(items)-1]
	}
	return items[i]
}
