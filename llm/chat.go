package llm

import (
	"context"
	"time"

	"github.com/BaSui01/queryflow/llm/retry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// MetricsRecorder 接收每次 LLM 调用的指标
type MetricsRecorder interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int)
}

// ChatConfig 单轮补全的默认参数
type ChatConfig struct {
	Model        string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
	// 单次请求超时，0 表示只受调用方 ctx 约束
	Timeout time.Duration
	Retry   retry.Policy
}

// ChatModel 把 Provider 包装成 prompt 进、文本出的单轮补全
type ChatModel struct {
	provider Provider
	cfg      ChatConfig
	metrics  MetricsRecorder
	logger   *zap.Logger
}

// NewChatModel 创建 ChatModel；metrics 可为 nil
func NewChatModel(provider Provider, cfg ChatConfig, metrics MetricsRecorder, logger *zap.Logger) *ChatModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retry.ShouldRetry == nil {
		cfg.Retry.ShouldRetry = IsRetryable
	}
	return &ChatModel{
		provider: provider,
		cfg:      cfg,
		metrics:  metrics,
		logger: logger.With(
			zap.String("component", "chat_model"),
			zap.String("provider", provider.Name()),
		),
	}
}

// Complete 发送单条用户消息并返回第一个 choice 的文本
func (m *ChatModel) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := otel.Tracer("queryflow/llm").Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", m.provider.Name()),
		attribute.String("llm.model", m.cfg.Model),
		attribute.Int("llm.prompt_chars", len(prompt)),
	)

	messages := make([]Message, 0, 2)
	if m.cfg.SystemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: m.cfg.SystemPrompt})
	}
	messages = append(messages, Message{Role: RoleUser, Content: prompt})

	req := &ChatRequest{
		Model:       m.cfg.Model,
		Messages:    messages,
		MaxTokens:   m.cfg.MaxTokens,
		Temperature: m.cfg.Temperature,
		Timeout:     m.cfg.Timeout,
	}

	start := time.Now()
	resp, err := retry.Do(ctx, m.cfg.Retry, m.logger, func(ctx context.Context) (*ChatResponse, error) {
		if m.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
			defer cancel()
		}
		return m.provider.Completion(ctx, req)
	})
	if err == nil {
		var choice ChatChoice
		choice, err = FirstChoice(resp)
		if err == nil {
			m.record("success", start, resp.Usage)
			span.SetAttributes(attribute.Int("llm.completion_tokens", resp.Usage.CompletionTokens))
			return choice.Message.Content, nil
		}
	}

	m.record("error", start, ChatUsage{})
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	m.logger.Warn("chat completion failed", zap.Error(err))
	return "", err
}

func (m *ChatModel) record(status string, start time.Time, usage ChatUsage) {
	if m.metrics == nil {
		return
	}
	m.metrics.RecordLLMRequest(m.provider.Name(), m.cfg.Model, status, time.Since(start),
		usage.PromptTokens, usage.CompletionTokens)
}
