package openai

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/BaSui01/queryflow/llm"
	"github.com/BaSui01/queryflow/llm/providers"
	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const defaultModel = "gpt-4o-mini"

// OpenAIProvider 基于 go-openai 的 Chat Completions 实现
type OpenAIProvider struct {
	client *goopenai.Client
	cfg    providers.OpenAIConfig
	logger *zap.Logger
}

// NewOpenAIProvider 创建 Provider；BaseURL 为空时使用官方地址
func NewOpenAIProvider(cfg providers.OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Organization != "" {
		clientCfg.OrgID = cfg.Organization
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIProvider{
		client: goopenai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger.With(zap.String("component", "openai_provider")),
	}
}

// Name 返回 Provider 标识
func (p *OpenAIProvider) Name() string { return "openai" }

// Completion 调用 /chat/completions
func (p *OpenAIProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := providers.ChooseModel(req.Model, p.cfg.Model, defaultModel)

	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	body := goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	// temperature 字段带 omitempty，0 会被省略而落到服务端默认值 1
	if body.Temperature == 0 {
		body.Temperature = math.SmallestNonzeroFloat32
	}

	resp, err := p.client.CreateChatCompletion(ctx, body)
	if err != nil {
		p.logger.Debug("chat completion failed", zap.String("model", model), zap.Error(err))
		return nil, p.mapError(err)
	}

	choices := make([]llm.ChatChoice, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		choices = append(choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: string(c.FinishReason),
			Message: llm.Message{
				Role:    llm.Role(c.Message.Role),
				Content: c.Message.Content,
			},
		})
	}

	return &llm.ChatResponse{
		ID:       resp.ID,
		Provider: p.Name(),
		Model:    resp.Model,
		Choices:  choices,
		Usage: llm.ChatUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		CreatedAt: time.Unix(resp.Created, 0),
	}, nil
}

// mapError 把 go-openai 的错误转换为 *llm.Error
func (p *OpenAIProvider) mapError(err error) error {
	return MapError(err, p.Name())
}

// MapError 把 go-openai 的 APIError/RequestError 映射为 *llm.Error，embedding 客户端共用
func MapError(err error, provider string) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return llm.MapHTTPError(apiErr.HTTPStatusCode, apiErr.Message, provider, err)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return llm.MapHTTPError(reqErr.HTTPStatusCode, reqErr.Error(), provider, err)
	}
	return llm.WrapTransportError(err, provider)
}
