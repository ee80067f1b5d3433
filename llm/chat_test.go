package llm_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/queryflow/llm"
	"github.com/BaSui01/queryflow/llm/retry"
	"github.com/BaSui01/queryflow/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedLLMCall struct {
	provider, model, status string
	prompt, completion      int
}

type fakeLLMMetrics struct {
	mu    sync.Mutex
	calls []recordedLLMCall
}

func (f *fakeLLMMetrics) RecordLLMRequest(provider, model, status string, _ time.Duration, promptTokens, completionTokens int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedLLMCall{provider, model, status, promptTokens, completionTokens})
}

func fastRetry(n int) retry.Policy {
	return retry.Policy{MaxRetries: n, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestChatModel_Complete(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse("hello").WithTokenUsage(7, 3)
	metrics := &fakeLLMMetrics{}

	chat := llm.NewChatModel(provider, llm.ChatConfig{
		Model:        "gpt-4o-mini",
		SystemPrompt: "You are a MongoDB expert.",
		MaxTokens:    256,
	}, metrics, zap.NewNop())

	out, err := chat.Complete(context.Background(), "count invoices")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "gpt-4o-mini", calls[0].Model)
	assert.Equal(t, 256, calls[0].MaxTokens)
	require.Len(t, calls[0].Messages, 2)
	assert.Equal(t, llm.RoleSystem, calls[0].Messages[0].Role)
	assert.Equal(t, llm.RoleUser, calls[0].Messages[1].Role)
	assert.Equal(t, "count invoices", calls[0].Messages[1].Content)

	require.Len(t, metrics.calls, 1)
	assert.Equal(t, recordedLLMCall{"mock", "gpt-4o-mini", "success", 7, 3}, metrics.calls[0])
}

func TestChatModel_NoSystemPrompt(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse("ok")
	chat := llm.NewChatModel(provider, llm.ChatConfig{}, nil, nil)

	_, err := chat.Complete(context.Background(), "hi")
	require.NoError(t, err)
	require.Len(t, provider.Calls()[0].Messages, 1)
}

func TestChatModel_RetriesRetryableErrors(t *testing.T) {
	rateLimited := llm.MapHTTPError(http.StatusTooManyRequests, "slow down", "mock", nil)
	provider := mocks.NewMockProvider().
		WithErrors(rateLimited, nil).
		WithResponse("second time lucky")

	chat := llm.NewChatModel(provider, llm.ChatConfig{Retry: fastRetry(2)}, nil, nil)

	out, err := chat.Complete(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "second time lucky", out)
	assert.Equal(t, 2, provider.CallCount())
}

func TestChatModel_DoesNotRetryPermanentErrors(t *testing.T) {
	unauthorized := llm.MapHTTPError(http.StatusUnauthorized, "bad key", "mock", nil)
	provider := mocks.NewMockProvider().WithError(unauthorized)
	metrics := &fakeLLMMetrics{}

	chat := llm.NewChatModel(provider, llm.ChatConfig{Retry: fastRetry(3)}, metrics, nil)

	_, err := chat.Complete(context.Background(), "q")
	require.Error(t, err)
	e, ok := llm.AsError(err)
	require.True(t, ok)
	assert.Equal(t, llm.ErrUnauthorized, e.Code)
	assert.Equal(t, 1, provider.CallCount())
	assert.Equal(t, "error", metrics.calls[0].status)
}

func TestChatModel_EmptyChoices(t *testing.T) {
	provider := mocks.NewMockProvider().WithCompletionFunc(
		func(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			return &llm.ChatResponse{Provider: "mock"}, nil
		})
	chat := llm.NewChatModel(provider, llm.ChatConfig{}, nil, nil)

	_, err := chat.Complete(context.Background(), "q")
	e, ok := llm.AsError(err)
	require.True(t, ok)
	assert.Equal(t, llm.ErrEmptyResponse, e.Code)
}

func TestChatModel_PerRequestTimeout(t *testing.T) {
	provider := mocks.NewMockProvider().WithCompletionFunc(
		func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			<-ctx.Done()
			return nil, llm.WrapTransportError(ctx.Err(), "mock")
		})
	chat := llm.NewChatModel(provider, llm.ChatConfig{Timeout: 10 * time.Millisecond}, nil, nil)

	_, err := chat.Complete(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
