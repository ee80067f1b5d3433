package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		code      ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, ErrUnauthorized, false},
		{http.StatusForbidden, ErrForbidden, false},
		{http.StatusTooManyRequests, ErrRateLimited, true},
		{http.StatusBadRequest, ErrInvalidRequest, false},
		{http.StatusGatewayTimeout, ErrUpstreamTimeout, true},
		{http.StatusInternalServerError, ErrUpstreamError, true},
		{http.StatusServiceUnavailable, ErrUpstreamError, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			e := MapHTTPError(tt.status, "msg", "openai", nil)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.retryable, e.Retryable)
			assert.Equal(t, tt.status, e.HTTPStatus)
		})
	}
}

func TestWrapTransportError(t *testing.T) {
	assert.True(t, WrapTransportError(errors.New("connection reset"), "openai").Retryable)
	assert.False(t, WrapTransportError(context.Canceled, "openai").Retryable)

	e := WrapTransportError(context.DeadlineExceeded, "openai")
	assert.Equal(t, ErrUpstreamTimeout, e.Code)
	assert.ErrorIs(t, e, context.DeadlineExceeded)
}

func TestAsErrorAndIsRetryable(t *testing.T) {
	base := MapHTTPError(http.StatusTooManyRequests, "slow", "openai", nil)
	wrapped := fmt.Errorf("chat: %w", base)

	e, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Same(t, base, e)
	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestFirstChoice(t *testing.T) {
	_, err := FirstChoice(nil)
	require.Error(t, err)

	_, err = FirstChoice(&ChatResponse{Provider: "p"})
	e, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "p", e.Provider)

	c, err := FirstChoice(&ChatResponse{Choices: []ChatChoice{{Message: Message{Content: "x"}}}})
	require.NoError(t, err)
	assert.Equal(t, "x", c.Message.Content)
}
