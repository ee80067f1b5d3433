package llm

import "net/http"

// FirstChoice 返回第一个 choice，没有 choice 时返回 ErrEmptyResponse
func FirstChoice(resp *ChatResponse) (ChatChoice, error) {
	if resp == nil || len(resp.Choices) == 0 {
		provider := ""
		if resp != nil {
			provider = resp.Provider
		}
		return ChatChoice{}, &Error{
			Code:       ErrEmptyResponse,
			Message:    "model returned no choices",
			HTTPStatus: http.StatusBadGateway,
			Provider:   provider,
		}
	}
	return resp.Choices[0], nil
}

// IsRetryable 判断错误是否为可重试的 *Error
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Retryable
}
