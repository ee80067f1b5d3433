package llm

import (
	"context"
	"errors"
	"net/http"
)

// AsError 沿错误链查找 *Error
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// MapHTTPError 把上游 HTTP 状态映射为 *Error
func MapHTTPError(status int, msg, provider string, cause error) *Error {
	code := ErrUpstreamError
	retryable := status >= 500

	switch status {
	case http.StatusUnauthorized:
		code = ErrUnauthorized
	case http.StatusForbidden:
		code = ErrForbidden
	case http.StatusTooManyRequests:
		code = ErrRateLimited
		retryable = true
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		code = ErrInvalidRequest
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		code = ErrUpstreamTimeout
		retryable = true
	}

	return &Error{
		Code:       code,
		Message:    msg,
		HTTPStatus: status,
		Retryable:  retryable,
		Provider:   provider,
		Cause:      cause,
	}
}

// WrapTransportError 包装网络层错误；调用方取消不视为可重试
func WrapTransportError(err error, provider string) *Error {
	if errors.Is(err, context.Canceled) {
		return &Error{Code: ErrUpstreamError, Message: err.Error(), Provider: provider, Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Code:       ErrUpstreamTimeout,
			Message:    err.Error(),
			HTTPStatus: http.StatusGatewayTimeout,
			Provider:   provider,
			Cause:      err,
		}
	}
	return &Error{
		Code:       ErrUpstreamError,
		Message:    err.Error(),
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
		Provider:   provider,
		Cause:      err,
	}
}
