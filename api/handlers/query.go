package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/BaSui01/queryflow/api"
	"github.com/BaSui01/queryflow/types"
	"github.com/BaSui01/queryflow/workflow"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// =============================================================================
// 🔎 Text2Query Handler
// =============================================================================

// QueryService 会话操作，由 workflow.Pipeline 实现
type QueryService interface {
	Submit(ctx context.Context, prompt string) (workflow.TurnResult, error)
	Reject(ctx context.Context, sessionID, newPrompt string) (workflow.TurnResult, error)
	Confirm(ctx context.Context, sessionID string) ([]types.Record, error)
}

// QueryHandler 自然语言查询处理器
type QueryHandler struct {
	service QueryService
	logger  *zap.Logger
}

// NewQueryHandler 创建查询处理器
func NewQueryHandler(service QueryService, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandler{
		service: service,
		logger:  logger.With(zap.String("component", "query_handler")),
	}
}

// HandleText2Query 处理 POST /api/v1/text2query
// @Summary 自然语言转查询
// @Description 新建会话并执行第一轮
// @Tags 查询
// @Accept json
// @Produce json
// @Param request body api.Text2QueryRequest true "查询请求"
// @Success 200 {object} api.QueryResponse "查询结果"
// @Failure 400 {object} Response "请求无效"
// @Failure 503 {object} Response "会话存储不可用"
// @Router /api/v1/text2query [post]
func (h *QueryHandler) HandleText2Query(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.Text2QueryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := req.Validate(); err != nil {
		WriteError(w, validationError(err), h.logger)
		return
	}

	res, err := h.service.Submit(r.Context(), req.Prompt)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, api.QueryResponse{SessionID: res.SessionID, Result: res.Result})
}

// HandleConfirmQuery 处理 POST /api/v1/confirm_query
// @Summary 确认或拒绝结果
// @Description confirm=true 保存查询到语料；confirm=false 用 new_prompt 重新生成
// @Tags 查询
// @Accept json
// @Produce json
// @Param request body api.ConfirmRequest true "确认请求"
// @Success 200 {object} api.QueryResponse "结果"
// @Failure 400 {object} Response "new_prompt 为空"
// @Failure 404 {object} Response "会话不存在"
// @Failure 409 {object} Response "会话正忙"
// @Failure 410 {object} Response "会话已作废"
// @Router /api/v1/confirm_query [post]
func (h *QueryHandler) HandleConfirmQuery(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.ConfirmRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := req.Validate(); err != nil {
		WriteError(w, validationError(err), h.logger)
		return
	}

	if req.Confirmed() {
		result, err := h.service.Confirm(r.Context(), req.SessionID)
		if err != nil {
			WriteAnyError(w, err, h.logger)
			return
		}
		WriteJSON(w, http.StatusOK, api.QueryResponse{SessionID: req.SessionID, Result: result})
		return
	}

	res, err := h.service.Reject(r.Context(), req.SessionID, req.NewPrompt)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, api.QueryResponse{SessionID: res.SessionID, Result: res.Result})
}

// validationError 把 validator 错误转为 API 错误，空白 prompt 单独使用 BLANK_PROMPT
func validationError(err error) *types.Error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return types.NewError(types.ErrInvalidRequest, "invalid request").
			WithCause(err).
			WithHTTPStatus(http.StatusBadRequest)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Tag() == "notblank" {
			return types.NewError(types.ErrBlankPrompt, fmt.Sprintf("%s must not be blank", fe.Field())).
				WithHTTPStatus(http.StatusBadRequest)
		}
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
	}
	return types.NewError(types.ErrInvalidRequest, strings.Join(msgs, "; ")).
		WithHTTPStatus(http.StatusBadRequest)
}
