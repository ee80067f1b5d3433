package api

import (
	"reflect"
	"strings"
	"time"

	"github.com/BaSui01/queryflow/types"
	"github.com/go-playground/validator/v10"
)

// MaxPromptRunes 单条 prompt 的最大字符数（按 rune 计，与 validate 的 max=8192 一致）
const MaxPromptRunes = 8 * 1024

var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
	_ = requestValidate.RegisterValidation("notblank", validateNotBlank)

	// 错误信息使用 JSON 字段名
	requestValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// =============================================================================
// 📝 Text2Query
// =============================================================================

// Text2QueryRequest 新会话的第一轮
// @Description 自然语言查询请求
type Text2QueryRequest struct {
	// 自然语言描述
	Prompt string `json:"prompt" validate:"notblank,max=8192" example:"total revenue grouped by country, last 5"`
}

// Validate 校验请求字段
func (r *Text2QueryRequest) Validate() error {
	return requestValidate.Struct(r)
}

// QueryResponse 一轮的结果
// @Description 会话 ID 与查询结果
type QueryResponse struct {
	SessionID string         `json:"session_id" example:"3f7c2a0e-3c1b-4d7e-9a55-2f0a3c9a1b11"`
	Result    []types.Record `json:"result"`
}

// =============================================================================
// ✅ Confirm / Reject
// =============================================================================

// ConfirmRequest 确认或拒绝上一轮结果。
// confirm=false 时 new_prompt 是新的描述；is_confirm 为旧版客户端字段。
// @Description 确认请求
type ConfirmRequest struct {
	SessionID string `json:"session_id" validate:"required,max=128"`
	Confirm   *bool  `json:"confirm,omitempty" validate:"required_without=IsConfirm"`
	IsConfirm *bool  `json:"is_confirm,omitempty"`
	NewPrompt string `json:"new_prompt,omitempty" validate:"max=8192"`
}

// Validate 校验请求字段
func (r *ConfirmRequest) Validate() error {
	return requestValidate.Struct(r)
}

// Confirmed 返回确认标记，confirm 优先于 is_confirm
func (r *ConfirmRequest) Confirmed() bool {
	if r.Confirm != nil {
		return *r.Confirm
	}
	return r.IsConfirm != nil && *r.IsConfirm
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

// ServiceHealthResponse 健康检查响应
// @Description 服务健康状态
type ServiceHealthResponse struct {
	Status    string                 `json:"status" example:"healthy"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个依赖的检查结果
type CheckResult struct {
	Status  string `json:"status" example:"pass"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}
