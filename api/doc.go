// Package api 定义 queryflow HTTP API 的请求与响应类型。
//
// # 端点
//
//	POST /api/v1/text2query     {prompt}                          → {session_id, result}
//	POST /api/v1/confirm_query  {session_id, confirm: true}       → {session_id, result}
//	POST /api/v1/confirm_query  {session_id, confirm: false,
//	                             new_prompt}                       → {session_id, result}
//	GET  /health /healthz /ready /version
//
// 请求类型带 go-playground/validator 标签，处理器在解码后调用 Validate。
// 错误统一以 {success: false, error: {code, message, retryable}} 返回。
package api
