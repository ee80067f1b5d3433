// Package telemetry 初始化 queryflow 的 OpenTelemetry SDK。
//
// resource 上报工作流的部署组合（模型、向量后端、checkpoint 后端、翻译方向），
// span 按 workflow.session_id 关联同一会话的多轮调用。
// 遥测关闭时保持全局 noop provider，不连接任何外部服务。
package telemetry
