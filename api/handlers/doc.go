// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 queryflow HTTP API 的请求处理器。

# 核心类型

  - QueryHandler：text2query 与 confirm_query，委托给 QueryService（workflow.Pipeline）
  - HealthHandler：/health、/healthz、/ready、/version
  - Response：错误响应与通用成功响应的统一结构
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码

# 约定

请求体上限 1 MB，拒绝未知字段；解码后调用 api 请求类型的 Validate。
types.Error 的 HTTPStatus 优先，未设置时按错误码映射。
*/
package handlers
