// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 queryflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workflow、docstore、llm、
api 等上层模块提供统一的错误契约，以避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误，含 HTTP 状态码、Retryable、Provider 标记
  - Fragment：检索得到的上下文片段 {content, score}
  - Turn：会话历史中的一轮 {user, bot}
  - Record：返回给客户端的可移植结果行

# 主要能力

  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
  - 会话错误码：SESSION_NOT_FOUND / SESSION_BUSY / SESSION_RETIRED
  - 能力错误码：STORE_EXECUTION / UPSTREAM_ERROR 等
  - Context 辅助：WithRequestID / WithSessionID / WithTraceID
*/
package types
