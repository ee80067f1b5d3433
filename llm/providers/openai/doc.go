// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 openai 基于 github.com/sashabaranov/go-openai 实现 llm.Provider，
走 Chat Completions 接口；BaseURL 可指向任何 OpenAI 兼容服务。

# 错误映射

MapError 把 go-openai 的 APIError / RequestError 按 HTTP 状态映射为
*llm.Error（429 与 5xx 可重试），网络错误统一视为可重试的上游错误。
embedding 子包复用同一映射。
*/
package openai
