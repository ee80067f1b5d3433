// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 providers 存放各 LLM Provider 共享的配置类型。

具体实现位于子包，目前只有基于 go-openai 的 openai 子包，
通过 BaseURL 也可接入任何 OpenAI 兼容服务。
*/
package providers
