// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 queryflow 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout，自动注册 Cleanup
  - 断言工具: AssertJSONEqual
  - 数据工具: MustJSON / MustParseJSON

# 子包

  - testutil/mocks: MockProvider（llm.Provider，脚本化响应与错误注入）
    与 MockEmbedder（确定性向量）

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().WithResponses(`{"prompt":"x"}`)
*/
package testutil
