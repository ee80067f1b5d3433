// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 实现 Text2Query 的可恢复多步工作流。

# 概述

一次请求（一轮）从 Start 出发，经 Translate → Retrieve → Generate →
Validate → Execute 到 Finalize；校验或执行失败时进入 Correct 循环，
预算耗尽进入 Terminal。每轮结束后 State 写入 Checkpointer，下一次
Confirm / Reject 调用从 checkpoint 恢复，而不是在进程内挂起。

# 核心类型

  - State：单会话状态，节点按值传递，每个节点执行前 Clone
  - Governor：两套独立预算：模型纠错 MaxLLMRetry，用户拒绝 MaxUserRetry
  - Handlers：各节点实现，外部能力通过 Capabilities 显式注入
  - Graph：穷举 switch 的状态机，步数上限 DefaultMaxSteps
  - Checkpointer：RedisCheckpointer / MemoryCheckpointer
  - Pipeline：Submit / Confirm / Reject，会话级互斥

# 路由

	Start    → Rewrite | Translate | Terminal   (Governor.RouteEntry)
	Rewrite  → Translate → Retrieve → Generate → Validate
	Validate → Execute | Correct | Terminal     (Governor.RouteAfterAttempt)
	Execute  → Finalize | Correct | Terminal    (Governor.RouteAfterAttempt)
	Correct  → Validate

预算耗尽优先于错误标记。

# 日期标记

生成的查询中可以写 {"$dateExpr": "7_DAYS_AGO"} 等标记，Execute 在执行时
相对当前时刻解析为 BSON 日期，无法识别的标记原样保留。
*/
package workflow
