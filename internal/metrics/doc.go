// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、LLM、
工作流节点、会话历史缓存与文档库查询。

# 概述

Collector 通过 promauto 注册到默认 registry，所有指标按 namespace 隔离。
工作流相关的 RecordNodeExecution/RecordTurnOutcome 满足 workflow.Recorder，
RecordLLMRequest 满足 llm 包的指标钩子。
*/
package metrics
