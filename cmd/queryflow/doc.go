// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 queryflow 服务端程序入口。

# 概述

cmd/queryflow 把配置、日志、遥测与各存储连接组装为 Text2Query
工作流服务，对外暴露 HTTP API，并在独立端口提供 Prometheus 指标。

# 核心类型

  - Server：主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、version、health（探测运行中的实例）
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    MetricsMiddleware、RequestLogger、CORS、RateLimiter（基于 IP）
  - 检索后端：atlas（$vectorSearch）或 memory（启动时嵌入语料文件）
  - 优雅关闭：信号监听 → 并行关闭 HTTP 与 Metrics → 关闭 Redis / MongoDB → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
