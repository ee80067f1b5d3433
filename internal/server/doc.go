// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理。

# 核心类型

  - Manager：封装 net/http.Server 与 net.Listener，提供 Start/Run/Shutdown。
    Run 阻塞到 context 结束或服务异常退出，适合放进 errgroup。
  - Config：名称、监听地址、读写超时、空闲超时与优雅关闭超时。

API 服务与 metrics 服务各使用一个 Manager，日志通过 server 字段区分。
*/
package server
