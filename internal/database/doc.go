// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 管理 MongoDB 客户端的生命周期。

# 核心类型

  - ClientManager：持有共享的 mongo.Client，提供 Database/Collection 句柄、
    Ping 与优雅关闭，并在后台定时做健康检查。
  - Config：URI、连接池大小、操作超时与服务器选择超时。

# 错误分类

IsStoreError 判断错误是否来自数据库（服务端错误、网络、超时），
IsTransient 判断是否值得重试；WithRetry 对瞬时错误做指数退避重试。
*/
package database
