// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 封装 go-redis 客户端，为会话历史与工作流 checkpoint
提供统一的 Redis 读写接口。

# 核心类型

  - Manager：持有 Redis 客户端，提供 Get/Set/Delete/TTL 等基础操作，
    以及 GetJSON/SetJSON 整值序列化方法。
  - Config：地址、认证、连接池大小、默认 TTL 与健康检查间隔。
  - Stats：进程内的读命中统计。

# 错误语义

键不存在返回 ErrCacheMiss，可用 IsCacheMiss 判断（支持包装错误）；
管理器关闭后所有操作返回 ErrClosed。
*/
package cache
