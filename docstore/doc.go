// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 docstore 在业务 MongoDB 上执行已校验的聚合查询。

Executor.Aggregate 接收集合名和已解析的 bson.D 阶段列表，返回原始
bson.D 文档。数据库自身报告的失败（服务端错误、网络、超时）包装为
types.ErrStoreExecution，调用方据此区分 store_error 与 unexpected_error。
瞬时错误通过 database.WithRetry 退避重试，每次查询耗时写入
MetricsRecorder。
*/
package docstore
