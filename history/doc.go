/*
Package history 在 Redis 中保存 Text2Query 会话的对话历史。

每个会话对应一个键 session:<id>，值为完整的 JSON 文档
{session_id, history: [{user, bot}, ...]}。Append 读取现有历史、追加一轮
后整体回写，并把过期时间重置为 600 秒；键不存在视为空历史。
Rewrite 节点读取历史合并用户的修正意图，Finalize 节点写入历史，
Confirm 清除历史。
*/
package history
