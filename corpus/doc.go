// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package corpus 维护用户确认过的查询示例语料。

语料是一个 JSON 数组文件，每条记录为
{chunk_type, collection_name, prompt, query, metadata: {language}}。
FileStore.Append 在进程内加锁，读取整个文件、追加后原子替换
（Unix 使用 renameio，Windows 使用临时文件 + rename）。
Load 供本地向量索引在启动时构建语料。
*/
package corpus
