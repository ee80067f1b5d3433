// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 embedding 提供文本嵌入接口，用于把检索查询转换为向量，
再交给 rag 包做向量相似度检索。

# 核心接口

  - Provider：EmbedQuery / EmbedDocuments / Name / Dimensions

# 实现

  - OpenAIProvider：基于 go-openai 的 /embeddings 调用，
    按 index 还原输入顺序，并复用 openai 包的错误映射。
*/
package embedding
