// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package rag 为 Text2Query 管线提供语法指南语料的向量检索。

查询文本先经 embedding.Provider 向量化，再由 VectorStore 返回最相似的
topK 个片段，结果以 types.Fragment{content, score} 交给 workflow 的
Retrieve 节点。

# 核心接口/类型

  - VectorStore：向量存储接口（AddDocuments / Search / Count）
  - MongoVectorStore：MongoDB Atlas $vectorSearch 实现
  - InMemoryVectorStore：余弦相似度的进程内实现，用于测试和本地开发
  - Retriever：embed → search → Fragment 的组合

# 主要能力

  - Atlas 检索：numCandidates = limit × CandidateFactor，分数取 vectorSearchScore
  - 索引写入：Retriever.Index 为缺少向量的文档批量生成 embedding
*/
package rag
