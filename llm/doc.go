// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供大语言模型接入层：Provider 抽象、单轮补全、翻译与错误语义。

# Provider 抽象

核心接口是 [Provider]（Completion / Name）。具体实现位于
llm/providers/openai，嵌入模型位于 llm/embedding。

# 核心类型

  - [ChatModel]：把 Provider 包装成 prompt 进、文本出的单轮补全，
    内置传输层重试（llm/retry）、OTel span 与 [MetricsRecorder] 钩子。
  - [Translator]：输入翻译接口；[LLMTranslator] 用对话模型实现，
    [PassthroughTranslator] 在关闭翻译时原样返回。
  - [Error]：带错误码、HTTP 状态与可重试标记的结构化错误。

# 重试边界

ChatModel 只对 429、5xx 与网络错误做传输层重试；模型输出不合法时的
纠错循环由 workflow 包的 Correct 节点负责，两者互不相干。
*/
package llm
