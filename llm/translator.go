package llm

import (
	"context"
	"fmt"
	"strings"
)

// Translator 把用户输入翻译成检索与生成使用的语言
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Completer 是单轮文本补全能力
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLMTranslator 用对话模型完成翻译
type LLMTranslator struct {
	chat   Completer
	source string
	target string
}

// NewLLMTranslator 创建翻译器，source 为空表示自动识别
func NewLLMTranslator(chat Completer, source, target string) *LLMTranslator {
	return &LLMTranslator{chat: chat, source: source, target: target}
}

// Translate 返回译文；空白输入原样返回
func (t *LLMTranslator) Translate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	from := t.source
	if from == "" {
		from = "the detected source language"
	}
	prompt := fmt.Sprintf(
		"Translate the following text from %s to %s. "+
			"If it is already in %s, return it unchanged. "+
			"Return only the translated text without quotes or explanations.\n\nText:\n%s",
		from, t.target, t.target, text)

	out, err := t.chat.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// PassthroughTranslator 不做翻译
type PassthroughTranslator struct{}

// Translate 原样返回输入
func (PassthroughTranslator) Translate(_ context.Context, text string) (string, error) {
	return text, nil
}
