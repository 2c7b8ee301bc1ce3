package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/Malowking/ragkb/core/errors"
	"github.com/Malowking/ragkb/core/kb"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/gogf/gf/v2/frame/g"
)

// Searcher 知识库检索
type Searcher interface {
	SimilaritySearch(ctx context.Context, query string, k int) ([]kb.Hit, error)
}

// Answer 问答结果
type Answer struct {
	Content string
	Hits    []kb.Hit
}

// Answerer 基于知识库检索结果回答问题
type Answerer struct {
	model    einoModel.BaseChatModel
	searcher Searcher
	template prompt.ChatTemplate
}

func NewAnswerer(cm einoModel.BaseChatModel, searcher Searcher) (*Answerer, error) {
	if cm == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "chat model cannot be nil")
	}
	if searcher == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "searcher cannot be nil")
	}
	return &Answerer{model: cm, searcher: searcher, template: createTemplate()}, nil
}

// createTemplate 系统消息携带参考内容，用户消息只放问题
func createTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage("你是一个知识库问答助手。\n"+
			"- 请优先依据下方「参考内容」回答问题，可适当引用页码和来源。\n"+
			"- 若参考内容不足以回答，请直接说明，不要编造。\n\n"+
			"{formatted_docs}"),
		schema.UserMessage("Question: {question}"),
	)
}

// formatDocuments 把命中的 chunk 格式化为参考内容
func formatDocuments(hits []kb.Hit) string {
	if len(hits) == 0 {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("参考内容：\n\n")
	for i, h := range hits {
		builder.WriteString(fmt.Sprintf("[%d]", i+1))
		if page, ok := h.Metadata[kb.MetaKeyPage]; ok {
			builder.WriteString(fmt.Sprintf(" 页码: %v", page))
		}
		if source, ok := h.Metadata[kb.MetaKeySource]; ok {
			builder.WriteString(fmt.Sprintf(" 来源: %v", source))
		}
		builder.WriteString("\n内容: ")
		builder.WriteString(h.Document.Content)
		builder.WriteString("\n\n")
	}
	return builder.String()
}

// Answer 检索 k 个相关 chunk 后调用模型生成回答
func (a *Answerer) Answer(ctx context.Context, question string, k int) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.New(errors.ErrInvalidParameter, "question cannot be empty")
	}
	hits, err := a.searcher.SimilaritySearch(ctx, question, k)
	if err != nil {
		return nil, err
	}

	messages, err := a.template.Format(ctx, map[string]any{
		"formatted_docs": formatDocuments(hits),
		"question":       question,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternalError, err, "failed to format prompt")
	}

	resp, err := a.model.Generate(ctx, messages)
	if err != nil {
		return nil, errors.Wrap(errors.ErrLLMCallFailed, err, "chat model generate failed")
	}
	g.Log().Debugf(ctx, "Answered with %d reference chunks", len(hits))
	return &Answer{Content: resp.Content, Hits: hits}, nil
}
