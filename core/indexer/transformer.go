package indexer

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/Malowking/ragkb/core/config"
	"github.com/Malowking/ragkb/core/errors"
	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/markdown"
	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
)

// markdown 标题元数据键
const (
	Title1 = "h1"
	Title2 = "h2"
	Title3 = "h3"
)

// Splitter 把一段文本切成 chunk
type Splitter interface {
	Split(ctx context.Context, text string) ([]string, error)
}

// SplitterConfig 分块参数
type SplitterConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string // 按优先级从高到低
	Markdown     bool     // 先按标题切节，再对每节递归切分
}

// SplitterFactory 按参数创建 Splitter
type SplitterFactory func(ctx context.Context, conf SplitterConfig) (Splitter, error)

type transformer struct {
	markdown  document.Transformer
	recursive document.Transformer
}

// NewSplitter 基于 eino 递归分割器创建 Splitter
func NewSplitter(ctx context.Context, conf SplitterConfig) (Splitter, error) {
	if conf.ChunkSize <= 0 {
		return nil, errors.Newf(errors.ErrInvalidParameter, "chunk size must be > 0, got %d", conf.ChunkSize)
	}
	if conf.ChunkOverlap < 0 || conf.ChunkOverlap >= conf.ChunkSize {
		return nil, errors.Newf(errors.ErrInvalidParameter, "chunk overlap must be in [0, %d), got %d", conf.ChunkSize, conf.ChunkOverlap)
	}
	separators := conf.Separators
	if len(separators) == 0 {
		separators = config.DefaultSeparators
	}

	// 递归分割，长度按字符计
	recTrans, err := recursive.NewSplitter(ctx, &recursive.Config{
		ChunkSize:   conf.ChunkSize,
		OverlapSize: conf.ChunkOverlap,
		Separators:  separators,
		LenFunc:     utf8.RuneCountInString,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrIndexingFailed, err, "failed to create recursive splitter")
	}
	trans := &transformer{recursive: recTrans}

	// md 文档特殊处理
	if conf.Markdown {
		trans.markdown, err = markdown.NewHeaderSplitter(ctx, &markdown.HeaderConfig{
			Headers:     map[string]string{"#": Title1, "##": Title2, "###": Title3},
			TrimHeaders: false,
		})
		if err != nil {
			return nil, errors.Wrap(errors.ErrIndexingFailed, err, "failed to create markdown splitter")
		}
	}
	return trans, nil
}

func (x *transformer) Split(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	docs := []*schema.Document{{Content: text}}
	var err error
	if x.markdown != nil {
		docs, err = x.markdown.Transform(ctx, docs)
		if err != nil {
			return nil, errors.Wrap(errors.ErrDocumentParseFailed, err, "markdown split failed")
		}
	}
	docs, err = x.recursive.Transform(ctx, docs)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDocumentParseFailed, err, "recursive split failed")
	}

	chunks := make([]string, 0, len(docs))
	for _, doc := range docs {
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}
		chunks = append(chunks, doc.Content)
	}
	return chunks, nil
}
