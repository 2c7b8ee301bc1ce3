package common

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/Malowking/ragkb/core/config"
	"github.com/Malowking/ragkb/core/errors"
	"github.com/cespare/xxhash/v2"
	"github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/gogf/gf/v2/frame/g"
)

const (
	EmbeddingProviderOpenAI = "openai"
	EmbeddingProviderHash   = "hash"

	// DefaultEmbeddingBatchSize DashScope 单次请求最多 25 条
	DefaultEmbeddingBatchSize = 25
)

// NewEmbedder 根据配置创建 embedder，外层包一层分批
func NewEmbedder(ctx context.Context, conf *config.EmbeddingConfig) (embedding.Embedder, error) {
	if conf == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "embedding config cannot be nil")
	}

	var (
		inner embedding.Embedder
		err   error
	)
	switch conf.Provider {
	case EmbeddingProviderOpenAI, "":
		inner, err = newOpenAIEmbedder(ctx, conf)
	case EmbeddingProviderHash:
		inner, err = NewHashEmbedder(conf.Dimensions)
	default:
		err = errors.Newf(errors.ErrModelConfigInvalid, "unsupported embedding provider: %s", conf.Provider)
	}
	if err != nil {
		return nil, err
	}

	g.Log().Infof(ctx, "Embedder initialized, provider: %s, model: %s, batch size: %d", conf.Provider, conf.Model, conf.BatchSize)
	return NewBatchingEmbedder(inner, conf.BatchSize), nil
}

// newOpenAIEmbedder OpenAI 兼容接口（DashScope、vLLM 等通过 baseURL 接入）
func newOpenAIEmbedder(ctx context.Context, conf *config.EmbeddingConfig) (embedding.Embedder, error) {
	if conf.APIKey == "" {
		return nil, errors.New(errors.ErrModelConfigInvalid, "embedding apiKey is required")
	}
	if conf.Model == "" {
		return nil, errors.New(errors.ErrModelConfigInvalid, "embedding model not found")
	}

	ec := &openai.EmbeddingConfig{
		APIKey:  conf.APIKey,
		BaseURL: conf.BaseURL,
		Model:   conf.Model,
		Timeout: conf.Timeout,
	}
	if conf.Dimensions > 0 {
		dim := conf.Dimensions
		ec.Dimensions = &dim
	}

	emb, err := openai.NewEmbedder(ctx, ec)
	if err != nil {
		return nil, errors.Wrap(errors.ErrModelConfigInvalid, err, "failed to create embedding instance")
	}
	return emb, nil
}

// BatchingEmbedder 把请求拆成固定大小的批次顺序调用，结果保持输入顺序
type BatchingEmbedder struct {
	inner     embedding.Embedder
	batchSize int
}

// NewBatchingEmbedder batchSize <= 0 时使用默认值
func NewBatchingEmbedder(inner embedding.Embedder, batchSize int) *BatchingEmbedder {
	if batchSize <= 0 {
		batchSize = DefaultEmbeddingBatchSize
	}
	return &BatchingEmbedder{inner: inner, batchSize: batchSize}
}

func (b *BatchingEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))

		vectors, err := b.inner.EmbedStrings(ctx, texts[start:end], opts...)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrEmbeddingFailed, err, "embedding batch [%d:%d] failed", start, end)
		}
		if len(vectors) != end-start {
			return nil, errors.Newf(errors.ErrEmbeddingFailed, "response data length (%d) doesn't match input length (%d)", len(vectors), end-start)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// HashEmbedder 离线特征哈希 embedder，结果确定且 L2 归一化，用于测试和无网络环境
// 英文按词切分，中文按单字加相邻二元组
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder 创建哈希 embedder
func NewHashEmbedder(dim int) (*HashEmbedder, error) {
	if dim <= 0 {
		return nil, errors.Newf(errors.ErrModelConfigInvalid, "hash embedder dimensions must be > 0, got %d", dim)
	}
	return &HashEmbedder{dim: dim}, nil
}

func (h *HashEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *HashEmbedder) embed(text string) []float64 {
	vec := make([]float64, h.dim)
	for _, tok := range tokenize(text) {
		sum := xxhash.Sum64String(tok)
		idx := int(sum % uint64(h.dim))
		// 最高位决定符号，减少哈希冲突带来的偏差
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func tokenize(text string) []string {
	var (
		tokens  []string
		word    strings.Builder
		prevHan rune
	)
	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			tokens = append(tokens, string(r))
			if prevHan != 0 {
				tokens = append(tokens, string([]rune{prevHan, r}))
			}
			prevHan = r
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		default:
			flush()
		}
		prevHan = 0
	}
	flush()
	return tokens
}
