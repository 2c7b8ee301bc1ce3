package common

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/Malowking/ragkb/core/config"
	"github.com/Malowking/ragkb/core/errors"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingEmbedder 记录每次调用的批大小，向量第一维为文本序号
type recordingEmbedder struct {
	batches []int
	failAt  int
}

func (r *recordingEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	r.batches = append(r.batches, len(texts))
	if r.failAt > 0 && len(r.batches) == r.failAt {
		return nil, fmt.Errorf("rate limited")
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		var n float64
		_, _ = fmt.Sscanf(t, "t%g", &n)
		out[i] = []float64{n}
	}
	return out, nil
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("t%d", i)
	}
	return out
}

func TestBatchingEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("按批拆分并保持顺序", func(t *testing.T) {
		inner := &recordingEmbedder{}
		b := NewBatchingEmbedder(inner, 25)
		vectors, err := b.EmbedStrings(ctx, texts(60))
		require.NoError(t, err)
		assert.Equal(t, []int{25, 25, 10}, inner.batches)
		require.Len(t, vectors, 60)
		for i, v := range vectors {
			assert.Equal(t, float64(i), v[0])
		}
	})

	t.Run("默认批大小", func(t *testing.T) {
		inner := &recordingEmbedder{}
		_, err := NewBatchingEmbedder(inner, 0).EmbedStrings(ctx, texts(26))
		require.NoError(t, err)
		assert.Equal(t, []int{DefaultEmbeddingBatchSize, 1}, inner.batches)
	})

	t.Run("空输入不调用", func(t *testing.T) {
		inner := &recordingEmbedder{}
		vectors, err := NewBatchingEmbedder(inner, 10).EmbedStrings(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, vectors)
		assert.Empty(t, inner.batches)
	})

	t.Run("批次失败", func(t *testing.T) {
		inner := &recordingEmbedder{failAt: 2}
		_, err := NewBatchingEmbedder(inner, 10).EmbedStrings(ctx, texts(30))
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrEmbeddingFailed))
		assert.Contains(t, err.Error(), "[10:20]")
	})
}

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()
	h, err := NewHashEmbedder(256)
	require.NoError(t, err)

	t.Run("结果确定且归一化", func(t *testing.T) {
		a, err := h.EmbedStrings(ctx, []string{"员工年假制度", "employee leave policy"})
		require.NoError(t, err)
		b, err := h.EmbedStrings(ctx, []string{"员工年假制度", "employee leave policy"})
		require.NoError(t, err)
		assert.Equal(t, a, b)

		for _, v := range a {
			assert.Len(t, v, 256)
			var norm float64
			for _, x := range v {
				norm += x * x
			}
			assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
		}
	})

	t.Run("相近文本更相似", func(t *testing.T) {
		v, err := h.EmbedStrings(ctx, []string{"年假制度", "员工年假制度说明", "服务器部署手册"})
		require.NoError(t, err)
		assert.Greater(t, cosine(v[0], v[1]), cosine(v[0], v[2]))
	})

	t.Run("空文本为零向量", func(t *testing.T) {
		v, err := h.EmbedStrings(ctx, []string{"  "})
		require.NoError(t, err)
		for _, x := range v[0] {
			assert.Zero(t, x)
		}
	})

	t.Run("维度非法", func(t *testing.T) {
		_, err := NewHashEmbedder(0)
		assert.Error(t, err)
	})
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"hello", "world", "42"}, tokenize("Hello, World 42"))
	assert.Equal(t, []string{"年", "假", "年假", "v2"}, tokenize("年假 v2"))
}

func TestNewEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("hash", func(t *testing.T) {
		emb, err := NewEmbedder(ctx, &config.EmbeddingConfig{Provider: "hash", Dimensions: 32, BatchSize: 5})
		require.NoError(t, err)
		v, err := emb.EmbedStrings(ctx, texts(12))
		require.NoError(t, err)
		assert.Len(t, v, 12)
	})

	t.Run("openai缺少apiKey", func(t *testing.T) {
		_, err := NewEmbedder(ctx, &config.EmbeddingConfig{Provider: "openai", Model: "text-embedding-v3"})
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrModelConfigInvalid))
	})

	t.Run("openai", func(t *testing.T) {
		emb, err := NewEmbedder(ctx, &config.EmbeddingConfig{
			Provider:   "openai",
			APIKey:     "sk-test",
			BaseURL:    "https://dashscope.aliyuncs.com/compatible-mode/v1",
			Model:      "text-embedding-v3",
			Dimensions: 1024,
		})
		require.NoError(t, err)
		assert.NotNil(t, emb)
	})

	t.Run("不支持的provider", func(t *testing.T) {
		_, err := NewEmbedder(ctx, &config.EmbeddingConfig{Provider: "bert"})
		assert.Error(t, err)
	})
}

func cosine(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
