package vector_store

import (
	"context"
	"math"
	"unicode/utf8"

	"github.com/Malowking/ragkb/core/errors"
	"github.com/Malowking/ragkb/pkg/schema"
	"github.com/cloudwego/eino/components/embedding"
)

// VectorStoreType 向量数据库类型
type VectorStoreType string

const (
	VectorStoreTypeLocal    VectorStoreType = "local"
	VectorStoreTypeMilvus   VectorStoreType = "milvus"
	VectorStoreTypePgvector VectorStoreType = "pgvector"
)

// VectorStore 向量库接口
// 条目只携带 doc_id 回指，属性保存在元数据存储中
type VectorStore interface {
	// BuildFromCorpus 用全部条目重建索引，替换已有内容，并记住 embedder 供后续查询
	BuildFromCorpus(ctx context.Context, entries []*schema.Document, embedder embedding.Embedder) error

	// Add 向已构建的索引追加条目
	Add(ctx context.Context, entries []*schema.Document) error

	// SimilaritySearch 返回最相似的 k 个条目，按相似度降序
	SimilaritySearch(ctx context.Context, query string, k int) ([]*schema.Document, error)

	// Persist 持久化索引，location 为空时使用默认位置
	Persist(ctx context.Context, location string) error

	// Load 从 location 恢复索引，替换内存状态
	Load(ctx context.Context, location string, embedder embedding.Embedder) error

	// Count 返回条目数，未构建时为 0
	Count(ctx context.Context) (int, error)
}

func notInitialized(op string) error {
	return errors.Newf(errors.ErrVectorStoreNotInitialized, "vector store not initialized, call BuildFromCorpus or Load before %s", op)
}

// embedTexts 调用 embedder 并转为 float32，校验数量与维度一致
func embedTexts(ctx context.Context, embedder embedding.Embedder, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, errors.Wrap(errors.ErrEmbeddingFailed, err, "embedding has error")
	}
	if len(vectors) != len(texts) {
		return nil, errors.Newf(errors.ErrEmbeddingFailed, "invalid return length of vector, got=%d, expected=%d", len(vectors), len(texts))
	}

	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) == 0 || len(v) != len(vectors[0]) {
			return nil, errors.Newf(errors.ErrEmbeddingFailed, "inconsistent embedding dimension at %d: %d vs %d", i, len(v), len(vectors[0]))
		}
		out[i] = float64ToFloat32(v)
	}
	return out, nil
}

func entryTexts(entries []*schema.Document) []string {
	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Content
	}
	return texts
}

func validateEntries(entries []*schema.Document) error {
	if len(entries) == 0 {
		return errors.New(errors.ErrInvalidParameter, "entries cannot be empty")
	}
	for i, e := range entries {
		if e == nil || e.ID == "" {
			return errors.Newf(errors.ErrInvalidParameter, "entry %d has no id", i)
		}
	}
	return nil
}

func float64ToFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}

// normalize 原地做 L2 归一化，零向量保持不变
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// truncateString 按字节上限截断，截断点回退到 rune 边界
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
