package kb

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Malowking/ragkb/core/common"
	"github.com/Malowking/ragkb/core/config"
	"github.com/Malowking/ragkb/core/errors"
	"github.com/Malowking/ragkb/core/indexer"
	"github.com/Malowking/ragkb/core/meta_store"
	"github.com/Malowking/ragkb/core/vector_store"
	"github.com/Malowking/ragkb/pkg/schema"
	"github.com/cloudwego/eino/components/embedding"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/os/glog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	g.Log().SetConfig(glog.Config{
		Flags:       glog.F_TIME_STD,
		Level:       glog.LEVEL_ALL,
		StdoutPrint: true,
	})
	os.Exit(m.Run())
}

// pipeSplitter 按 "|" 切分，便于精确断言 chunk
type pipeSplitter struct{}

func (pipeSplitter) Split(ctx context.Context, text string) ([]string, error) {
	var out []string
	for _, p := range strings.Split(text, "|") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakePDF struct {
	pages  []string
	modes  []indexer.TextMode
	closed bool
}

func (d *fakePDF) PageCount() int { return len(d.pages) }

func (d *fakePDF) PageText(ctx context.Context, page int, mode indexer.TextMode) (string, error) {
	d.modes = append(d.modes, mode)
	return d.pages[page-1], nil
}

func (d *fakePDF) Close() error {
	d.closed = true
	return nil
}

type fakeLoader struct {
	docs []*einoschema.Document
}

func (l *fakeLoader) Load(ctx context.Context, uri string) ([]*einoschema.Document, error) {
	return l.docs, nil
}

// failingStore 构建时总是失败
type failingStore struct {
	vector_store.VectorStore
	err error
}

func (f *failingStore) BuildFromCorpus(ctx context.Context, entries []*schema.Document, embedder embedding.Embedder) error {
	return f.err
}

type fixture struct {
	svc *Service
	vs  *vector_store.LocalStore
	ms  *meta_store.MemoryStore
	dir string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	emb, err := common.NewHashEmbedder(256)
	require.NoError(t, err)

	dir := t.TempDir()
	conf := config.Default().KB
	conf.Persist = false

	vs := vector_store.NewLocalStore(dir, nil)
	ms := meta_store.NewMemoryStore("policy_kb")
	opts = append([]Option{WithSplitterFactory(func(ctx context.Context, c indexer.SplitterConfig) (indexer.Splitter, error) {
		return pipeSplitter{}, nil
	})}, opts...)

	svc, err := NewService(&conf, vs, ms, emb, opts...)
	require.NoError(t, err)
	return &fixture{svc: svc, vs: vs, ms: ms, dir: dir}
}

func TestNewService(t *testing.T) {
	emb, err := common.NewHashEmbedder(8)
	require.NoError(t, err)
	conf := config.Default().KB
	vs := vector_store.NewLocalStore("", nil)
	ms := meta_store.NewMemoryStore("kb")

	_, err = NewService(nil, vs, ms, emb)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidParameter))
	_, err = NewService(&conf, nil, ms, emb)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidParameter))
	_, err = NewService(&conf, vs, nil, emb)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidParameter))
	_, err = NewService(&conf, vs, ms, nil)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidParameter))
}

func TestBuildFromText(t *testing.T) {
	ctx := context.Background()

	t.Run("构建并检索", func(t *testing.T) {
		f := newFixture(t)
		n, err := f.svc.BuildFromText(ctx, "苹果的价格|香蕉的产地|橘子的季节", &BuildOptions{
			GlobalMeta: meta_store.Attributes{"book": "考核细则", "version": 1},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		count, err := f.svc.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		hits, err := f.svc.SimilaritySearch(ctx, "香蕉的产地", 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "香蕉的产地", hits[0].Document.Content)

		top := hits[0]
		assert.Equal(t, meta_store.Attributes{
			"book":            "考核细则",
			"version":         int64(1),
			MetaKeyDocID:      top.Document.DocID(),
			MetaKeyChunkIndex: int64(1),
		}, top.Metadata)
	})

	t.Run("k大于条目数", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.BuildFromText(ctx, "第一段|第二段", nil)
		require.NoError(t, err)

		hits, err := f.svc.SimilaritySearch(ctx, "x", 3)
		require.NoError(t, err)
		assert.Len(t, hits, 2)
	})

	t.Run("入库字段覆盖全局元数据", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.BuildFromText(ctx, "唯一一段", &BuildOptions{
			GlobalMeta: meta_store.Attributes{MetaKeyChunkIndex: 99, MetaKeyDocID: "fixed", "owner": "hr"},
		})
		require.NoError(t, err)

		ids, err := f.ms.AllIDs(ctx)
		require.NoError(t, err)
		require.Len(t, ids, 1)
		attrs, err := f.ms.Get(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, ids[0], attrs[MetaKeyDocID])
		assert.Equal(t, int64(0), attrs[MetaKeyChunkIndex])
		assert.Equal(t, "hr", attrs["owner"])
	})

	t.Run("空文本不写向量库", func(t *testing.T) {
		f := newFixture(t)
		n, err := f.svc.BuildFromText(ctx, "  \n ", nil)
		require.NoError(t, err)
		assert.Zero(t, n)

		count, err := f.svc.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)

		_, err = f.svc.SimilaritySearch(ctx, "x", 1)
		assert.True(t, errors.HasCode(err, errors.ErrVectorStoreNotInitialized))
	})

	t.Run("非法k", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.SimilaritySearch(ctx, "x", 0)
		assert.True(t, errors.HasCode(err, errors.ErrInvalidParameter))
	})

	t.Run("重建替换旧索引", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.BuildFromText(ctx, "一|二|三", nil)
		require.NoError(t, err)
		_, err = f.svc.BuildFromText(ctx, "四", nil)
		require.NoError(t, err)

		count, err := f.svc.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestSplitterOptions(t *testing.T) {
	ctx := context.Background()
	var got []indexer.SplitterConfig
	f := newFixture(t, WithSplitterFactory(func(ctx context.Context, c indexer.SplitterConfig) (indexer.Splitter, error) {
		got = append(got, c)
		return pipeSplitter{}, nil
	}))

	_, err := f.svc.BuildFromText(ctx, "a", nil)
	require.NoError(t, err)
	_, err = f.svc.BuildFromText(ctx, "a", &BuildOptions{ChunkSize: 4, Separators: []string{". "}})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, indexer.SplitterConfig{
		ChunkSize:    config.DefaultChunkSize,
		ChunkOverlap: config.DefaultChunkOverlap,
		Separators:   config.DefaultSeparators,
	}, got[0])
	// 显式指定 ChunkSize 时重叠按原值 0
	assert.Equal(t, indexer.SplitterConfig{ChunkSize: 4, Separators: []string{". "}}, got[1])
}

func TestBuildWithRealSplitter(t *testing.T) {
	ctx := context.Background()
	emb, err := common.NewHashEmbedder(64)
	require.NoError(t, err)
	conf := config.Default().KB
	conf.Persist = false
	ms := meta_store.NewMemoryStore("kb")
	svc, err := NewService(&conf, vector_store.NewLocalStore("", nil), ms, emb)
	require.NoError(t, err)

	// 按 ". " 切开后贪心合并，合并时补回分隔符，长度不超过 4
	n, err := svc.BuildFromText(ctx, "A. B. C.", &BuildOptions{ChunkSize: 4, Separators: []string{". "}})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	hits, err := svc.SimilaritySearch(ctx, "A", n)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	chunks := make([]string, 2)
	for _, h := range hits {
		idx, ok := h.Metadata[MetaKeyChunkIndex].(int64)
		require.True(t, ok)
		chunks[idx] = h.Document.Content
	}
	assert.Equal(t, []string{"A. B", "C."}, chunks)
}

func TestBuildFromPDF(t *testing.T) {
	ctx := context.Background()

	t.Run("逐页分块并记录页码", func(t *testing.T) {
		doc := &fakePDF{pages: []string{"总则|适用范围", "\u3000 \n", "\uFEFF考核标准\u200B"}}
		f := newFixture(t, WithPDFOpener(func(path string) (indexer.PagedDocument, error) {
			return doc, nil
		}))

		n, err := f.svc.BuildFromPDF(ctx, "/data/policy.pdf", &BuildOptions{
			GlobalMeta: meta_store.Attributes{"book": "考核细则"},
			TextMode:   "ocr",
		})
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.True(t, doc.closed)
		assert.Equal(t, []indexer.TextMode{indexer.TextModeOCR, indexer.TextModeOCR, indexer.TextModeOCR}, doc.modes)

		hits, err := f.svc.SimilaritySearch(ctx, "考核标准", 3)
		require.NoError(t, err)
		require.Len(t, hits, 3)

		byContent := map[string]meta_store.Attributes{}
		for _, h := range hits {
			byContent[h.Document.Content] = h.Metadata
		}
		cases := []struct {
			content string
			page    int64
			index   int64
		}{
			{"总则", 1, 0},
			{"适用范围", 1, 1},
			{"考核标准", 3, 2},
		}
		for _, c := range cases {
			attrs := byContent[c.content]
			require.NotNil(t, attrs, c.content)
			assert.Equal(t, c.page, attrs[MetaKeyPage], c.content)
			assert.Equal(t, c.index, attrs[MetaKeyChunkIndex], c.content)
			assert.Equal(t, "/data/policy.pdf", attrs[MetaKeySource])
			assert.Equal(t, "考核细则", attrs["book"])
			assert.Len(t, attrs, 5)
		}
	})

	t.Run("全部空白页返回0", func(t *testing.T) {
		doc := &fakePDF{pages: []string{"", " ", "\n\t"}}
		f := newFixture(t, WithPDFOpener(func(path string) (indexer.PagedDocument, error) {
			return doc, nil
		}))

		n, err := f.svc.BuildFromPDF(ctx, "blank.pdf", nil)
		require.NoError(t, err)
		assert.Zero(t, n)

		count, err := f.svc.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)

		metaCount, err := f.svc.MetaCount(ctx)
		require.NoError(t, err)
		assert.Zero(t, metaCount)
	})

	t.Run("不支持的提取方式", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.BuildFromPDF(ctx, "x.pdf", &BuildOptions{TextMode: "vision"})
		assert.True(t, errors.HasCode(err, errors.ErrUnsupportedTextMode))
	})

	t.Run("文件不存在", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.BuildFromPDF(ctx, filepath.Join(f.dir, "missing.pdf"), nil)
		assert.True(t, errors.HasCode(err, errors.ErrFileReadFailed))
	})
}

func TestBuildFromURI(t *testing.T) {
	ctx := context.Background()
	loader := &fakeLoader{docs: []*einoschema.Document{
		{ID: "a", Content: "第一章|第二章"},
		{ID: "b", Content: " "},
		{ID: "c", Content: "附录"},
	}}
	f := newFixture(t, WithLoader(loader))

	n, err := f.svc.BuildFromURI(ctx, "https://example.com/policy.html", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	hits, err := f.svc.SimilaritySearch(ctx, "附录", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "附录", hits[0].Document.Content)
	assert.Equal(t, "https://example.com/policy.html", hits[0].Metadata[MetaKeySource])
	assert.Equal(t, int64(2), hits[0].Metadata[MetaKeyChunkIndex])
}

func TestBuildFromURIDefaultLoader(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	path := filepath.Join(f.dir, "policy.txt")
	require.NoError(t, os.WriteFile(path, []byte("总则|细则"), 0644))

	for i := 0; i < 2; i++ {
		n, err := f.svc.BuildFromURI(ctx, path, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}
	// 默认 loader 每次调用时创建，不写回 Service
	assert.Nil(t, f.svc.loader)
}

func TestAddURI(t *testing.T) {
	ctx := context.Background()
	loader := &fakeLoader{docs: []*einoschema.Document{{ID: "a", Content: "附录一|附录二"}}}

	t.Run("未构建时追加失败", func(t *testing.T) {
		f := newFixture(t, WithLoader(loader))
		_, err := f.svc.AddURI(ctx, "appendix.txt", nil)
		assert.True(t, errors.HasCode(err, errors.ErrVectorStoreNotInitialized))
	})

	t.Run("追加保留已有chunk", func(t *testing.T) {
		f := newFixture(t, WithLoader(loader))
		_, err := f.svc.BuildFromText(ctx, "总则|细则|罚则", nil)
		require.NoError(t, err)

		n, err := f.svc.AddURI(ctx, "appendix.txt", nil)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		count, err := f.svc.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, count)

		hits, err := f.svc.SimilaritySearch(ctx, "总则", 5)
		require.NoError(t, err)
		var contents []string
		for _, h := range hits {
			contents = append(contents, h.Document.Content)
		}
		assert.ElementsMatch(t, []string{"总则", "细则", "罚则", "附录一", "附录二"}, contents)
	})
}

func TestAddText(t *testing.T) {
	ctx := context.Background()

	t.Run("未构建时追加失败", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.AddText(ctx, "新增", nil)
		assert.True(t, errors.HasCode(err, errors.ErrVectorStoreNotInitialized))
	})

	t.Run("追加到已有索引", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.BuildFromText(ctx, "一|二", nil)
		require.NoError(t, err)
		n, err := f.svc.AddText(ctx, "三|四|五", nil)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		count, err := f.svc.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, count)

		metaCount, err := f.svc.MetaCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, metaCount)
	})

	t.Run("追加PDF", func(t *testing.T) {
		f := newFixture(t, WithPDFOpener(func(path string) (indexer.PagedDocument, error) {
			return &fakePDF{pages: []string{"第一页"}}, nil
		}))
		_, err := f.svc.BuildFromText(ctx, "正文", nil)
		require.NoError(t, err)
		n, err := f.svc.AddPDF(ctx, "extra.pdf", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		count, err := f.svc.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestMetadataWrittenBeforeVectors(t *testing.T) {
	ctx := context.Background()
	emb, err := common.NewHashEmbedder(16)
	require.NoError(t, err)
	conf := config.Default().KB
	ms := meta_store.NewMemoryStore("kb")
	boom := stderrors.New("disk full")

	svc, err := NewService(&conf, &failingStore{err: boom}, ms, emb,
		WithSplitterFactory(func(ctx context.Context, c indexer.SplitterConfig) (indexer.Splitter, error) {
			return pipeSplitter{}, nil
		}))
	require.NoError(t, err)

	n, err := svc.BuildFromText(ctx, "甲|乙", nil)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, n)

	// 向量库失败后元数据保留
	ids, err := ms.AllIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestPersistAndLoad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	location := filepath.Join(f.dir, "policy")

	persist := true
	n, err := f.svc.BuildFromText(ctx, "一|二|三", &BuildOptions{Persist: &persist, PersistLocation: location})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.FileExists(t, filepath.Join(location, "index.kbx"))

	emb, err := common.NewHashEmbedder(256)
	require.NoError(t, err)
	conf := config.Default().KB
	restored, err := NewService(&conf, vector_store.NewLocalStore("", nil), f.ms, emb)
	require.NoError(t, err)
	require.NoError(t, restored.Load(ctx, location))

	count, err := restored.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	hits, err := restored.SimilaritySearch(ctx, "二", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "二", hits[0].Document.Content)
	assert.Equal(t, int64(1), hits[0].Metadata[MetaKeyChunkIndex])
}

func TestSearchAfterPurge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.BuildFromText(ctx, "一|二", nil)
	require.NoError(t, err)

	first, err := f.svc.SimilaritySearch(ctx, "一", 2)
	require.NoError(t, err)
	second, err := f.svc.SimilaritySearch(ctx, "一", 2)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, f.svc.Purge(ctx))
	ids, err := f.ms.AllIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// 元数据缺失的命中返回空属性
	hits, err := f.svc.SimilaritySearch(ctx, "一", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.NotNil(t, h.Metadata)
		assert.Empty(t, h.Metadata)
	}
}
