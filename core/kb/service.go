package kb

import (
	"context"
	"io"
	"strings"

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
	"github.com/google/uuid"
)

// 入库时写入元数据的键，同名时覆盖 GlobalMeta
const (
	MetaKeyDocID      = schema.MetaKeyDocID
	MetaKeyChunkIndex = "chunk_index"
	MetaKeyPage       = "page"
	MetaKeySource     = "source"
)

// Hit 一条检索结果：向量库中的 chunk 内容 + 元数据存储中的属性
type Hit struct {
	Document *schema.Document
	Metadata meta_store.Attributes
}

// BuildOptions 单次入库参数，零值字段使用 KBConfig 中的默认值
type BuildOptions struct {
	GlobalMeta      meta_store.Attributes
	ChunkSize       int
	ChunkOverlap    int
	Separators      []string
	Persist         *bool  // nil 时按 KBConfig.Persist
	PersistLocation string // 为空时使用向量库的默认位置
	TextMode        string // text / ocr，仅 PDF 使用
	Markdown        bool
}

// DocumentLoader 按 uri 加载文档
type DocumentLoader interface {
	Load(ctx context.Context, uri string) ([]*einoschema.Document, error)
}

// PDFOpener 打开按页访问的文档，返回值实现 io.Closer 时用完会被关闭
type PDFOpener func(path string) (indexer.PagedDocument, error)

// Option 服务可选项
type Option func(*Service)

// WithSplitterFactory 替换分块器的创建方式
func WithSplitterFactory(f indexer.SplitterFactory) Option {
	return func(s *Service) { s.newSplitter = f }
}

// WithRecognizer 设置 OCR 识别器
func WithRecognizer(r indexer.Recognizer) Option {
	return func(s *Service) { s.recognizer = r }
}

// WithLoader 替换 uri 文档加载器
func WithLoader(l DocumentLoader) Option {
	return func(s *Service) { s.loader = l }
}

// WithPDFOpener 替换 PDF 打开方式
func WithPDFOpener(o PDFOpener) Option {
	return func(s *Service) { s.openPDF = o }
}

// Service 知识库服务，编排分块、元数据存储和向量库
//
// 同一个 Service 不支持并发入库，调用方需自行串行化 Build/Add。
type Service struct {
	conf        config.KBConfig
	vs          vector_store.VectorStore
	ms          meta_store.MetaStore
	emb         embedding.Embedder
	newSplitter indexer.SplitterFactory
	recognizer  indexer.Recognizer
	loader      DocumentLoader
	openPDF     PDFOpener
}

type pendingChunk struct {
	content string
	attrs   meta_store.Attributes
}

// NewService 创建知识库服务
func NewService(conf *config.KBConfig, vs vector_store.VectorStore, ms meta_store.MetaStore, emb embedding.Embedder, opts ...Option) (*Service, error) {
	if conf == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "kb config cannot be nil")
	}
	if vs == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "vector store cannot be nil")
	}
	if ms == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "meta store cannot be nil")
	}
	if emb == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "embedder cannot be nil")
	}

	s := &Service{
		conf:        *conf,
		vs:          vs,
		ms:          ms,
		emb:         emb,
		newSplitter: indexer.NewSplitter,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.openPDF == nil {
		s.openPDF = func(path string) (indexer.PagedDocument, error) {
			doc, err := indexer.OpenPDF(path, s.recognizer)
			if err != nil {
				return nil, err
			}
			return doc, nil
		}
	}
	return s, nil
}

// BuildFromText 切分文本并重建索引，返回 chunk 数
func (s *Service) BuildFromText(ctx context.Context, text string, opts *BuildOptions) (int, error) {
	return s.ingestText(ctx, text, opts, false)
}

// AddText 切分文本并追加到已有索引
func (s *Service) AddText(ctx context.Context, text string, opts *BuildOptions) (int, error) {
	return s.ingestText(ctx, text, opts, true)
}

// BuildFromPDF 逐页提取 PDF 文本并重建索引
func (s *Service) BuildFromPDF(ctx context.Context, path string, opts *BuildOptions) (int, error) {
	return s.ingestPDF(ctx, path, opts, false)
}

// AddPDF 逐页提取 PDF 文本并追加到已有索引
func (s *Service) AddPDF(ctx context.Context, path string, opts *BuildOptions) (int, error) {
	return s.ingestPDF(ctx, path, opts, true)
}

// BuildFromURI 通过 eino loader 加载本地文件或 http(s) 地址并重建索引
func (s *Service) BuildFromURI(ctx context.Context, uri string, opts *BuildOptions) (int, error) {
	return s.ingestURI(ctx, uri, opts, false)
}

// AddURI 加载 uri 并追加到已有索引
func (s *Service) AddURI(ctx context.Context, uri string, opts *BuildOptions) (int, error) {
	return s.ingestURI(ctx, uri, opts, true)
}

func (s *Service) ingestURI(ctx context.Context, uri string, opts *BuildOptions, add bool) (int, error) {
	o := s.resolve(opts)
	loader := s.loader
	if loader == nil {
		l, err := indexer.NewURILoader(ctx)
		if err != nil {
			return 0, err
		}
		loader = l
	}

	docs, err := loader.Load(ctx, uri)
	if err != nil {
		return 0, err
	}

	ext := strings.ToLower(uri)
	if strings.HasSuffix(ext, ".md") || strings.HasSuffix(ext, ".markdown") {
		o.Markdown = true
	}
	splitter, err := s.splitter(ctx, o)
	if err != nil {
		return 0, err
	}

	var chunks []pendingChunk
	for _, doc := range docs {
		text := common.CleanText(doc.Content)
		if text == "" {
			continue
		}
		pieces, err := splitter.Split(ctx, text)
		if err != nil {
			return 0, err
		}
		for _, piece := range pieces {
			chunks = append(chunks, pendingChunk{
				content: piece,
				attrs: meta_store.Attributes{
					MetaKeyChunkIndex: len(chunks),
					MetaKeySource:     uri,
				},
			})
		}
	}
	g.Log().Infof(ctx, "Loaded %d documents from %s, %d chunks", len(docs), uri, len(chunks))
	return s.commit(ctx, chunks, o, add)
}

func (s *Service) ingestText(ctx context.Context, text string, opts *BuildOptions, add bool) (int, error) {
	o := s.resolve(opts)
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}
	splitter, err := s.splitter(ctx, o)
	if err != nil {
		return 0, err
	}
	pieces, err := splitter.Split(ctx, text)
	if err != nil {
		return 0, err
	}

	chunks := make([]pendingChunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = pendingChunk{
			content: piece,
			attrs:   meta_store.Attributes{MetaKeyChunkIndex: i},
		}
	}
	return s.commit(ctx, chunks, o, add)
}

func (s *Service) ingestPDF(ctx context.Context, path string, opts *BuildOptions, add bool) (int, error) {
	o := s.resolve(opts)
	mode, err := indexer.ParseTextMode(o.TextMode)
	if err != nil {
		return 0, err
	}
	splitter, err := s.splitter(ctx, o)
	if err != nil {
		return 0, err
	}

	doc, err := s.openPDF(path)
	if err != nil {
		return 0, err
	}
	if c, ok := doc.(io.Closer); ok {
		defer c.Close()
	}

	var chunks []pendingChunk
	pages := doc.PageCount()
	for page := 1; page <= pages; page++ {
		text, err := doc.PageText(ctx, page, mode)
		if err != nil {
			return 0, err
		}
		text = common.CleanText(text)
		if text == "" {
			continue
		}
		pieces, err := splitter.Split(ctx, text)
		if err != nil {
			return 0, err
		}
		for _, piece := range pieces {
			chunks = append(chunks, pendingChunk{
				content: piece,
				attrs: meta_store.Attributes{
					MetaKeyChunkIndex: len(chunks),
					MetaKeyPage:       page,
					MetaKeySource:     path,
				},
			})
		}
	}
	g.Log().Infof(ctx, "Extracted %d chunks from %d pages of %s (mode=%s)", len(chunks), pages, path, mode)
	return s.commit(ctx, chunks, o, add)
}

// commit 先写元数据，再写向量库，最后按需持久化
func (s *Service) commit(ctx context.Context, chunks []pendingChunk, o BuildOptions, add bool) (int, error) {
	if len(chunks) == 0 {
		g.Log().Info(ctx, "No chunks produced, skip vector store write")
		return 0, nil
	}

	entries := make([]*schema.Document, len(chunks))
	for i, c := range chunks {
		id := uuid.NewString()
		attrs := o.GlobalMeta.Clone()
		for k, v := range c.attrs {
			attrs[k] = v
		}
		attrs[MetaKeyDocID] = id
		if err := s.ms.Set(ctx, id, attrs); err != nil {
			return 0, err
		}
		entries[i] = schema.NewEntry(id, c.content)
	}

	var err error
	if add {
		err = s.vs.Add(ctx, entries)
	} else {
		err = s.vs.BuildFromCorpus(ctx, entries, s.emb)
	}
	if err != nil {
		// 元数据已写入，这里不回滚
		g.Log().Warningf(ctx, "Vector store write failed, %d metadata records in namespace %s are orphaned: %v",
			len(entries), s.ms.Namespace(), err)
		return 0, err
	}

	if o.Persist != nil && *o.Persist {
		if err = s.vs.Persist(ctx, o.PersistLocation); err != nil {
			return 0, err
		}
	}
	g.Log().Infof(ctx, "Indexed %d chunks into namespace %s", len(entries), s.ms.Namespace())
	return len(entries), nil
}

// SimilaritySearch 检索最相似的 k 个 chunk，并按排名顺序关联元数据
func (s *Service) SimilaritySearch(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, errors.Newf(errors.ErrInvalidParameter, "k must be > 0, got %d", k)
	}
	docs, err := s.vs.SimilaritySearch(ctx, query, k)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return []Hit{}, nil
	}

	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.DocID()
	}
	metas, err := s.ms.MGet(ctx, ids)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, len(docs))
	for i, doc := range docs {
		attrs := metas[ids[i]]
		if attrs == nil {
			attrs = meta_store.Attributes{}
		}
		hits[i] = Hit{Document: doc, Metadata: attrs}
	}
	return hits, nil
}

// Load 从 location 恢复向量索引，location 为空时使用默认位置
func (s *Service) Load(ctx context.Context, location string) error {
	return s.vs.Load(ctx, location, s.emb)
}

// Count 返回向量库条目数
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.vs.Count(ctx)
}

// MetaCount 返回命名空间下的元数据记录数
func (s *Service) MetaCount(ctx context.Context) (int, error) {
	ids, err := s.ms.AllIDs(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Purge 清空当前命名空间的元数据
func (s *Service) Purge(ctx context.Context) error {
	if err := s.ms.PurgeNamespace(ctx); err != nil {
		return err
	}
	g.Log().Infof(ctx, "Namespace %s purged", s.ms.Namespace())
	return nil
}

func (s *Service) resolve(opts *BuildOptions) BuildOptions {
	var o BuildOptions
	if opts != nil {
		o = *opts
	}
	// 指定了 ChunkSize 时 ChunkOverlap 按原值使用，0 表示不重叠
	if o.ChunkSize <= 0 {
		o.ChunkSize = s.conf.ChunkSize
		if o.ChunkOverlap <= 0 {
			o.ChunkOverlap = s.conf.ChunkOverlap
		}
	}
	if len(o.Separators) == 0 {
		o.Separators = s.conf.Separators
	}
	if o.Persist == nil {
		persist := s.conf.Persist
		o.Persist = &persist
	}
	if o.TextMode == "" {
		o.TextMode = s.conf.TextMode
	}
	return o
}

func (s *Service) splitter(ctx context.Context, o BuildOptions) (indexer.Splitter, error) {
	return s.newSplitter(ctx, indexer.SplitterConfig{
		ChunkSize:    o.ChunkSize,
		ChunkOverlap: o.ChunkOverlap,
		Separators:   o.Separators,
		Markdown:     o.Markdown,
	})
}
