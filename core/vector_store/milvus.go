package vector_store

import (
	"context"
	"fmt"
	"sync"

	"github.com/Malowking/ragkb/core/common"
	"github.com/Malowking/ragkb/core/errors"
	"github.com/Malowking/ragkb/pkg/schema"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

const (
	milvusFieldID     = "id"
	milvusFieldText   = "text"
	milvusFieldDocID  = "doc_id"
	milvusFieldVector = "vector"
	milvusTextMaxLen  = 65535
)

// MilvusStore Milvus向量数据库实现，一个 store 对应一个集合
type MilvusStore struct {
	client     *milvusclient.Client
	collection string

	mu       sync.RWMutex
	embedder embedding.Embedder
	dim      int
	ready    bool
}

// NewMilvusStore 创建Milvus向量存储实例
func NewMilvusStore(client *milvusclient.Client, collection string) (*MilvusStore, error) {
	if client == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "milvus client cannot be nil")
	}
	if !common.ValidateIdentifier(collection) {
		return nil, errors.Newf(errors.ErrInvalidParameter, "invalid collection name: %q", collection)
	}
	return &MilvusStore{client: client, collection: collection}, nil
}

// collectionFields 标准集合结构，向量维度取第一条 embedding 的长度
func collectionFields(dim int) []*entity.Field {
	return []*entity.Field{
		{
			Name:        milvusFieldID,
			DataType:    entity.FieldTypeVarChar,
			TypeParams:  map[string]string{"max_length": "256"},
			PrimaryKey:  true,
			AutoID:      false,
			Description: "Chunk unique ID (primary key)",
		},
		{
			Name:        milvusFieldText,
			DataType:    entity.FieldTypeVarChar,
			TypeParams:  map[string]string{"max_length": fmt.Sprintf("%d", milvusTextMaxLen)},
			Description: "Document chunk content",
		},
		{
			Name:        milvusFieldDocID,
			DataType:    entity.FieldTypeVarChar,
			TypeParams:  map[string]string{"max_length": "256"},
			Description: "Metadata record ID",
		},
		{
			Name:        milvusFieldVector,
			DataType:    entity.FieldTypeFloatVector,
			TypeParams:  map[string]string{"dim": fmt.Sprintf("%d", dim)},
			Description: "Document chunk embedding vector",
		},
	}
}

func (m *MilvusStore) BuildFromCorpus(ctx context.Context, entries []*schema.Document, embedder embedding.Embedder) error {
	if embedder == nil {
		return errors.New(errors.ErrInvalidParameter, "embedder cannot be nil")
	}
	if err := validateEntries(entries); err != nil {
		return err
	}

	vectors, err := embedTexts(ctx, embedder, entryTexts(entries))
	if err != nil {
		return err
	}
	dim := len(vectors[0])

	has, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(m.collection))
	if err != nil {
		return errors.Wrap(errors.ErrVectorStoreInit, err, "failed to check if collection exists")
	}
	if has {
		if err = m.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(m.collection)); err != nil {
			return errors.Wrapf(errors.ErrVectorStoreInit, err, "failed to drop collection %s", m.collection)
		}
		g.Log().Infof(ctx, "Collection '%s' dropped before rebuild", m.collection)
	}

	coll := &entity.Schema{
		CollectionName: m.collection,
		Description:    "存储文档分片及其向量",
		AutoID:         false,
		Fields:         collectionFields(dim),
	}
	err = m.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(m.collection, coll).WithIndexOptions(
		milvusclient.NewCreateIndexOption(m.collection, milvusFieldVector, index.NewHNSWIndex(entity.COSINE, 64, 128))))
	if err != nil {
		return errors.Wrapf(errors.ErrVectorStoreInit, err, "failed to create Milvus collection %s", m.collection)
	}
	if err = m.loadCollection(ctx); err != nil {
		return err
	}
	g.Log().Infof(ctx, "Collection '%s' created with dimension %d, index built and loaded", m.collection, dim)

	if err = m.insert(ctx, entries, vectors, dim); err != nil {
		return err
	}

	m.mu.Lock()
	m.embedder, m.dim, m.ready = embedder, dim, true
	m.mu.Unlock()
	return nil
}

func (m *MilvusStore) loadCollection(ctx context.Context) error {
	task, err := m.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(m.collection))
	if err != nil {
		return errors.Wrapf(errors.ErrVectorLoad, err, "failed to load Milvus collection %s", m.collection)
	}
	if err = task.Await(ctx); err != nil {
		return errors.Wrapf(errors.ErrVectorLoad, err, "failed to load Milvus collection %s", m.collection)
	}
	return nil
}

func (m *MilvusStore) insert(ctx context.Context, entries []*schema.Document, vectors [][]float32, dim int) error {
	ids := make([]string, len(entries))
	texts := make([]string, len(entries))
	docIDs := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		texts[i] = truncateString(e.Content, milvusTextMaxLen)
		if len(texts[i]) < len(e.Content) {
			g.Log().Warningf(ctx, "Chunk %s truncated from %d to %d bytes for collection '%s'",
				e.ID, len(e.Content), len(texts[i]), m.collection)
		}
		docIDs[i] = e.DocID()
	}

	columns := []column.Column{
		column.NewColumnVarChar(milvusFieldID, ids),
		column.NewColumnVarChar(milvusFieldText, texts),
		column.NewColumnVarChar(milvusFieldDocID, docIDs),
		column.NewColumnFloatVector(milvusFieldVector, dim, vectors),
	}
	result, err := m.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(m.collection, columns...))
	if err != nil {
		return errors.Wrapf(errors.ErrVectorInsert, err, "failed to insert vectors into %s", m.collection)
	}

	g.Log().Infof(ctx, "Successfully inserted %d vectors into collection '%s'", result.InsertCount, m.collection)
	return nil
}

func (m *MilvusStore) Add(ctx context.Context, entries []*schema.Document) error {
	m.mu.RLock()
	embedder, dim, ready := m.embedder, m.dim, m.ready
	m.mu.RUnlock()
	if !ready {
		return notInitialized("Add")
	}
	if len(entries) == 0 {
		return nil
	}
	if err := validateEntries(entries); err != nil {
		return err
	}

	vectors, err := embedTexts(ctx, embedder, entryTexts(entries))
	if err != nil {
		return err
	}
	if dim > 0 && len(vectors[0]) != dim {
		return errors.Newf(errors.ErrVectorInsert, "embedding dimension %d does not match collection dimension %d", len(vectors[0]), dim)
	}
	return m.insert(ctx, entries, vectors, len(vectors[0]))
}

func (m *MilvusStore) SimilaritySearch(ctx context.Context, query string, k int) ([]*schema.Document, error) {
	m.mu.RLock()
	embedder, ready := m.embedder, m.ready
	m.mu.RUnlock()
	if !ready {
		return nil, notInitialized("SimilaritySearch")
	}
	if k <= 0 {
		return []*schema.Document{}, nil
	}

	vectors, err := embedTexts(ctx, embedder, []string{query})
	if err != nil {
		return nil, err
	}

	searchOpt := milvusclient.NewSearchOption(m.collection, k, []entity.Vector{entity.FloatVector(vectors[0])}).
		WithANNSField(milvusFieldVector).
		WithOutputFields(milvusFieldID, milvusFieldText, milvusFieldDocID).
		WithConsistencyLevel(entity.ClStrong)

	results, err := m.client.Search(ctx, searchOpt)
	if err != nil {
		return nil, errors.Wrap(errors.ErrVectorSearch, err, "search has error")
	}
	if len(results) == 0 {
		return []*schema.Document{}, nil
	}
	return convertResultsToDocuments(results[0].Fields, results[0].Scores)
}

// convertResultsToDocuments 转换搜索结果为文档
func convertResultsToDocuments(columns []column.Column, scores []float32) ([]*schema.Document, error) {
	if len(columns) == 0 {
		return []*schema.Document{}, nil
	}

	numDocs := columns[0].Len()
	result := make([]*schema.Document, numDocs)
	for i := range result {
		result[i] = &schema.Document{MetaData: make(map[string]any)}
		if i < len(scores) {
			result[i].Score = scores[i]
		}
	}

	for _, col := range columns {
		for i := 0; i < col.Len() && i < numDocs; i++ {
			val, err := col.Get(i)
			if err != nil {
				return nil, errors.Wrapf(errors.ErrVectorSearch, err, "failed to get %s", col.Name())
			}
			str, _ := val.(string)
			switch col.Name() {
			case milvusFieldID:
				result[i].ID = str
			case milvusFieldText:
				result[i].Content = str
			case milvusFieldDocID:
				result[i].MetaData[schema.MetaKeyDocID] = str
			}
		}
	}
	return result, nil
}

// Persist Milvus 自身负责持久化，这里只做 Flush 让已插入的数据落盘
func (m *MilvusStore) Persist(ctx context.Context, location string) error {
	m.mu.RLock()
	ready := m.ready
	m.mu.RUnlock()
	if !ready {
		return notInitialized("Persist")
	}

	task, err := m.client.Flush(ctx, milvusclient.NewFlushOption(m.collection))
	if err != nil {
		return errors.Wrapf(errors.ErrVectorPersist, err, "failed to flush collection %s", m.collection)
	}
	if err = task.Await(ctx); err != nil {
		return errors.Wrapf(errors.ErrVectorPersist, err, "failed to flush collection %s", m.collection)
	}
	g.Log().Infof(ctx, "Collection '%s' flushed", m.collection)
	return nil
}

// Load location 对 Milvus 无意义，集合名来自配置
func (m *MilvusStore) Load(ctx context.Context, location string, embedder embedding.Embedder) error {
	if embedder == nil {
		return errors.New(errors.ErrInvalidParameter, "embedder cannot be nil")
	}
	has, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(m.collection))
	if err != nil {
		return errors.Wrap(errors.ErrVectorLoad, err, "failed to check if collection exists")
	}
	if !has {
		return errors.Newf(errors.ErrVectorStoreNotFound, "collection '%s' not found", m.collection)
	}
	if err = m.loadCollection(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.embedder, m.dim, m.ready = embedder, 0, true
	m.mu.Unlock()
	g.Log().Infof(ctx, "Collection '%s' loaded", m.collection)
	return nil
}

func (m *MilvusStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	ready := m.ready
	m.mu.RUnlock()
	if !ready {
		return 0, nil
	}

	rs, err := m.client.Query(ctx, milvusclient.NewQueryOption(m.collection).
		WithOutputFields("count(*)").
		WithConsistencyLevel(entity.ClStrong))
	if err != nil {
		return 0, errors.Wrapf(errors.ErrVectorSearch, err, "failed to count collection %s", m.collection)
	}
	col := rs.GetColumn("count(*)")
	if col == nil || col.Len() == 0 {
		return 0, nil
	}
	val, err := col.Get(0)
	if err != nil {
		return 0, errors.Wrap(errors.ErrVectorSearch, err, "failed to read count")
	}
	n, _ := val.(int64)
	return int(n), nil
}

// Close 关闭客户端连接
func (m *MilvusStore) Close(ctx context.Context) error {
	return m.client.Close(ctx)
}
