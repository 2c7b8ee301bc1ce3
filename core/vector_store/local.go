package vector_store

import (
	"context"
	"slices"
	"sync"

	"github.com/Malowking/ragkb/core/config"
	"github.com/Malowking/ragkb/core/errors"
	"github.com/Malowking/ragkb/pkg/schema"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/gogf/gf/v2/frame/g"
)

// localEntry 扁平索引中的一条记录，向量已归一化
type localEntry struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	MetaData map[string]any `json:"metadata,omitempty"`
	Vector   []float32      `json:"vector"`
}

// LocalStore 进程内扁平索引，余弦相似度暴力扫描
type LocalStore struct {
	mu       sync.RWMutex
	embedder embedding.Embedder
	entries  []localEntry
	dim      int
	built    bool

	location string
	rustfs   *config.RustFSConfig
}

// NewLocalStore 创建本地向量库，location 为默认持久化位置（目录或 rustfs://bucket/prefix）
func NewLocalStore(location string, rustfs *config.RustFSConfig) *LocalStore {
	return &LocalStore{location: location, rustfs: rustfs}
}

func (s *LocalStore) BuildFromCorpus(ctx context.Context, entries []*schema.Document, embedder embedding.Embedder) error {
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

	built := make([]localEntry, len(entries))
	for i, e := range entries {
		built[i] = newLocalEntry(e, vectors[i])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.embedder = embedder
	s.entries = built
	s.dim = len(vectors[0])
	s.built = true

	g.Log().Infof(ctx, "Local index built with %d entries, dimension %d", len(built), s.dim)
	return nil
}

func (s *LocalStore) Add(ctx context.Context, entries []*schema.Document) error {
	s.mu.RLock()
	embedder, built, dim := s.embedder, s.built, s.dim
	s.mu.RUnlock()
	if !built {
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
	if len(vectors[0]) != dim {
		return errors.Newf(errors.ErrVectorInsert, "embedding dimension %d does not match index dimension %d", len(vectors[0]), dim)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range entries {
		s.entries = append(s.entries, newLocalEntry(e, vectors[i]))
	}
	g.Log().Debugf(ctx, "Added %d entries to local index, total %d", len(entries), len(s.entries))
	return nil
}

func (s *LocalStore) SimilaritySearch(ctx context.Context, query string, k int) ([]*schema.Document, error) {
	s.mu.RLock()
	embedder, built := s.embedder, s.built
	s.mu.RUnlock()
	if !built {
		return nil, notInitialized("SimilaritySearch")
	}
	if k <= 0 {
		return []*schema.Document{}, nil
	}

	vectors, err := embedTexts(ctx, embedder, []string{query})
	if err != nil {
		return nil, err
	}
	q := normalize(vectors[0])

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(q) != s.dim {
		return nil, errors.Newf(errors.ErrVectorSearch, "query dimension %d does not match index dimension %d", len(q), s.dim)
	}

	type scored struct {
		idx   int
		score float32
	}
	ranked := make([]scored, len(s.entries))
	for i := range s.entries {
		ranked[i] = scored{idx: i, score: dot(q, s.entries[i].Vector)}
	}
	// 稳定排序，分数相同时保持插入顺序
	slices.SortStableFunc(ranked, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return 0
		}
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]*schema.Document, k)
	for i := 0; i < k; i++ {
		e := s.entries[ranked[i].idx]
		out[i] = &schema.Document{
			ID:       e.ID,
			Content:  e.Content,
			MetaData: cloneMeta(e.MetaData),
			Score:    ranked[i].score,
		}
	}
	return out, nil
}

func (s *LocalStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *LocalStore) Persist(ctx context.Context, location string) error {
	if location == "" {
		location = s.location
	}
	if location == "" {
		return errors.New(errors.ErrInvalidParameter, "persist location cannot be empty")
	}

	s.mu.RLock()
	if !s.built {
		s.mu.RUnlock()
		return notInitialized("Persist")
	}
	snap := &snapshot{Version: snapshotVersion, Dim: s.dim, Entries: s.entries}
	data, err := encodeSnapshot(snap)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	if err = writeSnapshot(ctx, location, s.rustfs, data); err != nil {
		return err
	}
	g.Log().Infof(ctx, "Local index persisted to %s (%d entries, %d bytes)", location, len(snap.Entries), len(data))
	return nil
}

func (s *LocalStore) Load(ctx context.Context, location string, embedder embedding.Embedder) error {
	if embedder == nil {
		return errors.New(errors.ErrInvalidParameter, "embedder cannot be nil")
	}
	if location == "" {
		location = s.location
	}
	if location == "" {
		return errors.New(errors.ErrInvalidParameter, "load location cannot be empty")
	}

	data, err := readSnapshot(ctx, location, s.rustfs)
	if err != nil {
		return err
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.embedder = embedder
	s.entries = snap.Entries
	s.dim = snap.Dim
	s.built = true

	g.Log().Infof(ctx, "Local index loaded from %s (%d entries)", location, len(snap.Entries))
	return nil
}

func newLocalEntry(doc *schema.Document, vector []float32) localEntry {
	meta := cloneMeta(doc.MetaData)
	if meta == nil {
		meta = map[string]any{schema.MetaKeyDocID: doc.ID}
	}
	return localEntry{
		ID:       doc.ID,
		Content:  doc.Content,
		MetaData: meta,
		Vector:   normalize(vector),
	}
}

func cloneMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
