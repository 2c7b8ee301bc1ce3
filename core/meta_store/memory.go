package meta_store

import (
	"context"
	"sync"
)

// MemoryStore 进程内元数据存储，记录以 JSON 形式保存，读出的值类型与持久化后端一致
type MemoryStore struct {
	mu        sync.RWMutex
	namespace string
	records   map[string]string
	members   map[string]struct{}
}

// NewMemoryStore 创建内存元数据存储
func NewMemoryStore(namespace string) *MemoryStore {
	return &MemoryStore{
		namespace: namespace,
		records:   make(map[string]string),
		members:   make(map[string]struct{}),
	}
}

func (m *MemoryStore) Namespace() string { return m.namespace }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Set(ctx context.Context, id string, attrs Attributes) error {
	raw, err := encodeAttributes(attrs)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = raw
	m.members[id] = struct{}{}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Attributes, error) {
	m.mu.RLock()
	raw, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return Attributes{}, nil
	}
	return decodeAttributes(raw)
}

func (m *MemoryStore) MGet(ctx context.Context, ids []string) (map[string]Attributes, error) {
	out := make(map[string]Attributes, len(ids))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range ids {
		raw, ok := m.records[id]
		if !ok {
			out[id] = Attributes{}
			continue
		}
		attrs, err := decodeAttributes(raw)
		if err != nil {
			return nil, err
		}
		out[id] = attrs
	}
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	delete(m.members, id)
	return nil
}

func (m *MemoryStore) AllIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.members))
	for id := range m.members {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *MemoryStore) PurgeNamespace(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.members {
		delete(m.records, id)
	}
	m.members = make(map[string]struct{})
	return nil
}
