package meta_store

import (
	"context"
)

// MetaStoreType 元数据存储类型
type MetaStoreType string

const (
	MetaStoreTypeRedis    MetaStoreType = "redis"
	MetaStoreTypePostgres MetaStoreType = "postgres"
	MetaStoreTypeMySQL    MetaStoreType = "mysql"
	MetaStoreTypeMemory   MetaStoreType = "memory"
)

// Attributes 一个 chunk 的属性集合，值需能通过 JSON 无损往返
type Attributes map[string]any

// Clone 浅拷贝一份属性
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// MetaStore 元数据存储接口
// 以 chunk 标识为键保存属性，按命名空间登记成员以便枚举和清理
type MetaStore interface {
	// Set 写入属性，覆盖旧记录（不做合并）
	Set(ctx context.Context, id string, attrs Attributes) error

	// Get 读取属性，不存在时返回空 map
	Get(ctx context.Context, id string) (Attributes, error)

	// MGet 批量读取，结果包含每个请求的 id，缺失的 id 对应空 map
	MGet(ctx context.Context, ids []string) (map[string]Attributes, error)

	// Delete 删除记录及其命名空间登记，不存在时不报错
	Delete(ctx context.Context, id string) error

	// AllIDs 枚举命名空间下的全部 id，无顺序保证
	AllIDs(ctx context.Context) ([]string, error)

	// PurgeNamespace 删除命名空间下的全部记录，然后删除成员索引本身
	PurgeNamespace(ctx context.Context) error

	// Namespace 返回当前命名空间
	Namespace() string

	// Close 释放底层连接
	Close() error
}
