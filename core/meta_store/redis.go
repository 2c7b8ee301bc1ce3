package meta_store

import (
	"context"

	"github.com/Malowking/ragkb/core/errors"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/redis/go-redis/v9"
)

const (
	// Redis key前缀
	metaKeyPrefix  = "meta:"
	indexKeyPrefix = "set:index:"
)

// RedisStore Redis 元数据存储（Hash + Set）
//
//	meta:{doc_id}   -> Hash，每个属性字段单独 JSON 序列化
//	set:index:{ns}  -> doc_id 集合（便于清理/巡检）
type RedisStore struct {
	rdb       *redis.Client
	namespace string
}

// NewRedisStore 创建 Redis 元数据存储
func NewRedisStore(rdb *redis.Client, namespace string) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "redis client cannot be nil")
	}
	if namespace == "" {
		return nil, errors.New(errors.ErrInvalidParameter, "namespace cannot be empty")
	}
	return &RedisStore{rdb: rdb, namespace: namespace}, nil
}

func (r *RedisStore) Namespace() string { return r.namespace }

func (r *RedisStore) Close() error { return r.rdb.Close() }

func (r *RedisStore) key(id string) string {
	return metaKeyPrefix + id
}

func (r *RedisStore) indexKey() string {
	return indexKeyPrefix + r.namespace
}

// Set 在一个事务管道内完成 DEL + HSET + SADD，保证覆盖语义
func (r *RedisStore) Set(ctx context.Context, id string, attrs Attributes) error {
	flat := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		enc, err := encodeValue(v)
		if err != nil {
			return err
		}
		flat[k] = enc
	}

	key := r.key(id)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(flat) > 0 {
			pipe.HSet(ctx, key, flat)
		}
		pipe.SAdd(ctx, r.indexKey(), id)
		return nil
	})
	if err != nil {
		return errors.Wrapf(errors.ErrMetaStore, err, "failed to set meta %s", id)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (Attributes, error) {
	raw, err := r.rdb.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrMetaStore, err, "failed to get meta %s", id)
	}
	return decodeHash(raw)
}

// MGet 使用 pipeline 一次往返读取全部记录
func (r *RedisStore) MGet(ctx context.Context, ids []string) (map[string]Attributes, error) {
	out := make(map[string]Attributes, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, errors.Wrapf(errors.ErrMetaStore, err, "failed to mget %d metas", len(ids))
	}

	for i, id := range ids {
		raw, err := cmds[i].Result()
		if err != nil && err != redis.Nil {
			return nil, errors.Wrapf(errors.ErrMetaStore, err, "failed to get meta %s", id)
		}
		attrs, err := decodeHash(raw)
		if err != nil {
			return nil, err
		}
		out[id] = attrs
	}
	return out, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key(id))
		pipe.SRem(ctx, r.indexKey(), id)
		return nil
	})
	if err != nil {
		return errors.Wrapf(errors.ErrMetaStore, err, "failed to delete meta %s", id)
	}
	return nil
}

func (r *RedisStore) AllIDs(ctx context.Context) ([]string, error) {
	ids, err := r.rdb.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrMetaStore, err, "failed to list namespace %s", r.namespace)
	}
	return ids, nil
}

func (r *RedisStore) PurgeNamespace(ctx context.Context) error {
	ids, err := r.AllIDs(ctx)
	if err != nil {
		return err
	}

	pipe := r.rdb.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, r.key(id))
	}
	pipe.Del(ctx, r.indexKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(errors.ErrMetaStore, err, "failed to purge namespace %s", r.namespace)
	}

	g.Log().Infof(ctx, "Purged namespace '%s' (%d records)", r.namespace, len(ids))
	return nil
}
