package vector_store

import (
	"context"

	"github.com/Malowking/ragkb/core/config"
	"github.com/Malowking/ragkb/core/errors"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

// NewVectorStore 根据配置创建向量存储实例
func NewVectorStore(ctx context.Context, conf *config.VectorStoreConfig, rustfs *config.RustFSConfig) (VectorStore, error) {
	if conf == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "config cannot be nil")
	}

	g.Log().Infof(ctx, "Initializing vector store with type: %s", conf.Type)

	switch VectorStoreType(conf.Type) {
	case VectorStoreTypeLocal:
		return NewLocalStore(conf.Path, rustfs), nil

	case VectorStoreTypeMilvus:
		mc := conf.Milvus
		g.Log().Infof(ctx, "Connecting to Milvus at: %s, database: %s", mc.Address, mc.Database)
		client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
			Address: mc.Address,
			DBName:  mc.Database,
		})
		if err != nil {
			return nil, errors.Wrapf(errors.ErrVectorStoreInit, err, "failed to create milvus client (address: %s, database: %s)", mc.Address, mc.Database)
		}
		return NewMilvusStore(client, mc.Collection)

	case VectorStoreTypePgvector:
		pg := conf.Postgres
		g.Log().Infof(ctx, "Connecting to PostgreSQL at: %s:%s, database: %s", pg.Host, pg.Port, pg.Database)
		pool, err := pgxpool.New(ctx, pg.DSN())
		if err != nil {
			return nil, errors.Wrap(errors.ErrVectorStoreInit, err, "failed to create postgres connection pool")
		}
		if err = pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, errors.Wrap(errors.ErrVectorStoreInit, err, "failed to ping postgres")
		}
		return NewPgvectorStore(pool, pg.Schema, pg.Table)

	default:
		return nil, errors.Newf(errors.ErrInvalidParameter, "unsupported vector store type: %s. Supported types: local, milvus, pgvector", conf.Type)
	}
}

// Close 释放向量存储持有的连接，本地存储无需关闭
func Close(ctx context.Context, vs VectorStore) error {
	switch c := vs.(type) {
	case interface{ Close(context.Context) error }:
		return c.Close(ctx)
	case interface{ Close() error }:
		return c.Close()
	case interface{ Close() }:
		c.Close()
	}
	return nil
}
