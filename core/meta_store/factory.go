package meta_store

import (
	"context"

	"github.com/Malowking/ragkb/core/cache"
	"github.com/Malowking/ragkb/core/config"
	"github.com/Malowking/ragkb/core/errors"
	"github.com/Malowking/ragkb/internal/dao"
	"github.com/gogf/gf/v2/frame/g"
)

// NewMetaStore 根据配置创建元数据存储
func NewMetaStore(ctx context.Context, conf *config.MetaStoreConfig) (MetaStore, error) {
	if conf == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "meta store config cannot be nil")
	}
	namespace := conf.Namespace
	if namespace == "" {
		namespace = config.DefaultNamespace
	}

	switch MetaStoreType(conf.Type) {
	case MetaStoreTypeRedis:
		rdb, err := cache.NewRedisClient(ctx, &conf.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(rdb, namespace)

	case MetaStoreTypePostgres, "postgresql", MetaStoreTypeMySQL:
		db, err := dao.OpenDB(ctx, conf.Type, &conf.SQL)
		if err != nil {
			return nil, err
		}
		store, err := NewSQLStore(ctx, db, namespace)
		if err != nil {
			_ = dao.CloseDB(db)
			return nil, err
		}
		return store, nil

	case MetaStoreTypeMemory:
		g.Log().Warningf(ctx, "Using in-memory meta store for namespace '%s'", namespace)
		return NewMemoryStore(namespace), nil

	default:
		return nil, errors.Newf(errors.ErrConfigInvalid, "unsupported meta store type: %s", conf.Type)
	}
}
