package cache

import (
	"context"

	"github.com/Malowking/ragkb/core/config"
	"github.com/Malowking/ragkb/core/errors"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient 根据配置创建 Redis 客户端并测试连接，URL 优先于 Address
func NewRedisClient(ctx context.Context, conf *config.RedisConfig) (*redis.Client, error) {
	if conf == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "redis config cannot be nil")
	}

	opts, err := redisOptions(conf)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	// 测试连接
	if err := rdb.Ping(ctx).Err(); err != nil {
		g.Log().Errorf(ctx, "Redis connection failed: %v", err)
		_ = rdb.Close()
		return nil, errors.Wrapf(errors.ErrDatabaseInit, err, "redis connection failed: %s", opts.Addr)
	}

	g.Log().Infof(ctx, "Redis initialized successfully: %s, DB: %d", opts.Addr, opts.DB)
	return rdb, nil
}

func redisOptions(conf *config.RedisConfig) (*redis.Options, error) {
	if conf.URL != "" {
		opts, err := redis.ParseURL(conf.URL)
		if err != nil {
			return nil, errors.Wrap(errors.ErrConfigInvalid, err, "invalid redis.url")
		}
		if conf.MaxRetries > 0 {
			opts.MaxRetries = conf.MaxRetries
		}
		if conf.PoolSize > 0 {
			opts.PoolSize = conf.PoolSize
		}
		if conf.MinIdleConns > 0 {
			opts.MinIdleConns = conf.MinIdleConns
		}
		return opts, nil
	}

	if conf.Address == "" {
		return nil, errors.New(errors.ErrConfigInvalid, "redis.url or redis.address is required")
	}
	return &redis.Options{
		Addr:         conf.Address,
		Password:     conf.Password,
		DB:           conf.DB,
		MaxRetries:   conf.MaxRetries,
		PoolSize:     conf.PoolSize,
		MinIdleConns: conf.MinIdleConns,
	}, nil
}

// CloseRedis 关闭Redis连接
func CloseRedis(ctx context.Context, rdb *redis.Client) error {
	if rdb != nil {
		g.Log().Info(ctx, "Closing Redis connection")
		return rdb.Close()
	}
	return nil
}
