package file_store

import (
	"context"

	"github.com/Malowking/ragkb/core/config"
	"github.com/gogf/gf/v2/frame/g"
)

// NewStore 根据位置字符串选择本地目录或 RustFS
func NewStore(ctx context.Context, location string, conf *config.RustFSConfig) (Store, error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}

	switch loc.Type {
	case StorageTypeRustFS:
		client, err := NewRustFSClient(conf)
		if err != nil {
			return nil, err
		}
		g.Log().Debugf(ctx, "Using RustFS storage: %s", loc)
		return NewRustFSStore(ctx, client, loc.Bucket, loc.Path)
	default:
		return NewLocalStore(loc.Path), nil
	}
}
