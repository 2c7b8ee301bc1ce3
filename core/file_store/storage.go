package file_store

import (
	"context"
	"io"
	"strings"

	"github.com/Malowking/ragkb/core/errors"
)

// StorageType 存储类型
type StorageType string

const (
	StorageTypeRustFS StorageType = "rustfs"
	StorageTypeLocal  StorageType = "local"

	rustfsScheme = "rustfs://"
)

// Store 按 key 存取二进制对象，key 使用 / 分隔
type Store interface {
	// Put 写入对象，同名对象整体替换
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get 读取对象，不存在时返回 ErrNotFound
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Type 返回存储类型
	Type() StorageType
}

// Location 解析后的存储位置
type Location struct {
	Type   StorageType
	Bucket string // 仅 rustfs
	Path   string // local 为目录，rustfs 为对象前缀
}

// ParseLocation 解析存储位置，rustfs://bucket/prefix 表示对象存储，其余视为本地目录
func ParseLocation(location string) (Location, error) {
	if location == "" {
		return Location{}, errors.New(errors.ErrInvalidParameter, "storage location cannot be empty")
	}
	if !strings.HasPrefix(location, rustfsScheme) {
		return Location{Type: StorageTypeLocal, Path: location}, nil
	}

	rest := strings.TrimPrefix(location, rustfsScheme)
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, errors.Newf(errors.ErrInvalidParameter, "missing bucket in location %q", location)
	}
	return Location{
		Type:   StorageTypeRustFS,
		Bucket: bucket,
		Path:   strings.Trim(prefix, "/"),
	}, nil
}

// String 还原为位置字符串
func (l Location) String() string {
	if l.Type == StorageTypeRustFS {
		if l.Path == "" {
			return rustfsScheme + l.Bucket
		}
		return rustfsScheme + l.Bucket + "/" + l.Path
	}
	return l.Path
}
