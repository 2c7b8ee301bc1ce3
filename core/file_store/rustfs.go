package file_store

import (
	"context"
	"io"
	"path"

	"github.com/Malowking/ragkb/core/config"
	"github.com/Malowking/ragkb/core/errors"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// RustFSStore 基于 S3 兼容接口（RustFS / MinIO）的对象存储
type RustFSStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewRustFSClient 创建 MinIO 客户端
func NewRustFSClient(conf *config.RustFSConfig) (*minio.Client, error) {
	if conf == nil || conf.Endpoint == "" {
		return nil, errors.New(errors.ErrConfigInvalid, "rustfs.endpoint is required")
	}
	client, err := minio.New(conf.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKey, conf.SecretKey, ""),
		Secure: conf.SSL,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternalError, err, "failed to create MinIO client")
	}
	return client, nil
}

// NewRustFSStore 创建对象存储，bucket 不存在时自动创建
func NewRustFSStore(ctx context.Context, client *minio.Client, bucket, prefix string) (*RustFSStore, error) {
	if client == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "minio client cannot be nil")
	}

	// CreateBucketIfNotExists 创建 bucket，如果已存在则跳过
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternalError, err, "failed to check if bucket exists")
	}
	if !exists {
		if err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: ""}); err != nil {
			return nil, errors.Wrap(errors.ErrInternalError, err, "failed to create bucket")
		}
		g.Log().Infof(ctx, "Created bucket '%s'", bucket)
	}

	return &RustFSStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *RustFSStore) Type() StorageType { return StorageTypeRustFS }

func (s *RustFSStore) objectName(key string) string {
	return path.Join(s.prefix, key)
}

func (s *RustFSStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	name := s.objectName(key)
	_, err := s.client.PutObject(ctx, s.bucket, name, r, size,
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		g.Log().Errorf(ctx, "Failed to upload file to RustFS: %v", err)
		return errors.Wrapf(errors.ErrVectorPersist, err, "failed to upload %s to bucket %s", name, s.bucket)
	}
	g.Log().Infof(ctx, "File uploaded to RustFS: bucket=%s, key=%s", s.bucket, name)
	return nil
}

// Get GetObject 是惰性的，先 Stat 一次以区分对象不存在
func (s *RustFSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	name := s.objectName(key)
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrFileReadFailed, err, "failed to get object %s", name)
	}
	if _, err = obj.Stat(); err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, errors.Wrapf(errors.ErrNotFound, err, "object %s does not exist in bucket %s", name, s.bucket)
		}
		return nil, errors.Wrapf(errors.ErrFileReadFailed, err, "failed to stat object %s", name)
	}
	return obj, nil
}
