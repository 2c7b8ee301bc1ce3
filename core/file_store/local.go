package file_store

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/Malowking/ragkb/core/errors"
	"github.com/gogf/gf/v2/frame/g"
)

// LocalStore 以目录为根的本地文件存储
type LocalStore struct {
	root string
}

// NewLocalStore 创建本地存储，目录在首次写入时创建
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) Type() StorageType { return StorageTypeLocal }

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Put 先写临时文件再重命名，读者不会看到写了一半的文件
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	finalPath := s.path(key)
	targetDir := filepath.Dir(finalPath)

	// 确保目标目录存在
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		g.Log().Errorf(ctx, "Failed to create directory %s: %v", targetDir, err)
		return errors.Wrapf(errors.ErrVectorPersist, err, "failed to create directory %s", targetDir)
	}

	tmp, err := os.CreateTemp(targetDir, filepath.Base(finalPath)+".tmp-*")
	if err != nil {
		return errors.Wrapf(errors.ErrVectorPersist, err, "failed to create file in %s", targetDir)
	}
	tmpPath := tmp.Name()

	if _, err = io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		g.Log().Errorf(ctx, "Failed to write file %s: %v", finalPath, err)
		return errors.Wrapf(errors.ErrVectorPersist, err, "failed to write file %s", finalPath)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(errors.ErrVectorPersist, err, "failed to close file %s", finalPath)
	}
	if err = os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(errors.ErrVectorPersist, err, "failed to rename file to %s", finalPath)
	}

	g.Log().Debugf(ctx, "File saved to local storage: %s", finalPath)
	return nil
}

func (s *LocalStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	p := s.path(key)
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(errors.ErrNotFound, err, "file %s does not exist", p)
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrFileReadFailed, err, "failed to open file %s", p)
	}
	return f, nil
}
