package file_store

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Malowking/ragkb/core/config"
	"github.com/Malowking/ragkb/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	t.Run("本地目录", func(t *testing.T) {
		loc, err := ParseLocation("./faiss_index/kb")
		require.NoError(t, err)
		assert.Equal(t, StorageTypeLocal, loc.Type)
		assert.Equal(t, "./faiss_index/kb", loc.Path)
	})

	t.Run("rustfs", func(t *testing.T) {
		loc, err := ParseLocation("rustfs://kbfiles/index/policy/")
		require.NoError(t, err)
		assert.Equal(t, StorageTypeRustFS, loc.Type)
		assert.Equal(t, "kbfiles", loc.Bucket)
		assert.Equal(t, "index/policy", loc.Path)
		assert.Equal(t, "rustfs://kbfiles/index/policy", loc.String())
	})

	t.Run("只有bucket", func(t *testing.T) {
		loc, err := ParseLocation("rustfs://kbfiles")
		require.NoError(t, err)
		assert.Equal(t, "", loc.Path)
		assert.Equal(t, "rustfs://kbfiles", loc.String())
	})

	t.Run("非法位置", func(t *testing.T) {
		_, err := ParseLocation("")
		assert.Error(t, err)
		_, err = ParseLocation("rustfs:///prefix")
		assert.Error(t, err)
	})
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "nested", "kb")
	store := NewLocalStore(root)

	t.Run("写入并读取", func(t *testing.T) {
		data := []byte("snapshot-v1")
		require.NoError(t, store.Put(ctx, "index.kbx", bytes.NewReader(data), int64(len(data))))

		rc, err := store.Get(ctx, "index.kbx")
		require.NoError(t, err)
		defer rc.Close()
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("覆盖后不残留临时文件", func(t *testing.T) {
		data := []byte("snapshot-v2")
		require.NoError(t, store.Put(ctx, "index.kbx", bytes.NewReader(data), int64(len(data))))

		entries, err := os.ReadDir(root)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("不存在的文件", func(t *testing.T) {
		_, err := store.Get(ctx, "missing.kbx")
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrNotFound))
	})
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	store, err := NewStore(ctx, t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, StorageTypeLocal, store.Type())

	_, err = NewStore(ctx, "rustfs://kbfiles/idx", &config.RustFSConfig{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrConfigInvalid))
}
