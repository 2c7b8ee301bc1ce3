package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Malowking/ragkb/core/common"
	"github.com/Malowking/ragkb/core/config"
	"github.com/Malowking/ragkb/core/kb"
	"github.com/Malowking/ragkb/core/meta_store"
	"github.com/Malowking/ragkb/core/vector_store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	emb, err := common.NewHashEmbedder(64)
	require.NoError(t, err)

	conf := config.Default()
	conf.KB.Persist = false
	vs := vector_store.NewLocalStore(t.TempDir(), nil)
	ms := meta_store.NewMemoryStore("policy_kb")
	svc, err := kb.NewService(&conf.KB, vs, ms, emb)
	require.NoError(t, err)
	return &app{conf: conf, vs: vs, ms: ms, svc: svc}
}

func TestIngestFuncs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	first := filepath.Join(dir, "policy.txt")
	second := filepath.Join(dir, "appendix.txt")
	require.NoError(t, os.WriteFile(first, []byte("年假按工龄计算。"), 0644))
	require.NoError(t, os.WriteFile(second, []byte("报销需在30天内提交。"), 0644))

	count := func(a *app) int {
		n, err := a.svc.Count(ctx)
		require.NoError(t, err)
		return n
	}

	t.Run("uri追加保留已有索引", func(t *testing.T) {
		a := newTestApp(t)
		n1, err := uriIngest(first)(ctx, a, ingestFlags{}, nil)
		require.NoError(t, err)
		require.Positive(t, n1)

		n2, err := uriIngest(second)(ctx, a, ingestFlags{Append: true}, nil)
		require.NoError(t, err)
		require.Positive(t, n2)
		assert.Equal(t, n1+n2, count(a))

		metaCount, err := a.svc.MetaCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, n1+n2, metaCount)
	})

	t.Run("uri不追加时重建", func(t *testing.T) {
		a := newTestApp(t)
		_, err := uriIngest(first)(ctx, a, ingestFlags{}, nil)
		require.NoError(t, err)
		n2, err := uriIngest(second)(ctx, a, ingestFlags{}, nil)
		require.NoError(t, err)
		assert.Equal(t, n2, count(a))
	})

	t.Run("文本追加", func(t *testing.T) {
		a := newTestApp(t)
		n1, err := textIngest(first)(ctx, a, ingestFlags{}, nil)
		require.NoError(t, err)
		n2, err := textIngest(second)(ctx, a, ingestFlags{Append: true}, nil)
		require.NoError(t, err)
		assert.Equal(t, n1+n2, count(a))
	})
}

// closableStore 记录是否被关闭
type closableStore struct {
	vector_store.VectorStore
	closed bool
}

func (c *closableStore) Close(ctx context.Context) error {
	c.closed = true
	return nil
}

func TestAppClose(t *testing.T) {
	vs := &closableStore{}
	a := &app{vs: vs, ms: meta_store.NewMemoryStore("policy_kb")}
	a.close(context.Background())
	assert.True(t, vs.closed)
}
