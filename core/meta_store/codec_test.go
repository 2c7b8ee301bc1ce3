package meta_store

import (
	"testing"

	"github.com/Malowking/ragkb/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributesCodec(t *testing.T) {
	t.Run("数值与嵌套结构", func(t *testing.T) {
		in := Attributes{
			"page":   7,
			"big":    int64(1) << 53,
			"ratio":  0.25,
			"ok":     true,
			"tags":   []string{"hr", "policy"},
			"nested": map[string]any{"lang": "zh", "rev": 2},
			"none":   nil,
		}
		out, err := Normalize(in)
		require.NoError(t, err)
		assert.Equal(t, int64(7), out["page"])
		assert.Equal(t, int64(1)<<53, out["big"])
		assert.Equal(t, 0.25, out["ratio"])
		assert.Equal(t, true, out["ok"])
		assert.Equal(t, []any{"hr", "policy"}, out["tags"])
		assert.Equal(t, map[string]any{"lang": "zh", "rev": int64(2)}, out["nested"])
		assert.Nil(t, out["none"])
		assert.Len(t, out, len(in))
	})

	t.Run("空属性", func(t *testing.T) {
		s, err := encodeAttributes(nil)
		require.NoError(t, err)
		assert.Equal(t, "{}", s)

		out, err := decodeAttributes("")
		require.NoError(t, err)
		assert.NotNil(t, out)
		assert.Empty(t, out)
	})

	t.Run("Hash字段逐个解码", func(t *testing.T) {
		out, err := decodeHash(map[string]string{"page": "2", "source": `"a.pdf"`})
		require.NoError(t, err)
		assert.Equal(t, Attributes{"page": int64(2), "source": "a.pdf"}, out)
	})

	t.Run("损坏的记录", func(t *testing.T) {
		_, err := decodeHash(map[string]string{"page": "{not json"})
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrMetaDecode))
	})

	t.Run("Clone互不影响", func(t *testing.T) {
		a := Attributes{"k": "v"}
		b := a.Clone()
		b["k"] = "w"
		assert.Equal(t, "v", a["k"])
	})
}

func TestParseAttributes(t *testing.T) {
	attrs, err := ParseAttributes(`{"book":"考核细则","version":1,"tags":["hr"]}`)
	require.NoError(t, err)
	assert.Equal(t, Attributes{"book": "考核细则", "version": int64(1), "tags": []any{"hr"}}, attrs)

	attrs, err = ParseAttributes("")
	require.NoError(t, err)
	assert.Empty(t, attrs)

	_, err = ParseAttributes("book=考核细则")
	assert.True(t, errors.HasCode(err, errors.ErrInvalidParameter))
	assert.True(t, errors.HasCode(err, errors.ErrMetaDecode))
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, int64(1), ParseValue("1"))
	assert.Equal(t, 1.5, ParseValue("1.5"))
	assert.Equal(t, true, ParseValue("true"))
	assert.Equal(t, []any{"a"}, ParseValue(`["a"]`))
	assert.Equal(t, "考核细则", ParseValue("考核细则"))
	assert.Equal(t, "v1.0", ParseValue("v1.0"))
}
