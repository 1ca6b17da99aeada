package ibuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/basic"
)

func TestMemoryIndex(t *testing.T) {
	t.Run("键序遍历", func(t *testing.T) {
		idx := NewMemoryIndex(16384, 0)
		require.NoError(t, idx.Insert([]byte("c"), []byte("3")))
		require.NoError(t, idx.Insert([]byte("a"), []byte("1")))
		require.NoError(t, idx.Insert([]byte("b"), []byte("2")))

		var got []string
		idx.AscendRange([]byte("a"), nil, func(key, rec []byte) bool {
			got = append(got, string(key))
			return true
		})
		assert.Equal(t, []string{"a", "b", "c"}, got)
	})

	t.Run("区间半开", func(t *testing.T) {
		idx := NewMemoryIndex(16384, 0)
		for _, k := range []string{"a", "b", "c", "d"} {
			require.NoError(t, idx.Insert([]byte(k), []byte("v")))
		}

		var got []string
		idx.AscendRange([]byte("b"), []byte("d"), func(key, rec []byte) bool {
			got = append(got, string(key))
			return true
		})
		assert.Equal(t, []string{"b", "c"}, got)
	})

	t.Run("遍历中可提前终止", func(t *testing.T) {
		idx := NewMemoryIndex(16384, 0)
		for _, k := range []string{"a", "b", "c"} {
			require.NoError(t, idx.Insert([]byte(k), []byte("v")))
		}

		var count int
		idx.AscendRange([]byte("a"), nil, func(key, rec []byte) bool {
			count++
			return count < 2
		})
		assert.Equal(t, 2, count)
	})

	t.Run("遍历回调内允许回写", func(t *testing.T) {
		idx := NewMemoryIndex(16384, 0)
		require.NoError(t, idx.Insert([]byte("a"), []byte("v")))
		require.NoError(t, idx.Insert([]byte("b"), []byte("v")))

		idx.AscendRange([]byte("a"), nil, func(key, rec []byte) bool {
			require.NoError(t, idx.Delete(key))
			return true
		})
		assert.True(t, idx.Empty())
	})

	t.Run("删除不存在的键", func(t *testing.T) {
		idx := NewMemoryIndex(16384, 0)
		assert.ErrorIs(t, idx.Delete([]byte("ghost")), basic.ErrKeyNotFound)
	})

	t.Run("段增长上限", func(t *testing.T) {
		idx := NewMemoryIndex(16384, 1)
		big := make([]byte, 12000)
		require.NoError(t, idx.Insert([]byte("a"), big))
		assert.ErrorIs(t, idx.Insert([]byte("b"), big), basic.ErrNoFreeSpace)
	})

	t.Run("统计值随体量增长", func(t *testing.T) {
		idx := NewMemoryIndex(16384, 0)
		stats := idx.Stats()
		assert.Equal(t, uint64(1), stats.Pages)
		assert.Equal(t, uint8(1), stats.Height)

		big := make([]byte, 15000)
		require.NoError(t, idx.Insert([]byte("a"), big))
		require.NoError(t, idx.Insert([]byte("b"), big))

		stats = idx.Stats()
		assert.Greater(t, stats.Pages, uint64(1))
		assert.Equal(t, uint8(2), stats.Height)
		assert.Greater(t, stats.SegPages, stats.Pages)
	})
}
