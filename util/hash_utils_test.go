package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashCode(t *testing.T) {
	t.Run("相同输入得到相同散列", func(t *testing.T) {
		assert.Equal(t, HashCode([]byte("page-key")), HashCode([]byte("page-key")))
	})

	t.Run("不同输入散列不同", func(t *testing.T) {
		assert.NotEqual(t, HashCode([]byte{0x00, 0x07, 0x2A}), HashCode([]byte{0x00, 0x07, 0x2B}))
		assert.NotEqual(t, HashCode(nil), HashCode([]byte{0x00}))
	})
}
