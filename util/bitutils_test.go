package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNibble(t *testing.T) {
	t.Run("高低半字节互不干扰", func(t *testing.T) {
		var b byte
		b = WriteNibble(b, false, 0x0A)
		b = WriteNibble(b, true, 0x05)

		assert.Equal(t, byte(0x0A), ReadNibble(b, false))
		assert.Equal(t, byte(0x05), ReadNibble(b, true))
	})

	t.Run("覆写只影响目标半字节", func(t *testing.T) {
		b := byte(0xFF)
		b = WriteNibble(b, false, 0x03)
		assert.Equal(t, byte(0x03), ReadNibble(b, false))
		assert.Equal(t, byte(0x0F), ReadNibble(b, true))
	})
}

func TestBits(t *testing.T) {
	assert.Equal(t, byte(0x03), ReadBits2(0x0F))
	assert.Equal(t, byte(0x02), ReadBits2(0x06))

	n := byte(0)
	n = SetBit(n, 2, true)
	assert.True(t, ReadBit(n, 2))
	assert.False(t, ReadBit(n, 3))

	n = SetBit(n, 3, true)
	n = SetBit(n, 2, false)
	assert.False(t, ReadBit(n, 2))
	assert.True(t, ReadBit(n, 3))
}

func TestHashCodeStability(t *testing.T) {
	a := HashCode([]byte("alpha"))
	b := HashCode([]byte("beta"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, HashCode([]byte("alpha")))
}
