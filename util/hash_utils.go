package util

import (
	"github.com/OneOfOne/xxhash"
)

// HashCode 计算字节串的64位散列值，用作去重集合的键
func HashCode(key []byte) uint64 {
	return xxhash.Checksum64(key)
}
