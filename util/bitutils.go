package util

import (
	"strconv"
	"strings"
)

// ReadNibble 读取一个字节的高半字节或低半字节
// high为true时返回高4位
func ReadNibble(data byte, high bool) byte {
	if high {
		return (data >> 4) & 0x0F
	}
	return data & 0x0F
}

// WriteNibble 写入一个字节的高半字节或低半字节，返回新字节
func WriteNibble(data byte, high bool, value byte) byte {
	value &= 0x0F
	if high {
		return (data & 0x0F) | (value << 4)
	}
	return (data & 0xF0) | value
}

// ReadBits2 从半字节中读取低2位
func ReadBits2(nibble byte) byte {
	return nibble & 0x03
}

// ReadBit 读取半字节中的某一位
func ReadBit(nibble byte, pos uint) bool {
	return (nibble>>pos)&1 == 1
}

// SetBit 设置半字节中的某一位，返回新半字节
func SetBit(nibble byte, pos uint, value bool) byte {
	if value {
		return nibble | (1 << pos)
	}
	return nibble &^ (1 << pos)
}

func ToBinaryString(data byte) string {
	result := make([]string, 0)
	for i := 0; i < 8; i++ {
		move := uint(7 - i)
		result = append(result, strconv.Itoa(int((data>>move)&1)))
	}
	return strings.Join(result, "")
}
