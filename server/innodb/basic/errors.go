package basic

import "errors"

// 页面相关错误
var (
	ErrPageNotFound    = errors.New("page not found")
	ErrPageCorrupted   = errors.New("page corrupted")
	ErrInvalidPageType = errors.New("invalid page type")
	ErrInvalidPageSize = errors.New("invalid page size")
	ErrInvalidPageID   = errors.New("invalid page ID")
	ErrPageFull        = errors.New("page full")
)

// 存储相关错误
var (
	ErrSpaceNotFound   = errors.New("space not found")
	ErrSegmentNotFound = errors.New("segment not found")
	ErrNoFreePages     = errors.New("no free pages")
	ErrNoFreeSpace     = errors.New("no free space")
)

// 索引相关错误
var (
	ErrIndexNotFound = errors.New("index not found")
	ErrKeyNotFound   = errors.New("key not found")
	ErrInvalidKey    = errors.New("invalid key")
	ErrTreeCorrupted = errors.New("tree corrupted")
)

// 系统错误
var (
	ErrNotImplemented   = errors.New("not implemented")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInternalError    = errors.New("internal error")
	ErrIOError          = errors.New("I/O error")
)
