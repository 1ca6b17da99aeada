package buffer_pool

import "errors"

var (
	ErrPageNotFound  = errors.New("page not found in buffer pool")
	ErrPoolExhausted = errors.New("buffer pool exhausted, all pages dirty")
	ErrInvalidConfig = errors.New("invalid buffer pool configuration")
)
