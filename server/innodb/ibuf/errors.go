package ibuf

import "errors"

// 变更缓冲错误
var (
	// ErrIbufInit 启动时固定地址结构缺失或损坏，致命错误
	ErrIbufInit = errors.New("insert buffer initialization failed")

	// ErrIbufCorruption 缓冲记录或位图状态内部不一致
	ErrIbufCorruption = errors.New("insert buffer corruption")

	// ErrIbufSegmentFull 缓冲自身的段无法容纳新条目，调用方需回退为直接写
	ErrIbufSegmentFull = errors.New("insert buffer segment full")

	// ErrIbufNotStarted 控制块未初始化
	ErrIbufNotStarted = errors.New("insert buffer not initialized")

	// ErrIbufNoRoom 目标页面的空闲空间编码不足以容纳该操作
	ErrIbufNoRoom = errors.New("no room recorded for buffered operation")

	// ErrIbufOpDisabled 当前change_buffering模式不缓冲该类操作
	ErrIbufOpDisabled = errors.New("operation type not enabled for change buffering")

	// ErrIbufReentrant 调用方已处于ibuf例程内，或目标是缓冲自身的页面
	ErrIbufReentrant = errors.New("recursive change buffering refused")
)
