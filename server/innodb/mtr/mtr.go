package mtr

import (
	"sync/atomic"
)

// LogMode 重做日志模式
type LogMode uint8

const (
	// MTR_LOG_ALL 默认模式，记录所有修改
	MTR_LOG_ALL LogMode = iota
	// MTR_LOG_NONE 不记录日志，允许有修改（仅限不需要重放的场景）
	MTR_LOG_NONE
	// MTR_LOG_NO_REDO 不记录重做日志，用于只读模式下的结构性维护
	MTR_LOG_NO_REDO
)

// State 迷你事务状态
type State uint8

const (
	MTR_STATE_INIT State = iota
	MTR_STATE_ACTIVE
	MTR_STATE_COMMITTED
)

// 全局LSN发生器，提交时为mtr分配提交序号
var commitLSN atomic.Uint64

// Mtr 迷你事务，一个原子的持久化工作单元
// 持有闩锁备忘录，提交时逆序释放；insideIbuf标记该作用域
// 正在操作变更缓冲自身的结构
type Mtr struct {
	state         State
	logMode       LogMode
	insideIbuf    bool
	modifications bool
	memo          []func() // 提交时逆序执行的闩锁释放
	commitLsn     uint64
}

// Start 启动迷你事务
func (m *Mtr) Start() {
	if m.state == MTR_STATE_ACTIVE {
		panic("mtr: Start on active mini-transaction")
	}
	m.state = MTR_STATE_ACTIVE
	m.logMode = MTR_LOG_ALL
	m.insideIbuf = false
	m.modifications = false
	m.memo = m.memo[:0]
	m.commitLsn = 0
}

// Commit 提交迷你事务，逆序释放备忘录中的闩锁
// 进入过ibuf作用域的mtr必须先经由ibuf提交路径清除标记
func (m *Mtr) Commit() {
	if m.state != MTR_STATE_ACTIVE {
		panic("mtr: Commit on non-active mini-transaction")
	}
	if m.insideIbuf {
		panic("mtr: Commit with ibuf marker still set")
	}

	if m.modifications && m.logMode == MTR_LOG_ALL {
		m.commitLsn = commitLSN.Add(1)
	}

	for i := len(m.memo) - 1; i >= 0; i-- {
		m.memo[i]()
	}
	m.memo = m.memo[:0]
	m.state = MTR_STATE_COMMITTED
}

// SetLogMode 设置日志模式，返回旧模式
func (m *Mtr) SetLogMode(mode LogMode) LogMode {
	old := m.logMode
	m.logMode = mode
	return old
}

// GetLogMode 获取日志模式
func (m *Mtr) GetLogMode() LogMode {
	return m.logMode
}

// EnterIbuf 标记当前作用域在操作变更缓冲自身的结构
func (m *Mtr) EnterIbuf() {
	if m.state != MTR_STATE_ACTIVE {
		panic("mtr: EnterIbuf on non-active mini-transaction")
	}
	m.insideIbuf = true
}

// ExitIbuf 清除ibuf作用域标记
func (m *Mtr) ExitIbuf() {
	m.insideIbuf = false
}

// IsInsideIbuf 查询ibuf作用域标记
func (m *Mtr) IsInsideIbuf() bool {
	return m.insideIbuf
}

// IsActive 迷你事务是否处于活动状态
func (m *Mtr) IsActive() bool {
	return m.state == MTR_STATE_ACTIVE
}

// MemoPush 登记一个提交时执行的闩锁释放动作
func (m *Mtr) MemoPush(release func()) {
	if m.state != MTR_STATE_ACTIVE {
		panic("mtr: MemoPush on non-active mini-transaction")
	}
	m.memo = append(m.memo, release)
}

// SetModified 标记本作用域产生了页面修改
func (m *Mtr) SetModified() {
	m.modifications = true
}

// HasModifications 本作用域是否产生过页面修改
func (m *Mtr) HasModifications() bool {
	return m.modifications
}

// CommitLSN 提交序号，未真正记录日志时为0
func (m *Mtr) CommitLSN() uint64 {
	return m.commitLsn
}
