package mtr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMtrLifecycle(t *testing.T) {
	t.Run("启动与提交", func(t *testing.T) {
		m := &Mtr{}
		assert.False(t, m.IsActive())

		m.Start()
		assert.True(t, m.IsActive())
		assert.Equal(t, MTR_LOG_ALL, m.GetLogMode())

		m.Commit()
		assert.False(t, m.IsActive())
	})

	t.Run("重复启动panic", func(t *testing.T) {
		m := &Mtr{}
		m.Start()
		assert.Panics(t, func() { m.Start() })
	})

	t.Run("未启动时提交panic", func(t *testing.T) {
		m := &Mtr{}
		assert.Panics(t, func() { m.Commit() })
	})

	t.Run("提交后可重新启动", func(t *testing.T) {
		m := &Mtr{}
		m.Start()
		m.SetModified()
		m.Commit()

		m.Start()
		assert.False(t, m.HasModifications())
		m.Commit()
	})
}

func TestMtrIbufMarker(t *testing.T) {
	t.Run("标记置位期间禁止直接提交", func(t *testing.T) {
		m := &Mtr{}
		m.Start()
		m.EnterIbuf()
		assert.True(t, m.IsInsideIbuf())
		assert.Panics(t, func() { m.Commit() })

		m.ExitIbuf()
		m.Commit()
	})

	t.Run("非活动状态下进入ibuf作用域panic", func(t *testing.T) {
		m := &Mtr{}
		assert.Panics(t, func() { m.EnterIbuf() })
	})

	t.Run("重新启动清除标记", func(t *testing.T) {
		m := &Mtr{}
		m.Start()
		m.EnterIbuf()
		m.ExitIbuf()
		m.Commit()

		m.Start()
		assert.False(t, m.IsInsideIbuf())
		m.Commit()
	})
}

func TestMtrMemo(t *testing.T) {
	m := &Mtr{}
	m.Start()

	var order []int
	m.MemoPush(func() { order = append(order, 1) })
	m.MemoPush(func() { order = append(order, 2) })
	m.MemoPush(func() { order = append(order, 3) })
	m.Commit()

	// 闩锁逆序释放
	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestMtrLogMode(t *testing.T) {
	t.Run("切换并返回旧模式", func(t *testing.T) {
		m := &Mtr{}
		m.Start()
		old := m.SetLogMode(MTR_LOG_NO_REDO)
		assert.Equal(t, MTR_LOG_ALL, old)
		assert.Equal(t, MTR_LOG_NO_REDO, m.GetLogMode())
		m.Commit()
	})

	t.Run("有修改且记录日志时分配提交序号", func(t *testing.T) {
		m := &Mtr{}
		m.Start()
		m.SetModified()
		m.Commit()
		assert.NotZero(t, m.CommitLSN())
	})

	t.Run("不记录重做日志时不分配提交序号", func(t *testing.T) {
		m := &Mtr{}
		m.Start()
		m.SetLogMode(MTR_LOG_NO_REDO)
		m.SetModified()
		m.Commit()
		assert.Zero(t, m.CommitLSN())
	})

	t.Run("无修改时不分配提交序号", func(t *testing.T) {
		m := &Mtr{}
		m.Start()
		m.Commit()
		assert.Zero(t, m.CommitLSN())
	})
}
