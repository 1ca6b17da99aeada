package latch

import "sync"

// Latch 页面闩锁，保护单个页面或控制结构的短临界区
type Latch struct {
	mu sync.RWMutex
}

// NewLatch 创建一个新的闩锁
func NewLatch() *Latch {
	return &Latch{}
}

// Lock 获取独占闩锁
func (l *Latch) Lock() {
	l.mu.Lock()
}

// Unlock 释放独占闩锁
func (l *Latch) Unlock() {
	l.mu.Unlock()
}

// RLock 获取共享闩锁
func (l *Latch) RLock() {
	l.mu.RLock()
}

// RUnlock 释放共享闩锁
func (l *Latch) RUnlock() {
	l.mu.RUnlock()
}

// TryLock 尝试获取独占闩锁
func (l *Latch) TryLock() bool {
	return l.mu.TryLock()
}

// TryRLock 尝试获取共享闩锁
func (l *Latch) TryRLock() bool {
	return l.mu.TryRLock()
}
