package buffer_pool

import (
	"container/list"
	"sync"
	"time"

	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/mtr"
)

// PrefetchManager 管理预读
// 预读是投机性的：处于ibuf作用域的调用方不允许触发预读，
// 变更缓冲自身的页面与位图页不允许被预读
type PrefetchManager struct {
	bufferPool    *BufferPool
	prefetchQueue *list.List
	prefetchSize  int
	maxQueueSize  int
	workers       int
	stopCh        chan struct{}
	mu            sync.Mutex

	// pageFilter 返回true的页面禁止预读，由变更缓冲在初始化时注册
	pageFilter func(spaceID uint32, pageNo uint32) bool
}

// PrefetchRequest 预读请求
type PrefetchRequest struct {
	SpaceID   uint32
	StartPage uint32
	EndPage   uint32
	Priority  int
	Deadline  time.Time
}

// NewPrefetchManager 创建预读管理器
func NewPrefetchManager(bufferPool *BufferPool, prefetchSize int, maxQueueSize int, workers int) *PrefetchManager {
	pm := &PrefetchManager{
		bufferPool:    bufferPool,
		prefetchQueue: list.New(),
		prefetchSize:  prefetchSize,
		maxQueueSize:  maxQueueSize,
		workers:       workers,
		stopCh:        make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		go pm.prefetchWorker()
	}

	return pm
}

// SetPageFilter 注册禁止预读的页面判定
func (pm *PrefetchManager) SetPageFilter(filter func(spaceID uint32, pageNo uint32) bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.pageFilter = filter
}

// TriggerPrefetch 触发预读
// m为调用方的迷你事务；其ibuf标记置位期间预读请求被拒绝
func (pm *PrefetchManager) TriggerPrefetch(spaceID uint32, startPage uint32, m *mtr.Mtr) bool {
	if m != nil && m.IsInsideIbuf() {
		return false
	}

	request := &PrefetchRequest{
		SpaceID:   spaceID,
		StartPage: startPage,
		EndPage:   startPage + uint32(pm.prefetchSize),
		Priority:  5,
		Deadline:  time.Now().Add(time.Second * 5),
	}

	return pm.addPrefetchRequest(request)
}

// addPrefetchRequest 添加预读请求到队列
func (pm *PrefetchManager) addPrefetchRequest(request *PrefetchRequest) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.prefetchQueue.Len() >= pm.maxQueueSize {
		return false
	}

	// 按优先级插入队列
	for e := pm.prefetchQueue.Front(); e != nil; e = e.Next() {
		req := e.Value.(*PrefetchRequest)
		if request.Priority > req.Priority {
			pm.prefetchQueue.InsertBefore(request, e)
			return true
		}
	}
	pm.prefetchQueue.PushBack(request)
	return true
}

// GetQueueLength 当前队列长度
func (pm *PrefetchManager) GetQueueLength() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.prefetchQueue.Len()
}

// ClearQueue 清空队列
func (pm *PrefetchManager) ClearQueue() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.prefetchQueue.Init()
}

// Stop 停止预读工作线程
func (pm *PrefetchManager) Stop() {
	close(pm.stopCh)
}

func (pm *PrefetchManager) getNextRequest() *PrefetchRequest {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	front := pm.prefetchQueue.Front()
	if front == nil {
		return nil
	}
	pm.prefetchQueue.Remove(front)
	return front.Value.(*PrefetchRequest)
}

func (pm *PrefetchManager) prefetchWorker() {
	ticker := time.NewTicker(time.Millisecond * 10)
	defer ticker.Stop()

	for {
		select {
		case <-pm.stopCh:
			return
		case <-ticker.C:
			request := pm.getNextRequest()
			if request == nil {
				continue
			}
			if time.Now().After(request.Deadline) {
				continue
			}
			pm.executePrefetch(request)
		}
	}
}

// executePrefetch 执行一个预读请求，被过滤的页面跳过
func (pm *PrefetchManager) executePrefetch(request *PrefetchRequest) {
	pm.mu.Lock()
	filter := pm.pageFilter
	pm.mu.Unlock()

	for pageNo := request.StartPage; pageNo < request.EndPage; pageNo++ {
		if filter != nil && filter(request.SpaceID, pageNo) {
			continue
		}
		if pm.bufferPool.Contains(request.SpaceID, pageNo) {
			continue
		}
		pm.bufferPool.GetOrCreatePage(request.SpaceID, pageNo)
	}
}
