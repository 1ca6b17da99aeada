package buffer_pool

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/zhukovaskychina/xmysql-changebuffer/logger"
)

// BufferPoolConfig 缓冲池配置
type BufferPoolConfig struct {
	PoolSize uint64 // 缓冲池大小(字节)
	PageSize uint32 // 页面大小

	// 预读配置
	PrefetchSize     int
	PrefetchWorkers  int
	PrefetchQueueLen int
}

// pageKey 缓冲池内部索引键
type pageKey struct {
	spaceID uint32
	pageNo  uint32
}

// BufferPool 页面缓存，LRU淘汰，只淘汰干净页面
type BufferPool struct {
	mu sync.RWMutex

	pageSize   uint32
	totalPages uint32

	pages  map[pageKey]*BufferPage
	lru    *list.List // 队首为最近访问
	lruPos map[pageKey]*list.Element

	// Statistics
	hitCount  uint64
	missCount uint64

	// Prefetch manager
	prefetchManager *PrefetchManager
}

// NewBufferPool 创建缓冲池
func NewBufferPool(config *BufferPoolConfig) *BufferPool {
	if config.PageSize == 0 || config.PoolSize < uint64(config.PageSize) {
		panic(ErrInvalidConfig)
	}

	bp := &BufferPool{
		pageSize:   config.PageSize,
		totalPages: uint32(config.PoolSize / uint64(config.PageSize)),
		pages:      make(map[pageKey]*BufferPage),
		lru:        list.New(),
		lruPos:     make(map[pageKey]*list.Element),
	}

	if config.PrefetchWorkers > 0 {
		bp.prefetchManager = NewPrefetchManager(bp,
			config.PrefetchSize, config.PrefetchQueueLen, config.PrefetchWorkers)
	}

	return bp
}

// GetPage 获取页面，未命中返回ErrPageNotFound
func (bp *BufferPool) GetPage(spaceID uint32, pageNo uint32) (*BufferPage, error) {
	key := pageKey{spaceID, pageNo}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	if page, ok := bp.pages[key]; ok {
		atomic.AddUint64(&bp.hitCount, 1)
		bp.touchLocked(key)
		page.Touch()
		return page, nil
	}

	atomic.AddUint64(&bp.missCount, 1)
	return nil, ErrPageNotFound
}

// GetOrCreatePage 获取页面，未命中时放入一个零填充的新页面
// 页面读取路径在磁盘I/O完成后通过SetContent填充内容
func (bp *BufferPool) GetOrCreatePage(spaceID uint32, pageNo uint32) *BufferPage {
	key := pageKey{spaceID, pageNo}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	if page, ok := bp.pages[key]; ok {
		atomic.AddUint64(&bp.hitCount, 1)
		bp.touchLocked(key)
		page.Touch()
		return page
	}

	atomic.AddUint64(&bp.missCount, 1)
	page := NewBufferPage(spaceID, pageNo, bp.pageSize)
	bp.insertLocked(key, page)
	return page
}

// PutPage 放入页面，必要时淘汰最久未访问的干净页面
func (bp *BufferPool) PutPage(page *BufferPage) error {
	key := pageKey{page.GetSpaceID(), page.GetPageNo()}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	if _, ok := bp.pages[key]; ok {
		bp.pages[key] = page
		bp.touchLocked(key)
		return nil
	}
	bp.insertLocked(key, page)
	return nil
}

// RemovePage 从缓冲池移除页面
func (bp *BufferPool) RemovePage(spaceID uint32, pageNo uint32) {
	key := pageKey{spaceID, pageNo}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	if elem, ok := bp.lruPos[key]; ok {
		bp.lru.Remove(elem)
		delete(bp.lruPos, key)
	}
	delete(bp.pages, key)
}

// RemoveSpace 移除一个表空间的全部页面，用于表空间丢弃
func (bp *BufferPool) RemoveSpace(spaceID uint32) int {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	removed := 0
	for key := range bp.pages {
		if key.spaceID != spaceID {
			continue
		}
		if elem, ok := bp.lruPos[key]; ok {
			bp.lru.Remove(elem)
			delete(bp.lruPos, key)
		}
		delete(bp.pages, key)
		removed++
	}
	return removed
}

// Contains 页面是否驻留在缓冲池
func (bp *BufferPool) Contains(spaceID uint32, pageNo uint32) bool {
	bp.mu.RLock()
	defer bp.mu.RUnlock()
	_, ok := bp.pages[pageKey{spaceID, pageNo}]
	return ok
}

// GetHitRatio 缓存命中率
func (bp *BufferPool) GetHitRatio() float64 {
	hit := atomic.LoadUint64(&bp.hitCount)
	miss := atomic.LoadUint64(&bp.missCount)
	if hit+miss == 0 {
		return 0
	}
	return float64(hit) / float64(hit+miss)
}

// GetPrefetchManager 获取预读管理器，未启用时为nil
func (bp *BufferPool) GetPrefetchManager() *PrefetchManager {
	return bp.prefetchManager
}

// PageSize 页面大小
func (bp *BufferPool) PageSize() uint32 {
	return bp.pageSize
}

func (bp *BufferPool) insertLocked(key pageKey, page *BufferPage) {
	if uint32(len(bp.pages)) >= bp.totalPages {
		bp.evictLocked()
	}
	bp.pages[key] = page
	bp.lruPos[key] = bp.lru.PushFront(key)
}

func (bp *BufferPool) touchLocked(key pageKey) {
	if elem, ok := bp.lruPos[key]; ok {
		bp.lru.MoveToFront(elem)
	}
}

// evictLocked 从LRU尾部淘汰一个干净页面，脏页跳过
func (bp *BufferPool) evictLocked() {
	for elem := bp.lru.Back(); elem != nil; elem = elem.Prev() {
		key := elem.Value.(pageKey)
		page := bp.pages[key]
		if page != nil && page.IsDirty() {
			continue
		}
		bp.lru.Remove(elem)
		delete(bp.lruPos, key)
		delete(bp.pages, key)
		return
	}
	logger.Warnf("buffer pool: 全部页面为脏页，无法淘汰")
}
