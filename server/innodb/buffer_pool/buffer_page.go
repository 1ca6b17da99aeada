package buffer_pool

import (
	"sync"
	"time"

	"github.com/zhukovaskychina/xmysql-changebuffer/server/common"
)

// BufferPageState 页面在缓冲池中的状态
type BufferPageState uint8

const (
	BUF_BLOCK_NOT_USED BufferPageState = iota
	BUF_BLOCK_READY_FOR_USE
	BUF_BLOCK_FILE_PAGE
)

// BufferPage 缓冲池中一个页面的控制体
// 保存space_id、page_no、页面内容以及脏页标记等状态
type BufferPage struct {
	spaceId   uint32
	pageNo    uint32
	pageState BufferPageState

	// 版本控制
	newestModification common.LSNT
	oldestModification common.LSNT
	accessTime         uint64

	// 页面内容
	content []byte

	// 状态标记
	dirty bool
	mu    sync.RWMutex
}

// NewBufferPage 创建缓冲页面
func NewBufferPage(spaceID uint32, pageNo uint32, pageSize uint32) *BufferPage {
	return &BufferPage{
		spaceId:   spaceID,
		pageNo:    pageNo,
		pageState: BUF_BLOCK_READY_FOR_USE,
		content:   make([]byte, pageSize),
	}
}

// GetSpaceID 获取表空间ID
func (bp *BufferPage) GetSpaceID() uint32 {
	return bp.spaceId
}

// GetPageNo 获取页面号
func (bp *BufferPage) GetPageNo() uint32 {
	return bp.pageNo
}

// GetContent 获取页面内容
func (bp *BufferPage) GetContent() []byte {
	bp.mu.RLock()
	defer bp.mu.RUnlock()
	return bp.content
}

// SetContent 设置页面内容
func (bp *BufferPage) SetContent(content []byte) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.content = content
}

// IsDirty 检查是否为脏页
func (bp *BufferPage) IsDirty() bool {
	bp.mu.RLock()
	defer bp.mu.RUnlock()
	return bp.dirty
}

// MarkDirty 标记为脏页
func (bp *BufferPage) MarkDirty() {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.dirty = true
}

// ClearDirty 清除脏页标记
func (bp *BufferPage) ClearDirty() {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.dirty = false
}

// Touch 更新访问时间
func (bp *BufferPage) Touch() {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.accessTime = uint64(time.Now().UnixNano())
}

// GetLSN 获取最新修改LSN
func (bp *BufferPage) GetLSN() uint64 {
	bp.mu.RLock()
	defer bp.mu.RUnlock()
	return uint64(bp.newestModification)
}

// SetLSN 设置最新修改LSN，首次修改时同步记下最老修改LSN
func (bp *BufferPage) SetLSN(lsn uint64) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.newestModification = common.LSNT(lsn)
	if bp.oldestModification == 0 {
		bp.oldestModification = common.LSNT(lsn)
	}
}
