package ibuf

import (
	"encoding/binary"
	"sync/atomic"

	jerrors "github.com/juju/errors"
	"github.com/zhukovaskychina/xmysql-changebuffer/logger"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/common"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/conf"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/buffer_pool"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/latch"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/mtr"
)

// 变更缓冲的固定地址，位于0号表空间
// 这些地址持久化在磁盘布局中，初始化时解析为类型化的页面地址，绝不临时重算
const (
	IBUF_SPACE_ID          uint32 = 0
	IBUF_HEADER_PAGE_NO    uint32 = 3 // 段描述符头页
	IBUF_TREE_ROOT_PAGE_NO uint32 = 4 // 缓冲索引根页
	IBUF_BITMAP_OFFSET     uint32 = 1 // 每个页号段内位图页的固定偏移
)

// 头页中段头的魔数，用于启动时校验固定结构
const ibufSegMagic uint32 = 0x49425546 // "IBUF"

// recvNoIbufOperations 恢复子系统在特定阶段禁用变更缓冲
// 该标志置位期间调用层级判定属于编程错误
var recvNoIbufOperations atomic.Bool

// SetRecvNoIbufOperations 由恢复子系统设置/清除禁用标志
func SetRecvNoIbufOperations(disabled bool) {
	recvNoIbufOperations.Store(disabled)
}

// Ibuf 变更缓冲控制块，进程生命周期内的单例
// size等标量是持久化结构状态的咨询性缓存，最多滞后一个已提交作用域，
// 只用于启发式判断，不得用于正确性
type Ibuf struct {
	size atomic.Uint64 // 缓冲索引当前页数，宽松读写

	segSize     uint64 // 段已分配页数
	empty       bool   // 根页闩锁保护，true当且仅当无任何缓冲条目
	freeListLen uint64 // 空闲链表长度
	height      uint8  // 树高

	index basic.OrderedIndex // 缓冲自身的索引

	rootLatch latch.Latch // 缓冲索引根页闩锁

	headerPage basic.PageID // 固定地址头页
	rootPage   basic.PageID // 固定地址根页

	pool    *buffer_pool.BufferPool
	fetcher basic.PageFetcher
	cfg     *conf.Cfg

	// 缓冲最大页数，超出后拒绝新的缓冲写
	maxSizePages uint64

	active bool
}

// InitAtDBStart 在数据库启动时定位并挂接变更缓冲
// 固定结构缺失或损坏时返回ErrIbufInit，启动无法继续
func InitAtDBStart(cfg *conf.Cfg, pool *buffer_pool.BufferPool,
	index basic.OrderedIndex, fetcher basic.PageFetcher) (*Ibuf, error) {

	if cfg == nil || pool == nil || index == nil {
		return nil, jerrors.Annotate(ErrIbufInit, "missing collaborator")
	}

	ib := &Ibuf{
		index:      index,
		headerPage: basic.NewPageID(IBUF_SPACE_ID, IBUF_HEADER_PAGE_NO),
		rootPage:   basic.NewPageID(IBUF_SPACE_ID, IBUF_TREE_ROOT_PAGE_NO),
		pool:       pool,
		fetcher:    fetcher,
		cfg:        cfg,
	}

	poolPages := uint64(cfg.InnodbBufferPoolSize) / uint64(cfg.InnodbPageSize)
	ib.maxSizePages = poolPages * uint64(cfg.InnodbChangeBufferMaxSize) / 100

	if err := ib.attachHeaderPage(); err != nil {
		return nil, err
	}
	if err := ib.attachRootPage(); err != nil {
		return nil, err
	}

	// 从持久化的段元数据填充控制块
	stats := index.Stats()
	ib.size.Store(stats.Pages)
	ib.segSize = stats.SegPages
	ib.freeListLen = stats.FreeListLen
	ib.height = stats.Height
	ib.empty = index.Empty()
	ib.active = true

	// 注册预读过滤：缓冲自身页面与位图页禁止投机读取
	if pm := pool.GetPrefetchManager(); pm != nil {
		physPageSize := uint32(cfg.InnodbPageSize)
		pm.SetPageFilter(func(spaceID uint32, pageNo uint32) bool {
			id := basic.NewPageID(spaceID, pageNo)
			if BitmapPage(id, physPageSize) {
				return true
			}
			return spaceID == IBUF_SPACE_ID &&
				(pageNo == IBUF_HEADER_PAGE_NO || pageNo == IBUF_TREE_ROOT_PAGE_NO)
		})
	}

	logger.Infof("insert buffer initialized: size=%d pages, seg_size=%d, height=%d, empty=%v",
		stats.Pages, ib.segSize, ib.height, ib.empty)
	return ib, nil
}

// attachHeaderPage 挂接头页，必要时完成首次格式化
// 缓冲池新建的页面为全零，其类型字段读出0x0000；魔数为零且类型为零
// 或"已分配"的页面都按全新实例处理
func (ib *Ibuf) attachHeaderPage() error {
	page := ib.pool.GetOrCreatePage(ib.headerPage.SpaceID, ib.headerPage.PageNo)
	content := page.GetContent()
	if len(content) < common.FileHeaderSize+8 {
		return jerrors.Annotatef(ErrIbufInit, "header page %s truncated", ib.headerPage)
	}

	rawType := binary.BigEndian.Uint16(content[common.FilPageTypeOffset:])
	magic := binary.BigEndian.Uint32(content[common.FileHeaderSize:])

	switch {
	case magic == 0 && (rawType == 0 || rawType == uint16(common.FIL_PAGE_TYPE_ALLOCATED)):
		// 全新实例，格式化段描述符头页
		binary.BigEndian.PutUint32(content[common.FilPageOffset:], ib.headerPage.PageNo)
		binary.BigEndian.PutUint16(content[common.FilPageTypeOffset:], uint16(common.FIL_PAGE_TYPE_SYS))
		binary.BigEndian.PutUint32(content[common.FileHeaderSize:], ibufSegMagic)
		page.MarkDirty()
	case rawType == uint16(common.FIL_PAGE_TYPE_SYS) && magic == ibufSegMagic:
		// 已有实例
	default:
		return jerrors.Annotatef(ErrIbufInit,
			"header page %s malformed: type=0x%04X magic=0x%08X", ib.headerPage, rawType, magic)
	}
	return nil
}

// attachRootPage 挂接缓冲索引根页
// FIL_PAGE_INDEX编码恰为0x0000，与零填充的新页面无法单凭类型区分，
// 以页号字段是否已回填判断根页是否格式化过
func (ib *Ibuf) attachRootPage() error {
	page := ib.pool.GetOrCreatePage(ib.rootPage.SpaceID, ib.rootPage.PageNo)
	content := page.GetContent()
	if len(content) < common.FileHeaderSize {
		return jerrors.Annotatef(ErrIbufInit, "tree root page %s truncated", ib.rootPage)
	}

	rawType := binary.BigEndian.Uint16(content[common.FilPageTypeOffset:])
	pageNoField := binary.BigEndian.Uint32(content[common.FilPageOffset:])

	switch {
	case pageNoField == 0 && (rawType == 0 || rawType == uint16(common.FIL_PAGE_TYPE_ALLOCATED)):
		// 全新实例，格式化根页
		binary.BigEndian.PutUint32(content[common.FilPageOffset:], ib.rootPage.PageNo)
		binary.BigEndian.PutUint16(content[common.FilPageTypeOffset:], uint16(common.FIL_PAGE_INDEX))
		page.MarkDirty()
	case rawType == uint16(common.FIL_PAGE_INDEX) && pageNoField == ib.rootPage.PageNo:
		// 已有实例
	default:
		return jerrors.Annotatef(ErrIbufInit,
			"tree root page %s malformed: type=0x%04X page_no=%d", ib.rootPage, rawType, pageNoField)
	}
	return nil
}

// Close 关闭变更缓冲并释放控制块，从未初始化时为幂等空操作
func (ib *Ibuf) Close() {
	if ib == nil || !ib.active {
		return
	}
	ib.rootLatch.Lock()
	defer ib.rootLatch.Unlock()

	ib.active = false
	ib.index = nil
	ib.fetcher = nil
	logger.Info("insert buffer closed")
}

// Size 缓冲索引当前页数（咨询值）
func (ib *Ibuf) Size() uint64 {
	return ib.size.Load()
}

// SegSize 段已分配页数（咨询值）
func (ib *Ibuf) SegSize() uint64 {
	ib.rootLatch.RLock()
	defer ib.rootLatch.RUnlock()
	return ib.segSize
}

// Height 树高（咨询值）
func (ib *Ibuf) Height() uint8 {
	ib.rootLatch.RLock()
	defer ib.rootLatch.RUnlock()
	return ib.height
}

// IsEmpty 缓冲是否为空，根页闩锁保护
func (ib *Ibuf) IsEmpty() bool {
	ib.rootLatch.RLock()
	defer ib.rootLatch.RUnlock()
	return ib.empty
}

// refreshStatsLocked 在持有根页闩锁的前提下刷新咨询性字段
func (ib *Ibuf) refreshStatsLocked() {
	stats := ib.index.Stats()
	ib.size.Store(stats.Pages)
	ib.segSize = stats.SegPages
	ib.freeListLen = stats.FreeListLen
	ib.height = stats.Height
	ib.empty = ib.index.Empty()
}

// MtrStart 启动一个ibuf迷你事务
// 只读模式下降级为不记录重做日志：只读模式保证不会有对应的页面
// 修改需要重放
func (ib *Ibuf) MtrStart(m *mtr.Mtr) {
	m.Start()
	m.EnterIbuf()

	if ib.cfg != nil && ib.cfg.InnodbReadOnly {
		m.SetLogMode(mtr.MTR_LOG_NO_REDO)
	}
}

// MtrCommit 提交一个ibuf迷你事务
// 要求ibuf标记仍然置位，这是编程契约
func (ib *Ibuf) MtrCommit(m *mtr.Mtr) {
	if !m.IsInsideIbuf() {
		panic("ibuf: MtrCommit without ibuf marker")
	}
	m.ExitIbuf()
	m.Commit()
}

// Inside 当前mtr是否处于ibuf例程内
// 处于ibuf例程内的线程禁止触发非ibuf页面的预读
func Inside(m *mtr.Mtr) bool {
	return m.IsInsideIbuf()
}
