package ibuf

import (
	"github.com/zhukovaskychina/xmysql-changebuffer/logger"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/mtr"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/storage/wrapper/page"
)

// BitmapPage 判断页面地址是否为位图页（层级3）
// 纯算术，不做任何I/O：页号对物理页大小取模等于固定的位图偏移
func BitmapPage(pageID basic.PageID, physPageSize uint32) bool {
	if physPageSize == 0 || physPageSize&(physPageSize-1) != 0 {
		panic("ibuf: physical page size must be a power of two")
	}
	return pageID.PageNo&(physPageSize-1) == IBUF_BITMAP_OFFSET
}

// bitmapPageNo 计算跟踪pageNo的位图页页号
func bitmapPageNo(pageNo uint32, physPageSize uint32) uint32 {
	return pageNo&^(physPageSize-1) + IBUF_BITMAP_OFFSET
}

// bitmapOffset 页面在其位图页内的偏移
func bitmapOffset(pageNo uint32, physPageSize uint32) uint32 {
	return pageNo & (physPageSize - 1)
}

// IndexPageCalcFreeBits 将最大插入字节数折算为2比特空闲编码
// 阶梯为页大小的1/32：编码0/1/2/3对应0/512/1024/2048字节(16K页)
func IndexPageCalcFreeBits(pageSize uint32, maxInsSize uint32) byte {
	n := maxInsSize / (pageSize / 32)
	if n == 3 {
		n = 2
	}
	if n > 3 {
		n = 3
	}
	return byte(n)
}

// IndexPageCalcFreeFromBits 从2比特编码还原保证可用的字节数下界
func IndexPageCalcFreeFromBits(pageSize uint32, bits byte) uint32 {
	if bits > 3 {
		panic("ibuf: free bits out of range")
	}
	if bits == 3 {
		return 4 * (pageSize / 32)
	}
	return uint32(bits) * (pageSize / 32)
}

// withBitmapPage 在位图页闩锁保护下执行fn
// 位图页闩锁只覆盖单次位图更新，绝不跨越调用方的更大作用域。
// 嵌套只允许单向：缓冲索引闩锁在外、位图页闩锁在内，反向禁止
func (ib *Ibuf) withBitmapPage(pageID basic.PageID, physPageSize uint32,
	fn func(bm *page.IBufBitmapPage, offset uint32)) error {

	bmPageNo := bitmapPageNo(pageID.PageNo, physPageSize)
	bufPage := ib.pool.GetOrCreatePage(pageID.SpaceID, bmPageNo)

	content := bufPage.GetContent()
	if allZero(content) {
		page.FormatIBufBitmapPage(content, bmPageNo)
	}

	bm, err := page.WrapIBufBitmapPage(content, physPageSize)
	if err != nil {
		return err
	}

	fn(bm, bitmapOffset(pageID.PageNo, physPageSize))
	bufPage.MarkDirty()
	return nil
}

func allZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// IsIbufPage 判断页面是否为缓冲层级2或3的页面（"classify"）
// 恢复子系统禁用ibuf操作期间调用属于编程错误
// exact为true时闩住位图页读取权威的ibuf标记位；否则仅凭固定地址
// 算术作答，省一次闩锁但结果只能作为参考
func (ib *Ibuf) IsIbufPage(pageID basic.PageID, physPageSize uint32, exact bool, m *mtr.Mtr) bool {
	if recvNoIbufOperations.Load() {
		panic("ibuf: page classification during recovery with ibuf operations disabled")
	}

	if pageID.SpaceID != IBUF_SPACE_ID {
		return false
	}
	if pageID.PageNo == IBUF_TREE_ROOT_PAGE_NO {
		return true
	}
	if BitmapPage(pageID, physPageSize) {
		return true
	}
	if !exact {
		return false
	}

	// 权威判定：位图页中的ibuf标记位记录该页是否属于缓冲自身的索引
	var isIbuf bool
	ownScope := m == nil
	if ownScope {
		m = &mtr.Mtr{}
		ib.MtrStart(m)
	}
	err := ib.withBitmapPage(pageID, physPageSize, func(bm *page.IBufBitmapPage, offset uint32) {
		isIbuf = bm.IbufFlag(offset)
	})
	if ownScope {
		ib.MtrCommit(m)
	}
	if err != nil {
		logger.Errorf("ibuf: bitmap page for %s unreadable: %v", pageID, err)
		return false
	}
	return isIbuf
}

// ResetFreeBits 将页面的空闲编码压到最低值
// 在独立于空间消费方的作用域中先行提交；向"没有空间"方向取整永远是安全的
func (ib *Ibuf) ResetFreeBits(block basic.IndexPage) {
	m := &mtr.Mtr{}
	ib.MtrStart(m)
	ib.ResetFreeBitsLow(block, m)
	ib.MtrCommit(m)
}

// ResetFreeBitsLow 在调用方提供的作用域内压低空闲编码
// 用于重置必须与该作用域内其他工作保持因果顺序的场合
func (ib *Ibuf) ResetFreeBitsLow(block basic.IndexPage, m *mtr.Mtr) {
	if m == nil || !m.IsActive() {
		panic("ibuf: ResetFreeBitsLow requires an active mini-transaction")
	}

	physPageSize := uint32(ib.cfg.InnodbPageSize)
	err := ib.withBitmapPage(block.ID(), physPageSize, func(bm *page.IBufBitmapPage, offset uint32) {
		bm.SetFreeBits(offset, 0)
	})
	if err != nil {
		// 位图操作在正常运行中不会失败，失败即编程契约被破坏
		panic(err)
	}
	m.SetModified()
}

// UpdateFreeBitsForTwoPages 将两个页面的空闲编码更新为当前真实值
// 必须在产生这些空闲空间的同一作用域内执行：作用域的原子性保证
// 空间变化与位图更新同生共死，这是唯一允许编码升高的地方
func (ib *Ibuf) UpdateFreeBitsForTwoPages(block1, block2 basic.IndexPage, m *mtr.Mtr) {
	if m == nil || !m.IsActive() {
		panic("ibuf: UpdateFreeBitsForTwoPages requires an active mini-transaction")
	}

	// 固定按页面地址顺序处理，避免闩锁顺序颠倒
	a, b := block1, block2
	if b.ID().Less(a.ID()) {
		a, b = b, a
	}
	ib.updateFreeBitsLow(a, m)
	ib.updateFreeBitsLow(b, m)
}

// updateFreeBitsLow 按页面当前真实空闲空间写入编码
func (ib *Ibuf) updateFreeBitsLow(block basic.IndexPage, m *mtr.Mtr) {
	physPageSize := uint32(ib.cfg.InnodbPageSize)
	bits := IndexPageCalcFreeBits(physPageSize, block.MaxInsertSize())
	err := ib.withBitmapPage(block.ID(), physPageSize, func(bm *page.IBufBitmapPage, offset uint32) {
		bm.SetFreeBits(offset, bits)
	})
	if err != nil {
		panic(err)
	}
	m.SetModified()
}

// SetBitmapForBulkLoad 为批量装载的页面播种位图状态
// 批量装载绕过常规缓冲写路径，页面从未被逐页跟踪过，
// 这里一次性建立空闲编码并清除缓冲标记
func (ib *Ibuf) SetBitmapForBulkLoad(block basic.IndexPage, m *mtr.Mtr) {
	if m == nil || !m.IsActive() {
		panic("ibuf: SetBitmapForBulkLoad requires an active mini-transaction")
	}

	physPageSize := uint32(ib.cfg.InnodbPageSize)
	bits := IndexPageCalcFreeBits(physPageSize, block.MaxInsertSize())
	err := ib.withBitmapPage(block.ID(), physPageSize, func(bm *page.IBufBitmapPage, offset uint32) {
		bm.SetFreeBits(offset, bits)
		bm.SetBuffered(offset, false)
	})
	if err != nil {
		panic(err)
	}
	m.SetModified()
}

// readFreeBits 读取页面当前的空闲编码
func (ib *Ibuf) readFreeBits(pageID basic.PageID, physPageSize uint32) byte {
	var bits byte
	err := ib.withBitmapPage(pageID, physPageSize, func(bm *page.IBufBitmapPage, offset uint32) {
		bits = bm.FreeBits(offset)
	})
	if err != nil {
		panic(err)
	}
	return bits
}

// setBufferedBit 设置/清除页面的缓冲标记
func (ib *Ibuf) setBufferedBit(pageID basic.PageID, physPageSize uint32, buffered bool) {
	err := ib.withBitmapPage(pageID, physPageSize, func(bm *page.IBufBitmapPage, offset uint32) {
		bm.SetBuffered(offset, buffered)
	})
	if err != nil {
		panic(err)
	}
}

// clearBufferedBitIfDrained 确认页面不再有缓冲条目后清除缓冲标记
// 判空与清位在缓冲索引闩锁内一气呵成：并发插入在同一闩锁内置位，
// 二者串行化之后标记不可能与条目脱节
func (ib *Ibuf) clearBufferedBitIfDrained(pageID basic.PageID, physPageSize uint32) {
	ib.rootLatch.Lock()
	defer ib.rootLatch.Unlock()

	drained := true
	low, high := ibufPageRange(pageID.SpaceID, pageID.PageNo)
	ib.index.AscendRange(low, high, func(key, rec []byte) bool {
		drained = false
		return false
	})
	if drained {
		ib.setBufferedBit(pageID, physPageSize, false)
	}
}

// stampBitmapLSN 把作用域的提交LSN盖到跟踪pageID的位图页上
// 最新修改LSN只升不降，刷盘侧以它决定落盘顺序
func (ib *Ibuf) stampBitmapLSN(pageID basic.PageID, physPageSize uint32, lsn uint64) {
	if lsn == 0 {
		return
	}
	bufPage := ib.pool.GetOrCreatePage(pageID.SpaceID, bitmapPageNo(pageID.PageNo, physPageSize))
	if lsn > bufPage.GetLSN() {
		bufPage.SetLSN(lsn)
	}
}

// SetIbufPageFlag 标记页面属于缓冲自身的索引（分配缓冲索引页时调用）
func (ib *Ibuf) SetIbufPageFlag(pageID basic.PageID, physPageSize uint32, flag bool, m *mtr.Mtr) {
	if m == nil || !m.IsInsideIbuf() {
		panic("ibuf: SetIbufPageFlag outside an ibuf mini-transaction")
	}
	err := ib.withBitmapPage(pageID, physPageSize, func(bm *page.IBufBitmapPage, offset uint32) {
		bm.SetIbufFlag(offset, flag)
	})
	if err != nil {
		panic(err)
	}
	m.SetModified()
}
