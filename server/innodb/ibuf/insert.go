package ibuf

import (
	jerrors "github.com/juju/errors"
	"github.com/zhukovaskychina/xmysql-changebuffer/logger"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/conf"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/mtr"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/storage/wrapper/page"
)

// shouldBuffer 按change_buffering模式判定操作类型是否允许缓冲
func shouldBuffer(op IbufOpType, mode string) bool {
	switch mode {
	case conf.ChangeBufferingNone:
		return false
	case conf.ChangeBufferingInserts:
		return op == IBUF_OP_INSERT
	case conf.ChangeBufferingDeletes:
		return op == IBUF_OP_DELETE_MARK
	case conf.ChangeBufferingChanges:
		return op == IBUF_OP_INSERT || op == IBUF_OP_DELETE_MARK
	case conf.ChangeBufferingPurges:
		return op == IBUF_OP_DELETE
	case conf.ChangeBufferingAll:
		return true
	default:
		return false
	}
}

// Insert 缓冲一个针对非驻留二级索引叶子页面的操作
// 调用方是无法直接触达目标页面的写路径；任何以错误返回的拒绝都要求
// 调用方回退为读入页面后的直接写
func (ib *Ibuf) Insert(op IbufOpType, pageID basic.PageID, key []byte,
	physPageSize uint32, callerMtr *mtr.Mtr) error {

	if ib == nil || !ib.active {
		return ErrIbufNotStarted
	}
	if op >= IBUF_OP_COUNT {
		return jerrors.Annotatef(ErrIbufCorruption, "unknown operation %d", op)
	}
	if recvNoIbufOperations.Load() {
		return ErrIbufOpDisabled
	}
	if !shouldBuffer(op, ib.cfg.InnodbChangeBuffering) {
		return ErrIbufOpDisabled
	}

	// 再入保护：处于ibuf例程内的执行上下文不得继续缓冲，
	// 缓冲机制绝不能被要求跟踪它自己
	if callerMtr != nil && callerMtr.IsInsideIbuf() {
		return ErrIbufReentrant
	}
	if ib.isOwnPage(pageID, physPageSize) {
		return ErrIbufReentrant
	}

	// 体量节流：超出上限时拒绝并等待后台收缩，纯启发式
	if max := ib.maxSizePages; max > 0 && ib.Size() > max {
		logger.Debugf("ibuf: size %d exceeds max %d pages, refusing buffered write", ib.Size(), max)
		return ErrIbufSegmentFull
	}

	// 空闲编码在进入缓冲索引闩锁之前读取；承诺只会被并发合并抬高，
	// 提前读到的值向"没有空间"方向保守
	freeBytes := IndexPageCalcFreeFromBits(physPageSize, ib.readFreeBits(pageID, physPageSize))

	m := &mtr.Mtr{}
	ib.MtrStart(m)

	ib.rootLatch.Lock()

	counter, bufferedVolume := ib.pageBacklogLocked(pageID)
	if counter == COUNTER_UNDEFINED {
		ib.rootLatch.Unlock()
		ib.MtrCommit(m)
		return ErrIbufSegmentFull
	}

	rec := &IbufRecord{
		SpaceID: pageID.SpaceID,
		PageNo:  pageID.PageNo,
		Op:      op,
		Counter: counter,
		Key:     key,
	}

	// 只有插入会在合并时消耗目标页面空间：位图承诺的空间必须覆盖
	// 已缓冲的插入加上本次插入，否则合并可能撑爆页面
	if op == IBUF_OP_INSERT {
		need := uint32(len(key) + page.RECORD_OVERHEAD)
		if bufferedVolume+need > freeBytes {
			ib.rootLatch.Unlock()
			ib.MtrCommit(m)
			return ErrIbufNoRoom
		}
	}

	if err := ib.index.Insert(ibufKey(rec.SpaceID, rec.PageNo, rec.Counter), EncodeRecord(rec)); err != nil {
		ib.rootLatch.Unlock()
		ib.MtrCommit(m)
		return jerrors.Annotate(ErrIbufSegmentFull, err.Error())
	}

	ib.refreshStatsLocked()

	// 缓冲标记必须在条目仍受缓冲索引闩锁保护时置位，否则并发合并
	// 可能抢先清位，留下无标记可循的条目
	ib.setBufferedBit(pageID, physPageSize, true)
	m.SetModified()
	ib.rootLatch.Unlock()

	ib.MtrCommit(m)
	ib.stampBitmapLSN(pageID, physPageSize, m.CommitLSN())

	logger.Debugf("ibuf: buffered op=%d for %s counter=%d key_len=%d",
		op, pageID, counter, len(key))
	return nil
}

// isOwnPage 页面是否属于缓冲自身的层级1-3
func (ib *Ibuf) isOwnPage(pageID basic.PageID, physPageSize uint32) bool {
	if BitmapPage(pageID, physPageSize) {
		return true
	}
	return pageID.SpaceID == IBUF_SPACE_ID &&
		(pageID.PageNo == IBUF_HEADER_PAGE_NO || pageID.PageNo == IBUF_TREE_ROOT_PAGE_NO)
}

// pageBacklogLocked 返回页面下一个可用计数器以及已缓冲插入的体量
// 计数器耗尽时返回COUNTER_UNDEFINED
func (ib *Ibuf) pageBacklogLocked(pageID basic.PageID) (uint16, uint32) {
	var maxCounter int32 = -1
	var volume uint32

	low, high := ibufPageRange(pageID.SpaceID, pageID.PageNo)
	ib.index.AscendRange(low, high, func(key, recBuf []byte) bool {
		rec, err := DecodeRecord(recBuf)
		if err != nil {
			// 解码失败留给合并路径上报，这里按保守值处理
			maxCounter = int32(COUNTER_UNDEFINED) - 1
			return false
		}
		if int32(rec.Counter) > maxCounter {
			maxCounter = int32(rec.Counter)
		}
		if rec.Op == IBUF_OP_INSERT {
			volume += uint32(len(rec.Key) + page.RECORD_OVERHEAD)
		}
		return true
	})

	next := maxCounter + 1
	if next >= int32(COUNTER_UNDEFINED) {
		return COUNTER_UNDEFINED, volume
	}
	return uint16(next), volume
}
