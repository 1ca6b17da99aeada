package ibuf

import (
	"errors"
	"sort"

	jerrors "github.com/juju/errors"
	"github.com/zhukovaskychina/xmysql-changebuffer/logger"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/mtr"
	"github.com/zhukovaskychina/xmysql-changebuffer/util"
)

// PageExists 探测某页面是否存在缓冲条目，只读
func (ib *Ibuf) PageExists(pageID basic.PageID, physPageSize uint32) bool {
	if ib == nil || !ib.active || ib.IsEmpty() {
		return false
	}

	found := false
	low, high := ibufPageRange(pageID.SpaceID, pageID.PageNo)
	ib.index.AscendRange(low, high, func(key, rec []byte) bool {
		found = true
		return false
	})
	return found
}

// collectForPage 收集某页面的全部缓冲条目，解码失败立即上报
func (ib *Ibuf) collectForPage(pageID basic.PageID) ([]*IbufRecord, error) {
	var records []*IbufRecord
	var decodeErr error

	low, high := ibufPageRange(pageID.SpaceID, pageID.PageNo)
	ib.index.AscendRange(low, high, func(key, recBuf []byte) bool {
		rec, err := DecodeRecord(recBuf)
		if err != nil {
			decodeErr = jerrors.Annotatef(err, "undecodable buffered record for %s", pageID)
			return false
		}
		records = append(records, rec)
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return records, nil
}

// MergeOrDeleteForPage 合并路径的核心操作
// 页面被读入缓冲池后，把它的全部缓冲条目按操作序号顺序施加上去并逐条
// 删除；block为nil表示页面是被丢弃或原地重建而非读入的（页面可能属于
// 已删除的索引），此时只丢弃条目不做施加。幂等：重复调用无副作用
func (ib *Ibuf) MergeOrDeleteForPage(block basic.IndexPage, pageID basic.PageID,
	physPageSize uint32) error {

	if ib == nil || !ib.active {
		return ErrIbufNotStarted
	}

	records, err := ib.collectForPage(pageID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	m := &mtr.Mtr{}
	ib.MtrStart(m)
	defer ib.MtrCommit(m)

	if block == nil {
		ib.discardRecords(records)
		ib.clearBufferedBitIfDrained(pageID, physPageSize)
		m.SetModified()
		logger.Debugf("ibuf: discarded %d stale entries for %s", len(records), pageID)
		return nil
	}

	// 按操作序号升序施加，还原原始缓冲顺序；旧格式的无序号记录排最前
	sort.SliceStable(records, func(i, j int) bool {
		return counterOrder(records[i].Counter) < counterOrder(records[j].Counter)
	})

	for _, rec := range records {
		if err := ib.applyRecord(block, rec); err != nil {
			// 单条失败中止本次合并并上报：这意味着数据损坏或先前的
			// 不变量被破坏，绝不能静默丢弃缓冲数据
			return err
		}
		ib.rootLatch.Lock()
		if err := ib.index.Delete(ibufKey(rec.SpaceID, rec.PageNo, rec.Counter)); err != nil {
			ib.rootLatch.Unlock()
			return jerrors.Annotatef(ErrIbufCorruption,
				"applied entry vanished for %s counter=%d", pageID, rec.Counter)
		}
		ib.refreshStatsLocked()
		ib.rootLatch.Unlock()
		m.SetModified()
	}

	// 清位前在闩锁内复核判空：施加期间挤进来的新条目要保住标记
	ib.clearBufferedBitIfDrained(pageID, physPageSize)

	// 合并改变了页面占用，在同一作用域内把空闲编码更新为真实值
	ib.updateFreeBitsLow(block, m)

	logger.Debugf("ibuf: merged %d entries into %s", len(records), pageID)
	return nil
}

// counterOrder 排序键，未定义序号的旧格式记录排在最前
func counterOrder(counter uint16) int32 {
	if counter == COUNTER_UNDEFINED {
		return -1
	}
	return int32(counter)
}

// applyRecord 将一条缓冲记录施加到目标页面
func (ib *Ibuf) applyRecord(block basic.IndexPage, rec *IbufRecord) error {
	var err error
	switch rec.Op {
	case IBUF_OP_INSERT:
		err = block.InsertKey(rec.Key)
		if errors.Is(err, basic.ErrPageFull) {
			// 位图承诺的空间不存在，核心安全不变量已被破坏
			err = jerrors.Annotatef(ErrIbufCorruption,
				"page %s overflows on buffered insert, free bits overstated", rec.PageID())
		}
	case IBUF_OP_DELETE_MARK:
		err = block.DeleteMarkKey(rec.Key)
	case IBUF_OP_DELETE:
		err = block.PurgeKey(rec.Key)
	default:
		return jerrors.Annotatef(ErrIbufCorruption, "unknown buffered operation %d", rec.Op)
	}

	if err != nil && !errors.Is(err, ErrIbufCorruption) {
		err = jerrors.Annotatef(ErrIbufCorruption,
			"buffered op=%d for %s key inconsistent with page: %v", rec.Op, rec.PageID(), err)
	}
	return err
}

// discardRecords 丢弃一批条目而不施加
func (ib *Ibuf) discardRecords(records []*IbufRecord) {
	ib.rootLatch.Lock()
	defer ib.rootLatch.Unlock()

	for _, rec := range records {
		if err := ib.index.Delete(ibufKey(rec.SpaceID, rec.PageNo, rec.Counter)); err != nil {
			logger.Warnf("ibuf: stale entry already gone for %s counter=%d", rec.PageID(), rec.Counter)
		}
	}
	ib.refreshStatsLocked()
}

// backlogPage 收缩时挑选出的候选页面
type backlogPage struct {
	pageID basic.PageID
	volume uint
}

// collectBacklog 按键序收集最多limit个有缓冲条目的页面及其体量
// spaceOnly为真时只收集spaceID所属的页面
func (ib *Ibuf) collectBacklog(limit int, spaceOnly bool, spaceID uint32) []backlogPage {
	var pages []backlogPage
	seen := make(map[uint64]struct{})

	var low, high []byte
	if spaceOnly {
		low, high = ibufSpaceRange(spaceID)
	} else {
		low, high = ibufKey(0, 0, 0), nil
	}

	ib.index.AscendRange(low, high, func(key, recBuf []byte) bool {
		rec, err := DecodeRecord(recBuf)
		if err != nil {
			logger.Errorf("ibuf: undecodable record during contraction scan: %v", err)
			return true
		}
		h := util.HashCode(ibufKey(rec.SpaceID, rec.PageNo, 0))
		if _, ok := seen[h]; !ok {
			if limit > 0 && len(pages) >= limit {
				return false
			}
			seen[h] = struct{}{}
			pages = append(pages, backlogPage{pageID: rec.PageID()})
		}
		pages[len(pages)-1].volume += uint(rec.StoredSize())
		return true
	})
	return pages
}

// mergeBacklogPage 读入一个积压页面并走常规合并路径
// 页面已不存在时转为丢弃，返回本次清除的条目体量
func (ib *Ibuf) mergeBacklogPage(bp backlogPage, physPageSize uint32) (uint, bool) {
	var block basic.IndexPage
	if ib.fetcher != nil {
		b, err := ib.fetcher.FetchForMerge(bp.pageID)
		switch {
		case err == nil:
			block = b
		case errors.Is(err, basic.ErrPageNotFound):
			block = nil
		default:
			logger.Errorf("ibuf: fetch for merge failed for %s: %v", bp.pageID, err)
			return 0, false
		}
	}

	if err := ib.MergeOrDeleteForPage(block, bp.pageID, physPageSize); err != nil {
		logger.Errorf("ibuf: contraction merge failed for %s: %v", bp.pageID, err)
		return 0, false
	}
	return bp.volume, true
}

// Contract 主动收缩：挑选若干积压页面读入缓冲池并触发常规合并
// 返回本次合并数据体量的字节数下界，缓冲为空时廉价地返回0；
// 外部后台调度器依赖该返回值节流
func (ib *Ibuf) Contract() uint {
	if ib == nil || !ib.active || ib.IsEmpty() {
		return 0
	}

	physPageSize := uint32(ib.cfg.InnodbPageSize)
	batch := ib.cfg.InnodbIbufContractBatch
	if batch <= 0 {
		batch = 1
	}

	var merged uint
	for _, bp := range ib.collectBacklog(batch, false, 0) {
		vol, ok := ib.mergeBacklogPage(bp, physPageSize)
		if ok {
			merged += vol
		}
	}
	return merged
}

// MergeSpace 收缩限定在单个表空间，用于丢弃/导入表空间之前
// 返回完成合并的页面数
func (ib *Ibuf) MergeSpace(spaceID uint32) uint {
	if ib == nil || !ib.active || ib.IsEmpty() {
		return 0
	}

	physPageSize := uint32(ib.cfg.InnodbPageSize)

	var pages uint
	for _, bp := range ib.collectBacklog(0, true, spaceID) {
		if _, ok := ib.mergeBacklogPage(bp, physPageSize); ok {
			pages++
		}
	}
	return pages
}

// DeleteForDiscardedSpace 无条件清除一个表空间的全部缓冲条目而不施加
// 用于DISCARD/IMPORT TABLESPACE以及预读发现表空间缺失的场合；
// 表空间的页面即将失效，施加已无意义
func (ib *Ibuf) DeleteForDiscardedSpace(spaceID uint32) {
	if ib == nil || !ib.active {
		return
	}

	var keys [][]byte
	low, high := ibufSpaceRange(spaceID)
	ib.index.AscendRange(low, high, func(key, rec []byte) bool {
		keys = append(keys, append([]byte(nil), key...))
		return true
	})
	if len(keys) == 0 {
		return
	}

	m := &mtr.Mtr{}
	ib.MtrStart(m)
	defer ib.MtrCommit(m)

	ib.rootLatch.Lock()
	for _, key := range keys {
		if err := ib.index.Delete(key); err != nil {
			// 并发合并可能已清掉部分条目，容忍并跳过
			continue
		}
	}
	ib.refreshStatsLocked()
	ib.rootLatch.Unlock()
	m.SetModified()

	logger.Infof("ibuf: deleted %d buffered entries for discarded space %d", len(keys), spaceID)
}
