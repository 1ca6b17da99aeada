package ibuf

import (
	jerrors "github.com/juju/errors"
	"github.com/zhukovaskychina/xmysql-changebuffer/logger"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/mtr"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/storage/wrapper/page"
)

// CheckBitmapOnImport 校验导入表空间的位图自描述是否可信
//
// 导入的文件来自外部，位图可能虚报空闲空间或带着悬空的缓冲标记。
// 空闲编码高于真实值的一律降到真实值（虚报会导致后续合并溢出，
// 必须修复；低于真实值只是保守，无害）；缓冲标记与残存条目不一致
// 的直接判定损坏拒绝导入
func (ib *Ibuf) CheckBitmapOnImport(space basic.FileSpace) error {
	if ib == nil || !ib.active {
		return ErrIbufNotStarted
	}
	if space == nil {
		return jerrors.Annotate(ErrIbufCorruption, "nil tablespace on import")
	}

	physPageSize := uint32(ib.cfg.InnodbPageSize)
	spaceID := space.ID()

	m := &mtr.Mtr{}
	ib.MtrStart(m)
	defer ib.MtrCommit(m)

	var repaired int
	for pageNo := uint32(0); pageNo < space.PageCount(); pageNo++ {
		pageID := basic.NewPageID(spaceID, pageNo)
		if pageNo&(physPageSize-1) == IBUF_BITMAP_OFFSET {
			// 位图页自身没有位图项
			continue
		}

		// 缓冲标记的一致性对空间内每个页面都要校验，
		// 只有空闲编码的修复依赖叶页内容
		block, isLeaf := space.LeafPage(pageNo)

		var actualBits byte
		if isLeaf {
			actualBits = IndexPageCalcFreeBits(physPageSize, block.MaxInsertSize())
		}

		var storedBits byte
		var buffered bool
		err := ib.withBitmapPage(pageID, physPageSize, func(bm *page.IBufBitmapPage, offset uint32) {
			storedBits = bm.FreeBits(offset)
			buffered = bm.Buffered(offset)
			if isLeaf && storedBits > actualBits {
				bm.SetFreeBits(offset, actualBits)
			}
		})
		if err != nil {
			return jerrors.Annotatef(err, "bitmap page unreadable for %s on import", pageID)
		}
		if isLeaf && storedBits > actualBits {
			repaired++
			m.SetModified()
			logger.Warnf("ibuf: import repaired overstated free bits for %s: stored=%d actual=%d",
				pageID, storedBits, actualBits)
		}

		hasEntries := ib.PageExists(pageID, physPageSize)
		if buffered != hasEntries {
			return jerrors.Annotatef(ErrIbufCorruption,
				"import: buffered flag for %s is %v but buffered entries exist=%v",
				pageID, buffered, hasEntries)
		}
	}

	if repaired > 0 {
		logger.Infof("ibuf: import of space %d repaired %d bitmap entries", spaceID, repaired)
	}
	return nil
}
