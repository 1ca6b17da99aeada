package ibuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/mtr"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/storage/wrapper/page"
)

func TestBitmapPageAddress(t *testing.T) {
	const psz = uint32(16384)

	t.Run("位图页判定", func(t *testing.T) {
		assert.True(t, BitmapPage(basic.NewPageID(0, 1), psz))
		assert.True(t, BitmapPage(basic.NewPageID(7, 1), psz))
		assert.True(t, BitmapPage(basic.NewPageID(7, 16385), psz))
		assert.False(t, BitmapPage(basic.NewPageID(7, 0), psz))
		assert.False(t, BitmapPage(basic.NewPageID(7, 2), psz))
		assert.False(t, BitmapPage(basic.NewPageID(7, 16384), psz))
	})

	t.Run("页大小必须为2的幂", func(t *testing.T) {
		assert.Panics(t, func() { BitmapPage(basic.NewPageID(0, 1), 10000) })
		assert.Panics(t, func() { BitmapPage(basic.NewPageID(0, 1), 0) })
	})

	t.Run("跟踪页号与段内偏移", func(t *testing.T) {
		assert.Equal(t, uint32(1), bitmapPageNo(42, psz))
		assert.Equal(t, uint32(16385), bitmapPageNo(16384+42, psz))
		assert.Equal(t, uint32(42), bitmapOffset(42, psz))
		assert.Equal(t, uint32(42), bitmapOffset(16384+42, psz))
	})
}

func TestFreeBitsMath(t *testing.T) {
	const psz = uint32(16384) // 阶梯512字节

	t.Run("折算编码", func(t *testing.T) {
		assert.Equal(t, byte(0), IndexPageCalcFreeBits(psz, 0))
		assert.Equal(t, byte(0), IndexPageCalcFreeBits(psz, 511))
		assert.Equal(t, byte(1), IndexPageCalcFreeBits(psz, 512))
		assert.Equal(t, byte(1), IndexPageCalcFreeBits(psz, 1023))
		assert.Equal(t, byte(2), IndexPageCalcFreeBits(psz, 1024))
		// n==3降为2
		assert.Equal(t, byte(2), IndexPageCalcFreeBits(psz, 1536))
		assert.Equal(t, byte(2), IndexPageCalcFreeBits(psz, 2047))
		assert.Equal(t, byte(3), IndexPageCalcFreeBits(psz, 2048))
		assert.Equal(t, byte(3), IndexPageCalcFreeBits(psz, psz))
	})

	t.Run("还原字节数", func(t *testing.T) {
		assert.Equal(t, uint32(0), IndexPageCalcFreeFromBits(psz, 0))
		assert.Equal(t, uint32(512), IndexPageCalcFreeFromBits(psz, 1))
		assert.Equal(t, uint32(1024), IndexPageCalcFreeFromBits(psz, 2))
		assert.Equal(t, uint32(2048), IndexPageCalcFreeFromBits(psz, 3))
		assert.Panics(t, func() { IndexPageCalcFreeFromBits(psz, 4) })
	})

	t.Run("还原值永不越过真实值", func(t *testing.T) {
		// 对任意真实空闲值，编码再还原的结果不得超过真实值
		for maxIns := uint32(0); maxIns <= psz; maxIns += 67 {
			bits := IndexPageCalcFreeBits(psz, maxIns)
			assert.LessOrEqual(t, IndexPageCalcFreeFromBits(psz, bits), maxIns,
				"max_ins=%d", maxIns)
		}
	})
}

func TestFreeBitsUpdates(t *testing.T) {
	const psz = uint32(16384)
	target := basic.NewPageID(7, 42)

	t.Run("压低编码随时安全", func(t *testing.T) {
		ib, fetcher := newTestIbuf(t)
		block := page.NewSecondaryIndexLeafPage(target, psz)
		seedLeafPage(ib, fetcher, block)
		require.Equal(t, byte(3), ib.readFreeBits(target, psz))

		ib.ResetFreeBits(block)
		assert.Equal(t, byte(0), ib.readFreeBits(target, psz))
	})

	t.Run("升高编码只在产生空间的作用域内", func(t *testing.T) {
		ib, fetcher := newTestIbuf(t)
		block := page.NewSecondaryIndexLeafPage(target, psz)
		seedLeafPage(ib, fetcher, block)
		ib.ResetFreeBits(block)

		other := basic.NewPageID(7, 43)
		block2 := page.NewSecondaryIndexLeafPage(other, psz)
		seedLeafPage(ib, fetcher, block2)
		ib.ResetFreeBits(block2)

		m := &mtr.Mtr{}
		ib.MtrStart(m)
		ib.UpdateFreeBitsForTwoPages(block, block2, m)
		ib.MtrCommit(m)

		assert.Equal(t, byte(3), ib.readFreeBits(target, psz))
		assert.Equal(t, byte(3), ib.readFreeBits(other, psz))
	})

	t.Run("无活动作用域时升高编码panic", func(t *testing.T) {
		ib, fetcher := newTestIbuf(t)
		block := page.NewSecondaryIndexLeafPage(target, psz)
		seedLeafPage(ib, fetcher, block)

		assert.Panics(t, func() { ib.UpdateFreeBitsForTwoPages(block, block, nil) })
		assert.Panics(t, func() { ib.ResetFreeBitsLow(block, &mtr.Mtr{}) })
	})

	t.Run("相邻页面互不干扰", func(t *testing.T) {
		ib, fetcher := newTestIbuf(t)
		block := page.NewSecondaryIndexLeafPage(target, psz)
		seedLeafPage(ib, fetcher, block)

		neighbor := basic.NewPageID(7, 43)
		seedLeafPage(ib, fetcher, page.NewSecondaryIndexLeafPage(neighbor, psz))

		ib.ResetFreeBits(block)
		assert.Equal(t, byte(0), ib.readFreeBits(target, psz))
		assert.Equal(t, byte(3), ib.readFreeBits(neighbor, psz))
	})

	t.Run("批量装载播种位图状态", func(t *testing.T) {
		ib, _ := newTestIbuf(t)
		block := page.NewSecondaryIndexLeafPage(target, psz)

		// 先伪造一个悬空的缓冲标记
		ib.setBufferedBit(target, psz, true)

		m := &mtr.Mtr{}
		ib.MtrStart(m)
		ib.SetBitmapForBulkLoad(block, m)
		ib.MtrCommit(m)

		var buffered bool
		err := ib.withBitmapPage(target, psz, func(bm *page.IBufBitmapPage, offset uint32) {
			buffered = bm.Buffered(offset)
		})
		require.NoError(t, err)
		assert.False(t, buffered)
		assert.Equal(t, byte(3), ib.readFreeBits(target, psz))
	})
}
