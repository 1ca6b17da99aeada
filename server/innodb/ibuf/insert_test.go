package ibuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/conf"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/mtr"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/storage/wrapper/page"
)

func TestShouldBuffer(t *testing.T) {
	cases := []struct {
		mode string
		ins  bool
		mark bool
		del  bool
	}{
		{conf.ChangeBufferingNone, false, false, false},
		{conf.ChangeBufferingInserts, true, false, false},
		{conf.ChangeBufferingDeletes, false, true, false},
		{conf.ChangeBufferingChanges, true, true, false},
		{conf.ChangeBufferingPurges, false, false, true},
		{conf.ChangeBufferingAll, true, true, true},
		{"bogus", false, false, false},
	}

	for _, c := range cases {
		t.Run(c.mode, func(t *testing.T) {
			assert.Equal(t, c.ins, shouldBuffer(IBUF_OP_INSERT, c.mode))
			assert.Equal(t, c.mark, shouldBuffer(IBUF_OP_DELETE_MARK, c.mode))
			assert.Equal(t, c.del, shouldBuffer(IBUF_OP_DELETE, c.mode))
		})
	}
}

func TestInsert(t *testing.T) {
	const psz = uint32(16384)
	target := basic.NewPageID(7, 42)

	t.Run("成功缓冲并置缓冲标记", func(t *testing.T) {
		ib, fetcher := newTestIbuf(t)
		seedLeafPage(ib, fetcher, page.NewSecondaryIndexLeafPage(target, psz))

		require.NoError(t, ib.Insert(IBUF_OP_INSERT, target, []byte("alpha"), psz, nil))

		assert.False(t, ib.IsEmpty())
		assert.True(t, ib.PageExists(target, psz))

		var buffered bool
		err := ib.withBitmapPage(target, psz, func(bm *page.IBufBitmapPage, offset uint32) {
			buffered = bm.Buffered(offset)
		})
		require.NoError(t, err)
		assert.True(t, buffered)

		// 位图页上留下了缓冲写的提交LSN，供刷盘排序
		bmPage := ib.pool.GetOrCreatePage(target.SpaceID, bitmapPageNo(target.PageNo, psz))
		assert.NotZero(t, bmPage.GetLSN())
	})

	t.Run("未启动时拒绝", func(t *testing.T) {
		ib, _ := newTestIbuf(t)
		ib.Close()
		assert.ErrorIs(t, ib.Insert(IBUF_OP_INSERT, target, []byte("k"), psz, nil), ErrIbufNotStarted)
	})

	t.Run("非法操作类型", func(t *testing.T) {
		ib, _ := newTestIbuf(t)
		assert.ErrorIs(t, ib.Insert(IbufOpType(9), target, []byte("k"), psz, nil), ErrIbufCorruption)
	})

	t.Run("恢复期间缓冲被禁用", func(t *testing.T) {
		ib, _ := newTestIbuf(t)
		SetRecvNoIbufOperations(true)
		defer SetRecvNoIbufOperations(false)
		assert.ErrorIs(t, ib.Insert(IBUF_OP_INSERT, target, []byte("k"), psz, nil), ErrIbufOpDisabled)
	})

	t.Run("change_buffering模式过滤", func(t *testing.T) {
		ib, fetcher := newTestIbuf(t)
		seedLeafPage(ib, fetcher, page.NewSecondaryIndexLeafPage(target, psz))
		ib.cfg.InnodbChangeBuffering = conf.ChangeBufferingInserts

		assert.ErrorIs(t, ib.Insert(IBUF_OP_DELETE_MARK, target, []byte("k"), psz, nil), ErrIbufOpDisabled)
		assert.NoError(t, ib.Insert(IBUF_OP_INSERT, target, []byte("k"), psz, nil))
	})

	t.Run("ibuf作用域内的再入被拒绝", func(t *testing.T) {
		ib, fetcher := newTestIbuf(t)
		seedLeafPage(ib, fetcher, page.NewSecondaryIndexLeafPage(target, psz))

		m := &mtr.Mtr{}
		ib.MtrStart(m)
		assert.ErrorIs(t, ib.Insert(IBUF_OP_INSERT, target, []byte("k"), psz, m), ErrIbufReentrant)
		ib.MtrCommit(m)

		// 同一mtr提交后不再处于ibuf作用域
		assert.NoError(t, ib.Insert(IBUF_OP_INSERT, target, []byte("k"), psz, m))
	})

	t.Run("缓冲自身页面不可被缓冲", func(t *testing.T) {
		ib, _ := newTestIbuf(t)

		assert.ErrorIs(t, ib.Insert(IBUF_OP_INSERT,
			basic.NewPageID(IBUF_SPACE_ID, IBUF_TREE_ROOT_PAGE_NO), []byte("k"), psz, nil), ErrIbufReentrant)
		assert.ErrorIs(t, ib.Insert(IBUF_OP_INSERT,
			basic.NewPageID(IBUF_SPACE_ID, IBUF_HEADER_PAGE_NO), []byte("k"), psz, nil), ErrIbufReentrant)
		assert.ErrorIs(t, ib.Insert(IBUF_OP_INSERT,
			basic.NewPageID(9, 16385), []byte("k"), psz, nil), ErrIbufReentrant)
	})

	t.Run("体量超限时拒绝", func(t *testing.T) {
		ib, fetcher := newTestIbuf(t)
		seedLeafPage(ib, fetcher, page.NewSecondaryIndexLeafPage(target, psz))

		ib.maxSizePages = 1
		ib.size.Store(2)
		assert.ErrorIs(t, ib.Insert(IBUF_OP_INSERT, target, []byte("k"), psz, nil), ErrIbufSegmentFull)
	})

	t.Run("位图承诺不足时插入无立足之地", func(t *testing.T) {
		ib, fetcher := newTestIbuf(t)
		block := page.NewSecondaryIndexLeafPage(target, psz)
		seedLeafPage(ib, fetcher, block)

		// 压低空闲编码：页面承诺为0字节
		ib.ResetFreeBits(block)

		assert.ErrorIs(t, ib.Insert(IBUF_OP_INSERT, target, []byte("k"), psz, nil), ErrIbufNoRoom)

		// 删除标记不消耗目标页面空间，仍可缓冲
		assert.NoError(t, ib.Insert(IBUF_OP_DELETE_MARK, target, []byte("k"), psz, nil))
	})

	t.Run("已缓冲体量计入承诺校验", func(t *testing.T) {
		ib, fetcher := newTestIbuf(t)
		block := page.NewSecondaryIndexLeafPage(target, psz)
		seedLeafPage(ib, fetcher, block)

		// bits=3解码为2048字节承诺
		free := IndexPageCalcFreeFromBits(psz, 3)
		key := make([]byte, int(free)-page.RECORD_OVERHEAD-100)
		require.NoError(t, ib.Insert(IBUF_OP_INSERT, target, key, psz, nil))

		// 余量已不足以再放一条同样的记录
		assert.ErrorIs(t, ib.Insert(IBUF_OP_INSERT, target, key, psz, nil), ErrIbufNoRoom)

		// 小记录仍放得下
		assert.NoError(t, ib.Insert(IBUF_OP_INSERT, target, []byte("x"), psz, nil))
	})

	t.Run("计数器按页面单调递增", func(t *testing.T) {
		ib, fetcher := newTestIbuf(t)
		seedLeafPage(ib, fetcher, page.NewSecondaryIndexLeafPage(target, psz))
		other := basic.NewPageID(7, 43)
		seedLeafPage(ib, fetcher, page.NewSecondaryIndexLeafPage(other, psz))

		require.NoError(t, ib.Insert(IBUF_OP_INSERT, target, []byte("a"), psz, nil))
		require.NoError(t, ib.Insert(IBUF_OP_DELETE_MARK, target, []byte("b"), psz, nil))
		require.NoError(t, ib.Insert(IBUF_OP_INSERT, other, []byte("c"), psz, nil))

		records, err := ib.collectForPage(target)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, uint16(0), records[0].Counter)
		assert.Equal(t, uint16(1), records[1].Counter)

		records, err = ib.collectForPage(other)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, uint16(0), records[0].Counter)
	})
}
