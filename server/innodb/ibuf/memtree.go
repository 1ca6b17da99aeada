package ibuf

import (
	"bytes"
	"sort"
	"sync"

	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/basic"
)

// treeEntry 缓冲索引中的一个条目
type treeEntry struct {
	key []byte
	rec []byte
}

// MemoryIndex 有序索引的内存实现，承载缓冲记录
// 生产部署可用任意实现了basic.OrderedIndex的B+树替换
type MemoryIndex struct {
	mu sync.RWMutex

	entries   []treeEntry
	usedBytes uint64
	pageSize  uint32

	// 段增长上限（页数），0表示不限制
	maxSegPages uint64
}

// NewMemoryIndex 创建内存缓冲索引
func NewMemoryIndex(pageSize uint32, maxSegPages uint64) *MemoryIndex {
	return &MemoryIndex{
		pageSize:    pageSize,
		maxSegPages: maxSegPages,
	}
}

// Insert 插入一条记录，段无法增长时返回ErrNoFreeSpace
func (t *MemoryIndex) Insert(key []byte, rec []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.maxSegPages > 0 {
		grown := (t.usedBytes + uint64(len(key)+len(rec))) / uint64(t.usablePageBytes())
		if grown+1 > t.maxSegPages {
			return basic.ErrNoFreeSpace
		}
	}

	pos := sort.Search(len(t.entries), func(i int) bool {
		return bytes.Compare(t.entries[i].key, key) >= 0
	})
	t.entries = append(t.entries, treeEntry{})
	copy(t.entries[pos+1:], t.entries[pos:])
	t.entries[pos] = treeEntry{
		key: append([]byte(nil), key...),
		rec: append([]byte(nil), rec...),
	}
	t.usedBytes += uint64(len(key) + len(rec))
	return nil
}

// Delete 删除键对应的记录
func (t *MemoryIndex) Delete(key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos := sort.Search(len(t.entries), func(i int) bool {
		return bytes.Compare(t.entries[i].key, key) >= 0
	})
	if pos >= len(t.entries) || !bytes.Equal(t.entries[pos].key, key) {
		return basic.ErrKeyNotFound
	}
	t.usedBytes -= uint64(len(t.entries[pos].key) + len(t.entries[pos].rec))
	t.entries = append(t.entries[:pos], t.entries[pos+1:]...)
	return nil
}

// AscendRange 按键升序遍历[low, high)，high为nil表示到末尾
func (t *MemoryIndex) AscendRange(low, high []byte, fn func(key, rec []byte) bool) {
	t.mu.RLock()
	// 拷贝快照后释放读锁，允许fn内部回写本索引
	snapshot := make([]treeEntry, 0)
	start := sort.Search(len(t.entries), func(i int) bool {
		return bytes.Compare(t.entries[i].key, low) >= 0
	})
	for i := start; i < len(t.entries); i++ {
		if high != nil && bytes.Compare(t.entries[i].key, high) >= 0 {
			break
		}
		snapshot = append(snapshot, t.entries[i])
	}
	t.mu.RUnlock()

	for _, e := range snapshot {
		if !fn(e.key, e.rec) {
			return
		}
	}
}

// Empty 索引是否为空
func (t *MemoryIndex) Empty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries) == 0
}

// Stats 结构统计，页数按已用字节折算
func (t *MemoryIndex) Stats() basic.IndexStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pages := uint64(1) + t.usedBytes/uint64(t.usablePageBytes())
	height := uint8(1)
	if pages > 1 {
		height = 2
	}

	return basic.IndexStats{
		Pages:       pages,
		SegPages:    pages + 1, // 头页
		FreeListLen: 0,
		Height:      height,
	}
}

func (t *MemoryIndex) usablePageBytes() uint32 {
	// 页面扣除头尾后的可用字节，粗略折算即可
	if t.pageSize <= 128 {
		return t.pageSize
	}
	return t.pageSize - 128
}
