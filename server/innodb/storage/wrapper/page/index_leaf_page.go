package page

import (
	"bytes"
	"sync"

	"github.com/zhukovaskychina/xmysql-changebuffer/server/common"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/basic"
)

// 每条记录除键外的固定开销：记录头+页目录摊销
const RECORD_OVERHEAD = 13

// 页面固定开销：文件头+页头+infimum/supremum+文件尾
const pageFixedOverhead = common.FileHeaderSize + common.PageHeaderSize +
	common.InfimumSupremumSize + common.FileTrailerSize

// leafRecord 叶子页面中的一条二级索引记录
type leafRecord struct {
	key     []byte
	deleted bool // 删除标记
}

// SecondaryIndexLeafPage 非唯一二级索引的叶子页面
// 记录按键序存放，允许重复键；维护精确的空间占用
type SecondaryIndexLeafPage struct {
	mu sync.RWMutex

	id       basic.PageID
	pageSize uint32
	records  []leafRecord
	used     uint32
}

// NewSecondaryIndexLeafPage 创建空的二级索引叶子页面
func NewSecondaryIndexLeafPage(id basic.PageID, pageSize uint32) *SecondaryIndexLeafPage {
	return &SecondaryIndexLeafPage{
		id:       id,
		pageSize: pageSize,
		used:     pageFixedOverhead,
	}
}

// ID 页面地址
func (p *SecondaryIndexLeafPage) ID() basic.PageID {
	return p.id
}

// IsLeaf 叶子页面恒为true
func (p *SecondaryIndexLeafPage) IsLeaf() bool {
	return true
}

// MaxInsertSize 当前还能容纳的最大插入记录字节数（含记录开销）
func (p *SecondaryIndexLeafPage) MaxInsertSize() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.maxInsertSizeLocked()
}

func (p *SecondaryIndexLeafPage) maxInsertSizeLocked() uint32 {
	if p.used >= p.pageSize {
		return 0
	}
	return p.pageSize - p.used
}

// InsertKey 按键序插入一条记录，空间不足时返回ErrPageFull
func (p *SecondaryIndexLeafPage) InsertKey(key []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	size := uint32(len(key) + RECORD_OVERHEAD)
	if size > p.maxInsertSizeLocked() {
		return basic.ErrPageFull
	}

	pos := p.upperBoundLocked(key)
	p.records = append(p.records, leafRecord{})
	copy(p.records[pos+1:], p.records[pos:])
	p.records[pos] = leafRecord{key: append([]byte(nil), key...)}
	p.used += size
	return nil
}

// DeleteMarkKey 对第一条未打标记的同键记录打删除标记
func (p *SecondaryIndexLeafPage) DeleteMarkKey(key []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := p.lowerBoundLocked(key); i < len(p.records); i++ {
		if !bytes.Equal(p.records[i].key, key) {
			break
		}
		if !p.records[i].deleted {
			p.records[i].deleted = true
			return nil
		}
	}
	return basic.ErrKeyNotFound
}

// PurgeKey 物理删除第一条同键记录，回收其空间
func (p *SecondaryIndexLeafPage) PurgeKey(key []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := p.lowerBoundLocked(key); i < len(p.records); i++ {
		if !bytes.Equal(p.records[i].key, key) {
			break
		}
		p.used -= uint32(len(p.records[i].key) + RECORD_OVERHEAD)
		p.records = append(p.records[:i], p.records[i+1:]...)
		return nil
	}
	return basic.ErrKeyNotFound
}

// RecordCount 页面内记录数（含已打删除标记的）
func (p *SecondaryIndexLeafPage) RecordCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.records)
}

// HasKey 是否存在指定键的记录，返回(存在, 是否带删除标记)
func (p *SecondaryIndexLeafPage) HasKey(key []byte) (bool, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for i := p.lowerBoundLocked(key); i < len(p.records); i++ {
		if !bytes.Equal(p.records[i].key, key) {
			break
		}
		return true, p.records[i].deleted
	}
	return false, false
}

// Keys 按序返回全部键，测试与校验用
func (p *SecondaryIndexLeafPage) Keys() [][]byte {
	p.mu.RLock()
	defer p.mu.RUnlock()

	keys := make([][]byte, 0, len(p.records))
	for _, rec := range p.records {
		keys = append(keys, rec.key)
	}
	return keys
}

// lowerBoundLocked 第一个不小于key的下标
func (p *SecondaryIndexLeafPage) lowerBoundLocked(key []byte) int {
	lo, hi := 0, len(p.records)
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(p.records[mid].key, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// upperBoundLocked 第一个大于key的下标
func (p *SecondaryIndexLeafPage) upperBoundLocked(key []byte) int {
	lo, hi := 0, len(p.records)
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(p.records[mid].key, key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
