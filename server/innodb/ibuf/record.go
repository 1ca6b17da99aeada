package ibuf

import (
	"encoding/binary"

	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/basic"
)

// IbufOpType 缓冲操作类型
// 这些值持久化在磁盘上，绝对不能改动
type IbufOpType uint8

const (
	IBUF_OP_INSERT      IbufOpType = 0 // 插入
	IBUF_OP_DELETE_MARK IbufOpType = 1 // 打删除标记
	IBUF_OP_DELETE      IbufOpType = 2 // 物理删除

	IBUF_OP_COUNT = 3
)

// COUNTER_UNDEFINED 计数器未定义哨兵值，旧格式记录没有计数器字段
const COUNTER_UNDEFINED uint16 = 0xFFFF

// 记录编码布局（大端）:
// space_id(4) | page_no(4) | op(1) | counter(2) | key_len(2) | key
const (
	recOffsetSpaceID = 0
	recOffsetPageNo  = 4
	recOffsetOp      = 8
	recOffsetCounter = 9
	recOffsetKeyLen  = 11
	recHeaderSize    = 13
)

// IbufRecord 一条缓冲记录
type IbufRecord struct {
	SpaceID uint32     // 目标表空间ID
	PageNo  uint32     // 目标页号
	Op      IbufOpType // 操作类型
	Counter uint16     // 同一页面内的操作序号
	Key     []byte     // 二级索引键镜像
}

// PageID 目标页面地址
func (r *IbufRecord) PageID() basic.PageID {
	return basic.NewPageID(r.SpaceID, r.PageNo)
}

// StoredSize 该记录在缓冲索引中的存储字节数
func (r *IbufRecord) StoredSize() uint32 {
	return uint32(recHeaderSize + len(r.Key))
}

// EncodeRecord 编码缓冲记录
func EncodeRecord(r *IbufRecord) []byte {
	buf := make([]byte, recHeaderSize+len(r.Key))
	binary.BigEndian.PutUint32(buf[recOffsetSpaceID:], r.SpaceID)
	binary.BigEndian.PutUint32(buf[recOffsetPageNo:], r.PageNo)
	buf[recOffsetOp] = byte(r.Op)
	binary.BigEndian.PutUint16(buf[recOffsetCounter:], r.Counter)
	binary.BigEndian.PutUint16(buf[recOffsetKeyLen:], uint16(len(r.Key)))
	copy(buf[recHeaderSize:], r.Key)
	return buf
}

// DecodeRecord 解码缓冲记录
// 未知操作类型或长度不一致均返回ErrIbufCorruption
func DecodeRecord(buf []byte) (*IbufRecord, error) {
	if len(buf) < recHeaderSize {
		return nil, ErrIbufCorruption
	}

	op := IbufOpType(buf[recOffsetOp])
	if op >= IBUF_OP_COUNT {
		return nil, ErrIbufCorruption
	}

	keyLen := int(binary.BigEndian.Uint16(buf[recOffsetKeyLen:]))
	if len(buf) != recHeaderSize+keyLen {
		return nil, ErrIbufCorruption
	}

	rec := &IbufRecord{
		SpaceID: binary.BigEndian.Uint32(buf[recOffsetSpaceID:]),
		PageNo:  binary.BigEndian.Uint32(buf[recOffsetPageNo:]),
		Op:      op,
		Counter: binary.BigEndian.Uint16(buf[recOffsetCounter:]),
		Key:     append([]byte(nil), buf[recHeaderSize:]...),
	}
	return rec, nil
}

// RecGetCounter 读取记录的操作序号字段
// 早于计数器引入的旧格式记录返回COUNTER_UNDEFINED而不是报错
func RecGetCounter(buf []byte) uint16 {
	if len(buf) < recOffsetCounter+2 {
		return COUNTER_UNDEFINED
	}
	return binary.BigEndian.Uint16(buf[recOffsetCounter:])
}

// ibufKey 缓冲索引的键：(space_id, page_no, counter)
// 主序为页面地址，同一页面的条目物理相邻
func ibufKey(spaceID, pageNo uint32, counter uint16) []byte {
	key := make([]byte, 10)
	binary.BigEndian.PutUint32(key[0:], spaceID)
	binary.BigEndian.PutUint32(key[4:], pageNo)
	binary.BigEndian.PutUint16(key[8:], counter)
	return key
}

// ibufPageRange 覆盖某一页面全部条目的键区间[low, high)
func ibufPageRange(spaceID, pageNo uint32) (low, high []byte) {
	low = ibufKey(spaceID, pageNo, 0)
	if pageNo == ^uint32(0) {
		if spaceID == ^uint32(0) {
			return low, nil
		}
		return low, ibufKey(spaceID+1, 0, 0)
	}
	return low, ibufKey(spaceID, pageNo+1, 0)
}

// ibufSpaceRange 覆盖某一表空间全部条目的键区间[low, high)
func ibufSpaceRange(spaceID uint32) (low, high []byte) {
	low = ibufKey(spaceID, 0, 0)
	if spaceID == ^uint32(0) {
		return low, nil
	}
	return low, ibufKey(spaceID+1, 0, 0)
}
