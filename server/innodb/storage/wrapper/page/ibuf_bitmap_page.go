package page

import (
	"encoding/binary"
	"errors"

	"github.com/zhukovaskychina/xmysql-changebuffer/server/common"
	"github.com/zhukovaskychina/xmysql-changebuffer/util"
)

var (
	ErrInvalidBitmapPage = errors.New("invalid insert buffer bitmap page")
)

// 位图中每个被跟踪页面占4个比特，两个页面合用一个字节
// bit 0-1: 空闲空间编码，bit 2: 缓冲标记，bit 3: ibuf索引页标记
const (
	IBUF_BITS_PER_PAGE    = 4
	IBUF_BITMAP_FREE_MASK = 0x03
	IBUF_BITMAP_BUFFERED  = 2
	IBUF_BITMAP_IBUF      = 3
)

// IBufBitmapPage Insert Buffer位图页面包装器
// 直接在页面内容上原地读写，打包/解包只发生在半字节边界
type IBufBitmapPage struct {
	content  []byte
	pageSize uint32
}

// WrapIBufBitmapPage 在已有页面内容上创建位图页面包装器
// pageSize是被跟踪段的物理页大小，决定位图区的长度
func WrapIBufBitmapPage(content []byte, pageSize uint32) (*IBufBitmapPage, error) {
	if uint32(len(content)) < common.FileHeaderSize+pageSize/2+common.FileTrailerSize {
		return nil, ErrInvalidBitmapPage
	}

	pageType := common.PageType(binary.BigEndian.Uint16(content[common.FilPageTypeOffset:]))
	if pageType != common.FIL_PAGE_IBUF_BITMAP && pageType != common.FIL_PAGE_TYPE_ALLOCATED {
		return nil, ErrInvalidBitmapPage
	}

	return &IBufBitmapPage{content: content, pageSize: pageSize}, nil
}

// FormatIBufBitmapPage 将一个页面初始化为位图页面
// 全零位图是安全初值：空闲编码0表示"没有空间"
func FormatIBufBitmapPage(content []byte, pageNo uint32) {
	for i := range content {
		content[i] = 0
	}
	binary.BigEndian.PutUint32(content[common.FilPageOffset:], pageNo)
	binary.BigEndian.PutUint16(content[common.FilPageTypeOffset:], uint16(common.FIL_PAGE_IBUF_BITMAP))
}

// 每个位图页面可跟踪pageSize个页面，offset为页号在本段内的偏移
func (w *IBufBitmapPage) nibble(offset uint32) (bytePos uint32, high bool) {
	return common.FileHeaderSize + offset/2, offset%2 == 1
}

func (w *IBufBitmapPage) readNibble(offset uint32) byte {
	bytePos, high := w.nibble(offset)
	return util.ReadNibble(w.content[bytePos], high)
}

func (w *IBufBitmapPage) writeNibble(offset uint32, value byte) {
	bytePos, high := w.nibble(offset)
	w.content[bytePos] = util.WriteNibble(w.content[bytePos], high, value)
}

// FreeBits 读取空闲空间编码(0..3)
func (w *IBufBitmapPage) FreeBits(offset uint32) byte {
	return util.ReadBits2(w.readNibble(offset))
}

// SetFreeBits 写入空闲空间编码(0..3)
func (w *IBufBitmapPage) SetFreeBits(offset uint32, bits byte) {
	n := w.readNibble(offset)
	n = (n &^ IBUF_BITMAP_FREE_MASK) | (bits & IBUF_BITMAP_FREE_MASK)
	w.writeNibble(offset, n)
}

// Buffered 读取缓冲标记
func (w *IBufBitmapPage) Buffered(offset uint32) bool {
	return util.ReadBit(w.readNibble(offset), IBUF_BITMAP_BUFFERED)
}

// SetBuffered 写入缓冲标记
func (w *IBufBitmapPage) SetBuffered(offset uint32, buffered bool) {
	w.writeNibble(offset, util.SetBit(w.readNibble(offset), IBUF_BITMAP_BUFFERED, buffered))
}

// IbufFlag 读取ibuf索引页标记
// 置位表示被跟踪页面属于变更缓冲自身的索引
func (w *IBufBitmapPage) IbufFlag(offset uint32) bool {
	return util.ReadBit(w.readNibble(offset), IBUF_BITMAP_IBUF)
}

// SetIbufFlag 写入ibuf索引页标记
func (w *IBufBitmapPage) SetIbufFlag(offset uint32, flag bool) {
	w.writeNibble(offset, util.SetBit(w.readNibble(offset), IBUF_BITMAP_IBUF, flag))
}
