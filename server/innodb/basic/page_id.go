package basic

import "fmt"

// PageID 页面地址，(表空间ID, 页号)二元组
// 作为变更缓冲的缓冲键以及位图查找键，不可变
type PageID struct {
	SpaceID uint32
	PageNo  uint32
}

// NewPageID 创建页面地址
func NewPageID(spaceID, pageNo uint32) PageID {
	return PageID{SpaceID: spaceID, PageNo: pageNo}
}

func (id PageID) String() string {
	return fmt.Sprintf("[space=%d, page=%d]", id.SpaceID, id.PageNo)
}

// Less 按(space_id, page_no)字典序比较
func (id PageID) Less(other PageID) bool {
	if id.SpaceID != other.SpaceID {
		return id.SpaceID < other.SpaceID
	}
	return id.PageNo < other.PageNo
}
