package basic

// IndexPage 二级索引叶子页面的最小操作面
// 变更缓冲合并时对目标页面施加三类操作，并读取其真实空闲空间
type IndexPage interface {
	ID() PageID

	// InsertKey 插入一条二级索引记录，空间不足时返回ErrPageFull
	InsertKey(key []byte) error

	// DeleteMarkKey 对已有记录打删除标记，记录不存在时返回ErrKeyNotFound
	DeleteMarkKey(key []byte) error

	// PurgeKey 物理删除记录，记录不存在时返回ErrKeyNotFound
	PurgeKey(key []byte) error

	// MaxInsertSize 当前还能容纳的最大插入记录字节数
	MaxInsertSize() uint32

	IsLeaf() bool
}

// IndexStats 有序索引的结构统计，用于填充控制块的咨询性字段
type IndexStats struct {
	Pages       uint64 // 索引自身占用的页面数
	SegPages    uint64 // 段中已分配的页面数
	FreeListLen uint64 // 空闲链表长度
	Height      uint8  // 树高
}

// OrderedIndex 存放缓冲记录的有序索引（外部协作者）
// 键按(space_id, page_no)为主序排列，同一页面的所有条目物理相邻
type OrderedIndex interface {
	// Insert 插入一条记录，段无法增长时返回ErrNoFreeSpace
	Insert(key []byte, rec []byte) error

	// Delete 删除键对应的记录
	Delete(key []byte) error

	// AscendRange 按键升序遍历[low, high)，fn返回false时停止
	AscendRange(low, high []byte, fn func(key, rec []byte) bool)

	// Empty 索引中是否没有任何条目
	Empty() bool

	// Stats 返回结构统计
	Stats() IndexStats
}

// PageFetcher 将页面读入内存并以独占方式持有（外部协作者）
// Contract等主动合并路径通过它触发常规的页面读取
type PageFetcher interface {
	// FetchForMerge 读入并独占页面，页面不存在时返回(nil, ErrPageNotFound)
	FetchForMerge(pageID PageID) (IndexPage, error)
}

// FileSpace 表空间的最小访问面，用于导入校验与丢弃清理
type FileSpace interface {
	ID() uint32

	// PageCount 表空间内页面总数
	PageCount() uint32

	// LeafPage 返回指定页号的二级索引叶子页面，若该页号不是叶子页则返回false
	LeafPage(pageNo uint32) (IndexPage, bool)
}
