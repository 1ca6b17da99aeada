package common

// Page size constants
const (
	PageSize            = 16384 // Default page size
	FileHeaderSize      = 38    // File header size
	PageHeaderSize      = 56    // Page header size
	InfimumSupremumSize = 26    // Size of infimum/supremum records
	FileTrailerSize     = 8     // File trailer size
)

// File header field offsets
const (
	FilPageOffset     = 4  // Page number
	FilPageTypeOffset = 24 // Page type
	FilPageSpaceID    = 34 // Space ID
)

// LSNT 日志序列号
type LSNT uint64

type PageType uint16

// Page types defines the different types of pages in InnoDB
const (
	// FIL_PAGE_INDEX (0x0000) - B+Tree 索引页，用于存储记录和索引结构的主要页面
	// 可以是聚簇索引或二级索引的一部分
	FIL_PAGE_INDEX PageType = 0x0000

	// FIL_PAGE_IBUF_FREE_LIST (0x0004) - 插入缓冲空闲列表页
	FIL_PAGE_IBUF_FREE_LIST PageType = 0x0004

	// FIL_PAGE_IBUF_BITMAP (0x0005) - 插入缓冲位图页
	// 记录每个被跟踪页面的空闲空间编码与缓冲标记
	FIL_PAGE_IBUF_BITMAP PageType = 0x0005

	// FIL_PAGE_TYPE_SYS (0x0006) - 系统页，存储系统信息
	FIL_PAGE_TYPE_SYS PageType = 0x0006

	// FIL_PAGE_TYPE_FSP_HDR (0x0008) - 表空间头页
	FIL_PAGE_TYPE_FSP_HDR PageType = 0x0008

	// FIL_PAGE_TYPE_ALLOCATED (0x000F) - 已分配但未使用的页面
	FIL_PAGE_TYPE_ALLOCATED PageType = 0x000F
)
