package main

import (
	"flag"
	"fmt"

	"github.com/zhukovaskychina/xmysql-changebuffer/logger"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/conf"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/buffer_pool"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/ibuf"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/mtr"
	"github.com/zhukovaskychina/xmysql-changebuffer/server/innodb/storage/wrapper/page"
)

const help = `
******************************************************************************************
* XMySQL Change Buffer 演示程序
*帮助:
*1. -- help
*2. -- configPath   指定my.ini配置文件
******************************************************************************************
`

// demoFetcher 演示用的页面读取器，页面全部驻留内存
type demoFetcher struct {
	pages map[basic.PageID]basic.IndexPage
}

func (f *demoFetcher) FetchForMerge(pageID basic.PageID) (basic.IndexPage, error) {
	block, ok := f.pages[pageID]
	if !ok {
		return nil, basic.ErrPageNotFound
	}
	return block, nil
}

func main() {
	fmt.Print(help)

	var configPath string
	flag.StringVar(&configPath, "configPath", "", "配置文件路径")
	flag.Parse()

	config := conf.NewCfg().Load(&conf.CommandLineArgs{ConfigPath: configPath})

	logConfig := logger.LogConfig{
		ErrorLogPath: config.LogError,
		InfoLogPath:  config.LogInfos,
		LogLevel:     config.LogLevel,
	}
	if err := logger.InitLogger(logConfig); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	pool := buffer_pool.NewBufferPool(&buffer_pool.BufferPoolConfig{
		PoolSize:         uint64(config.InnodbBufferPoolSize),
		PageSize:         uint32(config.InnodbPageSize),
		PrefetchSize:     4,
		PrefetchWorkers:  config.InnodbIbufPrefetchWorkers,
		PrefetchQueueLen: config.InnodbIbufPrefetchQueueLen,
	})

	physPageSize := uint32(config.InnodbPageSize)
	fetcher := &demoFetcher{pages: make(map[basic.PageID]basic.IndexPage)}
	index := ibuf.NewMemoryIndex(physPageSize, 0)

	ib, err := ibuf.InitAtDBStart(config, pool, index, fetcher)
	if err != nil {
		logger.Errorf("change buffer init failed: %v", err)
		return
	}
	defer ib.Close()

	// 模拟一个非驻留的二级索引叶子页面，先播种其位图状态
	target := basic.NewPageID(7, 42)
	block := page.NewSecondaryIndexLeafPage(target, physPageSize)
	fetcher.pages[target] = block

	m := &mtr.Mtr{}
	ib.MtrStart(m)
	ib.SetBitmapForBulkLoad(block, m)
	ib.MtrCommit(m)

	if err := ib.Insert(ibuf.IBUF_OP_INSERT, target, []byte("user_email_idx:alice"), physPageSize, nil); err != nil {
		logger.Warnf("buffered write refused, caller must read the page: %v", err)
		return
	}
	logger.Infof("buffered an insert for %s, buffer empty=%v", target, ib.IsEmpty())

	merged := ib.Contract()
	logger.Infof("contraction merged %d bytes, buffer empty=%v", merged, ib.IsEmpty())
}
