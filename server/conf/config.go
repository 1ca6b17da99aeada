package conf

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/zhukovaskychina/xmysql-changebuffer/logger"

	"gopkg.in/ini.v1"
)

var ConfigPath string

type CommandLineArgs struct {
	ConfigPath string
}

// 变更缓冲操作模式，对应 innodb_change_buffering
const (
	ChangeBufferingNone    = "none"
	ChangeBufferingInserts = "inserts"
	ChangeBufferingDeletes = "deletes"
	ChangeBufferingChanges = "changes"
	ChangeBufferingPurges  = "purges"
	ChangeBufferingAll     = "all"
)

/*
*
innodb_page_size		= 16384
innodb_change_buffering		= all
innodb_change_buffer_max_size	= 25
innodb_buffer_pool_size		= 134217728
innodb_read_only		= false
*/
type Cfg struct {
	Raw     *ini.File
	DataDir string

	// logs
	LogError string `default:"/var/log/mysql/error.log" yaml:"log_error" json:"log_error,omitempty"`
	LogInfos string `default:"/var/log/mysql/mysql.log" yaml:"log_infos" json:"log_infos,omitempty"`
	LogLevel string `default:"info" yaml:"log_level" json:"log_level,omitempty"`

	// innodb
	InnodbPageSize             int    `default:"16384" yaml:"innodb_page_size" json:"innodb_page_size,omitempty"`
	InnodbBufferPoolSize       int    `default:"134217728" yaml:"innodb_buffer_pool_size" json:"innodb_buffer_pool_size,omitempty"`
	InnodbChangeBuffering      string `default:"all" yaml:"innodb_change_buffering" json:"innodb_change_buffering,omitempty"`
	InnodbChangeBufferMaxSize  int    `default:"25" yaml:"innodb_change_buffer_max_size" json:"innodb_change_buffer_max_size,omitempty"`
	InnodbReadOnly             bool   `default:"false" yaml:"innodb_read_only" json:"innodb_read_only,omitempty"`
	InnodbForceRecovery        int    `default:"0" yaml:"innodb_force_recovery" json:"innodb_force_recovery,omitempty"`
	InnodbIbufContractBatch    int    `default:"8" yaml:"innodb_ibuf_contract_batch" json:"innodb_ibuf_contract_batch,omitempty"`
	InnodbIbufPrefetchWorkers  int    `default:"2" yaml:"innodb_ibuf_prefetch_workers" json:"innodb_ibuf_prefetch_workers,omitempty"`
	InnodbIbufPrefetchQueueLen int    `default:"64" yaml:"innodb_ibuf_prefetch_queue_len" json:"innodb_ibuf_prefetch_queue_len,omitempty"`
}

// NewCfg 创建默认配置
func NewCfg() *Cfg {
	return &Cfg{
		Raw:     ini.Empty(),
		DataDir: "data",
		// Logs 默认配置
		LogError: "/var/log/mysql/error.log",
		LogInfos: "/var/log/mysql/mysql.log",
		LogLevel: "info",
		// InnoDB 默认配置
		InnodbPageSize:             16384, // 16KB
		InnodbBufferPoolSize:       134217728,
		InnodbChangeBuffering:      ChangeBufferingAll,
		InnodbChangeBufferMaxSize:  25,
		InnodbReadOnly:             false,
		InnodbForceRecovery:        0,
		InnodbIbufContractBatch:    8,
		InnodbIbufPrefetchWorkers:  2,
		InnodbIbufPrefetchQueueLen: 64,
	}
}

func (cfg *Cfg) Load(args *CommandLineArgs) *Cfg {
	setHomePath(args)
	iniFile, err := cfg.loadConfiguration(args)
	if err != nil {
		logger.Debugf("加载配置文件时有异常: %v\n", err)
		os.Exit(1)
	}
	cfg.Raw = iniFile

	cfg.parseInnodbCfg(cfg.Raw.Section("innodb"))
	cfg.parseLogsCfg(cfg.Raw.Section("logs"))
	return cfg
}

func setHomePath(args *CommandLineArgs) {
	if args.ConfigPath != "" {
		ConfigPath = args.ConfigPath
		return
	}

	ConfigPath, _ = filepath.Abs(".")
}

func (cfg *Cfg) loadConfiguration(args *CommandLineArgs) (*ini.File, error) {
	if args.ConfigPath == "" {
		return ini.Empty(), nil
	}
	return ini.Load(args.ConfigPath)
}

func (cfg *Cfg) parseInnodbCfg(section *ini.Section) *Cfg {
	cfg.DataDir = section.Key("data_dir").MustString(cfg.DataDir)
	cfg.InnodbPageSize = section.Key("page_size").MustInt(cfg.InnodbPageSize)
	cfg.InnodbBufferPoolSize = section.Key("buffer_pool_size").MustInt(cfg.InnodbBufferPoolSize)
	cfg.InnodbChangeBuffering = parseChangeBuffering(section.Key("change_buffering").MustString(cfg.InnodbChangeBuffering))
	cfg.InnodbChangeBufferMaxSize = section.Key("change_buffer_max_size").MustInt(cfg.InnodbChangeBufferMaxSize)
	cfg.InnodbReadOnly = section.Key("read_only").MustBool(cfg.InnodbReadOnly)
	cfg.InnodbForceRecovery = section.Key("force_recovery").MustInt(cfg.InnodbForceRecovery)
	cfg.InnodbIbufContractBatch = section.Key("ibuf_contract_batch").MustInt(cfg.InnodbIbufContractBatch)
	cfg.InnodbIbufPrefetchWorkers = section.Key("ibuf_prefetch_workers").MustInt(cfg.InnodbIbufPrefetchWorkers)
	cfg.InnodbIbufPrefetchQueueLen = section.Key("ibuf_prefetch_queue_len").MustInt(cfg.InnodbIbufPrefetchQueueLen)

	// 最大占比限制在 (0,50]，与MySQL一致
	if cfg.InnodbChangeBufferMaxSize <= 0 || cfg.InnodbChangeBufferMaxSize > 50 {
		logger.Warnf("change_buffer_max_size %d 非法，使用默认值25", cfg.InnodbChangeBufferMaxSize)
		cfg.InnodbChangeBufferMaxSize = 25
	}
	return cfg
}

func (cfg *Cfg) parseLogsCfg(section *ini.Section) *Cfg {
	cfg.LogError = section.Key("log_error").MustString(cfg.LogError)
	cfg.LogInfos = section.Key("log_infos").MustString(cfg.LogInfos)
	cfg.LogLevel = section.Key("log_level").MustString(cfg.LogLevel)
	return cfg
}

// parseChangeBuffering 解析变更缓冲模式，非法值回退为all
func parseChangeBuffering(mode string) string {
	switch strings.ToLower(mode) {
	case ChangeBufferingNone, ChangeBufferingInserts, ChangeBufferingDeletes,
		ChangeBufferingChanges, ChangeBufferingPurges, ChangeBufferingAll:
		return strings.ToLower(mode)
	default:
		logger.Warnf("未知的change_buffering模式: %s，回退为all", mode)
		return ChangeBufferingAll
	}
}
