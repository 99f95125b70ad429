package cli

import (
	"time"

	"excel-translator-web/translator"
)

// Flags 命令行参数
type Flags struct {
	CfgFile string

	// 服务参数
	Addr     string
	DevProxy string

	// 批处理参数
	BatchSize  int
	BatchDelay time.Duration

	Debug bool

	// translate 子命令
	Output string
}

// NewFlags 创建带默认值的参数
func NewFlags() *Flags {
	return &Flags{
		Addr:       ":8080",
		BatchSize:  translator.DefaultBatchSize,
		BatchDelay: translator.DefaultDelay,
	}
}
