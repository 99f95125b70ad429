package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"excel-translator-web/config"
)

// Version 程序版本
const Version = "0.1.0"

// CreateRootCommand 创建根命令，不带子命令时启动 Web 服务
func CreateRootCommand(flags *Flags, v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "excel-translator",
		Short: "Excel 第一列批量翻译工具",
		Long: `excel-translator 读取 Excel 第一个工作表的 A 列，逐条调用 Gemini 翻译，
并导出原文/译文两列的新表格。

Examples:
  excel-translator                          # 启动 Web 服务（默认）
  excel-translator serve --addr :9000       # 指定监听地址
  excel-translator translate book.xlsx      # 命令行翻译，输出 translated_book.xlsx`,
		Version:      Version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
	}

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return config.Init(v, flags.CfgFile)
	}
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, v)
	}

	setupFlags(rootCmd, flags)
	bindFlagsToViper(rootCmd, v)

	rootCmd.AddCommand(newServeCommand(v))
	rootCmd.AddCommand(newTranslateCommand(flags, v))

	return rootCmd
}

func newServeCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 Web 服务",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, v)
		},
	}
}

func newTranslateCommand(flags *Flags, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate <input.xlsx>",
		Short: "翻译一个表格并写出结果文件",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd, args[0], flags.Output, v)
		},
	}
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "", "输出文件（默认 translated_<输入文件名>.xlsx）")
	return cmd
}

func setupFlags(cmd *cobra.Command, flags *Flags) {
	// 全局参数
	cmd.PersistentFlags().StringVar(&flags.CfgFile, "config", "", "配置文件（默认 ./excel-translator.yaml 或 $HOME/excel-translator.yaml）")

	cmd.PersistentFlags().StringVar(&flags.Addr, "addr", flags.Addr, "监听地址")
	cmd.PersistentFlags().StringVar(&flags.DevProxy, "dev-proxy", "", "前端开发服务器地址，设置后代理非 API 请求")
	cmd.PersistentFlags().IntVar(&flags.BatchSize, "batch-size", flags.BatchSize, "每批条数")
	cmd.PersistentFlags().DurationVar(&flags.BatchDelay, "batch-delay", flags.BatchDelay, "两次请求之间的间隔")
	cmd.PersistentFlags().BoolVar(&flags.Debug, "debug", false, "输出每条译文的调试日志")
}

func bindFlagsToViper(cmd *cobra.Command, v *viper.Viper) {
	v.BindPFlag("server.addr", cmd.PersistentFlags().Lookup("addr"))
	v.BindPFlag("server.dev_proxy", cmd.PersistentFlags().Lookup("dev-proxy"))
	v.BindPFlag("batch.size", cmd.PersistentFlags().Lookup("batch-size"))
	v.BindPFlag("batch.delay", cmd.PersistentFlags().Lookup("batch-delay"))
	v.BindPFlag("log.debug", cmd.PersistentFlags().Lookup("debug"))
}
