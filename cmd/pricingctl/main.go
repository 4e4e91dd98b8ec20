package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wfunc/pricing-sync/internal/config"
	"github.com/wfunc/pricing-sync/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "pricingctl",
	Short: "定价同步运维工具",
	Long: `pricingctl 用于检查云端连接、生成建表语句，以及把本地数据推送到云端。

云端地址和匿名令牌从环境变量读取（默认 SUPABASE_URL / SUPABASE_ANON_KEY），
也可以写在当前目录的 .env 文件中。`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(configPath); err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		// 命令行输出给人看，日志只写错误
		cfg := config.Get().Log
		cfg.Level = "error"
		cfg.Output = "stderr"
		cfg.Modules = nil
		return logger.Init(&cfg)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "配置文件路径")
	rootCmd.AddCommand(checkCmd, schemaCmd, pushCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
