package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wfunc/pricing-sync/internal/config"
	"github.com/wfunc/pricing-sync/internal/remote"
)

var (
	checkTimeout time.Duration
	checkJSON    bool
)

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	nameStyle = lipgloss.NewStyle().Width(8)
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "检查云端同步配置",
	Long: `依次检查：
  1. 环境变量是否设置
  2. 表结构配置是否合法
  3. 能否连接云端
  4. 主表和方案表是否存在
  5. 匿名角色能否写入并删除一行测试数据`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
		defer cancel()

		report := remote.Check(ctx, &config.Get().Sync)
		out := cmd.OutOrStdout()

		if checkJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			for _, step := range report.Steps {
				mark := passStyle.Render("✓")
				if !step.OK {
					mark = failStyle.Render("✗")
				}
				fmt.Fprintf(out, "%s %s %s\n", mark, nameStyle.Render(step.Name), step.Detail)
			}
		}

		if !report.OK() {
			return fmt.Errorf("云端检查未通过")
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 15*time.Second, "整体超时时间")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "以 JSON 输出检查结果")
}
