package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wfunc/pricing-sync/internal/config"
	"github.com/wfunc/pricing-sync/internal/remote"
)

var (
	schemaDialect string
	schemaApply   bool
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "输出或执行云端建表语句",
	Long: `按配置的表名和列名生成主表与方案表的建表语句。

默认只输出 SQL；加上 --apply 时连接云端并执行。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := &config.Get().Sync
		schema := remote.SchemaFromConfig(cfg.Schema)

		if !schemaApply {
			sql, err := schema.SQL(schemaDialect)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), sql)
			return nil
		}

		adapter, err := remote.Open(cfg, nil)
		if err != nil {
			return err
		}
		defer adapter.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		if err := adapter.Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "已创建 %s, %s\n", schema.MainTable, schema.ListTable)
		return nil
	},
}

func init() {
	schemaCmd.Flags().StringVar(&schemaDialect, "dialect", "postgres", "SQL 方言 (postgres/sqlite)")
	schemaCmd.Flags().BoolVar(&schemaApply, "apply", false, "连接云端并执行")
}
