package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wfunc/pricing-sync/internal/config"
)

// CheckStep 单项检查结果
type CheckStep struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// CheckReport 远端连通性检查报告
type CheckReport struct {
	Steps []CheckStep `json:"steps"`
}

// OK 所有步骤都通过
func (r *CheckReport) OK() bool {
	for _, s := range r.Steps {
		if !s.OK {
			return false
		}
	}
	return len(r.Steps) > 0
}

func (r *CheckReport) add(name string, err error, okDetail string) bool {
	step := CheckStep{Name: name, OK: err == nil, Detail: okDetail}
	if err != nil {
		step.Detail = err.Error()
	}
	r.Steps = append(r.Steps, step)
	return err == nil
}

// Check 依次检查环境变量、连接、两张表是否存在，以及匿名角色能否写入和删除
func Check(ctx context.Context, cfg *config.SyncConfig) *CheckReport {
	report := &CheckReport{}

	var envErr error
	if !cfg.Configured() {
		envErr = fmt.Errorf("缺少环境变量 %s 或 %s", cfg.Env.URLKey, cfg.Env.AnonKey)
	}
	if !report.add("env", envErr, cfg.Env.URLKey+", "+cfg.Env.AnonKey) {
		return report
	}

	schema := SchemaFromConfig(cfg.Schema)
	if !report.add("schema", schema.Validate(), schema.MainTable+", "+schema.ListTable) {
		return report
	}

	connCfg, err := ConnConfig(cfg)
	if !report.add("parse_url", err, "") {
		return report
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := pgx.ConnectConfig(connectCtx, connCfg)
	if !report.add("connect", err, connCfg.Host) {
		return report
	}
	defer conn.Close(context.Background())

	for _, table := range []string{schema.MainTable, schema.ListTable} {
		report.add("table:"+table, tableExists(ctx, conn, table), "")
	}
	if !report.OK() {
		return report
	}

	report.add("write_delete", writeDeleteProbe(ctx, conn, schema), "")
	return report
}

func tableExists(ctx context.Context, conn *pgx.Conn, table string) error {
	var name *string
	if err := conn.QueryRow(ctx, "select to_regclass($1)::text", table).Scan(&name); err != nil {
		return err
	}
	if name == nil {
		return fmt.Errorf("表 %s 不存在", table)
	}
	return nil
}

// writeDeleteProbe 写入一行探测数据再删除
func writeDeleteProbe(ctx context.Context, conn *pgx.Conn, s Schema) error {
	probeKey := "__check__" + uuid.NewString()
	table := pgx.Identifier{s.MainTable}.Sanitize()
	keyCol := pgx.Identifier{s.MainKey}.Sanitize()
	gamesCol := pgx.Identifier{s.MainGames}.Sanitize()

	insert := fmt.Sprintf("insert into %s (%s, %s) values ($1, '[]'::jsonb)", table, keyCol, gamesCol)
	if _, err := conn.Exec(ctx, insert, probeKey); err != nil {
		return fmt.Errorf("写入失败: %w", err)
	}

	del := fmt.Sprintf("delete from %s where %s = $1", table, keyCol)
	tag, err := conn.Exec(ctx, del, probeKey)
	if err != nil {
		return fmt.Errorf("删除失败: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("删除影响 %d 行，可能缺少删除权限", tag.RowsAffected())
	}
	return nil
}
