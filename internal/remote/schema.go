package remote

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wfunc/pricing-sync/internal/config"
)

// Schema 远端表名与列名映射
type Schema struct {
	MainTable     string
	MainKey       string
	MainGames     string
	MainCurrentID string
	MainUpdatedAt string

	ListTable     string
	ListKey       string
	ListItemID    string
	ListName      string
	ListData      string
	ListCreatedAt string
}

// DefaultSchema 默认表结构
func DefaultSchema() Schema {
	return Schema{
		MainTable:     "pricing_sync",
		MainKey:       "device_id",
		MainGames:     "games",
		MainCurrentID: "current_game_id",
		MainUpdatedAt: "updated_at",

		ListTable:     "pricing_profiles",
		ListKey:       "device_id",
		ListItemID:    "profile_id",
		ListName:      "name",
		ListData:      "rows",
		ListCreatedAt: "created_at",
	}
}

// SchemaFromConfig 从配置构建，空字段使用默认值
func SchemaFromConfig(c config.SchemaConfig) Schema {
	d := DefaultSchema()
	return Schema{
		MainTable:     or(c.MainTable.Name, d.MainTable),
		MainKey:       or(c.MainTable.DeviceIDColumn, d.MainKey),
		MainGames:     or(c.MainTable.PayloadColumnGames, d.MainGames),
		MainCurrentID: or(c.MainTable.PayloadColumnCurrentID, d.MainCurrentID),
		MainUpdatedAt: or(c.MainTable.UpdatedAtColumn, d.MainUpdatedAt),

		ListTable:     or(c.ListTable.Name, d.ListTable),
		ListKey:       or(c.ListTable.DeviceIDColumn, d.ListKey),
		ListItemID:    or(c.ListTable.ItemIDColumn, d.ListItemID),
		ListName:      or(c.ListTable.NameColumn, d.ListName),
		ListData:      or(c.ListTable.DataColumn, d.ListData),
		ListCreatedAt: or(c.ListTable.CreatedAtColumn, d.ListCreatedAt),
	}
}

func or(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate 校验所有名称都是合法标识符
func (s Schema) Validate() error {
	names := map[string]string{
		"main_table.name":                      s.MainTable,
		"main_table.device_id_column":          s.MainKey,
		"main_table.payload_column_games":      s.MainGames,
		"main_table.payload_column_current_id": s.MainCurrentID,
		"main_table.updated_at_column":         s.MainUpdatedAt,
		"list_table.name":                      s.ListTable,
		"list_table.device_id_column":          s.ListKey,
		"list_table.item_id_column":            s.ListItemID,
		"list_table.name_column":               s.ListName,
		"list_table.data_column":               s.ListData,
		"list_table.created_at_column":         s.ListCreatedAt,
	}
	for field, name := range names {
		if !identPattern.MatchString(name) {
			return fmt.Errorf("%s 不是合法的标识符: %q", field, name)
		}
	}
	if s.MainTable == s.ListTable {
		return fmt.Errorf("主表与列表表不能同名: %s", s.MainTable)
	}
	return nil
}

// DDL 生成建表语句
func (s Schema) DDL(dialect string) ([]string, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	switch dialect {
	case "postgres", "postgresql":
		return s.postgresDDL(), nil
	case "sqlite", "sqlite3":
		return s.sqliteDDL(), nil
	default:
		return nil, fmt.Errorf("不支持的方言: %s", dialect)
	}
}

// SQL 生成可直接执行的迁移脚本
func (s Schema) SQL(dialect string) (string, error) {
	stmts, err := s.DDL(dialect)
	if err != nil {
		return "", err
	}
	return strings.Join(stmts, ";\n\n") + ";\n", nil
}

func q(name string) string {
	return `"` + name + `"`
}

func (s Schema) postgresDDL() []string {
	main, list := q(s.MainTable), q(s.ListTable)
	return []string{
		fmt.Sprintf(`create table if not exists %s (
  id uuid primary key default gen_random_uuid(),
  %s text unique not null,
  %s jsonb not null default '[]',
  %s text,
  %s timestamptz default now()
)`, main, q(s.MainKey), q(s.MainGames), q(s.MainCurrentID), q(s.MainUpdatedAt)),
		fmt.Sprintf(`create index if not exists %s on %s (%s desc)`,
			q("idx_"+s.MainTable+"_updated"), main, q(s.MainUpdatedAt)),
		fmt.Sprintf(`grant select, insert, update, delete on %s to anon`, main),
		fmt.Sprintf(`alter table %s enable row level security`, main),
		fmt.Sprintf(`drop policy if exists "Allow anon read and write" on %s`, main),
		fmt.Sprintf(`create policy "Allow anon read and write" on %s for all to anon using (true) with check (true)`, main),

		fmt.Sprintf(`create table if not exists %s (
  id uuid primary key default gen_random_uuid(),
  %s text not null,
  %s text not null,
  %s text not null,
  %s jsonb not null default '[]',
  %s timestamptz default now(),
  unique (%s, %s)
)`, list, q(s.ListKey), q(s.ListItemID), q(s.ListName), q(s.ListData), q(s.ListCreatedAt), q(s.ListKey), q(s.ListItemID)),
		fmt.Sprintf(`create index if not exists %s on %s (%s)`,
			q("idx_"+s.ListTable+"_device"), list, q(s.ListKey)),
		fmt.Sprintf(`grant select, insert, update, delete on %s to anon`, list),
		fmt.Sprintf(`alter table %s enable row level security`, list),
		fmt.Sprintf(`drop policy if exists "Allow anon read and write list" on %s`, list),
		fmt.Sprintf(`create policy "Allow anon read and write list" on %s for all to anon using (true) with check (true)`, list),
	}
}

func (s Schema) sqliteDDL() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  %s TEXT NOT NULL UNIQUE,
  %s TEXT NOT NULL DEFAULT '[]',
  %s TEXT,
  %s DATETIME
)`, q(s.MainTable), q(s.MainKey), q(s.MainGames), q(s.MainCurrentID), q(s.MainUpdatedAt)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  %s TEXT NOT NULL,
  %s TEXT NOT NULL,
  %s TEXT NOT NULL,
  %s TEXT NOT NULL DEFAULT '[]',
  %s TEXT,
  UNIQUE (%s, %s)
)`, q(s.ListTable), q(s.ListKey), q(s.ListItemID), q(s.ListName), q(s.ListData), q(s.ListCreatedAt), q(s.ListKey), q(s.ListItemID)),
	}
}
