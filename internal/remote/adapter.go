package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/wfunc/pricing-sync/internal/config"
	"github.com/wfunc/pricing-sync/internal/database"
	"github.com/wfunc/pricing-sync/internal/errors"
	"github.com/wfunc/pricing-sync/internal/logger"
	"github.com/wfunc/pricing-sync/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Snapshot 某个同步码在远端的全部数据
type Snapshot struct {
	// HasMain 主表存在该同步码的行
	HasMain       bool
	Games         []models.Game
	CurrentGameID string
	Profiles      []models.NamedPresetProfile
}

// Empty 远端没有任何数据
func (s *Snapshot) Empty() bool {
	return s == nil || (!s.HasMain && len(s.Profiles) == 0)
}

// MainState 主表写入内容
type MainState struct {
	Games         []models.Game
	CurrentGameID string
}

// TableAdapter 基于 gorm 的远端表适配器
type TableAdapter struct {
	db     *gorm.DB
	schema Schema
	log    *zap.Logger
	now    func() time.Time
}

// NewTableAdapter 创建适配器
func NewTableAdapter(db *gorm.DB, schema Schema, log *zap.Logger) *TableAdapter {
	if log == nil {
		log = logger.GetModuleLogger(logger.ModuleRemote)
	}
	return &TableAdapter{
		db:     db,
		schema: schema,
		log:    log,
		now:    time.Now,
	}
}

// Open 按同步配置连接远端，未配置时返回 ErrRemoteNotConfigured
func Open(cfg *config.SyncConfig, log *zap.Logger) (*TableAdapter, error) {
	if !cfg.Configured() {
		return nil, errors.New(errors.ErrRemoteNotConfigured)
	}

	schema := SchemaFromConfig(cfg.Schema)
	if err := schema.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigValidate)
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres", "postgresql", "":
		connCfg, err := ConnConfig(cfg)
		if err != nil {
			return nil, err
		}
		dialector = postgres.New(postgres.Config{Conn: stdlib.OpenDB(*connCfg)})
	default:
		d, err := database.Dialector(cfg.Driver, cfg.URL)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrConfigValidate)
		}
		dialector = d
	}

	if log == nil {
		log = logger.GetModuleLogger(logger.ModuleRemote)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 database.NewGormLogger(log, database.ParseLogLevel("warn")),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrRemoteConnect)
	}

	return NewTableAdapter(db, schema, log), nil
}

// ConnConfig 解析远端地址，匿名令牌作为连接密码
func ConnConfig(cfg *config.SyncConfig) (*pgx.ConnConfig, error) {
	connCfg, err := pgx.ParseConfig(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigValidate, "远端地址格式错误")
	}
	if connCfg.Password == "" {
		connCfg.Password = cfg.AnonKey
	}
	return connCfg, nil
}

// Schema 当前表结构
func (a *TableAdapter) Schema() Schema {
	return a.schema
}

// DB 底层连接
func (a *TableAdapter) DB() *gorm.DB {
	return a.db
}

// Close 关闭连接
func (a *TableAdapter) Close() error {
	return database.CloseDB(a.db)
}

// Migrate 在远端执行建表语句
func (a *TableAdapter) Migrate(ctx context.Context) error {
	stmts, err := a.schema.DDL(a.db.Dialector.Name())
	if err != nil {
		return errors.Wrap(err, errors.ErrConfigValidate)
	}
	for _, stmt := range stmts {
		if err := a.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return errors.Wrap(err, errors.ErrRemotePush, "执行建表语句失败")
		}
	}
	return nil
}

func eq(column string, value interface{}) clause.Eq {
	return clause.Eq{Column: clause.Column{Name: column}, Value: value}
}

// Pull 并发读取主表和列表表，远端无数据时返回 nil
func (a *TableAdapter) Pull(ctx context.Context, key string) (*Snapshot, error) {
	start := time.Now()
	snap := &Snapshot{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.pullMain(gctx, key, snap)
	})

	var profiles []models.NamedPresetProfile
	g.Go(func() error {
		var err error
		profiles, err = a.pullProfiles(gctx, key)
		return err
	})

	err := g.Wait()
	logger.LogRemoteOperation("pull", a.schema.MainTable, time.Since(start), err)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrRemotePull, key)
	}

	snap.Profiles = profiles
	if snap.Empty() {
		return nil, nil
	}
	return snap, nil
}

func (a *TableAdapter) pullMain(ctx context.Context, key string, snap *Snapshot) error {
	s := a.schema
	var games, currentID sql.NullString

	row := a.db.WithContext(ctx).
		Table(s.MainTable).
		Clauses(clause.Select{Columns: []clause.Column{{Name: s.MainGames}, {Name: s.MainCurrentID}}}).
		Where(eq(s.MainKey, key)).
		Limit(1).
		Row()
	if err := row.Scan(&games, &currentID); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}

	snap.HasMain = true
	snap.Games = models.NormalizeGames(games.String)
	snap.CurrentGameID = currentID.String
	return nil
}

func (a *TableAdapter) pullProfiles(ctx context.Context, key string) ([]models.NamedPresetProfile, error) {
	s := a.schema

	rows, err := a.db.WithContext(ctx).
		Table(s.ListTable).
		Clauses(clause.Select{Columns: []clause.Column{
			{Name: s.ListItemID}, {Name: s.ListName}, {Name: s.ListData}, {Name: s.ListCreatedAt},
		}}).
		Where(eq(s.ListKey, key)).
		Order(clause.OrderByColumn{Column: clause.Column{Name: s.ListCreatedAt}, Desc: true}).
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := []models.NamedPresetProfile{}
	for rows.Next() {
		var id, name, data, createdAt sql.NullString
		if err := rows.Scan(&id, &name, &data, &createdAt); err != nil {
			// 单行格式异常时跳过，不影响其他行
			a.log.Warn("远端方案行解析失败", zap.String("key", key), zap.Error(err))
			continue
		}
		if id.String == "" {
			continue
		}
		profiles = append(profiles, models.NamedPresetProfile{
			ID:        id.String,
			Name:      name.String,
			Rows:      models.NormalizeRows(data.String),
			CreatedAt: createdAt.String,
		})
	}
	return profiles, rows.Err()
}

// PushMain 写入主表（按同步码 upsert）
func (a *TableAdapter) PushMain(ctx context.Context, key string, state MainState) error {
	s := a.schema
	start := time.Now()

	games := state.Games
	if games == nil {
		games = []models.Game{}
	}
	payload, err := json.Marshal(games)
	if err != nil {
		return errors.Wrap(err, errors.ErrRemotePush, "编码游戏数据失败")
	}

	values := map[string]interface{}{
		s.MainKey:       key,
		s.MainGames:     datatypes.JSON(payload),
		s.MainCurrentID: state.CurrentGameID,
		s.MainUpdatedAt: a.now().UTC(),
	}
	err = a.db.WithContext(ctx).
		Table(s.MainTable).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: s.MainKey}},
			DoUpdates: clause.AssignmentColumns([]string{s.MainGames, s.MainCurrentID, s.MainUpdatedAt}),
		}).
		Create(values).Error

	logger.LogRemoteOperation("push_main", s.MainTable, time.Since(start), err)
	if err != nil {
		return errors.Wrap(err, errors.ErrRemotePush, key)
	}
	return nil
}

// UpsertProfile 写入单个方案
func (a *TableAdapter) UpsertProfile(ctx context.Context, key string, profile models.NamedPresetProfile) error {
	s := a.schema
	start := time.Now()

	rows := profile.Rows
	if rows == nil {
		rows = []models.NamedPresetRow{}
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return errors.Wrap(err, errors.ErrRemotePush, "编码方案失败")
	}

	createdAt := profile.CreatedAt
	if createdAt == "" {
		createdAt = models.FormatTime(a.now())
	}

	values := map[string]interface{}{
		s.ListKey:       key,
		s.ListItemID:    profile.ID,
		s.ListName:      profile.Name,
		s.ListData:      datatypes.JSON(payload),
		s.ListCreatedAt: createdAt,
	}
	err = a.db.WithContext(ctx).
		Table(s.ListTable).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: s.ListKey}, {Name: s.ListItemID}},
			DoUpdates: clause.AssignmentColumns([]string{s.ListName, s.ListData}),
		}).
		Create(values).Error

	logger.LogRemoteOperation("upsert_profile", s.ListTable, time.Since(start), err)
	if err != nil {
		return errors.Wrap(err, errors.ErrRemotePush, key, profile.ID)
	}
	return nil
}

// DeleteProfile 删除单个方案
func (a *TableAdapter) DeleteProfile(ctx context.Context, key string, itemID string) error {
	s := a.schema
	start := time.Now()

	err := a.db.WithContext(ctx).
		Table(s.ListTable).
		Where(eq(s.ListKey, key)).
		Where(eq(s.ListItemID, itemID)).
		Delete(map[string]interface{}{}).Error

	logger.LogRemoteOperation("delete_profile", s.ListTable, time.Since(start), err)
	if err != nil {
		return errors.Wrap(err, errors.ErrRemoteDelete, key, itemID)
	}
	return nil
}

// DeleteAll 删除同步码在两张表中的全部数据
func (a *TableAdapter) DeleteAll(ctx context.Context, key string) error {
	s := a.schema
	start := time.Now()

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(s.ListTable).Where(eq(s.ListKey, key)).Delete(map[string]interface{}{}).Error; err != nil {
			return err
		}
		return tx.Table(s.MainTable).Where(eq(s.MainKey, key)).Delete(map[string]interface{}{}).Error
	})

	logger.LogRemoteOperation("delete_all", s.MainTable, time.Since(start), err)
	if err != nil {
		return errors.Wrap(err, errors.ErrRemoteDelete, key)
	}
	return nil
}
