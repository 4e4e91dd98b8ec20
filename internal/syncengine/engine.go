// Package syncengine 本地状态与远端表之间的同步控制器
//
// 引擎持有当前同步码，在首次拉取完成前不推送任何数据，之后对游戏状态的修改做尾部防抖推送，
// 命名方案按行即时写入。切换同步码是上下文切换而不是合并。
package syncengine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/pricing-sync/internal/errors"
	"github.com/wfunc/pricing-sync/internal/logger"
	"github.com/wfunc/pricing-sync/internal/models"
	"github.com/wfunc/pricing-sync/internal/remote"
	"github.com/wfunc/pricing-sync/internal/repository"
	"github.com/wfunc/pricing-sync/internal/service"
	"go.uber.org/zap"
)

// 默认参数
const (
	DefaultDebounce = 500 * time.Millisecond
	DefaultCooldown = 3 * time.Second
	DefaultSyncKey  = "default"
)

// State 引擎状态
type State int

const (
	StateUninitialized State = iota
	StateLoadingInitial
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoadingInitial:
		return "loading_initial"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Remote 远端表操作，Pull 在远端无数据时返回 nil
type Remote interface {
	Pull(ctx context.Context, key string) (*remote.Snapshot, error)
	PushMain(ctx context.Context, key string, state remote.MainState) error
	UpsertProfile(ctx context.Context, key string, profile models.NamedPresetProfile) error
	DeleteProfile(ctx context.Context, key string, itemID string) error
	DeleteAll(ctx context.Context, key string) error
}

// Options 引擎参数
type Options struct {
	DefaultKey string
	Debounce   time.Duration
	Cooldown   time.Duration
	Clock      Clock
	Notifier   Notifier
	Logger     *zap.Logger
}

// Status 对外展示的同步状态
type Status struct {
	State        string     `json:"state"`
	SyncKey      string     `json:"sync_key"`
	IsDefaultKey bool       `json:"is_default_key"`
	Configured   bool       `json:"configured"`
	Saving       bool       `json:"saving"`
	PushPending  bool       `json:"push_pending"`
	Unsynced     bool       `json:"unsynced"`
	LastPushAt   *time.Time `json:"last_push_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

type opKind int

const (
	opUpsert opKind = iota
	opDelete
)

// profileOp 单行方案写入
type profileOp struct {
	kind    opKind
	profile models.NamedPresetProfile
	id      string
}

// Engine 同步引擎
type Engine struct {
	games    service.GameService
	profiles service.ProfileService
	store    repository.LocalStore
	remote   Remote

	defaultKey string
	debounce   time.Duration
	cooldown   time.Duration
	clock      Clock
	notifier   Notifier
	log        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	ready  chan struct{}

	// writeMu 串行化所有远端读写，拉取和推送不会同时进行
	writeMu sync.Mutex

	mu          sync.Mutex
	state       State
	started     bool
	stopped     bool
	readyClosed bool
	key         string
	gen         uint64 // 每次切换同步码递增
	localVer    uint64 // 任意本地修改
	mainVer     uint64 // 游戏相关的本地修改
	syncedVer   uint64 // 已推送到远端的 mainVer
	pullPending bool
	dirty       bool
	queue       []profileOp
	timer       Timer
	timerSeq    uint64
	saving      int
	refetching  bool
	lastPushAt  time.Time
	lastErr     string
}

// New 创建同步引擎，rem 为 nil 表示未配置远端
func New(games service.GameService, profiles service.ProfileService, store repository.LocalStore, rem Remote, opts Options) *Engine {
	if opts.DefaultKey == "" {
		opts.DefaultKey = DefaultSyncKey
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetModuleLogger(logger.ModuleSync)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		games:      games,
		profiles:   profiles,
		store:      store,
		remote:     rem,
		defaultKey: opts.DefaultKey,
		debounce:   opts.Debounce,
		cooldown:   opts.Cooldown,
		clock:      opts.Clock,
		notifier:   opts.Notifier,
		log:        opts.Logger,
		ctx:        ctx,
		cancel:     cancel,
		ready:      make(chan struct{}),
		key:        opts.DefaultKey,
	}

	var code string
	if store.Get(ctx, models.KeySyncCode, &code) {
		if code = strings.TrimSpace(code); code != "" {
			e.key = code
		}
	}

	games.OnChange(e.onChange)
	profiles.OnChange(e.onChange)
	return e
}

// Configured 是否配置了远端
func (e *Engine) Configured() bool {
	return e.remote != nil
}

// Key 当前同步码
func (e *Engine) Key() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.key
}

// State 当前状态
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Status 状态快照
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		State:        e.state.String(),
		SyncKey:      e.key,
		IsDefaultKey: e.key == e.defaultKey,
		Configured:   e.remote != nil,
		Saving:       e.saving > 0,
		PushPending:  e.timer != nil,
		Unsynced:     e.mainVer != e.syncedVer,
		LastError:    e.lastErr,
	}
	if !e.lastPushAt.IsZero() {
		t := e.lastPushAt
		st.LastPushAt = &t
	}
	return st
}

// WaitReady 等待首次进入就绪状态
func (e *Engine) WaitReady(ctx context.Context) error {
	select {
	case <-e.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start 启动引擎；未配置远端时直接就绪，否则在后台执行唯一一次首次拉取
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started || e.stopped {
		e.mu.Unlock()
		return
	}
	e.started = true

	if e.remote == nil {
		e.state = StateReady
		e.closeReadyLocked()
		e.mu.Unlock()
		e.log.Info("未配置远端，仅使用本地存储")
		return
	}

	e.state = StateLoadingInitial
	e.pullPending = true
	gen, key := e.gen, e.key
	e.wg.Add(1)
	e.mu.Unlock()

	logger.LogSyncEvent("initial_pull_start", key)
	go func() {
		defer e.wg.Done()
		_ = e.loadKey(e.ctx, gen, key, EventInitialPull)
	}()
}

// Stop 取消定时器并等待后台任务结束
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.stopTimerLocked()
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}

func (e *Engine) closeReadyLocked() {
	if !e.readyClosed {
		e.readyClosed = true
		close(e.ready)
	}
}

// onChange 本地状态变更回调；远端载入引起的变更不触发推送
func (e *Engine) onChange(c service.Change) {
	if c.Source == service.SourceRemote {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.localVer++
	if c.Kind == service.ChangeProfiles {
		// 方案按行写入，不走防抖
		return
	}
	e.mainVer++

	if e.remote == nil || e.stopped {
		return
	}
	if e.pullPending || e.state != StateReady {
		e.dirty = true
		return
	}
	e.scheduleLocked()
}

// scheduleLocked 重置防抖定时器
func (e *Engine) scheduleLocked() {
	if e.stopped {
		return
	}
	e.stopTimerLocked()
	seq := e.timerSeq
	e.timer = e.clock.AfterFunc(e.debounce, func() {
		e.fire(seq)
	})
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.timerSeq++
}

// fire 防抖到期，推送触发时刻的最新状态
func (e *Engine) fire(seq uint64) {
	e.mu.Lock()
	if seq != e.timerSeq || e.stopped {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	e.timerSeq++
	gen := e.gen
	e.wg.Add(1)
	e.mu.Unlock()

	defer e.wg.Done()
	_ = e.push(e.ctx, gen)
}

func (e *Engine) isStale(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen != gen
}

// push 写入主表；同步码已切换时放弃
func (e *Engine) push(ctx context.Context, gen uint64) error {
	e.mu.Lock()
	e.saving++
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.saving--
		e.mu.Unlock()
	}()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return nil
	}
	key := e.key
	ver := e.mainVer
	games, currentID, _ := e.games.Snapshot()
	state := remote.MainState{Games: games, CurrentGameID: currentID}
	e.mu.Unlock()

	err := e.remote.PushMain(ctx, key, state)

	e.mu.Lock()
	if err != nil {
		e.lastErr = err.Error()
	} else {
		e.lastPushAt = e.clock.Now()
		e.lastErr = ""
		if ver > e.syncedVer {
			e.syncedVer = ver
		}
	}
	e.mu.Unlock()

	if err != nil {
		e.log.Error("推送失败", zap.String("sync_key", key), zap.Error(err))
		e.notify(LevelError, EventPush, "雲端同步失敗", key)
		return err
	}
	e.log.Debug("推送完成", zap.String("sync_key", key), zap.Int("games", len(state.Games)))
	return nil
}

// loadKey 拉取同步码的远端快照并进入就绪状态，持有 writeMu
func (e *Engine) loadKey(ctx context.Context, gen uint64, key string, event string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if e.isStale(gen) {
		return nil
	}
	snap, err := e.remote.Pull(ctx, key)
	if e.isStale(gen) {
		e.log.Debug("同步码已切换，丢弃拉取结果", zap.String("sync_key", key))
		return nil
	}
	if err == nil && !snap.Empty() {
		e.apply(snap)
	}

	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return nil
	}
	e.state = StateReady
	e.pullPending = false
	e.closeReadyLocked()
	queue := e.queue
	e.queue = nil
	dirty := e.dirty
	e.dirty = false
	stopped := e.stopped

	if err != nil {
		e.lastErr = err.Error()
		e.mu.Unlock()
		e.log.Error("拉取失败", zap.String("sync_key", key), zap.Int("dropped_ops", len(queue)), zap.Error(err))
		if !stopped {
			e.notify(LevelError, event, "雲端載入失敗", key)
		}
		return err
	}

	e.lastErr = ""
	empty := snap.Empty()
	if !empty || !dirty {
		e.syncedVer = e.mainVer
	}
	if empty && dirty {
		e.scheduleLocked()
	}
	e.mu.Unlock()

	logger.LogSyncEvent(event, key, zap.Bool("empty", empty), zap.Int("queued_ops", len(queue)))
	if !empty {
		e.notify(LevelSuccess, event, "已從雲端載入", key)
		return nil
	}

	// 远端为空时补写载入期间的方案操作
	_ = e.writeOps(ctx, key, queue)
	return nil
}

// apply 用远端快照替换本地状态
func (e *Engine) apply(snap *remote.Snapshot) {
	if snap.HasMain && len(snap.Games) > 0 {
		e.games.LoadGames(snap.Games, snap.CurrentGameID)
	}
	e.profiles.LoadProfiles(snap.Profiles)
}

// writeOps 按顺序写入方案行，持有 writeMu；失败不重试
func (e *Engine) writeOps(ctx context.Context, key string, ops []profileOp) error {
	if len(ops) == 0 {
		return nil
	}

	var firstErr error
	for _, op := range ops {
		var err error
		switch op.kind {
		case opUpsert:
			err = e.remote.UpsertProfile(ctx, key, op.profile)
		case opDelete:
			err = e.remote.DeleteProfile(ctx, key, op.id)
		}
		if err != nil {
			e.log.Error("方案同步失败", zap.String("sync_key", key), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	e.mu.Lock()
	if firstErr != nil {
		e.lastErr = firstErr.Error()
	} else {
		e.lastPushAt = e.clock.Now()
		e.lastErr = ""
	}
	e.mu.Unlock()

	if firstErr != nil {
		e.notify(LevelError, EventProfileSync, "方案同步失敗", key)
	}
	return firstErr
}

// syncProfiles 就绪时立即写入，首次拉取完成前排队
func (e *Engine) syncProfiles(ctx context.Context, ops ...profileOp) {
	if len(ops) == 0 {
		return
	}

	e.mu.Lock()
	if e.remote == nil || e.stopped {
		e.mu.Unlock()
		return
	}
	if e.pullPending || e.state != StateReady {
		e.queue = append(e.queue, ops...)
		e.mu.Unlock()
		return
	}
	gen, key := e.gen, e.key
	e.saving++
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.saving--
		e.mu.Unlock()
	}()

	// 请求结束不应中断写入
	ctx = context.WithoutCancel(ctx)

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if e.isStale(gen) {
		return
	}
	_ = e.writeOps(ctx, key, ops)
}

// AddProfile 新增方案并立即写入远端
func (e *Engine) AddProfile(ctx context.Context, name string, rows []models.NamedPresetRow) (models.NamedPresetProfile, error) {
	p, err := e.profiles.AddProfile(name, rows)
	if err != nil {
		return p, err
	}
	e.syncProfiles(ctx, profileOp{kind: opUpsert, profile: p})
	return p, nil
}

// DeleteProfile 删除方案并立即删除远端行
func (e *Engine) DeleteProfile(ctx context.Context, id string) error {
	if err := e.profiles.DeleteProfile(id); err != nil {
		return err
	}
	e.syncProfiles(ctx, profileOp{kind: opDelete, id: id})
	return nil
}

// ImportProfiles 导入方案并逐行写入远端
func (e *Engine) ImportProfiles(ctx context.Context, profiles []models.NamedPresetProfile) []models.NamedPresetProfile {
	imported := e.profiles.ImportProfiles(profiles)
	ops := make([]profileOp, len(imported))
	for i, p := range imported {
		ops[i] = profileOp{kind: opUpsert, profile: p}
	}
	e.syncProfiles(ctx, ops...)
	return imported
}

// SaveNow 取消防抖并立即推送
func (e *Engine) SaveNow(ctx context.Context) error {
	e.mu.Lock()
	if e.remote == nil {
		e.mu.Unlock()
		return errors.New(errors.ErrRemoteNotConfigured)
	}
	if e.pullPending || e.state != StateReady {
		e.mu.Unlock()
		return errors.New(errors.ErrSyncNotReady)
	}
	e.stopTimerLocked()
	gen := e.gen
	e.mu.Unlock()

	return e.push(ctx, gen)
}

// OnHide 页面隐藏时立即推送尚未触发的防抖
func (e *Engine) OnHide(ctx context.Context) error {
	e.mu.Lock()
	if e.remote == nil || e.timer == nil {
		e.mu.Unlock()
		return nil
	}
	e.stopTimerLocked()
	gen := e.gen
	e.mu.Unlock()

	return e.push(ctx, gen)
}

// OnVisible 页面可见时重新拉取，返回是否执行了拉取
//
// 推送进行中、防抖未触发、存在未推送的修改或距上次推送不足冷却时间时跳过。
func (e *Engine) OnVisible(ctx context.Context) (bool, error) {
	e.mu.Lock()
	if reason := e.refetchBlockedLocked(); reason != "" {
		key := e.key
		e.mu.Unlock()
		e.log.Debug("跳过重新拉取", zap.String("sync_key", key), zap.String("reason", reason))
		return false, nil
	}
	e.refetching = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.refetching = false
		e.mu.Unlock()
	}()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	// 等待 writeMu 期间可能完成了一次推送
	e.mu.Lock()
	if reason := e.refetchBlockedLocked(); reason != "" && reason != "refetching" {
		e.mu.Unlock()
		return false, nil
	}
	gen, ver, key := e.gen, e.localVer, e.key
	gameRev, profileRev := e.games.Revision(), e.profiles.Revision()
	e.mu.Unlock()

	snap, err := e.remote.Pull(ctx, key)

	e.mu.Lock()
	stale := e.gen != gen || e.localVer != ver || e.timer != nil
	if err != nil {
		e.lastErr = err.Error()
	}
	e.mu.Unlock()

	if err != nil {
		e.log.Error("重新拉取失败", zap.String("sync_key", key), zap.Error(err))
		e.notify(LevelError, EventRefetch, "雲端載入失敗", key)
		return true, err
	}
	if stale {
		e.log.Debug("拉取期间本地有修改，丢弃结果", zap.String("sync_key", key))
		return true, nil
	}
	if !snap.Empty() {
		gamesOK, profilesOK := e.applyIfUnchanged(snap, gameRev, profileRev)
		logger.LogSyncEvent(EventRefetch, key, zap.Bool("games_applied", gamesOK), zap.Bool("profiles_applied", profilesOK))
	}
	return true, nil
}

// applyIfUnchanged 拉取期间本地被修改的部分不覆盖
func (e *Engine) applyIfUnchanged(snap *remote.Snapshot, gameRev, profileRev uint64) (bool, bool) {
	gamesOK := true
	if snap.HasMain && len(snap.Games) > 0 {
		gamesOK = e.games.LoadGamesIfRevision(gameRev, snap.Games, snap.CurrentGameID)
	}
	profilesOK := e.profiles.LoadProfilesIfRevision(profileRev, snap.Profiles)
	return gamesOK, profilesOK
}

func (e *Engine) refetchBlockedLocked() string {
	switch {
	case e.remote == nil:
		return "not_configured"
	case e.state != StateReady || e.pullPending:
		return "not_ready"
	case e.saving > 0:
		return "saving"
	case e.timer != nil:
		return "push_pending"
	case e.mainVer != e.syncedVer:
		return "unsynced"
	case !e.lastPushAt.IsZero() && e.clock.Now().Sub(e.lastPushAt) < e.cooldown:
		return "cooldown"
	case e.refetching:
		return "refetching"
	}
	return ""
}

// LoadBySyncCode 切换到指定同步码并立即拉取
func (e *Engine) LoadBySyncCode(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New(errors.ErrInvalidSyncCode)
	}
	e.store.Set(ctx, models.KeySyncCode, code)
	return e.switchKey(ctx, code)
}

// SetSyncCode 设置同步码
func (e *Engine) SetSyncCode(ctx context.Context, code string) error {
	return e.LoadBySyncCode(ctx, code)
}

// ClearSyncCode 清除同步码，回到默认键
func (e *Engine) ClearSyncCode(ctx context.Context) error {
	e.store.Delete(ctx, models.KeySyncCode)
	return e.switchKey(ctx, e.defaultKey)
}

// switchKey 丢弃待推送内容，不把旧数据写到新同步码
func (e *Engine) switchKey(ctx context.Context, key string) error {
	e.mu.Lock()
	e.stopTimerLocked()
	e.gen++
	gen := e.gen
	old := e.key
	e.key = key
	e.dirty = false
	e.queue = nil
	e.syncedVer = e.mainVer

	if e.remote == nil {
		e.mu.Unlock()
		e.log.Info("切换同步码", zap.String("from", old), zap.String("to", key))
		return nil
	}
	e.started = true
	e.state = StateLoadingInitial
	e.pullPending = true
	e.mu.Unlock()

	logger.LogSyncEvent("key_switch", key, zap.String("from", old))
	return e.loadKey(ctx, gen, key, EventKeyLoaded)
}

// DeleteCloudStorage 删除当前同步码的远端数据，本地不变
func (e *Engine) DeleteCloudStorage(ctx context.Context) error {
	e.mu.Lock()
	if e.remote == nil {
		e.mu.Unlock()
		return errors.New(errors.ErrRemoteNotConfigured)
	}
	// 待推送内容会重新创建刚删除的行
	e.stopTimerLocked()
	key := e.key
	e.saving++
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.saving--
		e.mu.Unlock()
	}()

	e.writeMu.Lock()
	err := e.remote.DeleteAll(ctx, key)
	e.writeMu.Unlock()

	if err != nil {
		e.mu.Lock()
		e.lastErr = err.Error()
		e.mu.Unlock()
		e.log.Error("删除云端数据失败", zap.String("sync_key", key), zap.Error(err))
		e.notify(LevelError, EventCloudDelete, "刪除雲端資料失敗", key)
		return err
	}

	logger.LogSyncEvent(EventCloudDelete, key)
	e.notify(LevelSuccess, EventCloudDelete, "已刪除雲端資料", key)
	return nil
}

func (e *Engine) notify(level Level, event, msg, key string) {
	e.notifier.Notify(Notification{
		Level:   level,
		Event:   event,
		Message: msg,
		SyncKey: key,
		Time:    e.clock.Now(),
	})
}
