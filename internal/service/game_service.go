package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/pricing-sync/internal/errors"
	"github.com/wfunc/pricing-sync/internal/models"
	"github.com/wfunc/pricing-sync/internal/repository"
	"go.uber.org/zap"
)

// gameService 游戏服务实现
type gameService struct {
	mu        sync.RWMutex
	store     repository.LocalStore
	games     []models.Game
	currentID string
	// rev 每次状态变化加一，只在写锁内修改
	rev       uint64
	listeners listeners
	now       func() time.Time
	log       *zap.Logger
}

// NewGameService 创建游戏服务，从本地存储载入状态
func NewGameService(store repository.LocalStore, log *zap.Logger) GameService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &gameService{
		store: store,
		now:   time.Now,
		log:   log,
	}
	s.init()
	return s
}

func (s *gameService) init() {
	ctx := context.Background()

	var games []models.Game
	if !s.store.Get(ctx, models.KeyGames, &games) {
		games = nil
	}
	var currentID string
	s.store.Get(ctx, models.KeyCurrentGame, &currentID)

	if len(games) == 0 {
		g := models.NewGame(models.DefaultGameName)
		games = []models.Game{g}
		currentID = g.ID
		s.log.Info("创建默认游戏", zap.String("game_id", g.ID))
		s.store.Set(ctx, models.KeyGames, games)
		s.store.Set(ctx, models.KeyCurrentGame, currentID)
	} else if indexOfGame(games, currentID) < 0 {
		currentID = games[0].ID
		s.store.Set(ctx, models.KeyCurrentGame, currentID)
	}

	s.games = games
	s.currentID = currentID
}

func indexOfGame(games []models.Game, id string) int {
	for i, g := range games {
		if g.ID == id {
			return i
		}
	}
	return -1
}

// persist 写回本地存储，调用方持有写锁
func (s *gameService) persist(current bool) {
	s.rev++
	ctx := context.Background()
	s.store.Set(ctx, models.KeyGames, s.games)
	if current {
		s.store.Set(ctx, models.KeyCurrentGame, s.currentID)
	}
}

func (s *gameService) OnChange(fn ChangeListener) {
	s.listeners.add(fn)
}

func (s *gameService) emit(kinds ...ChangeKind) {
	for _, k := range kinds {
		s.listeners.emit(Change{Kind: k, Source: SourceLocal})
	}
}

// Games 游戏列表副本
func (s *gameService) Games() []models.Game {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneGames(s.games)
}

// CurrentGame 当前游戏副本
func (s *gameService) CurrentGame() models.Game {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current().Clone()
}

func (s *gameService) CurrentGameID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID
}

// Snapshot 同一把锁下读取游戏列表、当前游戏ID和版本号
func (s *gameService) Snapshot() ([]models.Game, string, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneGames(s.games), s.currentID, s.rev
}

func (s *gameService) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

// current 调用方持锁
func (s *gameService) current() *models.Game {
	if i := indexOfGame(s.games, s.currentID); i >= 0 {
		return &s.games[i]
	}
	return &s.games[0]
}

// SwitchGame 切换当前游戏
func (s *gameService) SwitchGame(id string) error {
	s.mu.Lock()
	if indexOfGame(s.games, id) < 0 {
		s.mu.Unlock()
		return errors.New(errors.ErrGameNotFound, id)
	}
	if s.currentID == id {
		s.mu.Unlock()
		return nil
	}
	s.currentID = id
	s.rev++
	s.store.Set(context.Background(), models.KeyCurrentGame, id)
	s.mu.Unlock()

	s.emit(ChangeCurrentGame)
	return nil
}

// AddGame 新增游戏并设为当前
func (s *gameService) AddGame(name string) (models.Game, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Game{}, errors.New(errors.ErrInvalidGameName)
	}

	g := models.NewGame(name)
	s.mu.Lock()
	s.games = append(s.games, g)
	s.currentID = g.ID
	s.persist(true)
	s.mu.Unlock()

	s.emit(ChangeGames, ChangeCurrentGame)
	return g.Clone(), nil
}

// DeleteGame 删除游戏；删除最后一个时自动创建默认游戏
func (s *gameService) DeleteGame(id string) error {
	s.mu.Lock()
	i := indexOfGame(s.games, id)
	if i < 0 {
		s.mu.Unlock()
		return errors.New(errors.ErrGameNotFound, id)
	}

	s.games = append(s.games[:i:i], s.games[i+1:]...)
	currentChanged := false
	if len(s.games) == 0 {
		g := models.NewGame(models.DefaultGameName)
		s.games = []models.Game{g}
		s.currentID = g.ID
		currentChanged = true
	} else if s.currentID == id {
		s.currentID = s.games[0].ID
		currentChanged = true
	}
	s.persist(currentChanged)
	s.mu.Unlock()

	if currentChanged {
		s.emit(ChangeGames, ChangeCurrentGame)
	} else {
		s.emit(ChangeGames)
	}
	return nil
}

// RenameGame 重命名
func (s *gameService) RenameGame(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New(errors.ErrInvalidGameName)
	}

	s.mu.Lock()
	i := indexOfGame(s.games, id)
	if i < 0 {
		s.mu.Unlock()
		return errors.New(errors.ErrGameNotFound, id)
	}
	s.games[i].Name = name
	s.persist(false)
	s.mu.Unlock()

	s.emit(ChangeGames)
	return nil
}

// updateCurrent 修改当前游戏并持久化
func (s *gameService) updateCurrent(fn func(g *models.Game) error) error {
	s.mu.Lock()
	if err := fn(s.current()); err != nil {
		s.mu.Unlock()
		return err
	}
	s.persist(false)
	s.mu.Unlock()

	s.emit(ChangeGames)
	return nil
}

// AddPreset 在当前游戏中新增预设
func (s *gameService) AddPreset(p models.Preset) (models.Preset, error) {
	if p.Minutes <= 0 || p.People <= 0 {
		return models.Preset{}, errors.New(errors.ErrInvalidParam, "分钟和人数必须大于0")
	}
	p.ID = models.NewID()
	p.IsSystem = false
	p.Label = strings.TrimSpace(p.Label)
	if p.Label == "" {
		p.Label = fmt.Sprintf("%d分/%d人", p.Minutes, p.People)
	}

	err := s.updateCurrent(func(g *models.Game) error {
		g.Presets = append(g.Presets, p)
		return nil
	})
	return p, err
}

// DeletePreset 删除预设，系统预设不可删除
func (s *gameService) DeletePreset(id string) error {
	return s.updateCurrent(func(g *models.Game) error {
		for i, p := range g.Presets {
			if p.ID != id {
				continue
			}
			if p.IsSystem {
				return errors.New(errors.ErrSystemPreset, p.Label)
			}
			g.Presets = append(g.Presets[:i:i], g.Presets[i+1:]...)
			return nil
		}
		return errors.New(errors.ErrPresetNotFound, id)
	})
}

// ImportPresets 追加预设，重新分配ID
func (s *gameService) ImportPresets(presets []models.Preset) []models.Preset {
	added := make([]models.Preset, len(presets))
	for i, p := range presets {
		p.ID = models.NewID()
		added[i] = p
	}
	if len(added) == 0 {
		return added
	}
	_ = s.updateCurrent(func(g *models.Game) error {
		g.Presets = append(g.Presets, added...)
		return nil
	})
	return added
}

// ReplacePresets 用一组新预设替换当前游戏的全部预设
func (s *gameService) ReplacePresets(presets []models.Preset) []models.Preset {
	replaced := make([]models.Preset, len(presets))
	for i, p := range presets {
		p.ID = models.NewID()
		p.IsSystem = false
		if p.Label == "" {
			p.Label = fmt.Sprintf("%d分/%d人", p.Minutes, p.People)
		}
		replaced[i] = p
	}
	_ = s.updateCurrent(func(g *models.Game) error {
		g.Presets = append([]models.Preset{}, replaced...)
		return nil
	})
	return replaced
}

// AddHistoryEntry 计算并记录到当前游戏历史的最前面
func (s *gameService) AddHistoryEntry(in models.PriceInput) models.PriceEntry {
	var entry models.PriceEntry
	_ = s.updateCurrent(func(g *models.Game) error {
		if strings.TrimSpace(in.GameName) == "" {
			in.GameName = g.Name
		}
		entry = models.NewPriceEntry(in, s.now())
		g.History = append([]models.PriceEntry{entry}, g.History...)
		return nil
	})
	return entry
}

// DeleteHistoryEntry 删除历史记录
func (s *gameService) DeleteHistoryEntry(id string) error {
	return s.updateCurrent(func(g *models.Game) error {
		for i, e := range g.History {
			if e.ID == id {
				g.History = append(g.History[:i:i], g.History[i+1:]...)
				return nil
			}
		}
		return errors.New(errors.ErrHistoryNotFound, id)
	})
}

// ClearHistory 清空当前游戏历史
func (s *gameService) ClearHistory() {
	_ = s.updateCurrent(func(g *models.Game) error {
		g.History = []models.PriceEntry{}
		return nil
	})
}

// ImportHistory 导入历史记录，插入到最前面
func (s *gameService) ImportHistory(entries []models.PriceEntry) []models.PriceEntry {
	imported := make([]models.PriceEntry, len(entries))
	now := models.FormatTime(s.now())
	for i, e := range entries {
		e.ID = models.NewID()
		if e.CreatedAt == "" {
			e.CreatedAt = now
		}
		imported[i] = e
	}
	if len(imported) == 0 {
		return imported
	}
	_ = s.updateCurrent(func(g *models.Game) error {
		g.History = append(append([]models.PriceEntry{}, imported...), g.History...)
		return nil
	})
	return imported
}

// BaselinePerMin 当前游戏第一条 60分/2人 记录的每分钟利润
func (s *gameService) BaselinePerMin() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.current().History {
		if e.Minutes == 60 && e.People == 2 {
			return e.ProfitPerMin, true
		}
	}
	return 0, false
}

// LoadGames 用云端数据替换本地游戏，空列表忽略
func (s *gameService) LoadGames(games []models.Game, currentID string) {
	if len(games) == 0 {
		return
	}
	s.mu.Lock()
	currentID = s.loadLocked(games, currentID)
	s.mu.Unlock()
	s.loaded(len(games), currentID)
}

// LoadGamesIfRevision 版本号未变化时才替换，返回是否已替换
func (s *gameService) LoadGamesIfRevision(rev uint64, games []models.Game, currentID string) bool {
	if len(games) == 0 {
		return false
	}
	s.mu.Lock()
	if s.rev != rev {
		cur := s.rev
		s.mu.Unlock()
		s.log.Debug("本地游戏已修改，放弃载入云端数据", zap.Uint64("expected", rev), zap.Uint64("current", cur))
		return false
	}
	currentID = s.loadLocked(games, currentID)
	s.mu.Unlock()
	s.loaded(len(games), currentID)
	return true
}

// loadLocked 调用方持有写锁
func (s *gameService) loadLocked(games []models.Game, currentID string) string {
	s.games = models.CloneGames(games)
	if indexOfGame(s.games, currentID) < 0 {
		currentID = s.games[0].ID
	}
	s.currentID = currentID
	s.persist(true)
	return currentID
}

func (s *gameService) loaded(count int, currentID string) {
	s.log.Info("载入云端游戏", zap.Int("count", count), zap.String("current", currentID))
	s.listeners.emit(Change{Kind: ChangeGames, Source: SourceRemote})
	s.listeners.emit(Change{Kind: ChangeCurrentGame, Source: SourceRemote})
}
