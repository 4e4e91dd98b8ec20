package service

import (
	"github.com/wfunc/pricing-sync/internal/models"
)

// ChangeKind 变更类型
type ChangeKind string

const (
	ChangeGames       ChangeKind = "games"
	ChangeCurrentGame ChangeKind = "current_game"
	ChangeProfiles    ChangeKind = "profiles"
)

// ChangeSource 变更来源
type ChangeSource int

const (
	// SourceLocal 用户在本机的编辑
	SourceLocal ChangeSource = iota
	// SourceRemote 从云端载入
	SourceRemote
)

func (s ChangeSource) String() string {
	if s == SourceRemote {
		return "remote"
	}
	return "local"
}

// Change 状态变更通知
type Change struct {
	Kind   ChangeKind
	Source ChangeSource
}

// ChangeListener 变更监听函数，在变更完成后同步调用
type ChangeListener func(Change)

// GameService 游戏、预设和历史记录
type GameService interface {
	Games() []models.Game
	CurrentGame() models.Game
	CurrentGameID() string
	SwitchGame(id string) error
	AddGame(name string) (models.Game, error)
	DeleteGame(id string) error
	RenameGame(id, name string) error

	AddPreset(preset models.Preset) (models.Preset, error)
	DeletePreset(id string) error
	ImportPresets(presets []models.Preset) []models.Preset
	ReplacePresets(presets []models.Preset) []models.Preset

	AddHistoryEntry(in models.PriceInput) models.PriceEntry
	DeleteHistoryEntry(id string) error
	ClearHistory()
	ImportHistory(entries []models.PriceEntry) []models.PriceEntry
	BaselinePerMin() (float64, bool)

	// Snapshot 一致地读取游戏列表、当前游戏ID和版本号
	Snapshot() ([]models.Game, string, uint64)
	// Revision 状态版本号，每次修改或载入后递增
	Revision() uint64

	// LoadGames 用云端快照整体替换本地状态
	LoadGames(games []models.Game, currentID string)
	// LoadGamesIfRevision 仅当版本号仍为 rev 时替换
	LoadGamesIfRevision(rev uint64, games []models.Game, currentID string) bool
	OnChange(fn ChangeListener)
}

// ProfileService 命名方案
type ProfileService interface {
	Profiles() []models.NamedPresetProfile
	Get(id string) (models.NamedPresetProfile, bool)
	AddProfile(name string, rows []models.NamedPresetRow) (models.NamedPresetProfile, error)
	DeleteProfile(id string) error
	ImportProfiles(profiles []models.NamedPresetProfile) []models.NamedPresetProfile

	Revision() uint64

	// LoadProfiles 用云端快照整体替换本地方案
	LoadProfiles(profiles []models.NamedPresetProfile)
	LoadProfilesIfRevision(rev uint64, profiles []models.NamedPresetProfile) bool
	OnChange(fn ChangeListener)
}
