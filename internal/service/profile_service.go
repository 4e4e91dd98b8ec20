package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/pricing-sync/internal/errors"
	"github.com/wfunc/pricing-sync/internal/models"
	"github.com/wfunc/pricing-sync/internal/repository"
	"go.uber.org/zap"
)

// profileService 命名方案服务实现
type profileService struct {
	mu        sync.RWMutex
	store     repository.LocalStore
	profiles  []models.NamedPresetProfile
	rev       uint64
	listeners listeners
	now       func() time.Time
	log       *zap.Logger
}

// NewProfileService 创建命名方案服务
func NewProfileService(store repository.LocalStore, log *zap.Logger) ProfileService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &profileService{
		store:    store,
		profiles: []models.NamedPresetProfile{},
		now:      time.Now,
		log:      log,
	}

	var profiles []models.NamedPresetProfile
	if store.Get(context.Background(), models.KeyNamedProfiles, &profiles) && profiles != nil {
		s.profiles = profiles
	}
	return s
}

func (s *profileService) OnChange(fn ChangeListener) {
	s.listeners.add(fn)
}

// persist 调用方持有写锁
func (s *profileService) persist() {
	s.rev++
	s.store.Set(context.Background(), models.KeyNamedProfiles, s.profiles)
}

func (s *profileService) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

// Profiles 方案列表副本，最新的在前
func (s *profileService) Profiles() []models.NamedPresetProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneProfiles(s.profiles)
}

func (s *profileService) Get(id string) (models.NamedPresetProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return models.NamedPresetProfile{}, false
}

// AddProfile 新增方案，名称不能为空且至少一行
func (s *profileService) AddProfile(name string, rows []models.NamedPresetRow) (models.NamedPresetProfile, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(rows) == 0 {
		return models.NamedPresetProfile{}, errors.New(errors.ErrInvalidProfile)
	}

	p := models.NamedPresetProfile{
		ID:        models.NewID(),
		Name:      name,
		Rows:      append([]models.NamedPresetRow{}, rows...),
		CreatedAt: models.FormatTime(s.now()),
	}

	s.mu.Lock()
	s.profiles = append([]models.NamedPresetProfile{p}, s.profiles...)
	s.persist()
	s.mu.Unlock()

	s.listeners.emit(Change{Kind: ChangeProfiles, Source: SourceLocal})
	return p.Clone(), nil
}

// DeleteProfile 删除方案
func (s *profileService) DeleteProfile(id string) error {
	s.mu.Lock()
	idx := -1
	for i, p := range s.profiles {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return errors.New(errors.ErrProfileNotFound, id)
	}
	s.profiles = append(s.profiles[:idx:idx], s.profiles[idx+1:]...)
	s.persist()
	s.mu.Unlock()

	s.listeners.emit(Change{Kind: ChangeProfiles, Source: SourceLocal})
	return nil
}

// ImportProfiles 导入方案，重新分配ID后插入到最前面
func (s *profileService) ImportProfiles(profiles []models.NamedPresetProfile) []models.NamedPresetProfile {
	imported := make([]models.NamedPresetProfile, 0, len(profiles))
	now := models.FormatTime(s.now())
	for _, p := range profiles {
		p = p.Clone()
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			continue
		}
		p.ID = models.NewID()
		if p.CreatedAt == "" {
			p.CreatedAt = now
		}
		imported = append(imported, p)
	}
	if len(imported) == 0 {
		return imported
	}

	s.mu.Lock()
	s.profiles = append(models.CloneProfiles(imported), s.profiles...)
	s.persist()
	s.mu.Unlock()

	s.listeners.emit(Change{Kind: ChangeProfiles, Source: SourceLocal})
	return imported
}

// LoadProfiles 用云端数据替换本地方案
func (s *profileService) LoadProfiles(profiles []models.NamedPresetProfile) {
	s.mu.Lock()
	s.loadLocked(profiles)
	s.mu.Unlock()
	s.loaded(len(profiles))
}

// LoadProfilesIfRevision 版本号未变化时才替换
func (s *profileService) LoadProfilesIfRevision(rev uint64, profiles []models.NamedPresetProfile) bool {
	s.mu.Lock()
	if s.rev != rev {
		s.mu.Unlock()
		s.log.Debug("本地方案已修改，放弃载入云端数据", zap.Uint64("expected", rev))
		return false
	}
	s.loadLocked(profiles)
	s.mu.Unlock()
	s.loaded(len(profiles))
	return true
}

func (s *profileService) loadLocked(profiles []models.NamedPresetProfile) {
	if profiles == nil {
		s.profiles = []models.NamedPresetProfile{}
	} else {
		s.profiles = models.CloneProfiles(profiles)
	}
	s.persist()
}

func (s *profileService) loaded(count int) {
	s.log.Info("载入云端方案", zap.Int("count", count))
	s.listeners.emit(Change{Kind: ChangeProfiles, Source: SourceRemote})
}
