package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/wfunc/pricing-sync/internal/logger"
	"github.com/wfunc/pricing-sync/internal/models"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LocalStore 本地键值存储
//
// 读取失败时返回 false，调用方使用自己的默认值；写入失败只记录日志，不影响调用方。
type LocalStore interface {
	BaseRepository
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{})
	Delete(ctx context.Context, key string)
}

// localStore 本地键值存储实现
type localStore struct {
	*BaseRepo
	mu    sync.RWMutex
	cache map[string][]byte // 内存缓存，nil 表示已删除
	log   *zap.Logger
}

// NewLocalStore 创建本地存储，db 为 nil 时只使用内存
func NewLocalStore(db *gorm.DB, log *zap.Logger) LocalStore {
	if log == nil {
		log = logger.GetModuleLogger(logger.ModuleStore)
	}
	return &localStore{
		BaseRepo: NewBaseRepo(db),
		cache:    make(map[string][]byte),
		log:      log,
	}
}

// Get 读取键值并解码到 dest
func (s *localStore) Get(ctx context.Context, key string, dest interface{}) bool {
	s.mu.RLock()
	raw, ok := s.cache[key]
	s.mu.RUnlock()

	if ok && raw == nil {
		return false
	}
	if !ok {
		raw, ok = s.load(ctx, key)
		if !ok {
			return false
		}
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		s.log.Warn("本地数据解码失败，使用默认值", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// load 从数据库读取并写入缓存
func (s *localStore) load(ctx context.Context, key string) ([]byte, bool) {
	if s.db == nil {
		return nil, false
	}

	var kv models.LocalKV
	err := s.db.WithContext(ctx).Where(keyEq(key)).First(&kv).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn("读取本地数据失败", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	raw := []byte(kv.Value)
	s.mu.Lock()
	s.cache[key] = raw
	s.mu.Unlock()
	return raw, true
}

// Set 写入键值，失败时只记录日志
func (s *localStore) Set(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.log.Warn("本地数据编码失败", zap.String("key", key), zap.Error(err))
		return
	}

	// 先更新缓存，数据库写失败时本次会话仍然可读
	s.mu.Lock()
	s.cache[key] = raw
	s.mu.Unlock()

	if s.db == nil {
		return
	}

	start := time.Now()
	kv := models.LocalKV{Key: key, Value: datatypes.JSON(raw), UpdatedAt: time.Now()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&kv).Error
	logger.LogDatabaseOperation("upsert", kv.TableName(), time.Since(start), err)
	if err != nil {
		s.log.Warn("写入本地数据失败", zap.String("key", key), zap.Error(err))
	}
}

// Delete 删除键值；数据库删除失败时缓存保留删除标记，本次会话不会读回旧值
func (s *localStore) Delete(ctx context.Context, key string) {
	s.mu.Lock()
	s.cache[key] = nil
	s.mu.Unlock()

	if s.db == nil {
		return
	}

	start := time.Now()
	err := s.db.WithContext(ctx).Where(keyEq(key)).Delete(&models.LocalKV{}).Error
	logger.LogDatabaseOperation("delete", models.LocalKV{}.TableName(), time.Since(start), err)
	if err != nil {
		s.log.Warn("删除本地数据失败", zap.String("key", key), zap.Error(err))
		return
	}

	s.mu.Lock()
	if raw, ok := s.cache[key]; ok && raw == nil {
		delete(s.cache, key)
	}
	s.mu.Unlock()
}

// keyEq key 是部分数据库的保留字，交给方言负责转义
func keyEq(key string) clause.Eq {
	return clause.Eq{Column: clause.Column{Name: "key"}, Value: key}
}
