package remote

import (
	"context"
	"sync"

	"github.com/wfunc/pricing-sync/internal/models"
	"go.uber.org/zap"
)

// OpenFunc 建立远端连接
type OpenFunc func() (*TableAdapter, error)

// LazyRemote 在第一次成功连接前，每次调用都重新尝试连接
//
// 连接失败时调用返回错误，由同步引擎按普通远端失败处理。
type LazyRemote struct {
	mu      sync.Mutex
	open    OpenFunc
	adapter *TableAdapter
	log     *zap.Logger
}

// NewLazyRemote 创建延迟连接的远端
func NewLazyRemote(open OpenFunc, log *zap.Logger) *LazyRemote {
	if log == nil {
		log = zap.NewNop()
	}
	return &LazyRemote{open: open, log: log}
}

func (l *LazyRemote) get() (*TableAdapter, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.adapter != nil {
		return l.adapter, nil
	}
	a, err := l.open()
	if err != nil {
		l.log.Warn("连接云端失败，下次同步时重试", zap.Error(err))
		return nil, err
	}
	l.log.Info("云端连接已建立")
	l.adapter = a
	return a, nil
}

// Connected 是否已建立连接
func (l *LazyRemote) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.adapter != nil
}

func (l *LazyRemote) Pull(ctx context.Context, key string) (*Snapshot, error) {
	a, err := l.get()
	if err != nil {
		return nil, err
	}
	return a.Pull(ctx, key)
}

func (l *LazyRemote) PushMain(ctx context.Context, key string, state MainState) error {
	a, err := l.get()
	if err != nil {
		return err
	}
	return a.PushMain(ctx, key, state)
}

func (l *LazyRemote) UpsertProfile(ctx context.Context, key string, profile models.NamedPresetProfile) error {
	a, err := l.get()
	if err != nil {
		return err
	}
	return a.UpsertProfile(ctx, key, profile)
}

func (l *LazyRemote) DeleteProfile(ctx context.Context, key string, itemID string) error {
	a, err := l.get()
	if err != nil {
		return err
	}
	return a.DeleteProfile(ctx, key, itemID)
}

func (l *LazyRemote) DeleteAll(ctx context.Context, key string) error {
	a, err := l.get()
	if err != nil {
		return err
	}
	return a.DeleteAll(ctx, key)
}

// Close 关闭已建立的连接
func (l *LazyRemote) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.adapter == nil {
		return nil
	}
	return l.adapter.Close()
}
