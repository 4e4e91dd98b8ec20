package service

import (
	"github.com/wfunc/pricing-sync/internal/repository"
	"go.uber.org/zap"
)

// Services 服务集合
type Services struct {
	Games    GameService
	Profiles ProfileService
	Store    repository.LocalStore
}

// NewServices 创建服务集合
func NewServices(store repository.LocalStore, log *zap.Logger) *Services {
	return &Services{
		Games:    NewGameService(store, log),
		Profiles: NewProfileService(store, log),
		Store:    store,
	}
}
