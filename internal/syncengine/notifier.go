package syncengine

import "time"

// Level 通知级别
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// 通知事件
const (
	EventInitialPull = "initial_pull"
	EventKeyLoaded   = "key_loaded"
	EventRefetch     = "refetch"
	EventPush        = "push"
	EventProfileSync = "profile_sync"
	EventCloudDelete = "cloud_delete"
)

// Notification 面向用户的短暂提示
type Notification struct {
	Level   Level     `json:"level"`
	Event   string    `json:"event"`
	Message string    `json:"message"`
	SyncKey string    `json:"sync_key"`
	Time    time.Time `json:"time"`
}

// Notifier 通知投递，不得阻塞
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc 函数适配器
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}
