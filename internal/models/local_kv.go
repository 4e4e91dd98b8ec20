package models

import (
	"time"

	"gorm.io/datatypes"
)

// 本地存储的集合键
const (
	KeyGames         = "pricing-games"
	KeyCurrentGame   = "pricing-current-game"
	KeyNamedProfiles = "named-preset-profiles"
	KeySyncCode      = "pricing-sync-code"
)

// LocalKV 本地键值表，值为JSON
type LocalKV struct {
	Key       string         `gorm:"primaryKey;size:100" json:"key"`
	Value     datatypes.JSON `json:"value"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName 指定表名
func (LocalKV) TableName() string {
	return "local_kv"
}
