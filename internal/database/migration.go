package database

import (
	"fmt"

	"github.com/wfunc/pricing-sync/internal/logger"
	"github.com/wfunc/pricing-sync/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate 迁移本地存储表结构
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("数据库未初始化")
	}

	// 服务端和命令行工具可能同时打开同一个 sqlite 文件
	if dbPath := sqliteFilePath(db); dbPath != "" {
		CleanupStaleLocks(dbPath)
		lockFile, err := acquireMigrationLock(dbPath)
		if err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile)
	}

	if err := db.AutoMigrate(&models.LocalKV{}); err != nil {
		return fmt.Errorf("迁移 local_kv 失败: %w", err)
	}

	logger.Debug("本地存储迁移完成", zap.String("table", models.LocalKV{}.TableName()))
	return nil
}
