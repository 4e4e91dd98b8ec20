package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wfunc/pricing-sync/internal/config"
	"github.com/wfunc/pricing-sync/internal/database"
	"github.com/wfunc/pricing-sync/internal/models"
	"github.com/wfunc/pricing-sync/internal/remote"
	"github.com/wfunc/pricing-sync/internal/repository"
	"github.com/wfunc/pricing-sync/internal/service"
)

var pushKey string

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "把本地数据写入云端",
	Long: `读取本地存储中的游戏和命名方案，写入指定同步码的云端行。

未指定 --key 时使用本地保存的同步码，没有同步码时使用默认键。
云端已有的同名方案行会被覆盖，本地没有的行保持不变。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		adapter, err := remote.Open(&cfg.Sync, nil)
		if err != nil {
			return err
		}
		defer adapter.Close()

		dbCfg := cfg.Database
		dbCfg.AutoMigrate = true
		if err := database.Init(&dbCfg); err != nil {
			return err
		}
		defer database.Close()

		store := repository.NewLocalStore(database.GetDB(), nil)
		services := service.NewServices(store, nil)

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		key := resolveKey(ctx, store, pushKey, cfg.Sync.DefaultKey)
		return pushLocal(ctx, cmd.OutOrStdout(), adapter, services, key)
	},
}

func init() {
	pushCmd.Flags().StringVar(&pushKey, "key", "", "同步码")
}

// resolveKey 命令行参数优先，其次本地同步码，最后默认键
func resolveKey(ctx context.Context, store repository.LocalStore, flag, defaultKey string) string {
	if k := strings.TrimSpace(flag); k != "" {
		return k
	}
	var code string
	if store.Get(ctx, models.KeySyncCode, &code) {
		if code = strings.TrimSpace(code); code != "" {
			return code
		}
	}
	return defaultKey
}

// remoteWriter pushLocal 需要的远端写操作
type remoteWriter interface {
	PushMain(ctx context.Context, key string, state remote.MainState) error
	UpsertProfile(ctx context.Context, key string, profile models.NamedPresetProfile) error
}

// pushLocal 写入主表一行，并逐行写入方案
func pushLocal(ctx context.Context, out io.Writer, w remoteWriter, services *service.Services, key string) error {
	games := services.Games.Games()
	if err := w.PushMain(ctx, key, remote.MainState{
		Games:         games,
		CurrentGameID: services.Games.CurrentGameID(),
	}); err != nil {
		return err
	}

	profiles := services.Profiles.Profiles()
	for _, p := range profiles {
		if err := w.UpsertProfile(ctx, key, p); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "已推送到 %s: %d 个游戏, %d 个方案\n", key, len(games), len(profiles))
	return nil
}
