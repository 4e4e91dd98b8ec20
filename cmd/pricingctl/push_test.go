package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wfunc/pricing-sync/internal/models"
	"github.com/wfunc/pricing-sync/internal/remote"
	"github.com/wfunc/pricing-sync/internal/repository"
	"github.com/wfunc/pricing-sync/internal/service"
)

func TestResolveKey(t *testing.T) {
	ctx := context.Background()
	store := repository.NewTestLocalStore(t)

	assert.Equal(t, "default", resolveKey(ctx, store, "", "default"))

	store.Set(ctx, models.KeySyncCode, " ABC123 ")
	assert.Equal(t, "ABC123", resolveKey(ctx, store, "", "default"))
	assert.Equal(t, "XYZ", resolveKey(ctx, store, " XYZ ", "default"))
}

func TestPushLocal(t *testing.T) {
	ctx := context.Background()

	adapter := remote.NewTableAdapter(repository.SetupTestDB(t), remote.DefaultSchema(), zap.NewNop())
	require.NoError(t, adapter.Migrate(ctx))

	services := service.NewServices(repository.NewTestLocalStore(t), zap.NewNop())
	services.Games.AddHistoryEntry(models.PriceInput{Minutes: 60, People: 2, Price: 3000})
	_, err := services.Profiles.AddProfile("207", []models.NamedPresetRow{{Minutes: 30, People: 1}})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, pushLocal(ctx, &out, adapter, services, "ABC123"))
	assert.Contains(t, out.String(), "ABC123")

	snap, err := adapter.Pull(ctx, "ABC123")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.True(t, snap.HasMain)
	assert.Equal(t, services.Games.CurrentGameID(), snap.CurrentGameID)
	require.Len(t, snap.Games, 1)
	assert.Len(t, snap.Games[0].History, 1)
	require.Len(t, snap.Profiles, 1)
	assert.Equal(t, "207", snap.Profiles[0].Name)

	// 重复推送不产生重复行
	require.NoError(t, pushLocal(ctx, &out, adapter, services, "ABC123"))
	var n int64
	require.NoError(t, adapter.DB().Table("pricing_profiles").Where("device_id = ?", "ABC123").Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
