package syncengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/pricing-sync/internal/models"
	"github.com/wfunc/pricing-sync/internal/remote"
	"github.com/wfunc/pricing-sync/internal/repository"
	"github.com/wfunc/pricing-sync/internal/service"
)

// newSQLiteEngine 使用内存 sqlite 作为远端的引擎
func newSQLiteEngine(t *testing.T) (*Engine, *service.Services, *remote.TableAdapter, *fakeClock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	adapter := remote.NewTableAdapter(db, remote.DefaultSchema(), zap.NewNop())
	require.NoError(t, adapter.Migrate(ctx))

	svcs := service.NewServices(repository.NewTestLocalStore(t), zap.NewNop())
	clock := newFakeClock()
	e := New(svcs.Games, svcs.Profiles, svcs.Store, adapter, Options{
		Debounce: testDebounce,
		Cooldown: testCooldown,
		Clock:    clock,
		Logger:   zap.NewNop(),
	})
	t.Cleanup(e.Stop)

	e.Start()
	e.wg.Wait()
	require.Equal(t, StateReady, e.State())
	return e, svcs, adapter, clock
}

func countRows(t *testing.T, a *remote.TableAdapter, table, key string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, a.DB().Table(table).Where("device_id = ?", key).Count(&n).Error)
	return n
}

// 设置同步码 ABC123（远端为空），修改后防抖推送一行主表数据
func TestSQLiteSyncCodeScenario(t *testing.T) {
	e, svcs, adapter, clock := newSQLiteEngine(t)

	require.NoError(t, e.LoadBySyncCode(ctx, "ABC123"))
	assert.Equal(t, int64(0), countRows(t, adapter, "pricing_sync", "ABC123"))

	svcs.Games.AddHistoryEntry(models.PriceInput{Minutes: 60, People: 2, Cost: 1700, Fee: 200, Price: 3000})
	clock.Advance(testDebounce)
	assert.Equal(t, int64(1), countRows(t, adapter, "pricing_sync", "ABC123"))

	svcs.Games.ClearHistory()
	clock.Advance(testDebounce)
	assert.Equal(t, int64(1), countRows(t, adapter, "pricing_sync", "ABC123"))

	snap, err := adapter.Pull(ctx, "ABC123")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Empty(t, snap.Games[0].History)
	assert.Equal(t, svcs.Games.CurrentGameID(), snap.CurrentGameID)
}

// 新增方案后立即删除，远端没有该方案的行
func TestSQLiteAddThenDeleteProfile(t *testing.T) {
	e, _, adapter, clock := newSQLiteEngine(t)

	p, err := e.AddProfile(ctx, "207", profileRows)
	require.NoError(t, err)
	assert.Equal(t, int64(1), countRows(t, adapter, "pricing_profiles", DefaultSyncKey))

	require.NoError(t, e.DeleteProfile(ctx, p.ID))
	clock.Advance(time.Minute)
	assert.Equal(t, int64(0), countRows(t, adapter, "pricing_profiles", DefaultSyncKey))
}

// 另一台设备使用同一同步码时看到相同数据
func TestSQLiteTwoDevices(t *testing.T) {
	a, svcsA, adapter, clockA := newSQLiteEngine(t)
	require.NoError(t, a.LoadBySyncCode(ctx, "SHARED"))
	g, err := svcsA.Games.AddGame("共享遊戲")
	require.NoError(t, err)
	_, err = a.AddProfile(ctx, "207", profileRows)
	require.NoError(t, err)
	clockA.Advance(testDebounce)

	svcsB := service.NewServices(repository.NewTestLocalStore(t), zap.NewNop())
	b := New(svcsB.Games, svcsB.Profiles, svcsB.Store, adapter, Options{Clock: newFakeClock(), Logger: zap.NewNop()})
	t.Cleanup(b.Stop)
	require.NoError(t, b.LoadBySyncCode(ctx, "SHARED"))

	assert.Equal(t, g.ID, svcsB.Games.CurrentGameID())
	assert.Len(t, svcsB.Games.Games(), 2)
	require.Len(t, svcsB.Profiles.Profiles(), 1)
	assert.Equal(t, "207", svcsB.Profiles.Profiles()[0].Name)
	assert.Equal(t, StateReady, b.State())
}
