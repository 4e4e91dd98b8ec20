package syncengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wfunc/pricing-sync/internal/models"
	"github.com/wfunc/pricing-sync/internal/remote"
	"github.com/wfunc/pricing-sync/internal/repository"
	"github.com/wfunc/pricing-sync/internal/service"
)

const (
	testDebounce = 500 * time.Millisecond
	testCooldown = 3 * time.Second
)

// fakeClock 手动推进的时钟，到期回调在 Advance 的调用者中同步执行
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance 推进时间并执行到期回调
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	rest := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.stopped:
		case !t.at.After(c.now):
			t.fired = true
			due = append(due, t)
		default:
			rest = append(rest, t)
		}
	}
	c.timers = rest
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// Pending 未触发的定时器数量
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type pushCall struct {
	key   string
	state remote.MainState
}

// fakeRemote 内存中的远端表，记录每次调用
type fakeRemote struct {
	mu       sync.Mutex
	main     map[string]remote.MainState
	profiles map[string][]models.NamedPresetProfile

	pulls      []string
	pushes     []pushCall
	upserts    []string
	deletes    []string
	deleteAlls []string

	gate    chan struct{} // 非空时 Pull 阻塞到关闭
	entered chan string   // Pull 开始时通知
	pullErr error
	pushErr error
	rowErr  error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		main:     make(map[string]remote.MainState),
		profiles: make(map[string][]models.NamedPresetProfile),
		entered:  make(chan string, 16),
	}
}

func (r *fakeRemote) block() {
	r.mu.Lock()
	r.gate = make(chan struct{})
	r.mu.Unlock()
}

func (r *fakeRemote) release() {
	r.mu.Lock()
	if r.gate != nil {
		close(r.gate)
		r.gate = nil
	}
	r.mu.Unlock()
}

func (r *fakeRemote) seed(key string, games []models.Game, currentID string, profiles ...models.NamedPresetProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.main[key] = remote.MainState{Games: games, CurrentGameID: currentID}
	if len(profiles) > 0 {
		r.profiles[key] = profiles
	}
}

func (r *fakeRemote) Pull(ctx context.Context, key string) (*remote.Snapshot, error) {
	r.mu.Lock()
	r.pulls = append(r.pulls, key)
	gate := r.gate
	r.mu.Unlock()

	select {
	case r.entered <- key:
	default:
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pullErr != nil {
		return nil, r.pullErr
	}
	snap := &remote.Snapshot{Profiles: models.CloneProfiles(r.profiles[key])}
	if m, ok := r.main[key]; ok {
		snap.HasMain = true
		snap.Games = models.CloneGames(m.Games)
		snap.CurrentGameID = m.CurrentGameID
	}
	if snap.Empty() {
		return nil, nil
	}
	return snap, nil
}

func (r *fakeRemote) PushMain(ctx context.Context, key string, state remote.MainState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, pushCall{key: key, state: state})
	if r.pushErr != nil {
		return r.pushErr
	}
	r.main[key] = state
	return nil
}

func (r *fakeRemote) UpsertProfile(ctx context.Context, key string, p models.NamedPresetProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, p.ID)
	if r.rowErr != nil {
		return r.rowErr
	}
	list := r.profiles[key]
	for i := range list {
		if list[i].ID == p.ID {
			list[i] = p
			return nil
		}
	}
	r.profiles[key] = append([]models.NamedPresetProfile{p}, list...)
	return nil
}

func (r *fakeRemote) DeleteProfile(ctx context.Context, key string, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, id)
	if r.rowErr != nil {
		return r.rowErr
	}
	list := r.profiles[key]
	for i := range list {
		if list[i].ID == id {
			r.profiles[key] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return nil
}

func (r *fakeRemote) DeleteAll(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteAlls = append(r.deleteAlls, key)
	delete(r.main, key)
	delete(r.profiles, key)
	return nil
}

func (r *fakeRemote) pullCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pulls)
}

func (r *fakeRemote) pushCalls() []pushCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pushCall(nil), r.pushes...)
}

func (r *fakeRemote) remoteProfiles(key string) []models.NamedPresetProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return models.CloneProfiles(r.profiles[key])
}

// spyGames 统计云端载入次数
type spyGames struct {
	service.GameService
	mu    sync.Mutex
	loads int
	// beforeLoad 在下一次条件载入前执行一次
	beforeLoad func()
}

func (s *spyGames) LoadGames(games []models.Game, currentID string) {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()
	s.GameService.LoadGames(games, currentID)
}

func (s *spyGames) LoadGamesIfRevision(rev uint64, games []models.Game, currentID string) bool {
	s.mu.Lock()
	hook := s.beforeLoad
	s.beforeLoad = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	ok := s.GameService.LoadGamesIfRevision(rev, games, currentID)
	if ok {
		s.mu.Lock()
		s.loads++
		s.mu.Unlock()
	}
	return ok
}

func (s *spyGames) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

type spyProfiles struct {
	service.ProfileService
	mu    sync.Mutex
	loads int
}

func (s *spyProfiles) LoadProfiles(profiles []models.NamedPresetProfile) {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()
	s.ProfileService.LoadProfiles(profiles)
}

func (s *spyProfiles) LoadProfilesIfRevision(rev uint64, profiles []models.NamedPresetProfile) bool {
	ok := s.ProfileService.LoadProfilesIfRevision(rev, profiles)
	if ok {
		s.mu.Lock()
		s.loads++
		s.mu.Unlock()
	}
	return ok
}

func (s *spyProfiles) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

// noteRecorder 记录通知
type noteRecorder struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *noteRecorder) Notify(n Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *noteRecorder) levels() []Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Level, len(r.notes))
	for i, n := range r.notes {
		out[i] = n.Level
	}
	return out
}

type harness struct {
	store    repository.LocalStore
	games    *spyGames
	profiles *spyProfiles
	remote   *fakeRemote
	clock    *fakeClock
	notes    *noteRecorder
	engine   *Engine
}

// newHarness 组装引擎，rem 为 nil 表示未配置远端
func newHarness(t *testing.T, rem *fakeRemote) *harness {
	t.Helper()
	return newHarnessWithStore(t, repository.NewTestLocalStore(t), rem)
}

func newHarnessWithStore(t *testing.T, store repository.LocalStore, rem *fakeRemote) *harness {
	t.Helper()
	h := &harness{
		store:    store,
		games:    &spyGames{GameService: service.NewGameService(store, zap.NewNop())},
		profiles: &spyProfiles{ProfileService: service.NewProfileService(store, zap.NewNop())},
		remote:   rem,
		clock:    newFakeClock(),
		notes:    &noteRecorder{},
	}

	var r Remote
	if rem != nil {
		r = rem
	}
	h.engine = New(h.games, h.profiles, store, r, Options{
		Debounce: testDebounce,
		Cooldown: testCooldown,
		Clock:    h.clock,
		Notifier: h.notes,
		Logger:   zap.NewNop(),
	})
	t.Cleanup(h.engine.Stop)
	return h
}

// startReady 启动并等待首次拉取完成
func (h *harness) startReady(t *testing.T) {
	t.Helper()
	h.engine.Start()
	h.engine.wg.Wait()
	require.Equal(t, StateReady, h.engine.State())
}

func (h *harness) edit() models.PriceEntry {
	return h.games.AddHistoryEntry(models.PriceInput{Minutes: 60, People: 2, Cost: 1700, Fee: 200, Price: 3000})
}

var profileRows = []models.NamedPresetRow{{Minutes: 30, People: 1, Cost: 800, Fee: 100, Profit: 700}}
