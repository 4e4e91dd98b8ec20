package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/wfunc/pricing-sync/internal/errors"
	"github.com/wfunc/pricing-sync/internal/models"
	"github.com/wfunc/pricing-sync/internal/remote"
	"github.com/wfunc/pricing-sync/internal/repository"
	"github.com/wfunc/pricing-sync/internal/service"
	"github.com/wfunc/pricing-sync/internal/syncengine"
	ws "github.com/wfunc/pricing-sync/internal/websocket"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    errors.ErrorCode `json:"code"`
		Message string           `json:"message"`
	} `json:"error"`
}

// APITestSuite 使用内存 sqlite 作为本地存储和远端的完整路由测试
type APITestSuite struct {
	suite.Suite
	router   *Router
	services *service.Services
	engine   *syncengine.Engine
	adapter  *remote.TableAdapter
}

func (s *APITestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	t := s.T()

	localDB := repository.SetupTestDB(t)
	remoteDB := repository.SetupTestDB(t)
	s.adapter = remote.NewTableAdapter(remoteDB, remote.DefaultSchema(), zap.NewNop())
	require.NoError(t, s.adapter.Migrate(context.Background()))

	s.services = service.NewServices(repository.NewLocalStore(localDB, nil), zap.NewNop())

	hub := ws.NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	// 防抖足够长，测试中推送只由显式操作触发
	s.engine = syncengine.New(s.services.Games, s.services.Profiles, s.services.Store, s.adapter, syncengine.Options{
		Debounce: time.Hour,
		Notifier: hub,
		Logger:   zap.NewNop(),
	})
	t.Cleanup(s.engine.Stop)
	s.engine.Start()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, s.engine.WaitReady(waitCtx))

	s.router = NewRouter(localDB, s.services, s.engine, hub, nil, zap.NewNop())
}

func (s *APITestSuite) do(method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.GetEngine().ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func (s *APITestSuite) decode(env envelope, v interface{}) {
	s.Require().NoError(json.Unmarshal(env.Data, v))
}

func (s *APITestSuite) count(table string) int64 {
	var n int64
	s.Require().NoError(s.adapter.DB().Table(table).Where("device_id = ?", s.engine.Key()).Count(&n).Error)
	return n
}

func (s *APITestSuite) TestHealthAndNotFound() {
	w, _ := s.do("GET", "/health", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "healthy")
	s.NotEmpty(w.Header().Get("X-Request-ID"))

	w, _ = s.do("GET", "/api/v1/nothing", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Contains(w.Body.String(), "NOT_FOUND")
}

func (s *APITestSuite) TestGames() {
	w, env := s.do("GET", "/api/v1/games", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var list GamesResponse
	s.decode(env, &list)
	s.Require().Len(list.Games, 1)
	s.Equal(models.DefaultGameName, list.Games[0].Name)
	s.Equal(list.Games[0].ID, list.CurrentGameID)

	w, env = s.do("POST", "/api/v1/games", GameNameRequest{Name: "新遊戲"})
	s.Require().Equal(http.StatusCreated, w.Code)
	var g models.Game
	s.decode(env, &g)
	s.Len(g.Presets, 5)

	w, _ = s.do("POST", "/api/v1/games/"+g.ID+"/switch", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(g.ID, s.services.Games.CurrentGameID())

	w, _ = s.do("PUT", "/api/v1/games/"+g.ID, GameNameRequest{Name: "改名"})
	s.Equal(http.StatusOK, w.Code)
	s.Equal("改名", s.services.Games.CurrentGame().Name)

	w, env = s.do("DELETE", "/api/v1/games/missing", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.False(env.Success)
	s.Require().NotNil(env.Error)
	s.Equal(errors.ErrGameNotFound, env.Error.Code)

	w, _ = s.do("POST", "/api/v1/games", map[string]string{})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *APITestSuite) TestPresets() {
	w, env := s.do("POST", "/api/v1/games/current/presets", PresetRequest{Minutes: 45, People: 3, Cost: 1000, Fee: 100, Price: 2400})
	s.Require().Equal(http.StatusCreated, w.Code)
	var p models.Preset
	s.decode(env, &p)
	s.Equal("45分/3人", p.Label)
	s.False(p.IsSystem)

	w, _ = s.do("POST", "/api/v1/games/current/presets", PresetRequest{Minutes: 0, People: 1})
	s.Equal(http.StatusBadRequest, w.Code)

	system := s.services.Games.CurrentGame().Presets[0]
	w, env = s.do("DELETE", "/api/v1/games/current/presets/"+system.ID, nil)
	s.Equal(http.StatusForbidden, w.Code)
	s.Equal(errors.ErrSystemPreset, env.Error.Code)

	w, _ = s.do("DELETE", "/api/v1/games/current/presets/"+p.ID, nil)
	s.Equal(http.StatusOK, w.Code)

	w, _ = s.do("POST", "/api/v1/games/current/presets/import", `[{"label":"a","minutes":30,"people":1}]`)
	s.Equal(http.StatusOK, w.Code)
	s.Len(s.services.Games.CurrentGame().Presets, 6)

	w, _ = s.do("PUT", "/api/v1/games/current/presets", `[{"minutes":30,"people":1},{"minutes":60,"people":2}]`)
	s.Equal(http.StatusOK, w.Code)
	s.Len(s.services.Games.CurrentGame().Presets, 2)

	w, env = s.do("PUT", "/api/v1/games/current/presets", `"oops"`)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(errors.ErrImportFormat, env.Error.Code)
}

func (s *APITestSuite) TestHistoryAndCalc() {
	in := models.PriceInput{Minutes: 60, People: 2, Cost: 1700, Fee: 200, Price: 3000}

	w, env := s.do("POST", "/api/v1/calc", in)
	s.Require().Equal(http.StatusOK, w.Code)
	var stats models.Stats
	s.decode(env, &stats)
	s.Equal(1100.0, stats.Profit)
	s.Equal(1500.0, stats.PricePerPerson)
	s.Empty(s.services.Games.CurrentGame().History)

	w, env = s.do("POST", "/api/v1/games/current/history", in)
	s.Require().Equal(http.StatusCreated, w.Code)
	var entry models.PriceEntry
	s.decode(env, &entry)
	s.Equal(models.DefaultGameName, entry.GameName)
	s.InDelta(1100.0/60, entry.ProfitPerMin, 1e-9)

	w, env = s.do("GET", "/api/v1/games/current/history/baseline", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var base BaselineResponse
	s.decode(env, &base)
	s.True(base.Found)

	w, _ = s.do("DELETE", "/api/v1/games/current/history/"+entry.ID, nil)
	s.Equal(http.StatusOK, w.Code)
	w, _ = s.do("DELETE", "/api/v1/games/current/history/"+entry.ID, nil)
	s.Equal(http.StatusNotFound, w.Code)

	w, _ = s.do("POST", "/api/v1/games/current/history/import", `[{"minutes":30},{"minutes":60}]`)
	s.Equal(http.StatusOK, w.Code)
	s.Len(s.services.Games.CurrentGame().History, 2)

	w, _ = s.do("DELETE", "/api/v1/games/current/history", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Empty(s.services.Games.CurrentGame().History)
}

// 方案新增和删除立即写入远端行
func (s *APITestSuite) TestProfilesWriteRows() {
	rows := []models.NamedPresetRow{{Minutes: 60, People: 2, Cost: 1700, Fee: 200, Profit: 1100}}
	w, env := s.do("POST", "/api/v1/profiles", ProfileRequest{Name: "207", Rows: rows})
	s.Require().Equal(http.StatusCreated, w.Code)
	var p models.NamedPresetProfile
	s.decode(env, &p)
	s.Equal(int64(1), s.count("pricing_profiles"))

	w, _ = s.do("GET", "/api/v1/profiles/"+p.ID, nil)
	s.Equal(http.StatusOK, w.Code)

	w, _ = s.do("DELETE", "/api/v1/profiles/"+p.ID, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(int64(0), s.count("pricing_profiles"))

	w, _ = s.do("GET", "/api/v1/profiles/"+p.ID, nil)
	s.Equal(http.StatusNotFound, w.Code)

	w, env = s.do("POST", "/api/v1/profiles", ProfileRequest{Name: " ", Rows: rows})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(errors.ErrInvalidProfile, env.Error.Code)

	w, _ = s.do("POST", "/api/v1/profiles/import", `[{"name":"a","rows":[{"minutes":30}]},{"name":"b"}]`)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(int64(2), s.count("pricing_profiles"))
}

func (s *APITestSuite) TestTransfer() {
	s.services.Games.AddHistoryEntry(models.PriceInput{Minutes: 60, People: 2, Price: 3000})
	_, err := s.engine.AddProfile(context.Background(), "207", []models.NamedPresetRow{{Minutes: 30, People: 1}})
	s.Require().NoError(err)

	w := httptest.NewRecorder()
	s.router.GetEngine().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/transfer/export?download=1", nil))
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Header().Get("Content-Disposition"), "attachment")
	exported := w.Body.String()

	w, env := s.do("POST", "/api/v1/transfer/import", exported)
	s.Require().Equal(http.StatusOK, w.Code)
	var res ImportResponse
	s.decode(env, &res)
	s.Equal(ImportResponse{History: 1, NamedProfiles: 1}, res)
	s.Len(s.services.Games.CurrentGame().History, 2)
	s.Len(s.services.Profiles.Profiles(), 2)
	s.Equal(int64(2), s.count("pricing_profiles"))

	w, _ = s.do("POST", "/api/v1/transfer/import", `{`)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *APITestSuite) TestSyncFlow() {
	w, env := s.do("GET", "/api/v1/sync/status", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var st syncengine.Status
	s.decode(env, &st)
	s.True(st.Configured)
	s.True(st.IsDefaultKey)
	s.Equal(syncengine.StateReady.String(), st.State)

	w, _ = s.do("PUT", "/api/v1/sync/code", SyncCodeRequest{Code: "ABC123"})
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("ABC123", s.engine.Key())
	s.Equal(int64(0), s.count("pricing_sync"))

	s.services.Games.AddHistoryEntry(models.PriceInput{Minutes: 60, People: 2, Price: 3000})
	w, env = s.do("POST", "/api/v1/sync/visibility", map[string]bool{"visible": true})
	s.Require().Equal(http.StatusOK, w.Code)
	var vis VisibilityResponse
	s.decode(env, &vis)
	s.False(vis.Refetched)

	w, _ = s.do("POST", "/api/v1/sync/visibility", map[string]bool{"visible": false})
	s.Equal(http.StatusOK, w.Code)
	s.Equal(int64(1), s.count("pricing_sync"))

	w, _ = s.do("POST", "/api/v1/sync/save", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(int64(1), s.count("pricing_sync"))

	w, _ = s.do("DELETE", "/api/v1/sync/cloud", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(int64(0), s.count("pricing_sync"))
	s.Len(s.services.Games.CurrentGame().History, 1)

	w, _ = s.do("DELETE", "/api/v1/sync/code", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(syncengine.DefaultSyncKey, s.engine.Key())

	w, env = s.do("PUT", "/api/v1/sync/code", SyncCodeRequest{Code: "   "})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(errors.ErrInvalidSyncCode, env.Error.Code)

	w, _ = s.do("POST", "/api/v1/sync/visibility", map[string]string{})
	s.Equal(http.StatusBadRequest, w.Code)
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

// 未配置远端时同步接口返回冲突，本地接口照常工作
func TestAPIWithoutRemote(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := repository.SetupTestDB(t)
	services := service.NewServices(repository.NewLocalStore(db, nil), zap.NewNop())
	engine := syncengine.New(services.Games, services.Profiles, services.Store, nil, syncengine.Options{Logger: zap.NewNop()})
	t.Cleanup(engine.Stop)
	engine.Start()

	router := NewRouter(db, services, engine, ws.NewHub(nil), nil, nil)
	serve := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.GetEngine().ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w
	}

	w := serve("POST", "/api/v1/sync/save")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = serve("DELETE", "/api/v1/sync/cloud")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = serve("GET", "/api/v1/sync/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"configured":false`)

	w = serve("GET", "/api/v1/games/current")
	assert.Equal(t, http.StatusOK, w.Code)
}
