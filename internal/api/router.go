package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wfunc/pricing-sync/internal/config"
	"github.com/wfunc/pricing-sync/internal/middleware"
	"github.com/wfunc/pricing-sync/internal/models"
	"github.com/wfunc/pricing-sync/internal/service"
	"github.com/wfunc/pricing-sync/internal/syncengine"
	ws "github.com/wfunc/pricing-sync/internal/websocket"
)

// SyncEngine 路由使用的同步引擎操作
type SyncEngine interface {
	Status() syncengine.Status
	SaveNow(ctx context.Context) error
	OnHide(ctx context.Context) error
	OnVisible(ctx context.Context) (bool, error)
	LoadBySyncCode(ctx context.Context, code string) error
	ClearSyncCode(ctx context.Context) error
	DeleteCloudStorage(ctx context.Context) error

	AddProfile(ctx context.Context, name string, rows []models.NamedPresetRow) (models.NamedPresetProfile, error)
	DeleteProfile(ctx context.Context, id string) error
	ImportProfiles(ctx context.Context, profiles []models.NamedPresetProfile) []models.NamedPresetProfile
}

// Router API路由器
type Router struct {
	engine *gin.Engine
	db     *gorm.DB
	wsPath string

	gamesHandler     *GamesHandler
	profileHandler   *ProfileHandler
	transferHandler  *TransferHandler
	syncHandler      *SyncHandler
	websocketHandler *WebSocketHandler
	log              *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(db *gorm.DB, services *service.Services, sync SyncEngine, hub *ws.Hub, wsCfg *config.WebSocketConfig, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}

	// 创建Gin引擎
	engine := gin.New()

	// 全局中间件
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery())
	engine.Use(middleware.AccessLog())

	wsPath := "/ws"
	if wsCfg != nil && wsCfg.Path != "" {
		wsPath = wsCfg.Path
	}

	router := &Router{
		engine:           engine,
		db:               db,
		wsPath:           wsPath,
		gamesHandler:     NewGamesHandler(services.Games, log),
		profileHandler:   NewProfileHandler(services.Profiles, sync, log),
		transferHandler:  NewTransferHandler(services, sync, log),
		syncHandler:      NewSyncHandler(sync, log),
		websocketHandler: NewWebSocketHandler(hub, wsCfg, log),
		log:              log,
	}

	// 设置路由
	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	v1 := r.engine.Group("/api/v1")
	{
		games := v1.Group("/games")
		{
			games.GET("", r.gamesHandler.List)
			games.POST("", r.gamesHandler.Add)
			games.GET("/current", r.gamesHandler.Current)
			games.PUT("/:id", r.gamesHandler.Rename)
			games.DELETE("/:id", r.gamesHandler.Delete)
			games.POST("/:id/switch", r.gamesHandler.Switch)
		}

		presets := v1.Group("/games/current/presets")
		{
			presets.POST("", r.gamesHandler.AddPreset)
			presets.PUT("", r.gamesHandler.ReplacePresets)
			presets.POST("/import", r.gamesHandler.ImportPresets)
			presets.DELETE("/:id", r.gamesHandler.DeletePreset)
		}

		history := v1.Group("/games/current/history")
		{
			history.POST("", r.gamesHandler.AddHistory)
			history.DELETE("", r.gamesHandler.ClearHistory)
			history.POST("/import", r.gamesHandler.ImportHistory)
			history.GET("/baseline", r.gamesHandler.Baseline)
			history.DELETE("/:id", r.gamesHandler.DeleteHistory)
		}

		profiles := v1.Group("/profiles")
		{
			profiles.GET("", r.profileHandler.List)
			profiles.POST("", r.profileHandler.Add)
			profiles.POST("/import", r.profileHandler.Import)
			profiles.GET("/:id", r.profileHandler.Get)
			profiles.DELETE("/:id", r.profileHandler.Delete)
		}

		v1.POST("/calc", r.gamesHandler.Calc)

		transfer := v1.Group("/transfer")
		{
			transfer.GET("/export", r.transferHandler.Export)
			transfer.POST("/import", r.transferHandler.Import)
		}

		sync := v1.Group("/sync")
		{
			sync.GET("/status", r.syncHandler.Status)
			sync.POST("/save", r.syncHandler.Save)
			sync.PUT("/code", r.syncHandler.SetCode)
			sync.POST("/code/load", r.syncHandler.SetCode)
			sync.DELETE("/code", r.syncHandler.ClearCode)
			sync.POST("/visibility", r.syncHandler.Visibility)
			sync.DELETE("/cloud", r.syncHandler.DeleteCloud)
		}

		v1.GET("/ws/online", r.websocketHandler.OnlineCount)
	}

	// WebSocket路由
	r.engine.GET(r.wsPath, r.websocketHandler.Connect)

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	// 检查数据库连接
	sqlDB, err := r.db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "unhealthy",
			"message": "数据库连接失败",
		})
		return
	}

	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "unhealthy",
			"message": "数据库ping失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"message": "服务运行正常",
	})
}

// Handler 返回 http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
