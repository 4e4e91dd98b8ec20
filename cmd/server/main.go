package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wfunc/pricing-sync/internal/api"
	"github.com/wfunc/pricing-sync/internal/config"
	"github.com/wfunc/pricing-sync/internal/database"
	"github.com/wfunc/pricing-sync/internal/errors"
	"github.com/wfunc/pricing-sync/internal/logger"
	"github.com/wfunc/pricing-sync/internal/remote"
	"github.com/wfunc/pricing-sync/internal/repository"
	"github.com/wfunc/pricing-sync/internal/service"
	"github.com/wfunc/pricing-sync/internal/syncengine"
	ws "github.com/wfunc/pricing-sync/internal/websocket"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	services *service.Services
	remote   io.Closer
	engine   *syncengine.Engine
	hub      *ws.Hub
	http     *http.Server

	// 关闭控制
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func main() {
	// 命令行参数
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	server := NewServer(cfg)

	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	// 等待退出信号
	server.WaitForShutdown()

	// 优雅关闭
	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:        cfg,
		logger:     logger.GetLogger(),
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动定价同步服务...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
	)

	if err := s.initComponents(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "初始化组件失败")
	}

	s.startServices()

	// 监听配置变化
	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.reloadConfig(newCfg)
	})

	s.logger.Info("服务器启动成功",
		zap.String("http", s.addr()),
		zap.String("websocket", s.cfg.WebSocket.Path),
		zap.Bool("remote", s.engine.Configured()),
		zap.String("sync_key", s.engine.Key()),
	)
	return nil
}

func (s *Server) addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
}

// initComponents 初始化组件
func (s *Server) initComponents() error {
	s.logger.Info("初始化组件...")

	// 本地存储
	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}
	if !database.IsConnected(database.GetDB()) {
		return errors.New(errors.ErrDatabaseConnect, "数据库连接检查失败")
	}
	store := repository.NewLocalStore(database.GetDB(), logger.GetModuleLogger(logger.ModuleStore))
	s.services = service.NewServices(store, logger.GetModuleLogger(logger.ModuleStore))

	// 远端，未配置时只使用本地存储
	var rem syncengine.Remote
	remoteLog := logger.GetModuleLogger(logger.ModuleRemote)
	adapter, err := remote.Open(&s.cfg.Sync, remoteLog)
	switch {
	case err == nil:
		s.remote = adapter
		rem = adapter
	case errors.Is(err, errors.ErrRemoteNotConfigured):
		s.logger.Info("未配置云端同步",
			zap.String("url_env", s.cfg.Sync.Env.URLKey),
			zap.String("anon_key_env", s.cfg.Sync.Env.AnonKey))
	case errors.Is(err, errors.ErrRemoteConnect):
		// 连接失败由引擎按远端错误通知，下次同步时重连
		s.logger.Warn("连接云端失败，稍后重试", zap.Error(err))
		lazy := remote.NewLazyRemote(func() (*remote.TableAdapter, error) {
			return remote.Open(&s.cfg.Sync, remoteLog)
		}, remoteLog)
		s.remote = lazy
		rem = lazy
	default:
		// 配置错误，仅以本地模式运行
		s.logger.Error("云端配置无效，仅使用本地存储", zap.Error(err))
	}

	s.hub = ws.NewHub(logger.GetModuleLogger(logger.ModuleWebSocket))
	s.engine = syncengine.New(s.services.Games, s.services.Profiles, store, rem, syncengine.Options{
		DefaultKey: s.cfg.Sync.DefaultKey,
		Debounce:   s.cfg.Sync.Debounce,
		Cooldown:   s.cfg.Sync.Cooldown,
		Notifier:   s.hub,
		Logger:     logger.GetModuleLogger(logger.ModuleSync),
	})
	s.hub.SetVisibilityListener(s.engine)

	onChange := func(c service.Change) {
		s.hub.NotifyChange(string(c.Kind), c.Source.String())
	}
	s.services.Games.OnChange(onChange)
	s.services.Profiles.OnChange(onChange)

	gin.SetMode(ginMode(s.cfg.Server.Mode))
	router := api.NewRouter(database.GetDB(), s.services, s.engine, s.hub, &s.cfg.WebSocket,
		logger.GetModuleLogger(logger.ModuleAPI))
	s.http = &http.Server{
		Addr:         s.addr(),
		Handler:      router.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	s.logger.Info("所有组件初始化完成")
	return nil
}

// startServices 启动服务
func (s *Server) startServices() {
	s.logger.Info("启动服务...")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run(s.ctx)
	}()

	// 首次拉取在后台进行
	s.engine.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP服务异常退出", zap.Error(err))
			s.requestShutdown()
		}
	}()

	s.logger.Info("所有服务启动完成")
}

func (s *Server) requestShutdown() {
	select {
	case <-s.shutdownCh:
	default:
		close(s.shutdownCh)
	}
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // kill命令
		syscall.SIGQUIT, // Ctrl+\
	)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
		s.requestShutdown()
	case <-s.shutdownCh:
	}
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 停止接收新请求
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP服务关闭失败", zap.Error(err))
	}

	// 页面关闭前尽量推送未触发的防抖
	if err := s.engine.OnHide(shutdownCtx); err != nil {
		s.logger.Warn("关闭前推送失败", zap.Error(err))
	}
	s.engine.Stop()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("所有服务已正常关闭")
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
		return errors.New(errors.ErrTimeout, "关闭超时")
	}

	s.closeComponents()

	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}
	return nil
}

// closeComponents 关闭组件
func (s *Server) closeComponents() {
	s.logger.Info("关闭组件...")

	if s.remote != nil {
		if err := s.remote.Close(); err != nil {
			s.logger.Error("关闭远端连接失败", zap.Error(err))
		}
	}
	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}
}

// reloadConfig 重新加载配置，日志级别即时生效，其余配置需重启
func (s *Server) reloadConfig(newCfg *config.Config) {
	logger.SetLevel(newCfg.Log.Level)
	s.logger.Info("配置重新加载完成", zap.String("log_level", logger.GetLevel()))
}

// ginMode 将运行模式映射为 gin 模式
func ginMode(mode string) string {
	switch mode {
	case "production", gin.ReleaseMode:
		return gin.ReleaseMode
	case gin.TestMode:
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("定价同步服务\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
