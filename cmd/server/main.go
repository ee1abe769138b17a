package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"go.uber.org/zap"

	"github.com/wfunc/carousel-dispenser/internal/api"
	"github.com/wfunc/carousel-dispenser/internal/config"
	"github.com/wfunc/carousel-dispenser/internal/database"
	"github.com/wfunc/carousel-dispenser/internal/errors"
	"github.com/wfunc/carousel-dispenser/internal/hardware"
	"github.com/wfunc/carousel-dispenser/internal/logger"
	"github.com/wfunc/carousel-dispenser/internal/service"
	"github.com/wfunc/carousel-dispenser/internal/websocket"
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

	conn     *hardware.Conn
	tracker  *hardware.StateTracker
	services *service.Services
	hub      *websocket.Hub
	httpSrv  *http.Server

	// 进程退出时无条件尝试急停
	estop func() error

	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
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

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
		ctx:    ctx,
		cancel: cancel,
	}
	s.estop = func() error {
		return hardware.EmergencyStop(&s.cfg.Serial, s.logger)
	}
	return s
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动出料控制服务器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode))

	if err := s.initDatabase(); err != nil {
		return err
	}

	if err := s.initHardware(); err != nil {
		return err
	}

	if err := s.initServices(); err != nil {
		return err
	}

	s.startHTTPServer()

	// 可选的启动回零：后台执行，不阻塞HTTP服务可用
	if s.cfg.Dispense.HomeOnStartup {
		go func() {
			if err := s.services.Dispense.Home(); err != nil {
				s.logger.Error("启动回零失败", zap.Error(err))
			}
		}()
	}

	s.logger.Info("服务器启动成功",
		zap.String("http", fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)),
		zap.String("serial", s.cfg.Serial.Port))

	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	s.logger.Info("初始化数据库...")

	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	if s.cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	if !database.IsConnected() {
		return errors.New(errors.ErrDatabaseConnect, "数据库连接检查失败")
	}

	return nil
}

// initHardware 打开串口连接
func (s *Server) initHardware() error {
	s.logger.Info("打开串口连接...",
		zap.String("port", s.cfg.Serial.Port),
		zap.Int("baud_rate", s.cfg.Serial.BaudRate))

	conn, err := hardware.Dial(&s.cfg.Serial)
	if err != nil {
		return errors.Wrap(err, errors.ErrSerialPortOpen, "打开串口失败")
	}

	s.conn = conn
	s.tracker = hardware.NewStateTracker()
	return nil
}

// initServices 初始化业务服务与状态推送
func (s *Server) initServices() error {
	services, err := service.NewServices(s.conn, s.tracker, s.cfg, database.GetDB(), s.logger)
	if err != nil {
		return err
	}
	s.services = services

	// 出料状态变更通过WebSocket推送给前端
	s.hub = websocket.NewHub(s.logger)
	go s.hub.Run()

	s.services.Dispense.Orchestrator().OnStateChange(func(state hardware.State) {
		s.hub.BroadcastState(string(state))
	})
	s.services.Dispense.OnTraffic(s.hub.BroadcastSerialLine)

	return nil
}

// startHTTPServer 启动HTTP服务
func (s *Server) startHTTPServer() {
	router := api.NewRouter(database.GetDB(), s.services, s.hub, s.logger)

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("HTTP服务异常退出", zap.Error(err))
		}
	}()
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	// 无论当前处于哪个阶段，先尽力发送急停，不等确认
	if s.estop != nil {
		if err := s.estop(); err != nil {
			s.logger.Error("退出时急停发送失败", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	s.cancel()

	// 先停HTTP，再关业务服务（会等待未完成的库存盘点），最后关数据库
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP服务关闭超时", zap.Error(err))
		}
	}

	if s.services != nil {
		s.services.Close()
	}

	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}

	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}

	return nil
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("转盘出料控制服务器\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
