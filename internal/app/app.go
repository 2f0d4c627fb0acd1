package app

import (
	"context"
	"learnmate_backend/internal/cache"
	"learnmate_backend/internal/config"
	"learnmate_backend/internal/controller"
	"learnmate_backend/internal/gateway"
	"learnmate_backend/internal/repository"
	"learnmate_backend/internal/service"
	"learnmate_backend/pkg/configwatcher"
	"learnmate_backend/pkg/database"
	"learnmate_backend/pkg/logger"
	"learnmate_backend/pkg/monitoring"
	"learnmate_backend/pkg/security"
	"learnmate_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	configCallbacks []func(*config.Config)
}

type repositories struct {
	quizResult   *repository.QuizResultRepository
	gamification *repository.GamificationRepository
}

type services struct {
	ai           *service.AIService
	question     *service.QuestionService
	gamification *service.GamificationService
	sessions     *service.SessionManager
	progress     *service.ProgressService
}

type controllers struct {
	session      *controller.SessionController
	progress     *controller.ProgressController
	gamification *controller.GamificationController
	result       *controller.ResultController
	health       *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		quizResult:   repository.NewQuizResultRepository(db),
		gamification: repository.NewGamificationRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	gw := gateway.NewClient(cfg.Gateway)

	s.ai = service.NewAIService(cfg.AI)
	s.question = service.NewQuestionService(gw, s.ai)
	s.gamification = service.NewGamificationService(repos.gamification)
	s.sessions = service.NewSessionManager(s.question, gw, repos.quizResult, s.gamification, cfg.Session)

	progressCache := cache.NewRedisProgressCache(rdb)
	retryInterval := time.Duration(cfg.Session.ProgressRetrySeconds) * time.Second
	s.progress = service.NewProgressService(gw, progressCache, retryInterval)

	return s
}

func (a *App) initControllers(s *services, repos *repositories, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		session:      controller.NewSessionController(s.sessions),
		progress:     controller.NewProgressController(s.progress),
		gamification: controller.NewGamificationController(s.gamification),
		result:       controller.NewResultController(repos.quizResult),
		health:       controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 100000
	}
	windowMinutes := cfg.RateLimit.WindowMinutes
	if windowMinutes <= 0 {
		windowMinutes = 1
	}
	router.Use(security.RateLimiter(maxRequests, time.Duration(windowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) startBackgroundTasks(s *services) {
	s.sessions.StartCleanup()
	s.progress.StartRetryLoop()

	go configwatcher.WatchConfig("configs/config.yaml", a.Config, func(cfg interface{}) {
		newCfg, ok := cfg.(*config.Config)
		if !ok {
			return
		}
		for _, callback := range a.configCallbacks {
			callback(newCfg)
		}
	})
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, repos, db, rdb)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("assessment-engine", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, cfg)

	app.startBackgroundTasks(services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// 停止会话清理和进度补写
	if a.services != nil {
		a.services.sessions.Stop()
		a.services.progress.Stop()
	}

	// 关闭服务
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
