package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exam_online_backend/internal/config"
	"exam_online_backend/internal/controller"
	"exam_online_backend/internal/repository"
	"exam_online_backend/internal/service"
	"exam_online_backend/pkg/database"
	"exam_online_backend/pkg/logger"
	"exam_online_backend/pkg/monitoring"
	"exam_online_backend/pkg/security"
	"exam_online_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config   *config.Config
	Router   *gin.Engine
	DB       *gorm.DB
	Redis    *redis.Client
	Metrics  *monitoring.Metrics
	services *services
}

type repositories struct {
	user         *repository.UserRepository
	exam         *repository.ExamRepository
	examQuestion *repository.ExamQuestionRepository
	participant  *repository.ParticipantRepository
	answerRecord *repository.AnswerRecordRepository
}

type services struct {
	rateLimit    *service.RateLimitService
	lock         *service.LockService
	lockMonitor  *service.LockMonitor
	answer       *service.AnswerService
	answerBuffer *service.AnswerBufferService
	consumer     *service.AnswerRecordConsumer
	participant  *service.ParticipantService
}

type controllers struct {
	studentExam *controller.StudentExamController
	health      *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:         repository.NewUserRepository(db),
		exam:         repository.NewExamRepository(db),
		examQuestion: repository.NewExamQuestionRepository(db),
		participant:  repository.NewParticipantRepository(db),
		answerRecord: repository.NewAnswerRecordRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client, metrics *monitoring.Metrics) *services {
	s := &services{}

	store := service.NewRedisStore(rdb)

	s.rateLimit = service.NewRateLimitService(store, cfg.RateLimit, metrics)
	s.lock = service.NewLockService(store, cfg.Lock, metrics)
	s.lockMonitor = service.NewLockMonitor(s.lock)

	s.answer = service.NewAnswerService(
		store,
		repos.examQuestion,
		cfg.Answer.Channel,
		time.Duration(cfg.Answer.RedisTTLSeconds)*time.Second,
		metrics,
	)
	s.answerBuffer = service.NewAnswerBufferService(
		s.answer,
		time.Duration(cfg.Buffer.DebounceSeconds)*time.Second,
		metrics,
	)
	s.consumer = service.NewAnswerRecordConsumer(
		rdb,
		repos.participant,
		repos.answerRecord,
		repos.examQuestion,
		cfg.Answer.Channel,
	)

	s.participant = service.NewParticipantService(
		repos.user,
		repos.exam,
		repos.participant,
		store,
		s.lock,
		s.answerBuffer,
		time.Duration(cfg.Buffer.SettleDelayMs)*time.Millisecond,
	)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		studentExam: controller.NewStudentExamController(s.participant, s.answerBuffer, s.answer),
		health:      controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	ipLimit := cfg.RateLimit.IPLimit
	if ipLimit.MaxRequests > 0 && ipLimit.WindowMinutes > 0 {
		router.Use(security.RateLimiter(ipLimit.MaxRequests, time.Duration(ipLimit.WindowMinutes)*time.Minute))
	}

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(a.Metrics.MetricsMiddleware())
}

func (a *App) startBackgroundTasks(s *services) {
	s.lockMonitor.Start()
	s.consumer.Start()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg.Server.Mode)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	if cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
		if cfg.MigrateOnly {
			return &App{Config: cfg, DB: db}
		}
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	metrics := monitoring.NewMetrics()

	app := &App{
		Config:  cfg,
		DB:      db,
		Redis:   rdb,
		Metrics: metrics,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb, metrics)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("exam-online", cfg.Tracing.CollectorEndpoint); err != nil {
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

	// 等待中断信号优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// 停止后台任务：消费端先停，再取消未触发的延迟刷出
	if a.services != nil {
		a.services.lockMonitor.Stop()
		a.services.consumer.Stop()
		a.services.answerBuffer.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
