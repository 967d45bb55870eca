package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/easypass/easypass-api/api/swagger"
	"github.com/easypass/easypass-api/internal/handler"
	"github.com/easypass/easypass-api/internal/middleware"
	"github.com/easypass/easypass-api/internal/models"
	"github.com/easypass/easypass-api/internal/repository"
	"github.com/easypass/easypass-api/internal/service"
	"github.com/easypass/easypass-api/pkg/cache"
	"github.com/easypass/easypass-api/pkg/config"
	"github.com/easypass/easypass-api/pkg/database"
	"github.com/easypass/easypass-api/pkg/logger"
	corsmiddleware "github.com/easypass/easypass-api/pkg/middleware/cors"
	reqidmiddleware "github.com/easypass/easypass-api/pkg/middleware/requestid"
)

// @title EasyPass API
// @version 1.0.0
// @description Exam hall queueing and capacity-admission service
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, capacity cache disabled", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	tagAllocator := repository.NewSequenceTagAllocator(cfg.Queue.TagCeiling)
	queueRepo := repository.NewQueueRepository(db, tagAllocator)
	examRepo := repository.NewExamRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	capacitySvc := service.NewCapacityService(examRepo, queueRepo, cacheRepo, metricsSvc, cfg.Queue.CapacityCacheTTL, logr)
	queueSvc := service.NewQueueService(queueRepo, examRepo, studentRepo, metricsSvc, cfg.Queue, logr)
	admissionSvc := service.NewAdmissionService(queueRepo, examRepo, studentRepo, capacitySvc, metricsSvc, cfg.Admission, logr)
	reconcileSvc := service.NewReconciliationService(queueRepo, capacitySvc, metricsSvc, cfg.Reconcile, logr)
	examSvc := service.NewExamService(examRepo, capacitySvc, cfg.Queue.DefaultHallCapacity, logr)
	studentSvc := service.NewStudentService(studentRepo, logr)
	authSvc := service.NewAuthService(userRepo, studentRepo, cfg.JWT, logr)

	reconcileSvc.StartSweeper(ctx)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	examHandler := handler.NewExamHandler(examSvc)
	queueHandler := handler.NewQueueHandler(queueSvc, reconcileSvc)
	admissionHandler := handler.NewAdmissionHandler(admissionSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/signup", authHandler.Signup)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	exams := api.Group("/exams")
	{
		exams.GET("", examHandler.List)
		exams.GET("/:id", examHandler.Get)
		exams.POST("", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin), examHandler.Create)
		exams.PUT("/:id", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin), examHandler.Update)
		exams.DELETE("/:id", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin), examHandler.Deactivate)
	}
	api.GET("/exam-capacity/:id", middleware.OptionalJWT(authSvc), examHandler.Capacity)

	queues := api.Group("/queues", middleware.JWT(authSvc))
	{
		queues.POST("", queueHandler.Join)
		queues.GET("", middleware.RequireRoles(models.RoleAdmin), queueHandler.List)
		queues.GET("/status/:studentId", middleware.RBAC(string(models.RoleAdmin), "SELF"), queueHandler.Status)
		queues.GET("/verify-status/:id", queueHandler.VerifyStatus)
		queues.POST("/clear-status", queueHandler.ClearStatus)
		queues.DELETE("/:id", queueHandler.Delete)
	}

	admission := api.Group("", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		admission.POST("/check-in", admissionHandler.CheckIn)
		admission.POST("/checkout", admissionHandler.CheckOut)
		admission.POST("/check-in/force-complete/:id", admissionHandler.ForceComplete)
	}

	students := api.Group("/students", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		students.GET("", studentHandler.List)
		students.GET("/:id", studentHandler.Get)
		students.POST("", studentHandler.Create)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
