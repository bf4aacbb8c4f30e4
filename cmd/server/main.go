package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yousufaayman/barcode-manage-cpc/internal/config"
	"github.com/yousufaayman/barcode-manage-cpc/internal/entity"
	"github.com/yousufaayman/barcode-manage-cpc/internal/handler"
	"github.com/yousufaayman/barcode-manage-cpc/internal/middleware"
	"github.com/yousufaayman/barcode-manage-cpc/internal/repository"
	"github.com/yousufaayman/barcode-manage-cpc/internal/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// .env 仅本地开发用，不存在即忽略
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting barcode-manage-cpc service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// 建表 + 基础阶段数据
	if err := entity.AutoMigrate(db); err != nil {
		zapLogger.Fatal("Failed to migrate database", zap.Error(err))
	}
	if err := entity.SeedPhases(db); err != nil {
		zapLogger.Fatal("Failed to seed production phases", zap.Error(err))
	}

	// 初始化Redis（统计缓存，可选）
	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb = initRedis(cfg.Redis)
	}

	// 初始化依赖
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, db, rdb, cfg, zapLogger)
	handlers := handler.NewHandlers(services)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// 注册路由
	registerRoutes(router, handlers, cfg)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	// API v1，全部接口需要登录
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		// 批次
		batches := v1.Group("/batches")
		{
			batches.POST("", h.Batch.Create)
			batches.GET("", h.Batch.List)
			batches.GET("/:id", h.Batch.Get)
			batches.GET("/barcode/:barcode", h.Batch.GetByBarcode)
			batches.PUT("/:id", h.Batch.Update)
			batches.PUT("/barcode/:barcode", h.Batch.UpdateByBarcode)
			batches.GET("/:id/timeline", h.Batch.Timeline)
			batches.GET("/:id/timeline/stats", h.Batch.TimelineStats)

			// 归档/恢复/删除仅管理员
			admin := batches.Group("", middleware.RequireRole(middleware.RoleAdmin))
			{
				admin.DELETE("/:id", h.Batch.Delete)
				admin.POST("/:id/archive", h.Batch.Archive)
				admin.POST("/:id/recover", h.Batch.Recover)
				admin.POST("/archive", h.Batch.ArchiveBulk)
				admin.POST("/recover", h.Batch.RecoverBulk)
			}
		}

		// 时间线全局视图
		timeline := v1.Group("/timeline")
		{
			timeline.GET("/current", h.Batch.CurrentTimeline)
			timeline.GET("/stats", h.Batch.GlobalTimelineStats)
		}

		// 工单。创建/修改对所有登录用户开放，仅删除需要管理员
		jobOrders := v1.Group("/job-orders")
		{
			jobOrders.GET("", h.JobOrder.List)
			jobOrders.POST("", h.JobOrder.Create)
			jobOrders.GET("/options", h.JobOrder.Options)
			jobOrders.GET("/tracking", h.JobOrder.TrackingAll)
			jobOrders.GET("/:id", h.JobOrder.Get)
			jobOrders.GET("/:id/production-tracking", h.JobOrder.Tracking)
			jobOrders.GET("/:id/tracking", h.JobOrder.Tracking)
			jobOrders.GET("/:id/overall-status", h.JobOrder.OverallStatus)
			jobOrders.PUT("/:id/items/:itemId", h.JobOrder.UpdateItemQuantity)
			jobOrders.PUT("/:id/closed", h.JobOrder.SetClosed)
			jobOrders.DELETE("/:id", middleware.RequireRole(middleware.RoleAdmin), h.JobOrder.Delete)
		}

		// 统计
		statistics := v1.Group("/statistics")
		{
			statistics.GET("", h.Statistics.Overview)
			statistics.GET("/phases", h.Statistics.ByPhase)
			statistics.GET("/advanced", middleware.RequireRole(middleware.RoleAdmin), h.Statistics.Advanced)
		}

		// 批量导入
		barcodes := v1.Group("/barcodes", middleware.RequireRole(middleware.RoleCreator))
		{
			barcodes.GET("/template", h.Import.DownloadTemplate)
			barcodes.POST("/bulk/process", h.Import.Process)
			barcodes.POST("/bulk/submit", h.Import.Submit)
		}

		// 参照数据
		v1.GET("/brands", h.Reference.ListBrands)
		v1.POST("/brands", h.Reference.CreateBrand)
		v1.GET("/models", h.Reference.ListModels)
		v1.POST("/models", h.Reference.CreateModel)
		v1.GET("/sizes", h.Reference.ListSizes)
		v1.POST("/sizes", h.Reference.CreateSize)
		v1.GET("/colors", h.Reference.ListColors)
		v1.POST("/colors", h.Reference.CreateColor)
		v1.GET("/phases", h.Reference.ListPhases)
	}
}
