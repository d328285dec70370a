package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campusflow/nodues-api/api/swagger"
	"github.com/campusflow/nodues-api/internal/handler"
	"github.com/campusflow/nodues-api/internal/middleware"
	"github.com/campusflow/nodues-api/internal/models"
	"github.com/campusflow/nodues-api/internal/repository"
	"github.com/campusflow/nodues-api/internal/service"
	"github.com/campusflow/nodues-api/pkg/cache"
	"github.com/campusflow/nodues-api/pkg/config"
	"github.com/campusflow/nodues-api/pkg/database"
	"github.com/campusflow/nodues-api/pkg/export"
	"github.com/campusflow/nodues-api/pkg/logger"
	"github.com/campusflow/nodues-api/pkg/mail"
	corsmiddleware "github.com/campusflow/nodues-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusflow/nodues-api/pkg/middleware/requestid"
	"github.com/campusflow/nodues-api/pkg/storage"
)

// @title No Dues API
// @version 1.0.0
// @description Student clearance workflow: applications, per-department decisions, certificates
// @BasePath /api/v1
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
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	fileStore, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init certificate storage", "error", err)
	}

	userRepo := repository.NewUserRepository(db)
	appRepo := repository.NewApplicationRepository(db)
	deptRepo := repository.NewDepartmentRepository(db)
	certRepo := repository.NewCertificateRepository(db)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, cfg.JWT, logr)
	registrySvc := service.NewRegistryService(deptRepo, redisClient, userRepo, cfg.Registry.CacheTTL, logr)

	mailer := mail.NewMailer(cfg.SMTP)
	notificationSvc := service.NewNotificationService(cfg.Notifications, mailer, userRepo, metricsSvc, logr)

	signer := storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL)
	certificateSvc := service.NewCertificateService(certRepo, appRepo, registrySvc, fileStore,
		export.NewCertificateRenderer(), signer, cfg.Certificates, userRepo, metricsSvc, logr)

	applicationSvc := service.NewApplicationService(appRepo, userRepo, registrySvc, userRepo, notificationSvc, metricsSvc, logr)
	approvalSvc := service.NewApprovalService(appRepo, userRepo, registrySvc, certificateSvc, notificationSvc, userRepo, metricsSvc, logr)
	reapplicationSvc := service.NewReapplicationService(appRepo, userRepo, notificationSvc, metricsSvc, logr)
	integritySvc := service.NewIntegrityService(appRepo, certificateSvc, userRepo, metricsSvc, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	applicationHandler := handler.NewApplicationHandler(applicationSvc, approvalSvc, reapplicationSvc)
	departmentHandler := handler.NewDepartmentHandler(registrySvc)
	certificateHandler := handler.NewCertificateHandler(certificateSvc)
	adminHandler := handler.NewAdminHandler(integritySvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
	}

	// Public certificate endpoints: download links are self-authorising signed
	// tokens and verification is open to employers.
	api.GET("/certificates/:token", certificateHandler.Download)
	api.GET("/certificates/verify/:serial", certificateHandler.Verify)

	authed := api.Group("", middleware.JWT(authSvc))
	{
		applications := authed.Group("/applications")
		{
			applications.POST("", middleware.RequireRoles(models.RoleStudent), applicationHandler.Submit)
			applications.GET("/mine", middleware.RequireRoles(models.RoleStudent), applicationHandler.Mine)
			applications.GET("", middleware.RequireRoles(models.RoleDepartment, models.RoleAdmin, models.RoleSuperAdmin), applicationHandler.List)
			applications.GET("/:id", applicationHandler.Get)
			applications.POST("/:id/decision", middleware.RequireRoles(models.RoleDepartment, models.RoleAdmin, models.RoleSuperAdmin), applicationHandler.Decide)
			applications.POST("/:id/reapply", middleware.RequireRoles(models.RoleStudent), applicationHandler.Reapply)
			applications.GET("/:id/certificate", certificateHandler.DownloadLink)
		}

		departments := authed.Group("/departments")
		{
			departments.GET("", departmentHandler.List)
			departments.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin), departmentHandler.Create)
			departments.PATCH("/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin), departmentHandler.Update)
		}

		admin := authed.Group("/admin", middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin))
		{
			admin.GET("/integrity/orphans", adminHandler.Orphans)
			admin.POST("/integrity/repair", adminHandler.Repair)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
