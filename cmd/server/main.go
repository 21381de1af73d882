// Package main runs the reimbursement HTTP server with the websocket change
// stream and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ryohi-cloud/backend/config"
	"github.com/ryohi-cloud/backend/internal/allowances"
	"github.com/ryohi-cloud/backend/internal/applications"
	"github.com/ryohi-cloud/backend/internal/billing"
	"github.com/ryohi-cloud/backend/internal/identity"
	"github.com/ryohi-cloud/backend/internal/members"
	"github.com/ryohi-cloud/backend/internal/middleware"
	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/internal/notifications"
	"github.com/ryohi-cloud/backend/internal/organizations"
	"github.com/ryohi-cloud/backend/internal/realtime"
	"github.com/ryohi-cloud/backend/internal/stream"
	"github.com/ryohi-cloud/backend/pkg/database"
	"github.com/ryohi-cloud/backend/pkg/queue"
	"github.com/ryohi-cloud/backend/pkg/redis"
	"github.com/ryohi-cloud/backend/pkg/response"
	"github.com/ryohi-cloud/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Attachments are disabled when no bucket region is configured.
	var objects applications.ObjectStore
	if cfg.AWS.Region != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			AttachmentsBucket:    cfg.AWS.AttachmentsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			objects = s3Client
		}
	}

	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Repositories
	orgRepo := organizations.NewRepository(pool)
	memberRepo := members.NewRepository(pool)
	allowanceRepo := allowances.NewRepository(pool)
	applicationRepo := applications.NewRepository(pool)
	notificationRepo := notifications.NewRepository(pool)
	billingRepo := billing.NewRepository(pool)

	// Identity
	tokens := identity.NewTokenService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	creds := identity.NewCredentialService(identity.NewCredentialRepository(pool), tokens,
		identity.NewRedisRevocationList(rdb.Client), hub, logger)
	resolver := identity.NewResolver(memberRepo)
	registrar := identity.NewRegistrar(creds, orgRepo, memberRepo, allowanceRepo, resolver, logger)
	sessions := identity.NewSessions(creds, resolver, hub, logger)
	authHandler := identity.NewHandler(creds, resolver, registrar, logger)

	// Domain services
	dispatcher := notifications.NewDispatcher(notificationRepo, hub, logger)
	appService := applications.NewService(applicationRepo, dispatcher, memberRepo, hub, objects, jobQueue, logger)

	orgHandler := organizations.NewHandler(orgRepo)
	memberHandler := members.NewHandler(members.NewService(memberRepo, orgRepo, logger))
	allowanceHandler := allowances.NewHandler(allowances.NewService(allowanceRepo, logger))
	applicationHandler := applications.NewHandler(appService)
	notificationHandler := notifications.NewHandler(dispatcher)
	billingHandler := billing.NewHandler(billing.NewService(billingRepo, memberRepo, logger))
	streamServer := stream.NewServer(sessions, hub, cfg.Realtime.SendBuffer, cfg.Server.CORSAllowedOrigins, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.POST("/accept-invitation", authHandler.AcceptInvitation)
	}

	// WebSocket (token in query; the session is established in the handler)
	router.GET("/ws", streamServer.ServeWs)

	adminOnly := middleware.RequireRole(models.RoleAdmin)

	// Protected API (resolved tenant session required)
	api := router.Group("")
	api.Use(middleware.Session(sessions))
	{
		api.GET("/me", memberHandler.Me)
		api.PATCH("/me", memberHandler.UpdateMe)

		api.GET("/organization", orgHandler.Get)
		api.PATCH("/organization", adminOnly, orgHandler.Rename)
		api.PUT("/organization/plan", adminOnly, billingHandler.ChangePlan)

		api.GET("/members", memberHandler.List)
		api.PATCH("/members/:id", adminOnly, memberHandler.Update)
		api.POST("/members/invite", adminOnly, memberHandler.Invite)

		api.GET("/allowances", allowanceHandler.List)
		api.GET("/allowances/estimate", allowanceHandler.Estimate)
		api.GET("/allowances/:position", allowanceHandler.Get)
		api.PUT("/allowances/:position", adminOnly, allowanceHandler.Upsert)

		api.GET("/applications", applicationHandler.List)
		api.POST("/applications", applicationHandler.Create)
		api.GET("/applications/:id", applicationHandler.Get)
		api.PATCH("/applications/:id", applicationHandler.Update)
		api.DELETE("/applications/:id", applicationHandler.Delete)
		api.POST("/applications/:id/submit", applicationHandler.Submit)
		api.POST("/applications/:id/decision",
			middleware.RequireRole(models.RoleAdmin, models.RoleApprover), applicationHandler.Decide)
		api.POST("/applications/:id/attachments", applicationHandler.UploadAttachment)
		api.GET("/applications/:id/attachments/url", applicationHandler.AttachmentURL)

		api.GET("/notifications", notificationHandler.List)
		api.POST("/notifications/read-all", notificationHandler.MarkAllRead)
		api.POST("/notifications/:id/read", notificationHandler.MarkRead)

		api.GET("/billing", adminOnly, billingHandler.List)
		api.POST("/billing", adminOnly, billingHandler.Record)
		api.PATCH("/billing/:id", adminOnly, billingHandler.SetStatus)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
