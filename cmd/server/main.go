// Package main runs the workspace collaboration HTTP server with graceful
// shutdown.
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

	"github.com/atlas-collab/backend/config"
	"github.com/atlas-collab/backend/internal/audit"
	"github.com/atlas-collab/backend/internal/auth"
	"github.com/atlas-collab/backend/internal/authz"
	"github.com/atlas-collab/backend/internal/invitations"
	"github.com/atlas-collab/backend/internal/middleware"
	"github.com/atlas-collab/backend/internal/roles"
	"github.com/atlas-collab/backend/internal/workspaces"
	"github.com/atlas-collab/backend/pkg/database"
	"github.com/atlas-collab/backend/pkg/events"
	"github.com/atlas-collab/backend/pkg/redis"
	"github.com/atlas-collab/backend/pkg/response"
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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	eventQueue := events.NewQueue(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Roles
	roleRepo := roles.NewRepository(pool, cfg.Workspaces)
	resolver := roles.NewResolver(roleRepo, cfg.Workspaces, logger)
	if err := resolver.EnsureDefaultRoles(ctx); err != nil {
		logger.Fatal("ensure default roles", zap.Error(err))
	}

	// Workspaces
	wsRepo := workspaces.NewRepository(pool)
	invRepo := invitations.NewRepository(pool)
	wsService := workspaces.NewService(wsRepo, authRepo, resolver, roleRepo, invRepo, eventQueue, cfg.Workspaces, logger)

	auditRepo := audit.NewRepository(pool)
	wsHandler := workspaces.NewHandler(wsService, authRepo, auditRepo, logger)

	// Invitations
	invService := invitations.NewService(invRepo, wsService, wsRepo, roleRepo, eventQueue, logger)
	invHandler := invitations.NewHandler(invService, authRepo, logger)

	// Authorization gate
	gate := authz.NewGate(wsService, resolver, roleRepo, cfg.Workspaces.Abilities, logger)
	ability := func(name string) gin.HandlerFunc {
		return authz.RequireAbility(gate, wsService, name)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Users (admin only)
		api.GET("/users", middleware.RequireRole("admin"), authHandler.List)

		// Workspaces
		api.POST("/workspaces", wsHandler.Create)
		api.GET("/workspaces", wsHandler.ListMine)
		api.GET("/workspaces/owned", wsHandler.ListOwned)
		api.GET("/workspaces/:id", ability("view"), wsHandler.Get)
		api.GET("/workspaces/:id/activity", ability("view"), wsHandler.Activity)

		// Members
		api.GET("/workspaces/:id/members", ability("view"), wsHandler.ListMembers)
		api.POST("/workspaces/:id/members", ability("manage-members"), wsHandler.AddMember)
		api.PUT("/workspaces/:id/members/:userID", ability("manage-members"), wsHandler.UpdateMemberRole)
		api.DELETE("/workspaces/:id/members/:userID", ability("manage-members"), wsHandler.RemoveMember)
		api.POST("/workspaces/:id/transfer-ownership", ability("transfer-ownership"), wsHandler.TransferOwnership)

		// Resource assignments
		api.GET("/workspaces/:id/assignments", ability("view"), wsHandler.ListAssignments)
		api.POST("/workspaces/:id/assignments", ability("manage-members"), wsHandler.Attach)
		api.DELETE("/workspaces/:id/assignments", ability("manage-members"), wsHandler.Detach)

		// Invitations
		api.POST("/workspaces/:id/invitations", ability("manage-invitations"), invHandler.Create)
		api.GET("/workspaces/:id/invitations", ability("manage-invitations"), invHandler.List)
		api.GET("/workspaces/:id/invitations/latest", ability("manage-invitations"), invHandler.Latest)
		api.GET("/invitations/:token", invHandler.Get)
		api.POST("/invitations/:token/accept", invHandler.Accept)
		api.POST("/invitations/:token/decline", invHandler.Decline)
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
