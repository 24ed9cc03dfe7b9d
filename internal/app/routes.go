package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/likenesshq/core/internal/middleware"
	"github.com/likenesshq/core/internal/modules/auth"
	"github.com/likenesshq/core/internal/modules/bounty"
	"github.com/likenesshq/core/internal/modules/company"
	"github.com/likenesshq/core/internal/modules/optout"
	"github.com/likenesshq/core/internal/modules/scanner"
	"github.com/likenesshq/core/internal/modules/webhook"
	"github.com/likenesshq/core/internal/pkg/mail"
	pkgredis "github.com/likenesshq/core/internal/pkg/redis"
	"github.com/likenesshq/core/internal/pkg/response"
	"github.com/likenesshq/core/internal/pkg/taskqueue"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (a *App) registerRoutes(rc *pkgredis.Client, mailer *mail.Sender) {
	r := a.router
	db := a.db
	authMW := middleware.Auth(db)
	adminMW := middleware.RequireAdmin(db)

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	// Rate limiting and idempotence run on every route (requires Redis).
	r.Use(middleware.RateLimit(rc.Raw()))
	r.Use(middleware.Idempotence(rc.Raw()))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": "pong"})
	})
	r.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "jobs": a.sched.List()})
	})
	r.GET("/uptime", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"timestamp": time.Since(processStart).Milliseconds(),
		})
	})

	// Services
	webhookSvc := webhook.NewService(db, a.logger, a.dispatcher)
	optoutSvc := optout.NewService(db, a.logger, mailer, webhookSvc, a.cfg.Dispatch)
	companySvc := company.NewService(db)
	authSvc := auth.NewService(db, a.logger, webhookSvc)
	bountySvc := bounty.NewService(db, a.logger, webhookSvc)
	taskSvc := taskqueue.NewService(rc)
	scanClient := scanner.NewClient(a.cfg.Scanner, a.logger)
	scanSvc := scanner.NewService(scanClient, taskSvc, a.logger)

	// Contributor surface.
	api := r.Group("/api/v2")
	api.Use(middleware.OptionalAuth(db))

	auth.NewHandler(authSvc).RegisterRoutes(api, authMW)
	company.NewHandler(companySvc).RegisterRoutes(api, authMW, adminMW)
	optout.NewHandler(optoutSvc).RegisterRoutes(api, authMW)
	bounty.NewHandler(bountySvc).RegisterRoutes(api, authMW, adminMW)
	scanner.NewHandler(scanSvc).RegisterRoutes(api, authMW)

	// Partner surface. Webhook management lives here only and demands
	// an API key with the webhooks:manage scope; session tokens never
	// reach another partner's endpoints.
	platform := r.Group("/platform/v1")
	platform.Use(middleware.OptionalAuth(db))

	webhook.NewHandler(webhookSvc).RegisterRoutes(platform, authMW)
	scanner.NewHandler(scanSvc).RegisterRoutes(platform, authMW)
	company.NewHandler(companySvc).RegisterRoutes(platform, authMW, adminMW)
}

var processStart = time.Now()
