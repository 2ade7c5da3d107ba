package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"attendance/internal/app"
	"attendance/internal/auth"
	"attendance/internal/config"
	"attendance/internal/httpapi"
	"attendance/internal/httpmiddleware"
	"attendance/internal/identity"
	"attendance/internal/ledger"
	"attendance/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	log := app.NewLogger(cfg.Env)
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.App, log *zap.Logger) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		if err := db.Migrate(context.Background()); err != nil {
			return err
		}
		log.Info("migrations applied")
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	tokens := auth.NewTokens(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.TokenTTL)
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)

	identityRepo := identity.NewRepository(db.Client)
	identitySvc := identity.NewService(identityRepo, hasher, tokens, log)

	ledgerRepo := ledger.NewRepository(db.Client)
	ledgerSvc := ledger.NewService(ledgerRepo, identityRepo, redisClient, cfg.SummaryCacheTTL, log)

	guard := auth.NewGuard(tokens, identityRepo, identityRepo, log)
	handler := httpapi.New(identitySvc, ledgerSvc, log)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin).Middleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	httpapi.Register(r, handler, guard)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("forced shutdown", zap.Error(err))
	}

	log.Info("server exited")
	return nil
}
