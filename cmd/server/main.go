package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"local-market/internal/config"
	apphttp "local-market/internal/http"
	"local-market/internal/metrics"
	"local-market/internal/repository/sqlite"
	"local-market/internal/service"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logger.Warn("auth jwt secret is not configured; logins will fail until MARKET_AUTH_JWTSECRET is set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	userRepo := sqlite.NewUserRepository(db)
	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}

	tokenService := service.NewTokenService(cfg.Auth.JWTSecret)
	userService := service.NewUserService(userRepo, tokenService, cfg.Auth.BcryptCost)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := apphttp.TrustProxies(router, cfg.Server.TrustedProxies); err != nil {
		logger.Fatalf("configure router: %v", err)
	}
	handler := apphttp.NewHandler(apphttp.Config{
		SecureCookies: cfg.IsProduction(),
		AllowOrigin:   cfg.CORS.AllowOrigin,
		AuthRate:      rate.Limit(cfg.RateLimit.Login.RPS),
		AuthBurst:     cfg.RateLimit.Login.Burst,
		Logger:        logger,
		Metrics:       metrics.NewCollector(registry),
		Gatherer:      registry,
	}, userService, tokenService)
	defer handler.Close()
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s (env %s)", cfg.Server.Addr, cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}
