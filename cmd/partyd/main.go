package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"watchparty/internal/core/services"
	httphandlers "watchparty/internal/handlers/http"
	"watchparty/internal/infrastructure/middleware"
	"watchparty/internal/infrastructure/monitoring"
	"watchparty/internal/infrastructure/repositories"
	wsgateway "watchparty/internal/infrastructure/signal"
	"watchparty/pkg/config"
	"watchparty/pkg/logger"
	"watchparty/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/watchparty/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	tracer, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	factory, err := repositories.NewFactory(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}

	partyRepo := factory.CreatePartyRepository()
	participantRepo := factory.CreateParticipantRepository()
	chatRepo := factory.CreateChatRepository()

	collector := monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
	metricsService := services.NewMetricsService(collector)
	presence := services.NewPresenceTracker(participantRepo, factory.ProfileProvider(), 0, log)
	partyService := services.NewPartyService(partyRepo, participantRepo, chatRepo, presence, metricsService)
	chatService := services.NewChatService(
		partyRepo,
		chatRepo,
		factory.ProfileProvider(),
		factory.Transport(),
		metricsService,
		services.ChatConfig{
			MaxMessageLength:  cfg.Chat.MaxMessageLength,
			MessagesPerSecond: cfg.Chat.MessagesPerSecond,
			Burst:             cfg.Chat.Burst,
		},
		log,
	)

	gateway := wsgateway.NewGateway(wsgateway.NewGatewayConfig(cfg), services.SessionDeps{
		Parties:   partyService,
		Chat:      chatService,
		Transport: factory.Transport(),
		Metrics:   metricsService,
		Logger:    log,
	}, collector)

	health := monitoring.NewHealthChecker()
	if client := factory.RedisClient(); client != nil {
		health.AddRedisCheck(client, 10*time.Second, 2*time.Second)
	}
	if pool := factory.PostgresPool(); pool != nil {
		health.AddPostgresCheck(pool, 10*time.Second, 2*time.Second)
	}
	health.StartBackgroundChecks(ctx)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.RequestMiddleware(logger.NewContextLogger(zapLogger), collector),
		middleware.TracingMiddleware(),
		middleware.IdentityMiddleware(),
		middleware.ErrorHandlerMiddleware(log),
	)

	// The gateway bounds its own connections and message rates.
	router.GET("/ws", gin.WrapF(gateway.HandleWebSocket))

	partyHandler := httphandlers.NewPartyHandler(partyService, chatService)
	partyHandler.SetupRoutes(router.Group("", middleware.NewHTTPRateLimitMiddleware(cfg)))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"timestamp":   time.Now(),
			"uptime":      time.Since(startTime).String(),
			"connections": gateway.ConnectionCount(),
			"sessions":    metricsService.ActiveSessions(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := factory.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":       "not_ready",
				"timestamp":    time.Now(),
				"dependencies": "unhealthy",
				"error":        err.Error(),
			})
			return
		}

		status := health.CheckAll(ctx)
		if status.Status != "healthy" {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":       "not_ready",
				"timestamp":    status.Timestamp,
				"dependencies": status.Checks,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":       "ready",
			"timestamp":    status.Timestamp,
			"dependencies": status.Checks,
		})
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting watch party server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down watch party server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Hijacked WebSocket connections are not covered by srv.Shutdown.
	if err := gateway.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error leaving parties during shutdown", "error", err)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	stop()

	if err := factory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error flushing traces", "error", err)
	}

	log.Info("Watch party server stopped")
}
