package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"watchparty/internal/core/services"
	"watchparty/internal/infrastructure/monitoring"
	"watchparty/internal/infrastructure/repositories"
	wsgateway "watchparty/internal/infrastructure/signal"
	"watchparty/pkg/config"
	"watchparty/pkg/logger"
	"watchparty/pkg/tracing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// The standalone gateway serves only /ws. Run it next to partyd with the
// redis transport so both reach the same parties.
func main() {
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/watchparty/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	var loadedFrom string

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			loadedFrom = path
			break
		}
	}

	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()
	if loadedFrom != "" {
		log.Infow("loaded config", "path", loadedFrom)
	} else {
		log.Warn("could not load config from any path, using defaults")
	}

	tracer, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName + "-signal",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	factory, err := repositories.NewFactory(context.Background(), cfg, log)
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

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gateway.HandleWebSocket)
	mux.HandleFunc("/health", gateway.HealthCheck)
	if cfg.Monitoring.PrometheusEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	srv := &http.Server{
		Addr:    cfg.Signal.Address,
		Handler: mux,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting watch party signaling server on %s", cfg.Signal.Address)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Signal.ShutdownTimeout)
	defer cancel()

	if err := gateway.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error leaving parties during shutdown", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		_ = srv.Close()
	}
	if err := factory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error flushing traces", "error", err)
	}

	log.Info("Signaling server stopped")
}
