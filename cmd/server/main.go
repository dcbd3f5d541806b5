package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/botdesk/bridge-server-go/internal/config"
	"github.com/botdesk/bridge-server-go/internal/database"
	"github.com/botdesk/bridge-server-go/internal/gateway"
	"github.com/botdesk/bridge-server-go/internal/handler"
	"github.com/botdesk/bridge-server-go/internal/jobs"
	"github.com/botdesk/bridge-server-go/internal/middleware"
	"github.com/botdesk/bridge-server-go/internal/redis"
	"github.com/botdesk/bridge-server-go/internal/repository"
	"github.com/botdesk/bridge-server-go/internal/service"
	"github.com/botdesk/bridge-server-go/internal/session"
	"github.com/botdesk/bridge-server-go/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	convRepo := repository.NewConversationRepository(db.DB)
	msgRepo := repository.NewMessageRepository(db.DB)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	convService := service.NewConversationService(convRepo)
	msgService := service.NewMessageService(msgRepo)
	authService := service.NewAuthService(redisClient, cfg.APIToken, cfg.DashboardPasswordHash)

	bridgeURL := cfg.BridgeURL
	manager := session.NewManager(func(ctx context.Context) (gateway.Gateway, error) {
		return gateway.DialWAWeb(ctx, bridgeURL)
	}, broker, cfg.StartTimeout())

	dispatcher := service.NewDispatchService(manager, convService, msgService)

	var responder service.Responder
	if cfg.ResponderURL != "" {
		responder = service.NewWebhookResponder(cfg.ResponderURL)
	} else {
		log.Warn().Msg("RESPONDER_URL not set, using canned automated replies")
		responder = service.StaticResponder{}
	}

	ingest := service.NewIngestService(convService, msgService, manager, responder, dispatcher, broker)
	manager.SetInboundHandler(ingest.HandleInbound)

	authMiddleware := middleware.NewAuthMiddleware(authService)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client, cfg.RateLimitPerMin)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	authHandler := handler.NewAuthHandler(authService)
	sessionHandler := handler.NewSessionHandler(manager)
	conversationHandler := handler.NewConversationHandler(convService, msgService)
	messageHandler := handler.NewMessageHandler(dispatcher, convService)
	eventsHandler := handler.NewEventsHandler(broker, manager)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1/auth", func(r chi.Router) {
		r.Use(rateLimitMiddleware.Handler)
		r.Mount("/", authHandler.Routes())
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Use(rateLimitMiddleware.Handler)

		r.Mount("/session", sessionHandler.Routes())
		r.Mount("/conversations", conversationHandler.Routes())
		r.Mount("/messages", messageHandler.Routes())
		r.Get("/events", eventsHandler.ServeHTTP)
	})

	var inactivityJob *jobs.InactivityJob
	if cfg.IdleCloseAfter() > 0 {
		inactivityJob = jobs.NewInactivityJob(convRepo, config.InactivityJobInterval, cfg.IdleCloseAfter())
		inactivityJob.Start()
		defer inactivityJob.Stop()
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	if err := manager.Logout(context.Background()); err != nil {
		log.Warn().Err(err).Msg("failed to close session on shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
