package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/mindwave/backend/internal/bootstrap"
	"github.com/zhouzirui/mindwave/backend/internal/config"
	"github.com/zhouzirui/mindwave/backend/internal/handler"
	"github.com/zhouzirui/mindwave/backend/internal/middleware"
	"github.com/zhouzirui/mindwave/backend/internal/service/chat"
	"github.com/zhouzirui/mindwave/backend/internal/service/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := bootstrap.NewLogger(cfg.Log)
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file, using system environment only")
	}

	backend, err := bootstrap.OpenStore(ctx, cfg.Store)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("failed to open snapshot store")
	}
	defer backend.Close()
	logger.Info().Str("backend", cfg.Store.Backend).Msg("snapshot store ready")

	client, err := bootstrap.NewInferenceClient(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Inference.Backend).Msg("failed to initialize inference client")
	}

	sessions := session.NewManager(backend, session.Options{Logger: logger})
	chatSvc := chat.NewService(client, chat.Options{
		HistoryLimit: cfg.Inference.HistoryLimit,
		Logger:       logger,
	})

	if cfg.Auth.JWTSecret == "" {
		logger.Warn().Msg("AUTH_JWT_SECRET not set, trusting the X-User-ID header")
	}
	router := handler.NewRouter(handler.Deps{
		Sessions:      sessions,
		Chat:          chatSvc,
		Authenticator: middleware.NewAuthenticator(cfg.Auth.JWTSecret, logger),
		Limiter:       middleware.NewRateLimiter(cfg.Auth.SendRatePerMinute, logger),
		Logger:        logger,
	})

	startServer(ctx, cfg.Server, router, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger zerolog.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("Mindwave backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Error().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
