package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/codewandler/rtrelay/internal/config"
	"github.com/codewandler/rtrelay/relay"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Serve the realtime relay endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runGateway(ctx, newLogger())
		},
	}
}

func loadDotEnv(logger *slog.Logger) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to load .env file", slog.Any("err", err))
	}
}

func runGateway(ctx context.Context, logger *slog.Logger) error {
	loadDotEnv(logger)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if !cfg.Realtime.Enabled() {
		return errors.New("OPENAI_API_KEY is required")
	}

	metrics := relay.NewMetrics("rtrelay")
	tracker := relay.NewTracker()

	model := cfg.Realtime.Model
	if model == "" {
		model = relay.DefaultRealtimeModel
	}

	upstream := &relay.OpenAIUpstream{
		URL:         cfg.Realtime.URL,
		Model:       model,
		APIKey:      cfg.Realtime.APIKey,
		DialTimeout: 10 * time.Second,
		Logger:      logger.With(slog.String("component", "upstream")),
	}

	gw := relay.NewGateway(
		relay.NewJWTValidator(cfg.Auth.Secret, relay.WithAudience(cfg.Auth.Audience)),
		upstream,
		relay.WithSessionConfig(cfg.Realtime.Session),
		relay.WithGatewayLogger(logger),
		relay.WithMetrics(metrics),
		relay.WithTracker(tracker),
		relay.WithAllowedOrigins(cfg.Gateway.AllowedOrigins...),
		relay.WithMaxMessageBytes(cfg.Gateway.MaxMessageBytes),
		relay.WithAcceptRate(cfg.Gateway.AcceptRPS, cfg.Gateway.AcceptBurst),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(gw, metrics),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("gateway listening",
		slog.String("addr", cfg.Server.Addr),
		slog.String("model", upstream.Model),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	return drain(srv, tracker, cfg.Gateway.ShutdownGrace, logger)
}

func newRouter(gw http.Handler, metrics *relay.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())
	r.Handle("/v1/realtime", gw)

	return r
}

// drain stops accepting sessions, tells connected clients the gateway is
// going away and waits up to grace for them to finish.
func drain(srv *http.Server, tracker *relay.Tracker, grace time.Duration, logger *slog.Logger) error {
	logger.Info("shutting down", slog.Int("sessions", tracker.Count()))

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("http shutdown", slog.Any("err", err))
	}

	tracker.NotifyAll("gateway shutting down")
	if tracker.Wait(ctx) {
		return nil
	}

	n := tracker.CancelAll()
	logger.Warn("grace period elapsed, canceled sessions", slog.Int("count", n))

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if !tracker.Wait(waitCtx) {
		return errors.New("sessions did not terminate")
	}
	return nil
}
