// Spending dashboard chat relay server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/spendchat/internal/adk"
	"github.com/ashureev/spendchat/internal/agent"
	"github.com/ashureev/spendchat/internal/api"
	"github.com/ashureev/spendchat/internal/config"
	"github.com/ashureev/spendchat/internal/identity"
	"github.com/ashureev/spendchat/internal/middleware"
	"github.com/ashureev/spendchat/internal/snapshot"
	"github.com/ashureev/spendchat/internal/store"
	"github.com/ashureev/spendchat/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"agent_base_url", cfg.Agent.BaseURL,
		"agent_app", cfg.Agent.AppName,
	)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	ctx := context.Background()
	if err := repo.Ping(ctx); err != nil {
		return err
	}
	seeded, err := repo.SeedUsers(ctx, cfg.AllowedUsers)
	if err != nil {
		return err
	}
	pruned, err := repo.PruneUsers(ctx, cfg.AllowedUsers)
	if err != nil {
		return err
	}
	slog.Info("Allow-list synchronized", "users", len(cfg.AllowedUsers), "seeded", seeded, "pruned", pruned)

	adkClient := adk.NewClient(adk.Options{
		BaseURL:             cfg.Agent.BaseURL,
		RequestTimeout:      cfg.Agent.RequestTimeout,
		StreamHeaderTimeout: cfg.Agent.StreamHeaderTimeout,
		Logger:              logger,
	})

	snapshots := snapshot.NewService(adkClient, cfg.Agent.SnapshotApp, logger)
	chatService := agent.NewService(
		agent.NewSessionManager(adkClient, snapshots, cfg.Agent.AppName, logger),
		agent.NewRelay(adkClient, cfg.Agent.AppName, logger),
		agent.NewTranscoder(cfg.SSE.MaxLineSize, logger),
		logger,
	)

	conversationLogger, err := agent.NewConversationLogger(cfg.ConversationLog, logger)
	if err != nil {
		return err
	}
	chatHandler := agent.NewHandler(chatService, repo, conversationLogger, cfg)
	defer chatHandler.Close()

	baseHandler := api.NewHandler(repo, cfg)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	api.NewHealthHandler(repo).RegisterHealth(r)
	api.NewAuthHandler(baseHandler).RegisterRoutes(r)
	snapshot.NewHandler(snapshots, repo).RegisterRoutes(r)
	chatHandler.RegisterRoutes(r)

	r.Handle("/*", web.SPAHandler())

	// Chat streams stay open for the whole agent response, so there is no
	// WriteTimeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
