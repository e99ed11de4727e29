package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/tournament-groups/config"
	"github.com/Dosada05/tournament-groups/db"
	"github.com/Dosada05/tournament-groups/draw"
	"github.com/Dosada05/tournament-groups/handlers"
	"github.com/Dosada05/tournament-groups/repositories"
	api "github.com/Dosada05/tournament-groups/routes"
	"github.com/Dosada05/tournament-groups/services"
	"github.com/Dosada05/tournament-groups/storage"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := run(logger); err != nil {
		logger.Error("application failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("application exited")
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort), slog.String("store", cfg.StoreDriver), slog.Duration("op_timeout", cfg.StoreOpTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store repositories.Store
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		store = repositories.NewMemoryStore()
		logger.Warn("using in-memory store; data is lost on restart")
	default:
		dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			if err := dbConn.Close(); err != nil {
				logger.Error("failed to close database connection", slog.Any("error", err))
			} else {
				logger.Info("database connection closed")
			}
		}()
		logger.Info("database connection established")

		if err := db.Migrate(dbConn); err != nil {
			return err
		}
		logger.Info("database schema up to date")
		store = repositories.NewPostgresStore(dbConn, logger)
	}

	var uploader storage.FileUploader
	if cfg.R2.Empty() {
		logger.Info("Cloudflare R2 not configured; draw sheets will not be published")
	} else {
		uploader, err = storage.NewCloudflareR2Uploader(ctx, cfg.R2)
		if err != nil {
			return fmt.Errorf("failed to initialize Cloudflare R2 uploader: %w", err)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	}

	wsHub := draw.NewHub(logger)

	policy := services.Policy{OpTimeout: cfg.StoreOpTimeout, ConflictRetries: cfg.ConflictRetries}
	tournamentService := services.NewTournamentService(store, wsHub, logger, policy)
	teamService := services.NewTeamService(store, wsHub, logger, policy)
	groupService := services.NewGroupService(store, draw.NewRandomDealGenerator(), wsHub, uploader, logger, policy, nil)

	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		api.Options{
			JWTSecret:      []byte(cfg.JWTSecretKey),
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Logger:         logger,
		},
		handlers.NewTournamentHandler(tournamentService, logger),
		handlers.NewTeamHandler(teamService, logger),
		handlers.NewGroupHandler(groupService, logger),
		handlers.NewWebSocketHandler(wsHub, tournamentService, cfg.CORSAllowedOrigins, logger),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("WebSocket hub started")
		return wsHub.Run(gCtx)
	})
	g.Go(func() error {
		logger.Info("starting server", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		logger.Info("server shutdown complete")
		return nil
	})

	return g.Wait()
}
