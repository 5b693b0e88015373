package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mediaforge/internal/adapter/repo"
	"mediaforge/internal/db"
	"mediaforge/internal/http/handlers"
	"mediaforge/internal/http/httpapi"
	"mediaforge/internal/infra"
	"mediaforge/internal/moderation"
	"mediaforge/internal/progress"
	"mediaforge/internal/providers/image"
	"mediaforge/internal/providers/video"
	"mediaforge/internal/storage"
	"mediaforge/internal/workflow"
)

const (
	imageProviderName = "default"
	videoProviderName = "default"
)

func main() {
	_ = godotenv.Load(".env", ".env.local")

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	costs, err := workflow.LoadCostTable(cfg.CostTablePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load cost table")
	}

	hub := progress.NewHub(cfg.EventRetention)

	coordinator := workflow.NewCoordinator(workflow.Config{
		PollInterval:         cfg.VideoPollInterval,
		MaxPollAttempts:      cfg.VideoMaxPollAttempts,
		ProviderCallTimeout:  cfg.ProviderCallTimeout,
		MaxActiveRunsPerUser: cfg.MaxActiveRunsPerUser,
		ImageProvider:        imageProviderName,
		VideoProvider:        videoProviderName,
	}, workflow.Deps{
		Runs:   repo.NewRunRepository(pool),
		Assets: repo.NewAssetRepository(pool),
		Ledger: repo.NewLedgerRepository(pool),
		Gate:   buildGate(cfg, logger),
		Images: buildImageProviders(cfg, logger),
		Videos: buildVideoProviders(cfg, logger),
		Store:  fileStore,
		Hub:    hub,
		Costs:  costs,
		Logger: logger,
	})

	app := handlers.NewApp(coordinator, hub, logger, cfg.HeartbeatInterval)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})

	server := infra.NewHTTPServer(cfg, router)
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("api listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func buildGate(cfg *infra.Config, logger infra.Logger) moderation.Gate {
	if cfg.ModerationURL == "" {
		logger.Warn().Msg("moderation url missing, allowing all prompts")
		return moderation.AllowAll{}
	}
	gate, err := moderation.NewHTTPGate(cfg.ModerationURL, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure moderation gate")
	}
	return gate
}

func buildImageProviders(cfg *infra.Config, logger infra.Logger) map[string]image.Generator {
	providers := make(map[string]image.Generator)
	if cfg.ImageProviderURL == "" {
		logger.Warn().Msg("image provider url missing, image variants will be rejected")
		return providers
	}
	gen, err := image.NewHTTPGenerator(image.Options{
		BaseURL:    cfg.ImageProviderURL,
		APIKey:     cfg.ImageProviderKey,
		HTTPClient: &http.Client{Timeout: cfg.ProviderCallTimeout},
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure image provider")
	}
	providers[imageProviderName] = gen
	return providers
}

func buildVideoProviders(cfg *infra.Config, logger infra.Logger) map[string]video.Generator {
	providers := make(map[string]video.Generator)
	if cfg.VideoProviderURL == "" {
		logger.Warn().Msg("video provider url missing, video variants will be rejected")
		return providers
	}
	gen, err := video.NewHTTPGenerator(video.Options{
		BaseURL:        cfg.VideoProviderURL,
		APIKey:         cfg.VideoProviderKey,
		HTTPClient:     &http.Client{Timeout: cfg.ProviderCallTimeout},
		Logger:         &logger,
		SupportsCancel: cfg.VideoCancelEnable,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure video provider")
	}
	providers[videoProviderName] = gen
	return providers
}
