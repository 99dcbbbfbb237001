package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"listingpilot/internal/cache"
	"listingpilot/internal/domain"
	"listingpilot/internal/http/handlers"
	httpapi "listingpilot/internal/http/httpapi"
	"listingpilot/internal/infra"
	"listingpilot/internal/jobstore"
	"listingpilot/internal/pipeline"
	"listingpilot/internal/providers/content"
	"listingpilot/internal/providers/market"
	"listingpilot/internal/providers/openai"
	"listingpilot/internal/providers/vision"
	"listingpilot/internal/storage"
)

const janitorInterval = 10 * time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	uploads, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	// Job store: Postgres when DATABASE_URL is set, in-memory otherwise.
	// With Postgres the pipeline runs in the separate worker binary; the API
	// only enqueues by creating pending rows.
	var store domain.JobStore
	externalWorker := false
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		pg := jobstore.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to ensure schema")
		}
		store = pg
		externalWorker = true
		logger.Info().Msg("using postgres job store, jobs are drained by the worker binary")
	} else {
		store = jobstore.NewMemory()
		logger.Info().Msg("using in-memory job store")
	}

	app := &handlers.App{
		Store:          store,
		Uploads:        uploads,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
		StoreBackend:   "memory",
		CacheBackend:   "memory",
	}
	if externalWorker {
		app.StoreBackend = "postgres"
	}
	if cfg.RedisAddr != "" {
		app.CacheBackend = "redis"
	}

	if !externalWorker {
		orc := buildOrchestrator(cfg, logger, store, uploads, app)
		dispatcher := pipeline.NewDispatcher(orc, cfg.PipelineWorkers, cfg.PipelineQueue, logger)
		go func() {
			if err := dispatcher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("dispatcher stopped")
			}
		}()
		app.Dispatcher = dispatcher
	} else {
		app.VisionProvider = "worker"
		app.MarketProvider = "worker"
		app.ContentProvider = "worker"
	}

	if cfg.JobRetention > 0 {
		go runJanitor(ctx, store, cfg.JobRetention, logger)
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		DefaultLocale:      cfg.DefaultLocale,
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMin,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// buildOrchestrator wires the stage providers, preferring real backends when
// credentials are present and falling back to the static ones otherwise. The
// chosen provider names are recorded on the app for the health endpoint.
func buildOrchestrator(
	cfg *infra.Config,
	logger infra.Logger,
	store domain.JobStore,
	uploads *storage.FileStore,
	app *handlers.App,
) *pipeline.Orchestrator {
	var analyzer vision.Analyzer = vision.NewStaticAnalyzer()
	var generator content.Generator = content.NewStaticGenerator()
	app.VisionProvider, app.ContentProvider = "static", "static"
	if cfg.OpenAIAPIKey != "" {
		client, err := openai.NewClient(openai.Options{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure openai client")
		}
		analyzer = vision.NewOpenAIAnalyzer(client)
		generator = content.NewOpenAIGenerator(client)
		app.VisionProvider, app.ContentProvider = "openai", "openai"
	} else {
		logger.Warn().Msg("OPENAI_API_KEY missing, using static analysis and copy")
	}

	var researcher market.Researcher = market.NewStaticResearcher()
	app.MarketProvider = "static"
	if cfg.EbayAppID != "" {
		eb, err := market.NewEbayResearcher(market.EbayOptions{
			AppID:    cfg.EbayAppID,
			GlobalID: cfg.EbayGlobalID,
			BaseURL:  cfg.EbayBaseURL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure ebay client")
		}
		researcher = eb
		app.MarketProvider = "ebay"
	} else {
		logger.Warn().Msg("EBAY_APP_ID missing, using static market data")
	}

	var stageCache cache.Cache
	if cfg.RedisAddr != "" {
		client, err := infra.NewRedisClient(cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		stageCache = cache.NewRedis(client, "stagecache")
		logger.Info().Msg("using redis stage cache")
	} else {
		stageCache = cache.NewMemory()
	}

	return pipeline.NewOrchestrator(store, uploads, analyzer, researcher, generator, stageCache, pipeline.Config{
		StageTimeout: cfg.StageTimeout,
		JobDeadline:  cfg.JobDeadline,
		Retry: pipeline.RetryPolicy{
			MaxAttempts: cfg.StageMaxAttempts,
			BaseDelay:   cfg.StageRetryBase,
			Factor:      2,
			MaxDelay:    8 * cfg.StageRetryBase,
		},
		VisionTTL: cfg.VisionCacheTTL,
		MarketTTL: cfg.MarketCacheTTL,
	}, logger)
}

func runJanitor(ctx context.Context, store domain.JobStore, retention time.Duration, logger infra.Logger) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := store.PurgeTerminal(ctx, retention)
			if err != nil {
				logger.Error().Err(err).Msg("janitor purge failed")
				continue
			}
			if purged > 0 {
				logger.Info().Int("purged", purged).Msg("janitor removed finished jobs")
			}
		}
	}
}
