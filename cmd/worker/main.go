package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"listingpilot/internal/cache"
	"listingpilot/internal/domain"
	"listingpilot/internal/infra"
	"listingpilot/internal/jobstore"
	"listingpilot/internal/pipeline"
	"listingpilot/internal/providers/content"
	"listingpilot/internal/providers/market"
	"listingpilot/internal/providers/openai"
	"listingpilot/internal/providers/vision"
	"listingpilot/internal/storage"
)

const jobPollInterval = 2 * time.Second

type jobWorker struct {
	ctx    context.Context
	store  *jobstore.Postgres
	orc    *pipeline.Orchestrator
	stale  time.Duration
	logger infra.Logger
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("worker: DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	store := jobstore.NewPostgres(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to ensure schema")
	}

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	uploads, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	var analyzer vision.Analyzer = vision.NewStaticAnalyzer()
	var generator content.Generator = content.NewStaticGenerator()
	if cfg.OpenAIAPIKey != "" {
		client, err := openai.NewClient(openai.Options{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: failed to configure openai client")
		}
		analyzer = vision.NewOpenAIAnalyzer(client)
		generator = content.NewOpenAIGenerator(client)
	} else {
		logger.Warn().Msg("worker: OPENAI_API_KEY missing, using static analysis and copy")
	}

	var researcher market.Researcher = market.NewStaticResearcher()
	if cfg.EbayAppID != "" {
		eb, err := market.NewEbayResearcher(market.EbayOptions{
			AppID:    cfg.EbayAppID,
			GlobalID: cfg.EbayGlobalID,
			BaseURL:  cfg.EbayBaseURL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: failed to configure ebay client")
		}
		researcher = eb
	} else {
		logger.Warn().Msg("worker: EBAY_APP_ID missing, using static market data")
	}

	var stageCache cache.Cache
	if cfg.RedisAddr != "" {
		client, err := infra.NewRedisClient(cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: failed to connect redis")
		}
		stageCache = cache.NewRedis(client, "stagecache")
	} else {
		stageCache = cache.NewMemory()
	}

	orc := pipeline.NewOrchestrator(store, uploads, analyzer, researcher, generator, stageCache, pipeline.Config{
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

	worker := &jobWorker{
		ctx:   ctx,
		store: store,
		orc:   orc,
		// A claim is considered abandoned after twice the job deadline.
		stale:  2 * cfg.JobDeadline,
		logger: logger,
	}

	if err := worker.Run(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

func (w *jobWorker) Run() error {
	w.logger.Info().Msg("worker: started")
	for {
		select {
		case <-w.ctx.Done():
			return w.ctx.Err()
		default:
		}

		jobID, err := w.store.ClaimPending(w.ctx, w.stale)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				select {
				case <-w.ctx.Done():
					return w.ctx.Err()
				case <-time.After(jobPollInterval):
				}
				continue
			}
			if w.ctx.Err() != nil {
				return w.ctx.Err()
			}
			w.logger.Error().Err(err).Msg("worker: failed to claim job")
			time.Sleep(jobPollInterval)
			continue
		}

		w.logger.Info().Str("job_id", jobID).Msg("worker: picked job")
		if err := w.orc.Run(w.ctx, jobID); err != nil {
			w.logger.Error().Err(err).Str("job_id", jobID).Msg("worker: pipeline run failed")
		}
	}
}
