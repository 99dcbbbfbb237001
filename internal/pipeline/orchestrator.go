// Package pipeline drives a job through the vision, market research and
// content generation stages, applying the per-stage cache, retry and
// degradation policy.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"listingpilot/internal/cache"
	"listingpilot/internal/domain"
	"listingpilot/internal/infra"
	"listingpilot/internal/providers/content"
	"listingpilot/internal/providers/market"
	"listingpilot/internal/providers/vision"
)

// ImageSource resolves a job's stored upload by key.
type ImageSource interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

// Config tunes the orchestrator's stage policy.
type Config struct {
	StageTimeout time.Duration
	JobDeadline  time.Duration
	Retry        RetryPolicy
	VisionTTL    time.Duration
	MarketTTL    time.Duration
}

// DefaultConfig mirrors the recommended policy: 20s per call, 60s per job,
// 3 attempts per stage, 24h vision cache, 1h market cache.
func DefaultConfig() Config {
	return Config{
		StageTimeout: 20 * time.Second,
		JobDeadline:  60 * time.Second,
		Retry:        DefaultRetryPolicy(),
		VisionTTL:    24 * time.Hour,
		MarketTTL:    time.Hour,
	}
}

// Orchestrator drives one job through the three stages, mutating the store
// only at clean stage boundaries. Vision and content failures are fatal for
// the job; market research degrades to a default price hint.
type Orchestrator struct {
	store   domain.JobStore
	uploads ImageSource
	vision  vision.Analyzer
	market  market.Researcher
	content content.Generator
	cfg     Config
	logger  infra.Logger

	visionStage  *stageRunner
	marketStage  *stageRunner
	contentStage *stageRunner
}

// NewOrchestrator wires the stage runners. The content stage carries no cache
// TTL: generated copy should vary per request.
func NewOrchestrator(
	store domain.JobStore,
	uploads ImageSource,
	visionBackend vision.Analyzer,
	marketBackend market.Researcher,
	contentBackend content.Generator,
	stageCache cache.Cache,
	cfg Config,
	logger infra.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:        store,
		uploads:      uploads,
		vision:       visionBackend,
		market:       marketBackend,
		content:      contentBackend,
		cfg:          cfg,
		logger:       logger,
		visionStage:  newStageRunner("vision", stageCache, cfg.VisionTTL, cfg.Retry, cfg.StageTimeout, logger),
		marketStage:  newStageRunner("market", stageCache, cfg.MarketTTL, cfg.Retry, cfg.StageTimeout, logger),
		contentStage: newStageRunner("content", nil, 0, cfg.Retry, cfg.StageTimeout, logger),
	}
}

// Run executes the pipeline for one job. It returns an error only for store
// failures; stage failures are recorded on the job itself.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	if o.cfg.JobDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.JobDeadline)
		defer cancel()
	}

	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Stage.Terminal() {
		// Cancelled (or already finished) before we picked it up.
		return nil
	}

	// Stage 1: vision analysis. Fatal on failure.
	if !o.advance(ctx, jobID, domain.JobUpdate{
		Stage:    stageOf(domain.StageAnalyzing),
		Progress: progressOf(domain.StageProgress(domain.StageAnalyzing)),
		Message:  messageOf("Analyzing product photo"),
	}) {
		return nil
	}

	image, err := o.uploads.Read(ctx, job.ImageKey)
	if err != nil {
		o.fail(ctx, jobID, domain.ErrKindVisionFailure, fmt.Errorf("load upload: %w", err))
		return nil
	}

	visionRes, visionCached, err := runStage(ctx, o.visionStage, imageKey(image), func(ctx context.Context) (*domain.VisionResult, error) {
		return o.vision.Analyze(ctx, vision.Request{Image: image, MIME: "image/jpeg", Locale: job.Locale})
	})
	if err != nil {
		o.fail(ctx, jobID, domain.ErrKindVisionFailure, err)
		return nil
	}
	o.logger.Info().
		Str("job_id", jobID).
		Str("product", visionRes.Product.Name).
		Bool("cached", visionCached).
		Msg("pipeline: vision stage complete")

	if !o.advance(ctx, jobID, domain.JobUpdate{
		Progress: progressOf(30),
		Message:  messageOf("Product recognized: " + visionRes.Product.Name),
	}) {
		return nil
	}

	// Stage 2: market research. Advisory; degrade instead of failing.
	if !o.advance(ctx, jobID, domain.JobUpdate{
		Stage:    stageOf(domain.StageResearching),
		Progress: progressOf(domain.StageProgress(domain.StageResearching)),
		Message:  messageOf("Researching market prices"),
		Vision:   visionRes,
	}) {
		return nil
	}

	term := searchTerm(visionRes)
	marketRes, marketCached, err := runStage(ctx, o.marketStage, "market:"+market.NormalizeTerm(term), func(ctx context.Context) (*domain.MarketAnalysis, error) {
		return o.market.Research(ctx, market.Request{SearchTerm: term, Locale: job.Locale})
	})
	if err != nil {
		if ctx.Err() != nil {
			o.fail(ctx, jobID, domain.ErrKindTimeout, ctx.Err())
			return nil
		}
		o.logger.Warn().Err(err).Str("job_id", jobID).Msg("pipeline: market stage degraded")
		marketRes = degradedMarket(term, visionRes)
	} else {
		o.logger.Info().
			Str("job_id", jobID).
			Int("avg_cents", marketRes.Prices.AverageCents).
			Bool("cached", marketCached).
			Msg("pipeline: market stage complete")
	}

	// Stage 3: content generation. Fatal on failure.
	if !o.advance(ctx, jobID, domain.JobUpdate{
		Stage:    stageOf(domain.StageGenerating),
		Progress: progressOf(domain.StageProgress(domain.StageGenerating)),
		Message:  messageOf("Generating listing copy"),
		Market:   marketRes,
	}) {
		return nil
	}

	contentRes, _, err := runStage(ctx, o.contentStage, "", func(ctx context.Context) (*domain.ListingContent, error) {
		return o.content.Generate(ctx, content.Request{Vision: visionRes, Market: marketRes, Locale: job.Locale})
	})
	if err != nil {
		o.fail(ctx, jobID, domain.ErrKindContentFailure, err)
		return nil
	}

	if !o.advance(ctx, jobID, domain.JobUpdate{
		Stage:    stageOf(domain.StageReady),
		Progress: progressOf(domain.StageProgress(domain.StageReady)),
		Message:  messageOf("Listing ready to publish"),
		Content:  contentRes,
	}) {
		return nil
	}
	o.logger.Info().Str("job_id", jobID).Msg("pipeline: job ready")
	return nil
}

// advance applies one boundary update. A failed transition means the job was
// cancelled (or otherwise terminated) concurrently; the pipeline stops quietly.
func (o *Orchestrator) advance(ctx context.Context, jobID string, update domain.JobUpdate) bool {
	// Store writes survive the job deadline so terminal updates always land.
	if _, err := o.store.Update(context.WithoutCancel(ctx), jobID, update); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			o.logger.Info().Str("job_id", jobID).Msg("pipeline: job terminated concurrently, stopping")
		} else {
			o.logger.Error().Err(err).Str("job_id", jobID).Msg("pipeline: store update failed")
		}
		return false
	}
	return true
}

func (o *Orchestrator) fail(ctx context.Context, jobID string, kind domain.ErrorKind, cause error) {
	if errors.Is(cause, context.DeadlineExceeded) {
		kind = domain.ErrKindTimeout
	}
	o.logger.Error().Err(cause).Str("job_id", jobID).Str("kind", string(kind)).Msg("pipeline: job failed")
	o.advance(ctx, jobID, domain.JobUpdate{
		Stage:   stageOf(domain.StageError),
		Message: messageOf("Processing failed"),
		Error:   &domain.JobError{Kind: kind, Message: cause.Error()},
	})
}

// degradedMarket is the advisory fallback when research fails: flagged
// unavailable, price hint derived from the vision value estimate.
func degradedMarket(term string, v *domain.VisionResult) *domain.MarketAnalysis {
	hint := 2000
	if v != nil && v.ValueMinCents > 0 && v.ValueMaxCents >= v.ValueMinCents {
		hint = (v.ValueMinCents + v.ValueMaxCents) / 2
	}
	return &domain.MarketAnalysis{
		SearchTerm: term,
		Prices: domain.PriceData{
			AverageCents:     hint,
			MedianCents:      hint,
			MinCents:         hint,
			MaxCents:         hint,
			Trend:            "unknown",
			CompetitiveCents: hint,
		},
		CompetitionLevel:   "unknown",
		SuccessProbability: 0.5,
		Unavailable:        true,
	}
}

// searchTerm prepends the brand when the vision stage did not already fold it
// into the product name.
func searchTerm(v *domain.VisionResult) string {
	name := v.Product.Name
	brand := v.Product.Brand
	if brand != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(brand)) {
		return brand + " " + name
	}
	return name
}

func imageKey(image []byte) string {
	sum := sha256.Sum256(image)
	return "vision:" + hex.EncodeToString(sum[:])
}

func stageOf(s domain.JobStage) *domain.JobStage { return &s }
func progressOf(p int) *int                      { return &p }
func messageOf(m string) *string                 { return &m }
