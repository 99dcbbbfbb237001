package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"listingpilot/internal/cache"
	"listingpilot/internal/infra"
)

// stageRunner wraps one external integration with the shared stage policy:
// consult the cache, collapse concurrent identical calls, issue exactly one
// network call per retry attempt under a per-call timeout, write through on
// success.
type stageRunner struct {
	name    string
	cache   cache.Cache
	ttl     time.Duration
	retry   RetryPolicy
	timeout time.Duration
	group   singleflight.Group
	logger  infra.Logger
}

func newStageRunner(name string, c cache.Cache, ttl time.Duration, retry RetryPolicy, timeout time.Duration, logger infra.Logger) *stageRunner {
	return &stageRunner{
		name:    name,
		cache:   c,
		ttl:     ttl,
		retry:   retry,
		timeout: timeout,
		logger:  logger,
	}
}

// runStage executes call under the stage policy. An empty key disables
// caching and deduplication (content generation should vary per request).
// The second return reports whether the result came from the cache.
func runStage[T any](ctx context.Context, s *stageRunner, key string, call func(context.Context) (T, error)) (T, bool, error) {
	var zero T
	if key == "" || s.cache == nil || s.ttl <= 0 {
		out, err := callWithRetry(ctx, s, call)
		return out, false, err
	}

	type outcome struct {
		value  T
		cached bool
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var value T
			if err := json.Unmarshal(data, &value); err == nil {
				return outcome{value: value, cached: true}, nil
			}
			// A corrupt entry silently falls through to a fresh call; the
			// write below repairs it.
			s.logger.Warn().Str("stage", s.name).Str("key", key).Msg("stage: dropping undecodable cache entry")
		} else if err != nil {
			s.logger.Warn().Err(err).Str("stage", s.name).Msg("stage: cache read failed")
		}

		value, err := callWithRetry(ctx, s, call)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(value); err == nil {
			if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
				s.logger.Warn().Err(err).Str("stage", s.name).Msg("stage: cache write failed")
			}
		}
		return outcome{value: value}, nil
	})
	if err != nil {
		return zero, false, err
	}
	out, ok := v.(outcome)
	if !ok {
		return zero, false, fmt.Errorf("stage %s: unexpected result type %T", s.name, v)
	}
	return out.value, out.cached, nil
}

func callWithRetry[T any](ctx context.Context, s *stageRunner, call func(context.Context) (T, error)) (T, error) {
	var out T
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		attemptCtx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		value, err := call(attemptCtx)
		if err != nil {
			s.logger.Debug().Err(err).Str("stage", s.name).Msg("stage: attempt failed")
			return err
		}
		out = value
		return nil
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("stage %s: %w", s.name, err)
	}
	return out, nil
}
