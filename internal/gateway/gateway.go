// Package gateway bounds and hardens access to the language-model backend.
//
// Every model call in the system (classification, SQL generation, scripting,
// explanation, summarization) goes through a single Invoker, which enforces:
//
//   - Admission control: at most C concurrent invocations system-wide.
//     Callers beyond the limit block until a slot frees.
//   - Retry with exponential backoff and jitter on rate-limit and transient
//     failures; fatal failures propagate immediately.
//   - An optional proactive rate limiter applied to each attempt.
//
// The backend itself is an explicit capability interface (Client); the
// Invoker composes it rather than transparently forwarding arbitrary calls.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Client is the capability the gateway wraps: one prompt in, one completion
// out. Adapters for concrete providers live in the app wiring and must tag
// failures with a gateway.Error kind.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config configures the Invoker. The zero value is usable: concurrency
// defaults to the available parallelism and the retry policy to the
// defaults below.
type Config struct {
	// MaxConcurrent bounds in-flight model calls system-wide.
	// 0 = runtime.NumCPU() (4 if undeterminable).
	MaxConcurrent int

	// MaxAttempts is the total number of calls before giving up. Default 3.
	MaxAttempts int

	// BackoffBaseSeconds is the exponent base for the retry delay:
	// the wait before attempt n+1 is base^n seconds. Default 2.
	BackoffBaseSeconds int

	// Jitter adds a uniform [0,1) second to each backoff delay.
	Jitter bool

	// Limiter, when set, is waited on before every attempt.
	Limiter *rate.Limiter

	// Semaphore, when set, replaces the Invoker's own admission semaphore.
	// Invokers sharing one Semaphore share one concurrency budget, which
	// keeps the bound system-wide when several model roles each get their
	// own Invoker.
	Semaphore *semaphore.Weighted
}

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = 2
	fallbackParallel   = 4
)

// Invoker is the rate-limited, retrying entry point for model calls.
// Safe for concurrent use.
type Invoker struct {
	client      Client
	sem         *semaphore.Weighted
	limiter     *rate.Limiter
	maxAttempts int
	backoffBase float64
	jitter      bool
	logger      *slog.Logger

	// sleep is replaced in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Invoker around client. A nil logger falls back to
// slog.Default().
func New(client Client, cfg Config, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}

	sem := cfg.Semaphore
	if sem == nil {
		sem = NewSemaphore(cfg.MaxConcurrent)
	}

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	base := cfg.BackoffBaseSeconds
	if base <= 0 {
		base = defaultBackoffBase
	}

	return &Invoker{
		client:      client,
		sem:         sem,
		limiter:     cfg.Limiter,
		maxAttempts: attempts,
		backoffBase: float64(base),
		jitter:      cfg.Jitter,
		logger:      logger,
		sleep:       sleepCtx,
	}
}

// Invoke sends prompt to the backend, blocking for an admission slot first.
// Rate-limit and transient failures are retried up to the attempt budget;
// any other failure propagates unchanged. When the budget is exhausted the
// returned error wraps ErrModelUnavailable, not the provider error.
func (inv *Invoker) Invoke(ctx context.Context, prompt string) (string, error) {
	if err := inv.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquiring model slot: %w", err)
	}
	defer inv.sem.Release(1)

	start := time.Now()
	var lastErr error

	for attempt := 0; attempt < inv.maxAttempts; attempt++ {
		// Rate limit each attempt, not just the first.
		if inv.limiter != nil {
			if err := inv.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limit wait: %w", err)
			}
		}

		out, err := inv.client.Generate(ctx, prompt)
		if err == nil {
			inv.logger.Debug("model call succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return out, nil
		}

		lastErr = err

		if !retryable(err) {
			return "", fmt.Errorf("model call: %w", err)
		}

		// Last attempt: no point sleeping.
		if attempt == inv.maxAttempts-1 {
			break
		}

		delay := inv.backoff(attempt)
		inv.logger.Debug("retrying model call",
			"attempt", attempt+1,
			"kind", ClassifyKind(err).String(),
			"delay", delay,
			"error", err,
		)
		if err := inv.sleep(ctx, delay); err != nil {
			return "", fmt.Errorf("context canceled during retry: %w", err)
		}
	}

	return "", fmt.Errorf("model call failed after %d attempts (elapsed %v, last error: %v): %w",
		inv.maxAttempts, time.Since(start), lastErr, ErrModelUnavailable)
}

// backoff returns the delay before the attempt following the given
// zero-based attempt index: base^attempt seconds, plus optional uniform
// jitter in [0,1) seconds.
func (inv *Invoker) backoff(attempt int) time.Duration {
	seconds := math.Pow(inv.backoffBase, float64(attempt))
	d := time.Duration(seconds * float64(time.Second))
	if inv.jitter {
		d += time.Duration(rand.Float64() * float64(time.Second))
	}
	return d
}

// NewSemaphore builds an admission semaphore for limit concurrent calls
// (0 = runtime.NumCPU(), 4 if undeterminable).
func NewSemaphore(limit int) *semaphore.Weighted {
	if limit <= 0 {
		limit = runtime.NumCPU()
		if limit <= 0 {
			limit = fallbackParallel
		}
	}
	return semaphore.NewWeighted(int64(limit))
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
