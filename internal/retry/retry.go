package retry

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"
)

// Config bounds the retry loop for multi-step store operations.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Retryable  func(error) bool // nil retries nothing
}

// Do runs fn, retrying with exponential backoff while Retryable reports the
// error as transient. The first attempt is not counted as a retry.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				log.Printf("[RETRY] Operation succeeded on attempt %d", attempt+1)
			}
			return nil
		}
		lastErr = err

		if cfg.Retryable == nil || !cfg.Retryable(err) {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := backoff(cfg, attempt)
		log.Printf("[RETRY] Transient failure (attempt %d/%d), retrying in %s: %v",
			attempt+1, cfg.MaxRetries+1, delay, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("retry limit exceeded after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

func backoff(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
