package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"
)

// RateLimitedLLM wraps an LLM client with rate limiting and retry capabilities
type RateLimitedLLM struct {
	llm         llms.Model
	rateLimiter *rate.Limiter
	maxRetries  int
	backoffMin  time.Duration
	backoffMax  time.Duration
}

// RateLimitConfig holds configuration for rate limiting and retries
type RateLimitConfig struct {
	// RequestsPerMinute is the maximum number of requests allowed per minute
	// If 0 or negative, no rate limiting is applied
	RequestsPerMinute float64

	// MaxRetries is the maximum number of retry attempts
	// If 0 or negative, every request is sent exactly once
	MaxRetries int

	// BackoffMinWait is the first wait between retries
	// Defaults to 1 second if not specified
	BackoffMinWait time.Duration

	// BackoffMaxWait is the maximum wait time between retries
	// Defaults to 30 seconds if not specified
	BackoffMaxWait time.Duration
}

// NewRateLimitedLLM creates a new rate-limited LLM client
func NewRateLimitedLLM(llm llms.Model, config RateLimitConfig) *RateLimitedLLM {
	var limiter *rate.Limiter
	if config.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerMinute/60.0), 1)
	}

	maxRetries := config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	backoffMin := config.BackoffMinWait
	if backoffMin <= 0 {
		backoffMin = time.Second
	}
	backoffMax := config.BackoffMaxWait
	if backoffMax <= 0 {
		backoffMax = 30 * time.Second
	}

	return &RateLimitedLLM{
		llm:         llm,
		rateLimiter: limiter,
		maxRetries:  maxRetries,
		backoffMin:  backoffMin,
		backoffMax:  backoffMax,
	}
}

func (r *RateLimitedLLM) wait(ctx context.Context) error {
	if r.rateLimiter == nil {
		return nil
	}
	if err := r.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}
	return nil
}

// backoff returns the jittered wait before retry number attempt.
func (r *RateLimitedLLM) backoff(attempt int) time.Duration {
	backoff := r.backoffMin * time.Duration(1<<uint(attempt))
	if backoff > r.backoffMax {
		backoff = r.backoffMax
	}
	// +/- 20%
	return time.Duration(float64(backoff) * (0.8 + 0.4*rand.Float64()))
}

// Call implements the llms.Model interface
func (r *RateLimitedLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, r, prompt, options...)
}

// GenerateContent implements the LLM interface with rate limiting and retries
func (r *RateLimitedLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := r.llm.GenerateContent(ctx, messages, options...)
		if err == nil {
			return resp, nil
		}

		if attempt >= r.maxRetries {
			if lastErr != nil {
				return nil, fmt.Errorf("all retry attempts failed, last error: %w", err)
			}
			return nil, err
		}
		lastErr = err

		delay := r.backoff(attempt)
		log.WithError(err).Warnf("LLM request failed, retrying in %v (attempt %d of %d)", delay, attempt+1, r.maxRetries)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}
