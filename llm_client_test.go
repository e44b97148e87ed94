package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// rateLimitMockLLM implements the llms.Model interface for testing rate limiting functionality
type rateLimitMockLLM struct {
	mu            sync.Mutex
	responses     []string
	errs          []error
	generateIndex int
	callDelay     time.Duration
}

// Call implements the llms.Model interface for testing
func (m *rateLimitMockLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// GenerateContent implements the llms.Model interface for testing
func (m *rateLimitMockLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if m.callDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.callDelay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generateIndex >= len(m.responses) {
		return nil, errors.New("no more mock responses")
	}
	i := m.generateIndex
	m.generateIndex++
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: m.responses[i]}},
	}, nil
}

func (m *rateLimitMockLLM) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateIndex
}

// newEventuallySuccessfulRateLimitMock creates a mock LLM that fails a specified number of times before succeeding
func newEventuallySuccessfulRateLimitMock(failCount int) *rateLimitMockLLM {
	m := &rateLimitMockLLM{
		responses: make([]string, failCount+1),
		errs:      make([]error, failCount+1),
	}
	for i := 0; i < failCount; i++ {
		m.errs[i] = errors.New("mock error")
	}
	m.responses[failCount] = "successful content after retries"
	return m
}

func userMessage(text string) []llms.MessageContent {
	return []llms.MessageContent{{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextContent{Text: text}},
	}}
}

func TestRateLimitedLLM_NoRetriesByDefault(t *testing.T) {
	mock := newEventuallySuccessfulRateLimitMock(1)
	rateLimitedLLM := NewRateLimitedLLM(mock, RateLimitConfig{})

	response, err := rateLimitedLLM.GenerateContent(context.Background(), userMessage("test message"))

	assert.Error(t, err)
	assert.Nil(t, response)
	assert.Equal(t, "mock error", err.Error())
	assert.Equal(t, 1, mock.calls(), "Should have made exactly one call")
}

func TestRateLimitedLLM_GenerateContent_EventualSuccess(t *testing.T) {
	mock := newEventuallySuccessfulRateLimitMock(2)
	rateLimitedLLM := NewRateLimitedLLM(mock, RateLimitConfig{
		MaxRetries:     3,
		BackoffMinWait: 5 * time.Millisecond,
		BackoffMaxWait: 20 * time.Millisecond,
	})

	response, err := rateLimitedLLM.GenerateContent(context.Background(), userMessage("test message"))

	require.NoError(t, err)
	assert.Equal(t, "successful content after retries", response.Choices[0].Content)
	assert.Equal(t, 3, mock.calls(), "Should have made 3 calls total (2 failures + 1 success)")
}

func TestRateLimitedLLM_GenerateContent_RetriesExhausted(t *testing.T) {
	mock := newEventuallySuccessfulRateLimitMock(5)
	rateLimitedLLM := NewRateLimitedLLM(mock, RateLimitConfig{
		MaxRetries:     2,
		BackoffMinWait: 5 * time.Millisecond,
		BackoffMaxWait: 20 * time.Millisecond,
	})

	response, err := rateLimitedLLM.GenerateContent(context.Background(), userMessage("test message"))

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "all retry attempts failed")
	assert.Nil(t, response)
	assert.Equal(t, 3, mock.calls(), "Should have made 1 initial + 2 retry calls")
}

func TestRateLimitedLLM_Call(t *testing.T) {
	mock := newEventuallySuccessfulRateLimitMock(0)
	rateLimitedLLM := NewRateLimitedLLM(mock, RateLimitConfig{})

	response, err := rateLimitedLLM.Call(context.Background(), "test prompt")

	require.NoError(t, err)
	assert.Equal(t, "successful content after retries", response)
}

func TestRateLimitedLLM_ContextCancellation(t *testing.T) {
	mock := &rateLimitMockLLM{
		responses: []string{"late"},
		callDelay: 500 * time.Millisecond,
	}
	rateLimitedLLM := NewRateLimitedLLM(mock, RateLimitConfig{MaxRetries: 3})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := rateLimitedLLM.GenerateContent(ctx, userMessage("test message"))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimitedLLM_RateLimiting(t *testing.T) {
	mock := &rateLimitMockLLM{responses: []string{"a", "b", "c"}}
	rateLimitedLLM := NewRateLimitedLLM(mock, RateLimitConfig{RequestsPerMinute: 600}) // 1 per 100ms

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := rateLimitedLLM.GenerateContent(context.Background(), userMessage("test message"))
		require.NoError(t, err)
	}
	elapsed := time.Since(start)

	// First call immediate, then two waits of ~100ms each.
	assert.GreaterOrEqual(t, elapsed, 180*time.Millisecond,
		"Rate limiting should space requests")
}
