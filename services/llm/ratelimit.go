package llm

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
)

// RateLimitedClient wraps an LLMClient with a shared token-bucket
// limiter. Every Generate and Chat call waits for a token first, so a
// burst of parallel summarizations cannot exceed the provider's request
// quota.
//
// The limiter is shared state: wrap the backend once and pass the
// wrapper everywhere.
type RateLimitedClient struct {
	inner   LLMClient
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps inner with a limiter of rps requests per
// second and the given burst. rps <= 0 disables limiting and returns
// the inner client unchanged.
func NewRateLimitedClient(inner LLMClient, rps float64, burst int) LLMClient {
	if rps <= 0 {
		return inner
	}
	if burst < 1 {
		burst = 1
	}
	slog.Info("Rate limiting LLM client", "rps", rps, "burst", burst)
	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Generate implements the LLMClient interface
func (r *RateLimitedClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait: %w", err)
	}
	return r.inner.Generate(ctx, prompt, params)
}

// Chat implements the LLMClient interface
func (r *RateLimitedClient) Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait: %w", err)
	}
	return r.inner.Chat(ctx, messages, params)
}

var _ LLMClient = (*RateLimitedClient)(nil)
