package llm

import (
	"context"

	"github.com/reviewpilot/reviewpilot-engine/pkg/retry"
)

// GuardedClient retries classified-retryable failures and trips a circuit breaker when the
// provider keeps failing. Permanent errors (bad key, unknown model) return on the first try.
type GuardedClient struct {
	inner   LLMClient
	breaker *CircuitBreaker
	retry   *retry.Config
}

// Guard wraps inner with retry and circuit breaking. A nil retryCfg uses retry.DefaultConfig.
func Guard(inner LLMClient, breaker *CircuitBreaker, retryCfg *retry.Config) *GuardedClient {
	if breaker == nil {
		breaker = NewCircuitBreaker(DefaultCircuitBreakerConfig())
	}
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	return &GuardedClient{inner: inner, breaker: breaker, retry: retryCfg}
}

func (g *GuardedClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	if err := g.breaker.Allow(); err != nil {
		return nil, err
	}

	var result *GenerateResponseResult
	err := retry.DoIfRetryable(ctx, g.retry, func() error {
		r, err := g.inner.GenerateResponse(ctx, prompt, systemMessage, temperature)
		if err != nil {
			return ClassifyError(err)
		}
		result = r
		return nil
	})
	if err != nil {
		// Only provider-side trouble counts against the breaker.
		if IsRetryable(err) {
			g.breaker.RecordFailure()
		}
		return nil, err
	}

	g.breaker.RecordSuccess()
	return result, nil
}

func (g *GuardedClient) GetModel() string    { return g.inner.GetModel() }
func (g *GuardedClient) GetProvider() string { return g.inner.GetProvider() }

var _ LLMClient = (*GuardedClient)(nil)
