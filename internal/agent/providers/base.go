package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/haasonsaas/conductor/internal/backoff"
)

// BaseProvider holds shared retry configuration for LLM providers.
type BaseProvider struct {
	name       string
	maxRetries int
	policy     backoff.BackoffPolicy
}

// NewBaseProvider creates a base provider. maxRetries <= 0 means 3 attempts.
func NewBaseProvider(name string, maxRetries int) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return BaseProvider{
		name:       name,
		maxRetries: maxRetries,
		policy:     backoff.DefaultPolicy(),
	}
}

// Retry executes op with exponential backoff while isRetryable returns true.
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	if op == nil {
		return nil
	}
	result, err := backoff.RetryWithBackoff(ctx, b.policy, b.maxRetries, func(int) (struct{}, error) {
		err := op()
		if err != nil && (isRetryable == nil || !isRetryable(err)) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	})
	if errors.Is(err, backoff.ErrMaxAttemptsExhausted) {
		return fmt.Errorf("%s: max retries exceeded: %w", b.name, result.LastError)
	}
	return err
}
