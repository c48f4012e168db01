// Package backoff provides exponential backoff with jitter for retrying
// backend calls and fixed-interval polling.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy defines the parameters for backoff calculation.
type BackoffPolicy struct {
	// InitialMs is the initial backoff duration in milliseconds.
	InitialMs float64
	// MaxMs is the maximum backoff duration in milliseconds.
	MaxMs float64
	// Factor is the exponential factor applied to each attempt.
	Factor float64
	// Jitter is the randomization factor (0.0 to 1.0) applied to the backoff.
	Jitter float64
}

// ComputeBackoff calculates the backoff duration for a given attempt number.
// base = initialMs * factor^(attempt-1); the result is min(maxMs, base + base*jitter*rand).
// Attempt numbers start at 1.
func ComputeBackoff(policy BackoffPolicy, attempt int) time.Duration {
	return ComputeBackoffWithRand(policy, attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// ComputeBackoffWithRand is ComputeBackoff with a caller-supplied random
// value in [0.0, 1.0).
func ComputeBackoffWithRand(policy BackoffPolicy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := policy.InitialMs * math.Pow(policy.Factor, exp)
	jitterAmount := base * policy.Jitter * randomValue
	total := math.Min(policy.MaxMs, base+jitterAmount)
	return time.Duration(math.Round(total)) * time.Millisecond
}

// DefaultPolicy returns the policy used for capability backend retries.
// Initial: 200ms, Max: 5s, Factor: 2, Jitter: 10%
func DefaultPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialMs: 200,
		MaxMs:     5000,
		Factor:    2,
		Jitter:    0.1,
	}
}

// ConstantPolicy returns a policy that always waits interval, used for
// fixed-rate polling.
func ConstantPolicy(interval time.Duration) BackoffPolicy {
	ms := float64(interval) / float64(time.Millisecond)
	return BackoffPolicy{
		InitialMs: ms,
		MaxMs:     ms,
		Factor:    1,
	}
}
