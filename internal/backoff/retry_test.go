package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTemporary = errors.New("temporary error")

func fastPolicy() BackoffPolicy {
	return BackoffPolicy{InitialMs: 1, MaxMs: 5, Factor: 2}
}

func TestRetryWithBackoff(t *testing.T) {
	errFatal := errors.New("bad request")

	tests := []struct {
		name         string
		maxAttempts  int
		failures     int
		permanent    bool
		wantAttempts int
		wantErr      error
	}{
		{name: "first attempt", maxAttempts: 3, wantAttempts: 1},
		{name: "after retries", maxAttempts: 5, failures: 2, wantAttempts: 3},
		{name: "exhausted", maxAttempts: 3, failures: 10, wantAttempts: 3, wantErr: ErrMaxAttemptsExhausted},
		{name: "permanent stops", maxAttempts: 5, failures: 10, permanent: true, wantAttempts: 1, wantErr: errFatal},
		{name: "zero attempts", maxAttempts: 0, wantErr: ErrMaxAttemptsExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			result, err := RetryWithBackoff(context.Background(), fastPolicy(), tt.maxAttempts, func(attempt int) (int, error) {
				calls++
				if attempt != calls {
					t.Fatalf("attempt = %d, want %d", attempt, calls)
				}
				if calls <= tt.failures {
					if tt.permanent {
						return 0, Permanent(errFatal)
					}
					return 0, errTemporary
				}
				return attempt, nil
			})

			if !errors.Is(err, tt.wantErr) && !(err == nil && tt.wantErr == nil) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if result.Attempts != tt.wantAttempts {
				t.Fatalf("attempts = %d, want %d", result.Attempts, tt.wantAttempts)
			}
			if tt.wantErr == nil && result.Value != tt.wantAttempts {
				t.Fatalf("value = %d", result.Value)
			}
		})
	}
}

func TestRetryWithBackoff_PermanentUnwrapped(t *testing.T) {
	errFatal := errors.New("not configured")
	_, err := RetryWithBackoff(context.Background(), fastPolicy(), 3, func(int) (struct{}, error) {
		return struct{}{}, Permanent(errFatal)
	})
	if err != errFatal {
		t.Fatalf("expected the original error, got %v", err)
	}
	if IsPermanent(err) {
		t.Fatal("returned error should not carry the permanent marker")
	}
	if !IsPermanent(Permanent(errFatal)) || Permanent(nil) != nil {
		t.Fatal("Permanent helpers misbehave")
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := BackoffPolicy{InitialMs: 1000, MaxMs: 1000, Factor: 1}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result, err := RetryWithBackoff(ctx, policy, 30, func(int) (int, error) {
		return 0, errTemporary
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if result.Attempts != 1 || !errors.Is(result.LastError, errTemporary) {
		t.Fatalf("result = %+v", result)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("cancellation did not interrupt the sleep")
	}
}
