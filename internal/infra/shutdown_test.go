package infra

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestShutdownCoordinator_RunsPhasesInOrder(t *testing.T) {
	c := NewShutdownCoordinator(time.Second, nil)

	var mu sync.Mutex
	var order []string
	record := func(name string) ShutdownFunc {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	c.Register("db", PhaseConnections, record("db"))
	c.Register("http", PhasePreShutdown, record("http"))
	c.Register("janitor", PhaseServices, record("janitor"))

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	want := []string{"http", "janitor", "db"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestShutdownCoordinator_JoinsErrorsAndRunsOnce(t *testing.T) {
	c := NewShutdownCoordinator(time.Second, nil)
	errRedis := errors.New("redis close failed")
	calls := 0
	c.Register("redis", PhaseConnections, func(context.Context) error {
		calls++
		return errRedis
	})
	c.Register("store", PhaseConnections, func(context.Context) error { return nil })

	err := c.Shutdown(context.Background())
	if !errors.Is(err, errRedis) {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if again := c.Shutdown(context.Background()); !errors.Is(again, errRedis) || calls != 1 {
		t.Fatalf("second Shutdown() = %v, calls = %d", again, calls)
	}
}

func TestShutdownCoordinator_Timeout(t *testing.T) {
	c := NewShutdownCoordinator(20*time.Millisecond, nil)
	c.Register("slow", PhaseServices, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := c.Shutdown(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown() error = %v", err)
	}
}
