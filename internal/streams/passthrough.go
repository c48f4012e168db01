package streams

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/haasonsaas/conductor/internal/observability"
)

const eventBuffer = 64

// PassthroughChannel forwards producer output straight to the client.
// Generation stops when the client goes away.
type PassthroughChannel struct {
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPassthroughChannel creates a non-resumable channel.
func NewPassthroughChannel(logger *slog.Logger, metrics *observability.Metrics) *PassthroughChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &PassthroughChannel{
		logger:  logger.With("component", "streams", "mode", "passthrough"),
		metrics: metrics,
	}
}

func (c *PassthroughChannel) Write(ctx context.Context, streamID string, produce Producer) (<-chan Event, error) {
	out := make(chan Event, eventBuffer)
	go func() {
		defer close(out)
		emit := func(e Event) error {
			select {
			case out <- e:
				c.metrics.RecordStreamEvent("passthrough")
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		runProducer(ctx, c.logger, streamID, produce, emit)
	}()
	return out, nil
}

func (c *PassthroughChannel) Resume(ctx context.Context, streamID string) (<-chan Event, error) {
	return nil, ErrNotResumable
}

func (c *PassthroughChannel) Resumable() bool { return false }

func (c *PassthroughChannel) Close() error { return nil }

// runProducer runs produce and guarantees a terminal event unless emit
// itself is failing.
func runProducer(ctx context.Context, logger *slog.Logger, streamID string, produce Producer, emit Emit) {
	terminated := false
	tracked := func(e Event) error {
		if terminated {
			return fmt.Errorf("stream %s already terminated", streamID)
		}
		if err := emit(e); err != nil {
			return err
		}
		if e.Terminal() {
			terminated = true
		}
		return nil
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("stream producer panicked",
					"stream_id", streamID,
					"panic", r,
					"stack", string(debug.Stack()))
				err = fmt.Errorf("producer panic: %v", r)
			}
		}()
		return produce(ctx, tracked)
	}()

	if terminated {
		return
	}
	final := Event{Type: EventFinish}
	if err != nil {
		logger.Error("stream producer failed", "stream_id", streamID, "error", err)
		final = Event{Type: EventError, ErrorText: DefaultErrorText}
	}
	if emitErr := tracked(final); emitErr != nil && ctx.Err() == nil {
		logger.Warn("failed to emit terminal event", "stream_id", streamID, "error", emitErr)
	}
}
