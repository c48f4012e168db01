package streams

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/conductor/internal/apperr"
	"github.com/haasonsaas/conductor/internal/observability"
)

// StartID addresses the position before the first entry of a log.
const StartID = "0-0"

// Entry is one recorded event.
type Entry struct {
	ID    string
	Event Event
}

// Log is an append-only event log keyed by stream id.
type Log interface {
	Append(ctx context.Context, streamID string, event Event) error

	// Read returns the entries after the entry with id after. When none are
	// available it blocks up to block and then returns no entries.
	Read(ctx context.Context, streamID, after string, block time.Duration) ([]Entry, error)

	Exists(ctx context.Context, streamID string) (bool, error)
	Close() error
}

// Pruner is implemented by logs and channels that must free expired
// streams themselves. Redis expires keys on its own.
type Pruner interface {
	Prune(ctx context.Context, now time.Time) (int, error)
}

// DurableConfig tunes a DurableChannel.
type DurableConfig struct {
	// BlockTimeout bounds each blocking read during Resume.
	BlockTimeout time.Duration

	// MaxIdle ends a Resume that has seen no new event for this long.
	MaxIdle time.Duration

	// MaxDuration bounds a producer that outlives its client.
	MaxDuration time.Duration
}

func (c *DurableConfig) applyDefaults() {
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = 5 * time.Second
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = 2 * time.Minute
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 15 * time.Minute
	}
}

// DurableChannel records every event in a Log before forwarding it, so the
// turn keeps generating after its client disconnects and can be replayed.
// If the log fails mid-stream the remaining events are forwarded live only.
type DurableChannel struct {
	log     Log
	config  DurableConfig
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewDurableChannel creates a resumable channel backed by log.
func NewDurableChannel(log Log, config DurableConfig, logger *slog.Logger, metrics *observability.Metrics) *DurableChannel {
	config.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &DurableChannel{
		log:     log,
		config:  config,
		logger:  logger.With("component", "streams", "mode", "durable"),
		metrics: metrics,
	}
}

func (c *DurableChannel) Write(ctx context.Context, streamID string, produce Producer) (<-chan Event, error) {
	out := make(chan Event, eventBuffer)
	prodCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.MaxDuration)

	go func() {
		defer cancel()
		defer close(out)

		// degraded is set once the log rejects an append. From then on the
		// stream is live only and behaves like a passthrough.
		detached, degraded := false, false
		emit := func(e Event) error {
			if !degraded {
				if err := c.log.Append(prodCtx, streamID, e); err != nil {
					degraded = true
					c.metrics.RecordError("stream", string(apperr.KindChannelUnavailable))
					c.logger.Warn("event log unavailable, continuing without resumability",
						"stream_id", streamID,
						"error", err)
				} else {
					c.metrics.RecordStreamEvent("durable")
				}
			}
			if degraded {
				if detached {
					return fmt.Errorf("stream %s: client gone and event log unavailable", streamID)
				}
				select {
				case out <- e:
					c.metrics.RecordStreamEvent("passthrough")
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if detached {
				return nil
			}
			select {
			case out <- e:
			case <-ctx.Done():
				detached = true
				c.logger.Debug("client detached, generation continues", "stream_id", streamID)
			}
			return nil
		}
		runProducer(prodCtx, c.logger, streamID, produce, emit)
	}()

	return out, nil
}

func (c *DurableChannel) Resume(ctx context.Context, streamID string) (<-chan Event, error) {
	ok, err := c.log.Exists(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("check stream %s: %w", streamID, err)
	}
	if !ok {
		return nil, ErrStreamNotFound
	}

	out := make(chan Event, eventBuffer)
	go func() {
		defer close(out)

		last := StartID
		lastEvent := time.Now()
		for {
			entries, err := c.log.Read(ctx, streamID, last, c.config.BlockTimeout)
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Warn("stream replay failed", "stream_id", streamID, "error", err)
				}
				return
			}
			if len(entries) == 0 {
				if time.Since(lastEvent) >= c.config.MaxIdle {
					c.logger.Info("stream replay idle, giving up", "stream_id", streamID)
					return
				}
				continue
			}
			lastEvent = time.Now()
			for _, entry := range entries {
				last = entry.ID
				select {
				case out <- entry.Event:
				case <-ctx.Done():
					return
				}
				if entry.Event.Terminal() {
					return
				}
			}
		}
	}()
	return out, nil
}

func (c *DurableChannel) Resumable() bool { return true }

// Prune frees expired streams when the log needs it.
func (c *DurableChannel) Prune(ctx context.Context, now time.Time) (int, error) {
	if p, ok := c.log.(Pruner); ok {
		return p.Prune(ctx, now)
	}
	return 0, nil
}

func (c *DurableChannel) Close() error { return c.log.Close() }
