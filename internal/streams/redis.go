package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/haasonsaas/conductor/internal/observability"
)

// KeyPrefix namespaces stream keys in Redis.
const KeyPrefix = "conductor:stream:"

const readCount = 100

// Config selects and tunes the output channel.
type Config struct {
	// URL is a redis:// URL or memory://. Empty selects the passthrough
	// channel.
	URL string

	// TTL is how long a stream stays replayable after its last event.
	TTL time.Duration

	BlockTimeout time.Duration
	MaxIdle      time.Duration
	MaxDuration  time.Duration
}

// RedisLog stores events in Redis Streams, one stream per key.
type RedisLog struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewRedisLog wraps client. Every append refreshes the stream's ttl.
func NewRedisLog(client goredis.UniversalClient, ttl time.Duration) *RedisLog {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisLog{client: client, ttl: ttl}
}

func streamKey(streamID string) string { return KeyPrefix + streamID }

func (l *RedisLog) Append(ctx context.Context, streamID string, event Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	key := streamKey(streamID)
	pipe := l.client.TxPipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: key,
		Values: map[string]any{"event": raw},
	})
	pipe.Expire(ctx, key, l.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (l *RedisLog) Read(ctx context.Context, streamID, after string, block time.Duration) ([]Entry, error) {
	if block <= 0 {
		block = time.Second
	}
	streams, err := l.client.XRead(ctx, &goredis.XReadArgs{
		Streams: []string{streamKey(streamID), after},
		Count:   readCount,
		Block:   block,
	}).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			raw, _ := msg.Values["event"].(string)
			var event Event
			if err := json.Unmarshal([]byte(raw), &event); err != nil {
				return nil, fmt.Errorf("decode event %s: %w", msg.ID, err)
			}
			entries = append(entries, Entry{ID: msg.ID, Event: event})
		}
	}
	return entries, nil
}

func (l *RedisLog) Exists(ctx context.Context, streamID string) (bool, error) {
	n, err := l.client.Exists(ctx, streamKey(streamID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *RedisLog) Close() error { return l.client.Close() }

// Open returns a durable channel when cfg.URL is reachable and a
// passthrough channel otherwise. The memory:// scheme keeps streams in
// process, which suits single-instance deployments.
func Open(ctx context.Context, cfg Config, logger *slog.Logger, metrics *observability.Metrics) Channel {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.URL) == "" {
		logger.Info("no redis url configured, streams are not resumable")
		return NewPassthroughChannel(logger, metrics)
	}

	durable := DurableConfig{
		BlockTimeout: cfg.BlockTimeout,
		MaxIdle:      cfg.MaxIdle,
		MaxDuration:  cfg.MaxDuration,
	}
	if strings.HasPrefix(cfg.URL, "memory://") {
		logger.Info("resumable streams enabled", "backend", "memory")
		return NewDurableChannel(NewMemoryLog(cfg.TTL), durable, logger, metrics)
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		logger.Warn("invalid redis url, streams are not resumable", "error", err)
		return NewPassthroughChannel(logger, metrics)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logger.Warn("redis unavailable, streams are not resumable", "error", err)
		return NewPassthroughChannel(logger, metrics)
	}

	logger.Info("resumable streams enabled", "backend", "redis", "addr", opts.Addr)
	return NewDurableChannel(NewRedisLog(client, cfg.TTL), durable, logger, metrics)
}
