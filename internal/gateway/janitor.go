package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/conductor/internal/streams"
)

// JanitorSchedule is how often expired auth requests and streams are purged.
const JanitorSchedule = "@every 5m"

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

func (s *Server) startJanitor() error {
	if _, ok := s.streams.(streams.Pruner); !ok && s.integrations == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.janitor != nil {
		return nil
	}

	c := cron.New(cron.WithParser(cronParser))
	if _, err := c.AddFunc(JanitorSchedule, s.purgeExpired); err != nil {
		return fmt.Errorf("schedule janitor: %w", err)
	}
	c.Start()
	s.janitor = c
	return nil
}

func (s *Server) stopJanitor() {
	s.mu.Lock()
	c := s.janitor
	s.janitor = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// purgeExpired deletes auth requests past their expiry and frees expired
// in-process streams.
func (s *Server) purgeExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	now := time.Now()

	if s.integrations != nil {
		n, err := s.integrations.PurgeExpired(ctx, now)
		if err != nil {
			s.logger.Warn("auth request purge failed", "error", err)
			s.metrics.RecordError("storage", "purge")
		} else if n > 0 {
			s.logger.Info("purged expired auth requests", "count", n)
		}
	}

	if pruner, ok := s.streams.(streams.Pruner); ok {
		n, err := pruner.Prune(ctx, now)
		if err != nil {
			s.logger.Warn("stream prune failed", "error", err)
			s.metrics.RecordError("stream", "prune")
		} else if n > 0 {
			s.logger.Debug("pruned expired streams", "count", n)
		}
	}
}
