package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/conductor/internal/apperr"
	"github.com/haasonsaas/conductor/pkg/models"
)

// QuotaWindow is the sliding window daily entitlements are counted over.
const QuotaWindow = 24 * time.Hour

// MessageCounter counts a user's messages since a point in time.
type MessageCounter interface {
	CountUserMessagesSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// Quota enforces the per-tier daily message entitlement.
type Quota struct {
	counter MessageCounter
	limits  map[models.Tier]int
	now     func() time.Time
}

// NewQuota creates a quota checker. Tiers missing from limits fall back to
// the regular tier's limit; a limit of 0 means unlimited.
func NewQuota(counter MessageCounter, limits map[models.Tier]int) *Quota {
	copied := make(map[models.Tier]int, len(limits))
	for tier, limit := range limits {
		copied[tier] = limit
	}
	return &Quota{counter: counter, limits: copied, now: time.Now}
}

// Limit returns the daily message limit for tier.
func (q *Quota) Limit(tier models.Tier) int {
	if tier == "" {
		tier = models.TierRegular
	}
	if limit, ok := q.limits[tier]; ok {
		return limit
	}
	return q.limits[models.TierRegular]
}

// Check returns a rate_limit error when the user has used up the tier's
// entitlement in the last QuotaWindow.
func (q *Quota) Check(ctx context.Context, user *models.User) error {
	if q == nil || user == nil {
		return nil
	}
	limit := q.Limit(user.Tier)
	if limit <= 0 {
		return nil
	}
	count, err := q.counter.CountUserMessagesSince(ctx, user.ID, q.now().Add(-QuotaWindow))
	if err != nil {
		return fmt.Errorf("count messages: %w", err)
	}
	// A tier gets exactly limit messages per window.
	if count >= limit {
		return apperr.New(apperr.KindRateLimited, "chat", "")
	}
	return nil
}
