package services

import (
	"context"
	"time"

	"restopos/internal/logger"
	"restopos/internal/models"

	"gorm.io/gorm"
)

// blockTenants blocks every not-yet-blocked tenant matched by q.
func blockTenants(q *gorm.DB, reason string, at time.Time) (int64, error) {
	res := q.Model(&models.Tenant{}).
		Where("blocked = ?", false).
		Updates(map[string]interface{}{
			"blocked":      true,
			"block_reason": reason,
			"blocked_at":   at,
		})
	return res.RowsAffected, res.Error
}

// SubscriptionWorker blocks restaurants whose paid-until date has passed.
type SubscriptionWorker struct {
	db       *gorm.DB
	log      *logger.Logger
	interval time.Duration
	now      func() time.Time
}

func NewSubscriptionWorker(db *gorm.DB, log *logger.Logger, interval time.Duration) *SubscriptionWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SubscriptionWorker{db: db, log: log.WithComponent("subscriptions"), interval: interval, now: time.Now}
}

// BlockExpired runs one sweep and returns how many tenants were blocked.
func (w *SubscriptionWorker) BlockExpired(ctx context.Context) (int64, error) {
	now := w.now()
	q := w.db.WithContext(ctx).Where("paid_until IS NOT NULL AND paid_until < ?", now)
	return blockTenants(q, ReasonExpired, now)
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (w *SubscriptionWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		n, err := w.BlockExpired(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			w.log.Error("subscription sweep failed", "error", err)
		case n > 0:
			w.log.Warn("blocked expired restaurants", "count", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
