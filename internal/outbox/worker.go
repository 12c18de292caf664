package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"restopos/internal/logger"
	"restopos/internal/models"

	"gorm.io/gorm"
)

const (
	backoffBase = 5 * time.Second
	backoffCap  = 10 * time.Minute
	// A claimed task is invisible to other pollers for this long.
	claimLease = time.Minute
	batchSize  = 20
)

// Handler delivers one task. A returned error schedules a retry.
type Handler func(ctx context.Context, payload []byte) error

// Worker polls due tasks and hands them to the handler registered for
// their kind.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	interval time.Duration
	handlers map[string]Handler
	now      func() time.Time
}

func NewWorker(db *gorm.DB, log *logger.Logger, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Worker{
		db:       db,
		log:      log.WithComponent("outbox"),
		interval: interval,
		handlers: make(map[string]Handler),
		now:      time.Now,
	}
}

// Register must be called before Run.
func (w *Worker) Register(kind string, h Handler) {
	w.handlers[kind] = h
}

// HandleJSON adapts a typed function into a Handler.
func HandleJSON[T any](fn func(ctx context.Context, payload T) error) Handler {
	return func(ctx context.Context, raw []byte) error {
		var p T
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return fn(ctx, p)
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("outbox worker started", "interval", w.interval.String())
	for {
		if _, err := w.ProcessDue(ctx); err != nil && ctx.Err() == nil {
			w.log.Error("outbox poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			w.log.Info("outbox worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// ProcessDue delivers every task whose next attempt is due and returns how
// many were handled (successfully or not).
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	var tasks []models.OutboxTask
	err := w.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", models.OutboxPending, w.now()).
		Order("next_attempt_at ASC").
		Limit(batchSize).
		Find(&tasks).Error
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		claimed, err := w.claim(ctx, &task)
		if err != nil {
			return handled, err
		}
		if !claimed {
			continue
		}
		w.deliver(ctx, &task)
		handled++
	}
	return handled, nil
}

// claim bumps the attempt counter guarded by its previous value, so two
// pollers never run the same attempt.
func (w *Worker) claim(ctx context.Context, task *models.OutboxTask) (bool, error) {
	res := w.db.WithContext(ctx).Model(&models.OutboxTask{}).
		Where("id = ? AND status = ? AND attempts = ?", task.ID, models.OutboxPending, task.Attempts).
		Updates(map[string]interface{}{
			"attempts":        task.Attempts + 1,
			"next_attempt_at": w.now().Add(claimLease),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	task.Attempts++
	return true, nil
}

func (w *Worker) deliver(ctx context.Context, task *models.OutboxTask) {
	handler, ok := w.handlers[task.Kind]
	var err error
	if !ok {
		err = fmt.Errorf("no handler registered for %q", task.Kind)
	} else {
		err = safeCall(ctx, handler, []byte(task.Payload))
	}

	updates := map[string]interface{}{}
	if err == nil {
		updates["status"] = models.OutboxDone
		updates["last_error"] = ""
	} else {
		updates["last_error"] = err.Error()
		if task.Attempts >= task.MaxAttempts {
			updates["status"] = models.OutboxDead
			w.log.Error("outbox task dead", "id", task.ID, "kind", task.Kind, "attempts", task.Attempts, "error", err)
		} else {
			next := w.now().Add(Backoff(task.Attempts))
			updates["next_attempt_at"] = next
			w.log.Warn("outbox task failed, will retry", "id", task.ID, "kind", task.Kind, "attempts", task.Attempts, "retry_at", next, "error", err)
		}
	}

	// The status write must land even if the request that triggered the
	// poll is being cancelled.
	if err := w.db.WithContext(context.WithoutCancel(ctx)).Model(&models.OutboxTask{}).
		Where("id = ?", task.ID).Updates(updates).Error; err != nil {
		w.log.Error("failed to record outbox result", "id", task.ID, "error", err)
	}
}

func safeCall(ctx context.Context, h Handler, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, payload)
}

// Backoff returns the delay before retry number attempt (1-based):
// 5s, 10s, 20s ... capped at 10 minutes.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}
