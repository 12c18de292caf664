package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"restopos/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Task kinds
const (
	KindPushStatus   = "push.order_status"
	KindMandaoStatus = "mandao.status_update"
)

// PushStatusPayload asks the dispatcher to notify every device following a table.
type PushStatusPayload struct {
	OrderID    uint               `json:"orderId"`
	Table      string             `json:"mesa"`
	Restaurant string             `json:"restaurante"`
	Site       string             `json:"sede,omitempty"`
	Status     models.OrderStatus `json:"estado"`
}

// MandaoStatusPayload mirrors a local status change to the delivery platform.
type MandaoStatusPayload struct {
	OrderID         uint               `json:"orderId"`
	ExternalOrderID string             `json:"mandaoOrderId"`
	Status          models.OrderStatus `json:"estado"`
}

const DefaultMaxAttempts = 8

// Outbox writes tasks in the caller's transaction so they commit or roll
// back together with the business change.
type Outbox struct {
	maxAttempts int
}

func New(maxAttempts int) *Outbox {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Outbox{maxAttempts: maxAttempts}
}

func (o *Outbox) Enqueue(tx *gorm.DB, kind string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", kind, err)
	}
	task := models.OutboxTask{
		ID:            uuid.NewString(),
		Kind:          kind,
		Payload:       string(body),
		Status:        models.OutboxPending,
		MaxAttempts:   o.maxAttempts,
		NextAttemptAt: time.Now(),
	}
	if err := tx.Create(&task).Error; err != nil {
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return nil
}
