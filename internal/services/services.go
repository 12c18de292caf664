package services

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"restopos/internal/models"

	"gorm.io/gorm"
)

// Actor is the authenticated caller of a tenant-scoped operation.
type Actor struct {
	UserID   uint
	TenantID uint
	Role     string
	Name     string
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin || a.Role == models.RoleSuperAdmin
}

// Realtime event names
const (
	EventOrderCreated      = "order.created"
	EventOrderUpdated      = "order.updated"
	EventOrderDeleted      = "order.deleted"
	EventOrderStatus       = "order.status"
	EventOrderItemStatus   = "order.item_status"
	EventOrderExternal     = "order.external"
	EventLiquidacionClosed = "liquidacion.closed"
)

// EventPublisher fans events out to connected clients of a tenant.
type EventPublisher interface {
	Publish(tenantID uint, event string, payload any)
}

type noopPublisher struct{}

func (noopPublisher) Publish(uint, string, any) {}

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}

// FlexString accepts both JSON strings and numbers. Tables used to be
// numeric, so older clients still send {"mesa": 5}.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return strings.TrimSpace(string(f)) }

// Period filters used by list endpoints.
const (
	PeriodToday = "hoy"
	PeriodWeek  = "semana"
	PeriodMonth = "mes"
)

// periodStart returns the lower bound for a period name, or zero time.
func periodStart(period string, now time.Time) time.Time {
	switch period {
	case PeriodToday:
		return startOfDay(now)
	case PeriodWeek:
		return now.AddDate(0, 0, -7)
	case PeriodMonth:
		return now.AddDate(0, -1, 0)
	}
	return time.Time{}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// findTenant resolves a public restaurant/site pair, case-insensitively.
// An empty site matches any site of the restaurant.
func findTenant(ctx context.Context, db *gorm.DB, restaurant, site string) (*models.Tenant, error) {
	restaurant = strings.TrimSpace(restaurant)
	if restaurant == "" {
		return nil, invalid("El parámetro restaurante es obligatorio")
	}
	q := db.WithContext(ctx).Where("LOWER(name) = ?", strings.ToLower(restaurant))
	if site = strings.TrimSpace(site); site != "" {
		q = q.Where("LOWER(site) = ?", strings.ToLower(site))
	}
	var tenant models.Tenant
	if err := q.Order("id ASC").First(&tenant).Error; err != nil {
		return nil, notFound(err, "restaurante")
	}
	return &tenant, nil
}
