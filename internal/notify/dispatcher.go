package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"restopos/internal/logger"
	"restopos/internal/models"
	"restopos/internal/outbox"

	"gorm.io/gorm"
)

type statusMessage struct {
	Title string
	Body  string
}

var statusMessages = map[models.OrderStatus]statusMessage{
	models.StatusPendiente:  {"⏳ Pedido Recibido", "Tu pedido ha sido recibido y será procesado pronto"},
	models.StatusPreparando: {"👨‍🍳 ¡Preparando tu Pedido!", "Nuestro chef está preparando tu orden"},
	models.StatusListo:      {"✅ ¡Pedido Listo!", "Tu pedido está listo para ser servido"},
	models.StatusEntregado:  {"🎉 ¡Buen Provecho!", "Disfruta tu comida"},
}

// MessageFor returns the customer-facing text for a status.
func MessageFor(status models.OrderStatus) (title, body string) {
	if m, ok := statusMessages[status]; ok {
		return m.Title, m.Body
	}
	return "📋 Actualización", "Estado: " + string(status)
}

// Result counts deliveries of one fan-out.
type Result struct {
	Sent   int `json:"sent"`
	Total  int `json:"total"`
	Failed int `json:"failed"`
}

// Dispatcher fans order status changes out to the devices registered for
// a table.
type Dispatcher struct {
	db          *gorm.DB
	sender      Sender
	log         *logger.Logger
	trackingURL string
	now         func() time.Time
}

func NewDispatcher(db *gorm.DB, sender Sender, log *logger.Logger, baseURL string) *Dispatcher {
	log = log.WithComponent("push")
	if sender == nil {
		sender = NewLogSender(log)
	}
	return &Dispatcher{
		db:          db,
		sender:      sender,
		log:         log,
		trackingURL: strings.TrimRight(baseURL, "/") + "/seguimiento.html",
		now:         time.Now,
	}
}

type RegisterInput struct {
	Token      string
	Table      string
	Restaurant string
	Site       string
}

var ErrMissingFields = errors.New("token, mesa y restaurante son requeridos")

// Register stores or refreshes a device token. Re-registering a token moves
// it to the new table and reactivates it.
func (d *Dispatcher) Register(ctx context.Context, in RegisterInput) (*models.PushToken, error) {
	in.Token = strings.TrimSpace(in.Token)
	in.Table = strings.TrimSpace(in.Table)
	in.Restaurant = strings.TrimSpace(in.Restaurant)
	if in.Token == "" || in.Table == "" || in.Restaurant == "" {
		return nil, ErrMissingFields
	}

	var tok models.PushToken
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("token = ?", in.Token).First(&tok).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		tok.Token = in.Token
		tok.Table = in.Table
		tok.Restaurant = in.Restaurant
		tok.Site = strings.TrimSpace(in.Site)
		tok.LastUsed = d.now()
		tok.Active = true
		// Save runs BeforeSave, which recomputes the normalized table.
		return tx.Save(&tok).Error
	})
	if err != nil {
		return nil, fmt.Errorf("register push token: %w", err)
	}
	return &tok, nil
}

// Unregister deactivates a token. Unknown tokens are ignored.
func (d *Dispatcher) Unregister(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingFields
	}
	return d.db.WithContext(ctx).Model(&models.PushToken{}).
		Where("token = ?", token).
		UpdateColumn("active", false).Error
}

// SendTest sends a fixed message to one token.
func (d *Dispatcher) SendTest(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingFields
	}
	err := d.sender.Send(ctx, Message{
		Token: token,
		Title: "🔔 Prueba de Notificación",
		Body:  "Si ves esto, las notificaciones funcionan correctamente.",
		Data:  map[string]string{"timestamp": strconv.FormatInt(d.now().UnixMilli(), 10)},
		Link:  d.trackingURL,
	})
	if errors.Is(err, ErrTokenInvalid) {
		d.deactivate(ctx, token)
	}
	return err
}

func (d *Dispatcher) deactivate(ctx context.Context, token string) {
	err := d.db.WithContext(ctx).Model(&models.PushToken{}).
		Where("token = ?", token).
		UpdateColumn("active", false).Error
	if err != nil {
		d.log.Warn("failed to deactivate push token", "error", err)
	}
}

// Notify sends the status message to every active token of the table.
// Delivery problems are counted, never returned.
func (d *Dispatcher) Notify(ctx context.Context, table, restaurant, site string, status models.OrderStatus) Result {
	res, err := d.notify(ctx, table, restaurant, site, status)
	if err != nil {
		d.log.Error("push fan-out failed", "mesa", table, "restaurante", restaurant, "error", err)
	}
	return res
}

func (d *Dispatcher) notify(ctx context.Context, table, restaurant, site string, status models.OrderStatus) (Result, error) {
	q := d.db.WithContext(ctx).
		Where("table_normalized = ? AND LOWER(restaurant) = ? AND active = ?",
			models.NormalizeTable(table), strings.ToLower(strings.TrimSpace(restaurant)), true)
	if site = strings.TrimSpace(site); site != "" {
		q = q.Where("(site = '' OR LOWER(site) = ?)", strings.ToLower(site))
	}
	var tokens []models.PushToken
	if err := q.Find(&tokens).Error; err != nil {
		return Result{}, err
	}

	res := Result{Total: len(tokens)}
	if len(tokens) == 0 {
		return res, nil
	}

	title, body := MessageFor(status)
	now := d.now()
	for _, t := range tokens {
		err := d.sender.Send(ctx, Message{
			Token: t.Token,
			Title: title,
			Body:  body,
			Data: map[string]string{
				"estado":      string(status),
				"mesa":        table,
				"restaurante": restaurant,
				"timestamp":   strconv.FormatInt(now.UnixMilli(), 10),
			},
			Link: d.trackingURL,
		})
		switch {
		case err == nil:
			res.Sent++
		case errors.Is(err, ErrTokenInvalid):
			res.Failed++
			d.deactivate(ctx, t.Token)
		default:
			res.Failed++
			d.log.Warn("push send failed", "token_id", t.ID, "error", err)
		}
	}

	ids := make([]uint, len(tokens))
	for i, t := range tokens {
		ids[i] = t.ID
	}
	if err := d.db.WithContext(ctx).Model(&models.PushToken{}).Where("id IN ?", ids).
		UpdateColumn("last_used", now).Error; err != nil {
		d.log.Warn("failed to refresh last_used", "error", err)
	}

	d.log.Info("order status pushed", "mesa", table, "estado", status, "sent", res.Sent, "total", res.Total)
	return res, nil
}

// HandleStatus is the outbox handler for push tasks. It asks for a retry
// only when nothing could be delivered at all.
func (d *Dispatcher) HandleStatus(ctx context.Context, p outbox.PushStatusPayload) error {
	res, err := d.notify(ctx, p.Table, p.Restaurant, p.Site, p.Status)
	if err != nil {
		return err
	}
	if res.Sent == 0 && res.Failed > 0 {
		return fmt.Errorf("push to mesa %s: %d of %d failed", p.Table, res.Failed, res.Total)
	}
	return nil
}
