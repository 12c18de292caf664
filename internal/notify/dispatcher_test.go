package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"restopos/internal/database"
	"restopos/internal/logger"
	"restopos/internal/models"
	"restopos/internal/outbox"

	"gorm.io/gorm"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []Message
	errs map[string]error
}

func (f *fakeSender) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[msg.Token]; err != nil {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func newTestDispatcher(t *testing.T, sender Sender) (*Dispatcher, *gorm.DB) {
	t.Helper()
	db, err := database.NewTestDB(t.Name())
	if err != nil {
		t.Fatalf("NewTestDB: %v", err)
	}
	return NewDispatcher(db, sender, logger.Discard(), "https://pos.example.com/"), db
}

func register(t *testing.T, d *Dispatcher, token, table, restaurant string) {
	t.Helper()
	if _, err := d.Register(context.Background(), RegisterInput{Token: token, Table: table, Restaurant: restaurant}); err != nil {
		t.Fatalf("Register(%q): %v", token, err)
	}
}

func TestNotifyMatchesNormalizedTable(t *testing.T) {
	sender := &fakeSender{}
	d, _ := newTestDispatcher(t, sender)

	register(t, d, "tok-1", "Terraza Número 1", "La Esquina")
	register(t, d, "tok-2", "terraza numero 1 ", "la esquina")
	register(t, d, "tok-3", "Mesa 2", "La Esquina")
	register(t, d, "tok-4", "Terraza Número 1", "Otro")

	res := d.Notify(context.Background(), "TERRAZA NUMERO 1", "La Esquina", "", models.StatusListo)
	if res.Sent != 2 || res.Total != 2 {
		t.Fatalf("Notify = %+v, want sent 2 total 2", res)
	}
	for _, m := range sender.sent {
		if m.Title != "✅ ¡Pedido Listo!" {
			t.Errorf("title = %q", m.Title)
		}
		if m.Link != "https://pos.example.com/seguimiento.html" {
			t.Errorf("link = %q", m.Link)
		}
		if m.Data["estado"] != "listo" {
			t.Errorf("data estado = %q", m.Data["estado"])
		}
	}
}

func TestNotifyDeactivatesInvalidTokens(t *testing.T) {
	sender := &fakeSender{errs: map[string]error{
		"dead": ErrTokenInvalid,
		"slow": errors.New("deadline exceeded"),
	}}
	d, db := newTestDispatcher(t, sender)

	register(t, d, "ok", "5", "Resto")
	register(t, d, "dead", "5", "Resto")
	register(t, d, "slow", "5", "Resto")

	res := d.Notify(context.Background(), "5", "Resto", "", models.StatusPreparando)
	if res.Sent != 1 || res.Failed != 2 || res.Total != 3 {
		t.Fatalf("Notify = %+v, want sent 1 failed 2 total 3", res)
	}

	var tokens []models.PushToken
	if err := db.Order("token").Find(&tokens).Error; err != nil {
		t.Fatal(err)
	}
	active := map[string]bool{}
	for _, tok := range tokens {
		active[tok.Token] = tok.Active
	}
	want := map[string]bool{"ok": true, "dead": false, "slow": true}
	for tok, w := range want {
		if active[tok] != w {
			t.Errorf("token %q active = %v, want %v", tok, active[tok], w)
		}
	}
}

func TestRegisterReactivatesAndMoves(t *testing.T) {
	d, db := newTestDispatcher(t, &fakeSender{})
	ctx := context.Background()

	register(t, d, "tok", "1", "Resto")
	if err := d.Unregister(ctx, "tok"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	register(t, d, "tok", "Barra", "Resto")

	var all []models.PushToken
	if err := db.Find(&all).Error; err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d rows, want 1", len(all))
	}
	if !all[0].Active || all[0].TableNormalized != "barra" {
		t.Errorf("token = %+v, want active on barra", all[0])
	}
}

func TestRegisterRequiresFields(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeSender{})
	tests := []RegisterInput{
		{Table: "1", Restaurant: "R"},
		{Token: "t", Restaurant: "R"},
		{Token: "t", Table: "1"},
	}
	for _, in := range tests {
		if _, err := d.Register(context.Background(), in); !errors.Is(err, ErrMissingFields) {
			t.Errorf("Register(%+v) = %v, want ErrMissingFields", in, err)
		}
	}
}

func TestHandleStatusRetriesOnlyWhenNothingDelivered(t *testing.T) {
	sender := &fakeSender{errs: map[string]error{"slow": errors.New("unavailable")}}
	d, _ := newTestDispatcher(t, sender)
	register(t, d, "slow", "7", "Resto")

	p := outbox.PushStatusPayload{Table: "7", Restaurant: "Resto", Status: models.StatusEntregado}
	if err := d.HandleStatus(context.Background(), p); err == nil {
		t.Error("HandleStatus with every send failing returned nil, want retry error")
	}

	p.Table = "no tokens here"
	if err := d.HandleStatus(context.Background(), p); err != nil {
		t.Errorf("HandleStatus with no tokens = %v, want nil", err)
	}
}

func TestMessageForFallback(t *testing.T) {
	title, body := MessageFor(models.StatusCancelado)
	if title != "📋 Actualización" || body != "Estado: cancelado" {
		t.Errorf("MessageFor(cancelado) = %q, %q", title, body)
	}
}
