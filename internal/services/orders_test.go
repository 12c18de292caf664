package services

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"restopos/internal/models"
	"restopos/internal/outbox"
)

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	arepa := f.product(t, "Arepa", 10)
	jugo := f.product(t, "Jugo", 5)
	queso := f.ingredient(t, "Queso", 10, arepa.ID, 2)

	order, err := f.orders.Create(ctx, f.actor, CreateOrderInput{
		Table: "Salón 4",
		Items: []OrderItemInput{{ProductID: arepa.ID, Quantity: 3}, {ProductID: jugo.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if order.Total.IntPart() != 40 {
		t.Errorf("total = %s, want 40", order.Total)
	}
	if order.Status != models.StatusPendiente {
		t.Errorf("status = %s", order.Status)
	}
	if order.TableNormalized != "salon 4" {
		t.Errorf("normalized table = %q, want salon 4", order.TableNormalized)
	}
	for _, it := range order.Items {
		if !it.Groups.Only(models.StatusPendiente) || it.Groups.Total() != it.Quantity {
			t.Errorf("item %s groups = %v", it.ProductName, it.Groups)
		}
	}
	if !f.hasStock(t, queso.ID, 4) {
		t.Errorf("queso stock = %s, want 4", f.stockOf(t, queso.ID))
	}

	var movements int64
	f.db.Model(&models.StockMovement{}).Where("order_id = ?", order.ID).Count(&movements)
	if movements != 1 {
		t.Errorf("stock movements = %d, want 1", movements)
	}
	if len(f.events.events) != 1 || f.events.events[0] != EventOrderCreated {
		t.Errorf("events = %v", f.events.events)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	arepa := f.product(t, "Arepa", 10)

	tests := []struct {
		name string
		in   CreateOrderInput
	}{
		{"no items", CreateOrderInput{Table: "1"}},
		{"no table", CreateOrderInput{Items: []OrderItemInput{{ProductID: arepa.ID, Quantity: 1}}}},
		{"zero quantity", CreateOrderInput{Table: "1", Items: []OrderItemInput{{ProductID: arepa.ID}}}},
		{"unknown product", CreateOrderInput{Table: "1", Items: []OrderItemInput{{ProductID: 999, Quantity: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orders.Create(context.Background(), f.actor, tt.in)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestCreateOrderStock(t *testing.T) {
	tests := []struct {
		name      string
		ignore    bool
		wantErr   bool
		wantStock float64
	}{
		{"strict rejects", false, true, 5},
		{"lenient clamps to zero", true, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			arepa := f.product(t, "Arepa", 10)
			queso := f.ingredient(t, "Queso", 5, arepa.ID, 2)

			_, err := f.orders.Create(context.Background(), f.actor, CreateOrderInput{
				Table:                   "4",
				Items:                   []OrderItemInput{{ProductID: arepa.ID, Quantity: 3}},
				IgnoreInsufficientStock: tt.ignore,
			})
			var short *InsufficientStockError
			if tt.wantErr != errors.As(err, &short) {
				t.Fatalf("err = %v", err)
			}
			if tt.wantErr && short.Ingredient != "Queso" {
				t.Errorf("ingredient = %q", short.Ingredient)
			}

			var orders int64
			f.db.Model(&models.Order{}).Count(&orders)
			if tt.wantErr && orders != 0 {
				t.Errorf("rejected order persisted")
			}
			if !f.hasStock(t, queso.ID, tt.wantStock) {
				t.Errorf("stock = %s, want %v", f.stockOf(t, queso.ID), tt.wantStock)
			}
		})
	}
}

func TestSetItemStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	arepa := f.product(t, "Arepa", 10)
	order, err := f.orders.Create(ctx, f.actor, CreateOrderInput{
		Table: "2",
		Items: []OrderItemInput{{ProductID: arepa.ID, Quantity: 5}},
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := f.orders.SetItemStatus(ctx, f.actor, order.ID, 0, SetItemStatusInput{Quantity: 2, To: models.StatusPreparando})
	if err != nil {
		t.Fatalf("SetItemStatus: %v", err)
	}
	want := []models.StatusGroup{
		{Quantity: 3, Status: models.StatusPendiente},
		{Quantity: 2, Status: models.StatusPreparando},
	}
	if got := res.Order.Items[0].Groups.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("groups = %+v, want %+v", got, want)
	}
	if res.AllDelivered {
		t.Error("AllDelivered with pending units")
	}

	errCases := []struct {
		name  string
		index int
		in    SetItemStatusInput
	}{
		{"ambiguous source", 0, SetItemStatusInput{Quantity: 1, To: models.StatusListo}},
		{"too many units", 0, SetItemStatusInput{Quantity: 4, From: models.StatusPendiente, To: models.StatusListo}},
		{"same status", 0, SetItemStatusInput{Quantity: 1, From: models.StatusPendiente, To: models.StatusPendiente}},
		{"bad index", 3, SetItemStatusInput{Quantity: 1, From: models.StatusPendiente, To: models.StatusListo}},
		{"cancelado is not an item status", 0, SetItemStatusInput{Quantity: 1, From: models.StatusPendiente, To: models.StatusCancelado}},
	}
	for _, tt := range errCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orders.SetItemStatus(ctx, f.actor, order.ID, tt.index, tt.in)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}

	// Groups are unchanged after the failed moves.
	got, err := f.orders.Get(ctx, f.tenant.ID, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Items[0].Groups.List(), want) {
		t.Errorf("stored groups = %+v", got.Items[0].Groups.List())
	}
}

func TestSetStatusApplyToAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	arepa := f.product(t, "Arepa", 10)
	order, err := f.orders.Create(ctx, f.actor, CreateOrderInput{
		Table: "7",
		Items: []OrderItemInput{{ProductID: arepa.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.orders.SetItemStatus(ctx, f.actor, order.ID, 0, SetItemStatusInput{Quantity: 1, To: models.StatusListo}); err != nil {
		t.Fatal(err)
	}

	updated, err := f.orders.SetStatus(ctx, f.actor, order.ID, SetStatusInput{
		Status:          models.StatusEntregado,
		ApplyToAllItems: true,
		PaymentMethod:   models.PaymentEfectivo,
		CustomerName:    " Luis ",
	})
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if !updated.AllDelivered() {
		t.Errorf("groups = %v", updated.Items[0].Groups)
	}
	if updated.CustomerName != "Luis" || updated.PaymentMethod != models.PaymentEfectivo {
		t.Errorf("payment fields = %q %q", updated.CustomerName, updated.PaymentMethod)
	}

	var tasks []models.OutboxTask
	f.db.Find(&tasks)
	if len(tasks) != 1 || tasks[0].Kind != outbox.KindPushStatus {
		t.Errorf("outbox tasks = %+v, want one push task", tasks)
	}

	if _, err := f.orders.SetStatus(ctx, f.actor, order.ID, SetStatusInput{Status: "volando"}); err == nil {
		t.Error("invalid status accepted")
	}
}

func TestSetStatusQueuesMandaoUpdate(t *testing.T) {
	f := newFixture(t)
	ext := "MD-77"
	order := models.Order{
		TenantID:        f.tenant.ID,
		Table:           "Domicilio",
		Status:          models.StatusPendiente,
		Source:          models.SourceMandao,
		ExternalOrderID: &ext,
	}
	if err := f.db.Create(&order).Error; err != nil {
		t.Fatal(err)
	}
	if _, err := f.orders.SetStatus(context.Background(), f.actor, order.ID, SetStatusInput{Status: models.StatusPreparando}); err != nil {
		t.Fatal(err)
	}

	var kinds []string
	f.db.Model(&models.OutboxTask{}).Order("kind ASC").Pluck("kind", &kinds)
	want := []string{outbox.KindMandaoStatus, outbox.KindPushStatus}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("kinds = %v, want %v", kinds, want)
	}
}

func TestUpdateOrderDeductsOnlyIncrease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	arepa := f.product(t, "Arepa", 10)
	queso := f.ingredient(t, "Queso", 10, arepa.ID, 1)

	order, err := f.orders.Create(ctx, f.actor, CreateOrderInput{
		Table: "3",
		Items: []OrderItemInput{{ProductID: arepa.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		quantity  int
		wantStock float64
		wantTotal int64
	}{
		{5, 5, 50},
		{1, 5, 10},
	}
	for _, st := range steps {
		updated, err := f.orders.Update(ctx, f.actor, order.ID, UpdateOrderInput{
			Items: []OrderItemInput{{ProductID: arepa.ID, Quantity: st.quantity}},
		})
		if err != nil {
			t.Fatalf("Update(%d): %v", st.quantity, err)
		}
		if !f.hasStock(t, queso.ID, st.wantStock) {
			t.Errorf("after %d units stock = %s, want %v", st.quantity, f.stockOf(t, queso.ID), st.wantStock)
		}
		if updated.Total.IntPart() != st.wantTotal {
			t.Errorf("after %d units total = %s", st.quantity, updated.Total)
		}
	}

	got, err := f.orders.Get(ctx, f.tenant.ID, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Items) != 1 || got.Items[0].Quantity != 1 {
		t.Errorf("items = %+v", got.Items)
	}
}

func TestPositiveDeltas(t *testing.T) {
	pid := func(id uint) *uint { return &id }
	item := func(id uint, q int) models.OrderItem { return models.OrderItem{ProductID: pid(id), Quantity: q} }

	tests := []struct {
		name string
		prev []models.OrderItem
		next []models.OrderItem
		want []StockLine
	}{
		{"no change", []models.OrderItem{item(1, 2)}, []models.OrderItem{item(1, 2)}, nil},
		{"increase", []models.OrderItem{item(1, 2)}, []models.OrderItem{item(1, 5)}, []StockLine{{1, 3}}},
		{"decrease is ignored", []models.OrderItem{item(1, 5)}, []models.OrderItem{item(1, 1)}, nil},
		{"new product", []models.OrderItem{item(1, 1)}, []models.OrderItem{item(1, 1), item(2, 4)}, []StockLine{{2, 4}}},
		{"split lines", []models.OrderItem{item(1, 2)}, []models.OrderItem{item(1, 2), item(1, 1)}, []StockLine{{1, 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := positiveDeltas(tt.prev, tt.next); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("positiveDeltas = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTrackByTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	arepa := f.product(t, "Arepa", 10)

	create := func(table string) *models.Order {
		o, err := f.orders.Create(ctx, f.actor, CreateOrderInput{Table: FlexString(table), Items: []OrderItemInput{{ProductID: arepa.ID, Quantity: 1}}})
		if err != nil {
			t.Fatal(err)
		}
		return o
	}
	active := create("Terraza")
	done := create("terraza")
	if _, err := f.orders.SetStatus(ctx, f.actor, done.ID, SetStatusInput{Status: models.StatusEntregado}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		table      string
		restaurant string
		site       string
		wantID     uint
		wantErr    bool
	}{
		{"active order wins over newer delivered one", "TERRAZA", "la fonda", "centro", active.ID, false},
		{"site optional", " terraza ", "LA FONDA", "", active.ID, false},
		{"unknown restaurant", "terraza", "Otro", "", 0, true},
		{"no orders", "12", "La Fonda", "", 0, true},
		{"blank table", " ", "La Fonda", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.orders.TrackByTable(ctx, tt.table, tt.restaurant, tt.site)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("got order %d, want error", got.ID)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.ID != tt.wantID {
				t.Errorf("order = %d, want %d", got.ID, tt.wantID)
			}
		})
	}
}

func TestOrdersAreTenantScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	arepa := f.product(t, "Arepa", 10)
	order, err := f.orders.Create(ctx, f.actor, CreateOrderInput{Table: "1", Items: []OrderItemInput{{ProductID: arepa.ID, Quantity: 1}}})
	if err != nil {
		t.Fatal(err)
	}

	other := models.Tenant{Name: "Otro", Site: "Norte"}
	if err := f.db.Create(&other).Error; err != nil {
		t.Fatal(err)
	}
	outsider := Actor{UserID: 99, TenantID: other.ID, Role: models.RoleAdmin}

	if _, err := f.orders.Get(ctx, other.ID, order.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get from other tenant = %v, want ErrNotFound", err)
	}
	if err := f.orders.Delete(ctx, outsider, order.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete from other tenant = %v, want ErrNotFound", err)
	}
	if _, err := f.orders.Create(ctx, outsider, CreateOrderInput{Table: "1", Items: []OrderItemInput{{ProductID: arepa.ID, Quantity: 1}}}); err == nil {
		t.Error("ordered a product of another tenant")
	}
	list, err := f.orders.List(ctx, other.ID, OrderFilter{})
	if err != nil || len(list) != 0 {
		t.Errorf("List = %d orders, err %v", len(list), err)
	}
}

func TestOrderStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	arepa := f.product(t, "Arepa", 10)
	for _, q := range []int{1, 2, 3} {
		if _, err := f.orders.Create(ctx, f.actor, CreateOrderInput{Table: "1", Items: []OrderItemInput{{ProductID: arepa.ID, Quantity: q}}}); err != nil {
			t.Fatal(err)
		}
	}
	orders, _ := f.orders.List(ctx, f.tenant.ID, OrderFilter{})
	if _, err := f.orders.SetStatus(ctx, f.actor, orders[0].ID, SetStatusInput{Status: models.StatusCancelado}); err != nil {
		t.Fatal(err)
	}

	st, err := f.orders.Stats(ctx, f.tenant.ID)
	if err != nil {
		t.Fatal(err)
	}
	if st.OrdersToday != 3 {
		t.Errorf("orders today = %d", st.OrdersToday)
	}
	// The newest order (30) was cancelled.
	if st.SalesToday.IntPart() != 30 {
		t.Errorf("sales today = %s, want 30", st.SalesToday)
	}
	if len(st.ByStatus) != 2 {
		t.Errorf("by status = %+v", st.ByStatus)
	}
}

func TestFractionalStock(t *testing.T) {
	t.Run("exact fit", func(t *testing.T) {
		f := newFixture(t)
		arepa := f.product(t, "Arepa", 10)
		queso := f.ingredient(t, "Queso", 0.3, arepa.ID, 0.1)

		_, err := f.orders.Create(context.Background(), f.actor, CreateOrderInput{
			Table: "1",
			Items: []OrderItemInput{{ProductID: arepa.ID, Quantity: 3}},
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if !f.hasStock(t, queso.ID, 0) {
			t.Errorf("stock = %s, want 0", f.stockOf(t, queso.ID))
		}
	})

	t.Run("repeated deductions", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		jugo := f.product(t, "Jugo", 5)
		naranja := f.ingredient(t, "Naranja", 1, jugo.ID, 0.1)

		one := CreateOrderInput{Table: "2", Items: []OrderItemInput{{ProductID: jugo.ID, Quantity: 1}}}
		for i := 0; i < 10; i++ {
			if _, err := f.orders.Create(ctx, f.actor, one); err != nil {
				t.Fatalf("order %d: %v", i+1, err)
			}
		}
		if !f.hasStock(t, naranja.ID, 0) {
			t.Errorf("stock = %s, want 0", f.stockOf(t, naranja.ID))
		}

		_, err := f.orders.Create(ctx, f.actor, one)
		var short *InsufficientStockError
		if !errors.As(err, &short) || !short.Available.IsZero() || short.Required.String() != "0.1" {
			t.Errorf("eleventh order err = %v", err)
		}
	})
}

func TestCreateOrderRollsBackPartialDeduction(t *testing.T) {
	f := newFixture(t)
	arepa := f.product(t, "Arepa", 10)
	// Harina has the lower id and is deducted first.
	harina := f.ingredient(t, "Harina", 10, arepa.ID, 1)
	queso := f.ingredient(t, "Queso", 1, arepa.ID, 2)

	_, err := f.orders.Create(context.Background(), f.actor, CreateOrderInput{
		Table: "5",
		Items: []OrderItemInput{{ProductID: arepa.ID, Quantity: 2}},
	})
	var short *InsufficientStockError
	if !errors.As(err, &short) || short.Ingredient != "Queso" {
		t.Fatalf("err = %v, want shortage of Queso", err)
	}

	if !f.hasStock(t, harina.ID, 10) {
		t.Errorf("harina stock = %s, want 10", f.stockOf(t, harina.ID))
	}
	if !f.hasStock(t, queso.ID, 1) {
		t.Errorf("queso stock = %s, want 1", f.stockOf(t, queso.ID))
	}
	counts := []struct {
		name  string
		model any
	}{
		{"orders", &models.Order{}},
		{"order items", &models.OrderItem{}},
		{"stock movements", &models.StockMovement{}},
	}
	for _, c := range counts {
		var n int64
		f.db.Model(c.model).Count(&n)
		if n != 0 {
			t.Errorf("%d %s left after rollback", n, c.name)
		}
	}
}

func TestSetItemStatusConcurrentMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	arepa := f.product(t, "Arepa", 10)
	order, err := f.orders.Create(ctx, f.actor, CreateOrderInput{
		Table: "6",
		Items: []OrderItemInput{{ProductID: arepa.ID, Quantity: 5}},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Another cook moves every unit after this request loaded the item.
	moved := models.SingleGroup(models.StatusPreparando, 5)
	f.afterNextRead(t, "order_items", "UPDATE order_items SET status_groups = ? WHERE id = ?", moved, order.Items[0].ID)

	_, err = f.orders.SetItemStatus(ctx, f.actor, order.ID, 0, SetItemStatusInput{Quantity: 2, From: models.StatusPendiente, To: models.StatusListo})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	got, err := f.orders.Get(ctx, f.tenant.ID, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Items[0].Groups.List(), moved.List()) {
		t.Errorf("stored groups = %+v, want %+v", got.Items[0].Groups.List(), moved.List())
	}
}

func TestReconciledOrderStatusIsFrozen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plato := f.product(t, "Bandeja", 100)
	order := f.deliveredOrder(t, plato.ID, 1)
	if _, err := NewLiquidacionService(f.db, nil).Close(ctx, f.actor, CloseInput{}); err != nil {
		t.Fatal(err)
	}

	ops := []struct {
		name string
		run  func() error
	}{
		{"cancel", func() error {
			_, err := f.orders.SetStatus(ctx, f.actor, order.ID, SetStatusInput{Status: models.StatusCancelado})
			return err
		}},
		{"reopen", func() error {
			_, err := f.orders.SetStatus(ctx, f.actor, order.ID, SetStatusInput{Status: models.StatusPendiente, ApplyToAllItems: true})
			return err
		}},
		{"move items", func() error {
			_, err := f.orders.SetItemStatus(ctx, f.actor, order.ID, 0, SetItemStatusInput{Quantity: 1, From: models.StatusPendiente, To: models.StatusListo})
			return err
		}},
	}
	for _, op := range ops {
		t.Run(op.name, func(t *testing.T) {
			var ve *ValidationError
			if err := op.run(); !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}

	got, err := f.orders.Get(ctx, f.tenant.ID, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusEntregado || !got.Items[0].Groups.Only(models.StatusPendiente) {
		t.Errorf("reconciled order changed: status %s groups %+v", got.Status, got.Items[0].Groups.List())
	}
}

func TestOrderWritesLoseToConcurrentClose(t *testing.T) {
	notes := "sin hielo"
	ops := []struct {
		name string
		run  func(f *fixture, id uint) error
	}{
		{"set status", func(f *fixture, id uint) error {
			_, err := f.orders.SetStatus(context.Background(), f.actor, id, SetStatusInput{Status: models.StatusCancelado})
			return err
		}},
		{"update", func(f *fixture, id uint) error {
			_, err := f.orders.Update(context.Background(), f.actor, id, UpdateOrderInput{Notes: &notes})
			return err
		}},
		{"delete", func(f *fixture, id uint) error {
			return f.orders.Delete(context.Background(), f.actor, id)
		}},
	}
	for _, op := range ops {
		t.Run(op.name, func(t *testing.T) {
			f := newFixture(t)
			plato := f.product(t, "Bandeja", 100)
			order := f.deliveredOrder(t, plato.ID, 1)

			f.afterNextRead(t, "orders", "UPDATE orders SET recibo_dia = ? WHERE id = ?", true, order.ID)
			if err := op.run(f, order.ID); !errors.Is(err, ErrConflict) {
				t.Fatalf("err = %v, want ErrConflict", err)
			}

			var stored models.Order
			if err := f.db.First(&stored, order.ID).Error; err != nil {
				t.Fatalf("order gone: %v", err)
			}
			// The conflicting write and the injected flag roll back together.
			if stored.Status != models.StatusEntregado || stored.Notes != "" {
				t.Errorf("stored order = %+v", stored)
			}
		})
	}
}
