package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"restopos/internal/models"
	"restopos/internal/outbox"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	maxNotesLen = 500
	maxTableLen = 50
)

// OrderService implements the order lifecycle: creation with stock
// deduction, overall and per-item status transitions, edits and lookups.
type OrderService struct {
	db     *gorm.DB
	stock  *StockService
	outbox *outbox.Outbox
	events EventPublisher
	now    func() time.Time
}

func NewOrderService(db *gorm.DB, stock *StockService, ob *outbox.Outbox, events EventPublisher) *OrderService {
	return &OrderService{
		db:     db,
		stock:  stock,
		outbox: ob,
		events: publisherOrNoop(events),
		now:    time.Now,
	}
}

type OrderItemInput struct {
	ProductID uint             `json:"producto"`
	Quantity  int              `json:"cantidad"`
	Price     *decimal.Decimal `json:"precio"`
}

type CreateOrderInput struct {
	Table                   FlexString       `json:"mesa"`
	Items                   []OrderItemInput `json:"items"`
	Notes                   string           `json:"notas"`
	IgnoreInsufficientStock bool             `json:"ignoreInsufficientStock"`
}

type UpdateOrderInput struct {
	Table                   *FlexString      `json:"mesa"`
	Items                   []OrderItemInput `json:"items"`
	Notes                   *string          `json:"notas"`
	IgnoreInsufficientStock bool             `json:"ignoreInsufficientStock"`
}

type SetStatusInput struct {
	Status           models.OrderStatus `json:"estado"`
	ApplyToAllItems  bool               `json:"aplicarATodos"`
	PaymentMethod    string             `json:"metodoPago"`
	CustomerName     string             `json:"clienteNombre"`
	CustomerDocument string             `json:"clienteDocumento"`
}

type SetItemStatusInput struct {
	Quantity int                `json:"cantidad"`
	From     models.OrderStatus `json:"estadoOrigen"`
	To       models.OrderStatus `json:"estado"`
}

type OrderFilter struct {
	Status models.OrderStatus
	Table  string
	Period string
}

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (s *OrderService) load(tx *gorm.DB, tenantID, id uint) (*models.Order, error) {
	var order models.Order
	err := tx.Preload("Items", preloadItems).
		Where("tenant_id = ?", tenantID).
		First(&order, id).Error
	if err != nil {
		return nil, notFound(err, "pedido")
	}
	return &order, nil
}

// loadOpen is load under a row lock, refusing orders a liquidación has
// already absorbed.
func (s *OrderService) loadOpen(tx *gorm.DB, tenantID, id uint) (*models.Order, error) {
	order, err := s.load(tx.Clauses(forUpdate), tenantID, id)
	if err != nil {
		return nil, err
	}
	if order.ReciboDia {
		return nil, reconciled("pedido")
	}
	return order, nil
}

// writeOpen applies updates to an order only while it is unreconciled.
func writeOpen(tx *gorm.DB, orderID uint, updates map[string]interface{}) error {
	res := tx.Model(&models.Order{}).
		Where("id = ? AND recibo_dia = ?", orderID, false).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("pedido %d: %w", orderID, ErrConflict)
	}
	return nil
}

// buildItems resolves products within the tenant and snapshots their name,
// category and price. A price sent by the client wins over the catalog.
func (s *OrderService) buildItems(tx *gorm.DB, tenantID uint, in []OrderItemInput) ([]models.OrderItem, error) {
	ids := make([]uint, 0, len(in))
	for i, it := range in {
		if it.ProductID == 0 {
			return nil, invalid("El item %d no tiene producto", i+1)
		}
		if it.Quantity < 1 {
			return nil, invalid("La cantidad debe ser mayor a 0")
		}
		if it.Price != nil && it.Price.IsNegative() {
			return nil, invalid("El precio no puede ser negativo")
		}
		ids = append(ids, it.ProductID)
	}

	var products []models.Product
	if err := tx.Where("tenant_id = ? AND id IN ?", tenantID, ids).Find(&products).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]models.OrderItem, 0, len(in))
	for i, it := range in {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, invalid("Producto %d no encontrado", it.ProductID)
		}
		price := p.Price
		if it.Price != nil {
			price = *it.Price
		}
		productID := p.ID
		items = append(items, models.OrderItem{
			Position:    i,
			ProductID:   &productID,
			ProductName: p.Name,
			Category:    p.Category,
			Quantity:    it.Quantity,
			Price:       price,
			Groups:      models.NewStatusGroups(it.Quantity),
		})
	}
	return items, nil
}

func stockLines(items []models.OrderItem) []StockLine {
	lines := make([]StockLine, 0, len(items))
	for _, it := range items {
		if it.ProductID != nil {
			lines = append(lines, StockLine{ProductID: *it.ProductID, Quantity: it.Quantity})
		}
	}
	return lines
}

// Create persists a new order and consumes its ingredients in one
// transaction. Insufficient stock aborts everything.
func (s *OrderService) Create(ctx context.Context, actor Actor, in CreateOrderInput) (*models.Order, error) {
	if len(in.Items) == 0 {
		return nil, invalid("El pedido debe tener al menos un producto")
	}
	table := in.Table.String()
	if table == "" {
		return nil, invalid("El número de mesa es obligatorio")
	}
	if len(table) > maxTableLen {
		return nil, invalid("La mesa no puede exceder %d caracteres", maxTableLen)
	}
	if len(in.Notes) > maxNotesLen {
		return nil, invalid("Las notas no pueden exceder %d caracteres", maxNotesLen)
	}

	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items, err := s.buildItems(tx, actor.TenantID, in.Items)
		if err != nil {
			return err
		}
		order = &models.Order{
			TenantID:    actor.TenantID,
			Table:       table,
			Items:       items,
			Status:      models.StatusPendiente,
			Notes:       strings.TrimSpace(in.Notes),
			Source:      models.SourceLocal,
			CreatedByID: actor.UserID,
			Waiter:      actor.Name,
		}
		return s.insert(tx, order, in.IgnoreInsufficientStock)
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(actor.TenantID, EventOrderCreated, order)
	return order, nil
}

// insert writes the order and its items, then deducts stock for the items
// that reference a product.
func (s *OrderService) insert(tx *gorm.DB, order *models.Order, ignoreInsufficient bool) error {
	if err := tx.Create(order).Error; err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return s.stock.Deduct(tx, order.TenantID, stockLines(order.Items), ignoreInsufficient, &order.ID)
}

// SetStatus changes the order-level status. Push and Mandao notifications
// are queued in the same transaction and delivered by the outbox worker.
func (s *OrderService) SetStatus(ctx context.Context, actor Actor, id uint, in SetStatusInput) (*models.Order, error) {
	if !in.Status.IsValid() {
		return nil, invalid("Estado no válido")
	}
	if in.PaymentMethod != "" && !models.IsValidPaymentMethod(in.PaymentMethod) {
		return nil, invalid("Método de pago no válido")
	}

	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.loadOpen(tx, actor.TenantID, id)
		if err != nil {
			return err
		}

		if in.ApplyToAllItems && in.Status.IsItemStatus() {
			for i := range order.Items {
				item := &order.Items[i]
				item.Groups = models.SingleGroup(in.Status, item.Quantity)
				if err := tx.Model(item).UpdateColumn("status_groups", item.Groups).Error; err != nil {
					return err
				}
			}
		}

		updates := map[string]interface{}{"status": in.Status}
		if in.Status == models.StatusEntregado {
			if in.PaymentMethod != "" {
				updates["payment_method"] = in.PaymentMethod
				order.PaymentMethod = in.PaymentMethod
			}
			if name := strings.TrimSpace(in.CustomerName); name != "" {
				updates["customer_name"] = name
				order.CustomerName = name
			}
			if doc := strings.TrimSpace(in.CustomerDocument); doc != "" {
				updates["customer_document"] = doc
				order.CustomerDocument = doc
			}
		}
		if err := writeOpen(tx, order.ID, updates); err != nil {
			return err
		}
		order.Status = in.Status

		return s.enqueueStatusTasks(tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(actor.TenantID, EventOrderStatus, order)
	return order, nil
}

func (s *OrderService) enqueueStatusTasks(tx *gorm.DB, order *models.Order) error {
	if s.outbox == nil {
		return nil
	}
	var tenant models.Tenant
	if err := tx.Select("id", "name", "site").First(&tenant, order.TenantID).Error; err != nil {
		return notFound(err, "restaurante")
	}
	err := s.outbox.Enqueue(tx, outbox.KindPushStatus, outbox.PushStatusPayload{
		OrderID:    order.ID,
		Table:      order.Table,
		Restaurant: tenant.Name,
		Site:       tenant.Site,
		Status:     order.Status,
	})
	if err != nil {
		return err
	}
	if order.ExternalOrderID != nil && *order.ExternalOrderID != "" {
		return s.outbox.Enqueue(tx, outbox.KindMandaoStatus, outbox.MandaoStatusPayload{
			OrderID:         order.ID,
			ExternalOrderID: *order.ExternalOrderID,
			Status:          order.Status,
		})
	}
	return nil
}

// ItemStatusResult carries the updated order and whether every unit is
// now delivered. The order-level status is left to staff.
type ItemStatusResult struct {
	Order        *models.Order `json:"pedido"`
	AllDelivered bool          `json:"todosEntregados"`
}

// SetItemStatus moves units of one line item between two status groups.
func (s *OrderService) SetItemStatus(ctx context.Context, actor Actor, id uint, index int, in SetItemStatusInput) (*ItemStatusResult, error) {
	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.loadOpen(tx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if index < 0 || index >= len(order.Items) {
			return invalid("Índice de item no válido")
		}

		item := &order.Items[index]
		before, err := item.Groups.Value()
		if err != nil {
			return err
		}
		if err := item.Groups.Move(in.From, in.To, in.Quantity); err != nil {
			return moveError(err)
		}

		// Guard on the previous value so concurrent moves cannot overwrite
		// each other, and on the order still being open.
		open := tx.Model(&models.Order{}).Select("id").Where("id = ? AND recibo_dia = ?", order.ID, false)
		res := tx.Model(&models.OrderItem{}).
			Where("id = ? AND status_groups = ? AND order_id IN (?)", item.ID, before, open).
			UpdateColumn("status_groups", item.Groups)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("item %d: %w", item.ID, ErrConflict)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &ItemStatusResult{Order: order, AllDelivered: order.AllDelivered()}
	s.events.Publish(actor.TenantID, EventOrderItemStatus, result)
	return result, nil
}

func moveError(err error) error {
	var units *models.InsufficientUnitsError
	switch {
	case errors.As(err, &units):
		return invalid("%s", units.Error())
	case errors.Is(err, models.ErrInvalidItemStatus),
		errors.Is(err, models.ErrSameStatus),
		errors.Is(err, models.ErrInvalidQuantity),
		errors.Is(err, models.ErrAmbiguousSource):
		return invalid("%s", err.Error())
	}
	return err
}

// Update edits table, notes and optionally replaces the items. Only
// positive per-product deltas consume stock; reductions never return it.
func (s *OrderService) Update(ctx context.Context, actor Actor, id uint, in UpdateOrderInput) (*models.Order, error) {
	if in.Notes != nil && len(*in.Notes) > maxNotesLen {
		return nil, invalid("Las notas no pueden exceder %d caracteres", maxNotesLen)
	}

	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.loadOpen(tx, actor.TenantID, id)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if in.Notes != nil {
			order.Notes = strings.TrimSpace(*in.Notes)
			updates["notes"] = order.Notes
		}
		if in.Table != nil {
			table := in.Table.String()
			if table == "" || len(table) > maxTableLen {
				return invalid("Mesa no válida")
			}
			order.Table = table
			order.TableNormalized = models.NormalizeTable(table)
			updates["mesa"] = order.Table
			updates["table_normalized"] = order.TableNormalized
		}

		if len(in.Items) > 0 {
			items, err := s.buildItems(tx, actor.TenantID, in.Items)
			if err != nil {
				return err
			}
			keepGroups(order.Items, items)

			if err := s.stock.Deduct(tx, actor.TenantID, positiveDeltas(order.Items, items), in.IgnoreInsufficientStock, &order.ID); err != nil {
				return err
			}

			if err := tx.Where("order_id = ?", order.ID).Delete(&models.OrderItem{}).Error; err != nil {
				return err
			}
			for i := range items {
				items[i].OrderID = order.ID
			}
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
			order.Items = items
			order.Total = models.CalculateTotal(items)
			updates["total"] = order.Total
		}

		// Always touch the row so a concurrent close turns into a conflict.
		updates["updated_at"] = s.now()
		return writeOpen(tx, order.ID, updates)
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(actor.TenantID, EventOrderUpdated, order)
	return order, nil
}

// keepGroups carries status groups over to new items that match a previous
// item by product and quantity. Anything else restarts as pendiente.
func keepGroups(previous, next []models.OrderItem) {
	used := make([]bool, len(previous))
	for i := range next {
		for j, old := range previous {
			if used[j] || old.ProductID == nil || next[i].ProductID == nil {
				continue
			}
			if *old.ProductID == *next[i].ProductID && old.Quantity == next[i].Quantity && old.Groups.Total() == old.Quantity {
				next[i].Groups = old.Groups
				used[j] = true
				break
			}
		}
	}
}

func positiveDeltas(previous, next []models.OrderItem) []StockLine {
	before := make(map[uint]int)
	for _, it := range previous {
		if it.ProductID != nil {
			before[*it.ProductID] += it.Quantity
		}
	}
	after := make(map[uint]int)
	var order []uint
	for _, it := range next {
		if it.ProductID == nil {
			continue
		}
		if _, seen := after[*it.ProductID]; !seen {
			order = append(order, *it.ProductID)
		}
		after[*it.ProductID] += it.Quantity
	}

	var lines []StockLine
	for _, pid := range order {
		if delta := after[pid] - before[pid]; delta > 0 {
			lines = append(lines, StockLine{ProductID: pid, Quantity: delta})
		}
	}
	return lines
}

// Delete removes an order that has not been reconciled yet.
func (s *OrderService) Delete(ctx context.Context, actor Actor, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Clauses(forUpdate).Where("tenant_id = ?", actor.TenantID).First(&order, id).Error; err != nil {
			return notFound(err, "pedido")
		}
		if order.ReciboDia {
			return reconciled("pedido")
		}
		res := tx.Where("recibo_dia = ?", false).Delete(&order)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("pedido %d: %w", order.ID, ErrConflict)
		}
		return tx.Where("order_id = ?", order.ID).Delete(&models.OrderItem{}).Error
	})
	if err != nil {
		return err
	}
	s.events.Publish(actor.TenantID, EventOrderDeleted, map[string]uint{"id": id})
	return nil
}

func (s *OrderService) Get(ctx context.Context, tenantID, id uint) (*models.Order, error) {
	return s.load(s.db.WithContext(ctx), tenantID, id)
}

// List returns the tenant's orders, newest first.
func (s *OrderService) List(ctx context.Context, tenantID uint, f OrderFilter) ([]models.Order, error) {
	q := s.db.WithContext(ctx).Preload("Items", preloadItems).Where("tenant_id = ?", tenantID)
	if f.Status != "" {
		if !f.Status.IsValid() {
			return nil, invalid("Estado no válido")
		}
		q = q.Where("status = ?", f.Status)
	}
	if f.Table != "" {
		q = q.Where("table_normalized = ?", models.NormalizeTable(f.Table))
	}
	if from := periodStart(f.Period, s.now()); !from.IsZero() {
		q = q.Where("created_at >= ?", from)
	}

	var orders []models.Order
	if err := q.Order("created_at DESC").Order("id DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

type StatusSummary struct {
	Status models.OrderStatus `json:"estado"`
	Count  int                `json:"cantidad"`
	Total  decimal.Decimal    `json:"total"`
}

type OrderStats struct {
	OrdersToday int             `json:"pedidosHoy"`
	SalesToday  decimal.Decimal `json:"ventasHoy"`
	ByStatus    []StatusSummary `json:"porEstado"`
}

// Stats summarises today's activity plus an all-time breakdown by status.
func (s *OrderService) Stats(ctx context.Context, tenantID uint) (*OrderStats, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Select("id", "status", "total", "created_at").
		Where("tenant_id = ?", tenantID).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	today := startOfDay(s.now())
	stats := &OrderStats{SalesToday: decimal.Zero}
	byStatus := make(map[models.OrderStatus]*StatusSummary)
	for _, o := range orders {
		if !o.CreatedAt.Before(today) {
			stats.OrdersToday++
			if o.Status != models.StatusCancelado {
				stats.SalesToday = stats.SalesToday.Add(o.Total)
			}
		}
		sum, ok := byStatus[o.Status]
		if !ok {
			sum = &StatusSummary{Status: o.Status, Total: decimal.Zero}
			byStatus[o.Status] = sum
		}
		sum.Count++
		sum.Total = sum.Total.Add(o.Total)
	}
	for _, st := range models.OrderStatuses {
		if sum, ok := byStatus[st]; ok {
			stats.ByStatus = append(stats.ByStatus, *sum)
		}
	}
	return stats, nil
}

// TrackByTable is the public "where is my order" lookup: the newest active
// order for the table, else the newest order of any status.
func (s *OrderService) TrackByTable(ctx context.Context, table, restaurant, site string) (*models.Order, error) {
	normalized := models.NormalizeTable(table)
	if normalized == "" {
		return nil, invalid("El número de mesa es obligatorio")
	}
	tenant, err := findTenant(ctx, s.db, restaurant, site)
	if err != nil {
		return nil, err
	}

	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Preload("Items", preloadItems).
			Where("tenant_id = ? AND table_normalized = ?", tenant.ID, normalized).
			Order("created_at DESC").Order("id DESC")
	}

	var order models.Order
	err = base().Where("status IN ?", []models.OrderStatus{models.StatusPendiente, models.StatusPreparando, models.StatusListo}).
		First(&order).Error
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err := base().First(&order).Error; err != nil {
		return nil, notFound(err, "pedido")
	}
	return &order, nil
}
