package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"restopos/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const maxObservationsLen = 1000

// LiquidacionService closes cash batches: every delivered order and every
// expense not yet reconciled is absorbed by exactly one batch.
type LiquidacionService struct {
	db     *gorm.DB
	events EventPublisher
	now    func() time.Time
}

func NewLiquidacionService(db *gorm.DB, events EventPublisher) *LiquidacionService {
	return &LiquidacionService{db: db, events: publisherOrNoop(events), now: time.Now}
}

type MovementInput struct {
	Type   string          `json:"tipo"`
	Amount decimal.Decimal `json:"monto"`
	Reason string          `json:"motivo"`
}

type CloseInput struct {
	OpeningCash  decimal.Decimal `json:"cajaInicial"`
	Movements    []MovementInput `json:"movimientosCaja"`
	Observations string          `json:"observaciones"`
}

// Pending is the preview of what a close would absorb.
type Pending struct {
	Orders       []models.Order   `json:"pedidos"`
	Expenses     []models.Expense `json:"gastos"`
	IncomeTotal  decimal.Decimal  `json:"totalPedidos"`
	ExpenseTotal decimal.Decimal  `json:"totalGastos"`
	OrderCount   int              `json:"cantidadPedidos"`
	ExpenseCount int              `json:"cantidadGastos"`
}

// pending collects what a close would absorb. With lock the rows stay
// locked until the caller's transaction ends.
func (s *LiquidacionService) pending(tx *gorm.DB, tenantID uint, withItems, lock bool) (*Pending, error) {
	q := tx.Where("tenant_id = ? AND status = ? AND recibo_dia = ?", tenantID, models.StatusEntregado, false)
	eq := tx.Preload("Lines").Where("tenant_id = ? AND recibo_dia = ?", tenantID, false)
	if withItems {
		q = q.Preload("Items", preloadItems)
	}
	if lock {
		q = q.Clauses(forUpdate)
		eq = eq.Clauses(forUpdate)
	}
	var orders []models.Order
	if err := q.Order("created_at ASC").Order("id ASC").Find(&orders).Error; err != nil {
		return nil, err
	}

	var expenses []models.Expense
	err := eq.Order("date ASC").Order("id ASC").Find(&expenses).Error
	if err != nil {
		return nil, err
	}

	p := &Pending{
		Orders:       orders,
		Expenses:     expenses,
		IncomeTotal:  decimal.Zero,
		ExpenseTotal: decimal.Zero,
		OrderCount:   len(orders),
		ExpenseCount: len(expenses),
	}
	for _, o := range orders {
		p.IncomeTotal = p.IncomeTotal.Add(o.Total)
	}
	for _, e := range expenses {
		p.ExpenseTotal = p.ExpenseTotal.Add(e.Total)
	}
	return p, nil
}

// Pending is read-only: calling it twice without a close returns the same
// totals.
func (s *LiquidacionService) Pending(ctx context.Context, tenantID uint) (*Pending, error) {
	return s.pending(s.db.WithContext(ctx), tenantID, true, false)
}

func validateMovements(in []MovementInput, at time.Time) ([]models.CashMovement, error) {
	out := make([]models.CashMovement, 0, len(in))
	for _, m := range in {
		if m.Type != models.MovementIngreso && m.Type != models.MovementRetiro {
			return nil, invalid("Tipo de movimiento no válido: %s", m.Type)
		}
		if !m.Amount.IsPositive() {
			return nil, invalid("El monto del movimiento debe ser mayor a 0")
		}
		reason := strings.TrimSpace(m.Reason)
		if reason == "" {
			return nil, invalid("El motivo del movimiento es obligatorio")
		}
		out = append(out, models.CashMovement{Type: m.Type, Amount: m.Amount, Reason: reason, Date: at})
	}
	return out, nil
}

// Close creates the batch and flags its orders and expenses in a single
// transaction. If a concurrent close already claimed any of them the whole
// close is rolled back with ErrConflict.
func (s *LiquidacionService) Close(ctx context.Context, actor Actor, in CloseInput) (*models.Liquidacion, error) {
	if in.OpeningCash.IsNegative() {
		return nil, invalid("La caja inicial no puede ser negativa")
	}
	if len(in.Observations) > maxObservationsLen {
		return nil, invalid("Las observaciones no pueden exceder %d caracteres", maxObservationsLen)
	}
	now := s.now()
	movements, err := validateMovements(in.Movements, now)
	if err != nil {
		return nil, err
	}

	var batch *models.Liquidacion
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.pending(tx, actor.TenantID, false, true)
		if err != nil {
			return err
		}

		net := models.MovementsNet(movements)
		batch = &models.Liquidacion{
			TenantID:     actor.TenantID,
			Date:         now,
			OpeningCash:  in.OpeningCash,
			IncomeTotal:  p.IncomeTotal,
			ExpenseTotal: p.ExpenseTotal,
			Movements:    movements,
			MovementsNet: net,
			ClosingCash:  in.OpeningCash.Add(p.IncomeTotal).Sub(p.ExpenseTotal).Add(net),
			Observations: strings.TrimSpace(in.Observations),
			Closed:       true,
			OrderCount:   p.OrderCount,
			ExpenseCount: p.ExpenseCount,
			CreatedByID:  actor.UserID,
		}
		if err := tx.Create(batch).Error; err != nil {
			return fmt.Errorf("create liquidacion: %w", err)
		}

		if ids := orderIDs(p.Orders); len(ids) > 0 {
			res := tx.Model(&models.Order{}).
				Where("id IN ? AND status = ? AND recibo_dia = ?", ids, models.StatusEntregado, false).
				Updates(map[string]interface{}{"recibo_dia": true, "liquidacion_id": batch.ID})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != int64(len(ids)) {
				return fmt.Errorf("orders already reconciled or changed: %w", ErrConflict)
			}
		}
		if ids := expenseIDs(p.Expenses); len(ids) > 0 {
			res := tx.Model(&models.Expense{}).
				Where("id IN ? AND recibo_dia = ?", ids, false).
				Updates(map[string]interface{}{"recibo_dia": true, "liquidacion_id": batch.ID})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != int64(len(ids)) {
				return fmt.Errorf("expenses already reconciled: %w", ErrConflict)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(actor.TenantID, EventLiquidacionClosed, batch)
	return batch, nil
}

func orderIDs(orders []models.Order) []uint {
	ids := make([]uint, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	return ids
}

func expenseIDs(expenses []models.Expense) []uint {
	ids := make([]uint, len(expenses))
	for i, e := range expenses {
		ids[i] = e.ID
	}
	return ids
}

// Latest returns the most recent batch, or nil when none was closed yet.
func (s *LiquidacionService) Latest(ctx context.Context, tenantID uint) (*models.Liquidacion, error) {
	var l models.Liquidacion
	err := s.db.WithContext(ctx).Preload("Movements").
		Where("tenant_id = ?", tenantID).
		Order("date DESC").Order("id DESC").
		First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// List returns batches in [start, end], newest first. Zero bounds are open.
func (s *LiquidacionService) List(ctx context.Context, tenantID uint, start, end time.Time) ([]models.Liquidacion, error) {
	q := s.db.WithContext(ctx).Preload("Movements").Where("tenant_id = ?", tenantID)
	if !start.IsZero() {
		q = q.Where("date >= ?", start)
	}
	if !end.IsZero() {
		q = q.Where("date <= ?", end)
	}
	var out []models.Liquidacion
	if err := q.Order("date DESC").Order("id DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Get loads a batch with the orders and expenses it absorbed.
func (s *LiquidacionService) Get(ctx context.Context, tenantID, id uint) (*models.Liquidacion, error) {
	var l models.Liquidacion
	err := s.db.WithContext(ctx).
		Preload("Movements").
		Preload("Orders", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Orders.Items", preloadItems).
		Preload("Expenses").
		Preload("Expenses.Lines").
		Where("tenant_id = ?", tenantID).
		First(&l, id).Error
	if err != nil {
		return nil, notFound(err, "liquidación")
	}
	return &l, nil
}

type LiquidacionStats struct {
	Count          int             `json:"totalLiquidaciones"`
	IncomeTotal    decimal.Decimal `json:"totalIngresos"`
	ExpenseTotal   decimal.Decimal `json:"totalEgresos"`
	MovementsTotal decimal.Decimal `json:"totalMovimientos"`
	AvgIncome      decimal.Decimal `json:"promedioIngresos"`
	AvgExpense     decimal.Decimal `json:"promedioEgresos"`
	AvgClosingCash decimal.Decimal `json:"promedioCajaFinal"`
}

func (s *LiquidacionService) Stats(ctx context.Context, tenantID uint, start, end time.Time) (*LiquidacionStats, error) {
	list, err := s.List(ctx, tenantID, start, end)
	if err != nil {
		return nil, err
	}
	st := &LiquidacionStats{
		Count:          len(list),
		IncomeTotal:    decimal.Zero,
		ExpenseTotal:   decimal.Zero,
		MovementsTotal: decimal.Zero,
		AvgIncome:      decimal.Zero,
		AvgExpense:     decimal.Zero,
		AvgClosingCash: decimal.Zero,
	}
	closing := decimal.Zero
	for _, l := range list {
		st.IncomeTotal = st.IncomeTotal.Add(l.IncomeTotal)
		st.ExpenseTotal = st.ExpenseTotal.Add(l.ExpenseTotal)
		st.MovementsTotal = st.MovementsTotal.Add(l.MovementsNet)
		closing = closing.Add(l.ClosingCash)
	}
	if n := decimal.NewFromInt(int64(len(list))); len(list) > 0 {
		st.AvgIncome = st.IncomeTotal.Div(n).Round(2)
		st.AvgExpense = st.ExpenseTotal.Div(n).Round(2)
		st.AvgClosingCash = closing.Div(n).Round(2)
	}
	return st, nil
}
