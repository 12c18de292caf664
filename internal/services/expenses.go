package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"restopos/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const maxExpenseDescLen = 200

type ExpenseService struct {
	db *gorm.DB
}

func NewExpenseService(db *gorm.DB) *ExpenseService {
	return &ExpenseService{db: db}
}

type ExpenseLineInput struct {
	Description string          `json:"descripcion"`
	Amount      decimal.Decimal `json:"monto"`
}

type ExpenseInput struct {
	Date  time.Time          `json:"fecha"`
	Lines []ExpenseLineInput `json:"gastos"`
}

func buildExpenseLines(in []ExpenseLineInput) ([]models.ExpenseLine, error) {
	if len(in) == 0 {
		return nil, invalid("Debe registrar al menos un gasto")
	}
	lines := make([]models.ExpenseLine, 0, len(in))
	for _, l := range in {
		desc := strings.TrimSpace(l.Description)
		if desc == "" {
			return nil, invalid("La descripción es obligatoria")
		}
		if len(desc) > maxExpenseDescLen {
			return nil, invalid("La descripción no puede exceder %d caracteres", maxExpenseDescLen)
		}
		if l.Amount.IsNegative() {
			return nil, invalid("El monto no puede ser negativo")
		}
		lines = append(lines, models.ExpenseLine{Description: desc, Amount: l.Amount})
	}
	return lines, nil
}

func (s *ExpenseService) Create(ctx context.Context, actor Actor, in ExpenseInput) (*models.Expense, error) {
	if in.Date.IsZero() {
		return nil, invalid("La fecha es obligatoria")
	}
	lines, err := buildExpenseLines(in.Lines)
	if err != nil {
		return nil, err
	}
	exp := &models.Expense{
		TenantID:    actor.TenantID,
		Date:        in.Date,
		Lines:       lines,
		CreatedByID: actor.UserID,
	}
	if err := s.db.WithContext(ctx).Create(exp).Error; err != nil {
		return nil, err
	}
	return exp, nil
}

func (s *ExpenseService) Get(ctx context.Context, tenantID, id uint) (*models.Expense, error) {
	var exp models.Expense
	if err := s.db.WithContext(ctx).Preload("Lines").Where("tenant_id = ?", tenantID).First(&exp, id).Error; err != nil {
		return nil, notFound(err, "gasto")
	}
	return &exp, nil
}

// Update replaces the date and lines. Reconciled expenses are frozen.
func (s *ExpenseService) Update(ctx context.Context, actor Actor, id uint, in ExpenseInput) (*models.Expense, error) {
	lines, err := buildExpenseLines(in.Lines)
	if err != nil {
		return nil, err
	}

	var exp models.Expense
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(forUpdate).Where("tenant_id = ?", actor.TenantID).First(&exp, id).Error; err != nil {
			return notFound(err, "gasto")
		}
		if exp.ReciboDia {
			return reconciled("gasto")
		}
		if !in.Date.IsZero() {
			exp.Date = in.Date
		}
		exp.Total = decimal.Zero
		for _, l := range lines {
			exp.Total = exp.Total.Add(l.Amount)
		}

		// Only the edited columns are written; the reconciliation flags
		// belong to the liquidación close.
		res := tx.Model(&models.Expense{}).
			Where("id = ? AND recibo_dia = ?", exp.ID, false).
			Updates(map[string]interface{}{"date": exp.Date, "total": exp.Total})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("gasto %d: %w", exp.ID, ErrConflict)
		}

		if err := tx.Where("expense_id = ?", exp.ID).Delete(&models.ExpenseLine{}).Error; err != nil {
			return err
		}
		for i := range lines {
			lines[i].ExpenseID = exp.ID
		}
		if err := tx.Create(&lines).Error; err != nil {
			return err
		}
		exp.Lines = lines
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &exp, nil
}

func (s *ExpenseService) Delete(ctx context.Context, actor Actor, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exp models.Expense
		if err := tx.Clauses(forUpdate).Where("tenant_id = ?", actor.TenantID).First(&exp, id).Error; err != nil {
			return notFound(err, "gasto")
		}
		if exp.ReciboDia {
			return reconciled("gasto")
		}
		res := tx.Where("recibo_dia = ?", false).Delete(&exp)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("gasto %d: %w", exp.ID, ErrConflict)
		}
		return tx.Where("expense_id = ?", exp.ID).Delete(&models.ExpenseLine{}).Error
	})
}

// List filters by calendar month ("2006-01") when given.
func (s *ExpenseService) List(ctx context.Context, tenantID uint, month string) ([]models.Expense, error) {
	q := s.db.WithContext(ctx).Preload("Lines").Where("tenant_id = ?", tenantID)
	if month != "" {
		start, err := time.ParseInLocation("2006-01", month, time.Local)
		if err != nil {
			return nil, invalid("Mes no válido, use el formato AAAA-MM")
		}
		q = q.Where("date >= ? AND date < ?", start, start.AddDate(0, 1, 0))
	}
	var out []models.Expense
	if err := q.Order("date DESC").Order("id DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type ExpenseSummary struct {
	Total        decimal.Decimal `json:"totalGastos"`
	Records      int             `json:"cantidadRegistros"`
	Lines        int             `json:"cantidadGastos"`
	AvgPerRecord decimal.Decimal `json:"promedioPorRegistro"`
}

func (s *ExpenseService) Summary(ctx context.Context, tenantID uint, start, end time.Time) (*ExpenseSummary, error) {
	q := s.db.WithContext(ctx).Preload("Lines").Where("tenant_id = ?", tenantID)
	if !start.IsZero() && !end.IsZero() {
		q = q.Where("date >= ? AND date <= ?", start, end)
	}
	var expenses []models.Expense
	if err := q.Find(&expenses).Error; err != nil {
		return nil, err
	}

	sum := &ExpenseSummary{Total: decimal.Zero, AvgPerRecord: decimal.Zero, Records: len(expenses)}
	for _, e := range expenses {
		sum.Total = sum.Total.Add(e.Total)
		sum.Lines += len(e.Lines)
	}
	if len(expenses) > 0 {
		sum.AvgPerRecord = sum.Total.Div(decimal.NewFromInt(int64(len(expenses)))).Round(2)
	}
	return sum, nil
}
