package database

import (
	"context"
	"sort"
	"time"

	"restopos/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	topSellingLimit = 5
	recentLimit     = 10
)

type TopProduct struct {
	ProductName string          `json:"nombre"`
	Sold        int             `json:"vendidos"`
	Revenue     decimal.Decimal `json:"ingresos"`
}

// SalesReport holds the data the assistant and the reports screen need
type SalesReport struct {
	Start        time.Time       `json:"desde"`
	End          time.Time       `json:"hasta"`
	TotalRevenue decimal.Decimal `json:"totalVentas"`
	TotalOrders  int             `json:"totalPedidos"`
	Cancelled    int             `json:"cancelados"`
	TopSelling   []TopProduct    `json:"masVendidos"`
	RecentOrders []models.Order  `json:"recientes"`
}

// GetSalesReport calculates sales of one tenant within [start, end].
// Cancelled orders are counted apart and never add revenue.
func GetSalesReport(ctx context.Context, db *gorm.DB, tenantID uint, start, end time.Time) (*SalesReport, error) {
	var orders []models.Order
	err := db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("tenant_id = ? AND created_at BETWEEN ? AND ?", tenantID, start, end).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	report := &SalesReport{Start: start, End: end, TotalRevenue: decimal.Zero}
	byName := make(map[string]*TopProduct)
	for _, o := range orders {
		if o.Status == models.StatusCancelado {
			report.Cancelled++
			continue
		}
		report.TotalOrders++
		report.TotalRevenue = report.TotalRevenue.Add(o.Total)
		for _, it := range o.Items {
			tp, ok := byName[it.ProductName]
			if !ok {
				tp = &TopProduct{ProductName: it.ProductName, Revenue: decimal.Zero}
				byName[it.ProductName] = tp
			}
			tp.Sold += it.Quantity
			tp.Revenue = tp.Revenue.Add(it.Subtotal())
		}
		if len(report.RecentOrders) < recentLimit {
			report.RecentOrders = append(report.RecentOrders, o)
		}
	}

	report.TopSelling = make([]TopProduct, 0, len(byName))
	for _, tp := range byName {
		report.TopSelling = append(report.TopSelling, *tp)
	}
	sort.Slice(report.TopSelling, func(i, j int) bool {
		a, b := report.TopSelling[i], report.TopSelling[j]
		if a.Sold != b.Sold {
			return a.Sold > b.Sold
		}
		return a.ProductName < b.ProductName
	})
	if len(report.TopSelling) > topSellingLimit {
		report.TopSelling = report.TopSelling[:topSellingLimit]
	}
	return report, nil
}

// ValuationItem is one ingredient row of the stock valuation
type ValuationItem struct {
	ID        uint            `json:"id"`
	Name      string          `json:"nombre"`
	Stock     decimal.Decimal `json:"stock"`
	UnitValue decimal.Decimal `json:"valor"`
	TotalCost decimal.Decimal `json:"valorTotal"`
	LowStock  bool            `json:"stockBajo"`
}

type StockValuation struct {
	Items      []ValuationItem `json:"alimentos"`
	GrandTotal decimal.Decimal `json:"total"`
}

// GetStockValuation values the tenant's ingredient stock. Ingredients at or
// under lowStock are flagged.
func GetStockValuation(ctx context.Context, db *gorm.DB, tenantID uint, lowStock float64) (*StockValuation, error) {
	var ingredients []models.Ingredient
	if err := db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("name ASC").Find(&ingredients).Error; err != nil {
		return nil, err
	}

	threshold := decimal.NewFromFloat(lowStock)
	out := &StockValuation{Items: make([]ValuationItem, 0, len(ingredients)), GrandTotal: decimal.Zero}
	for _, ing := range ingredients {
		total := ing.UnitValue.Mul(ing.Stock).Round(2)
		out.Items = append(out.Items, ValuationItem{
			ID:        ing.ID,
			Name:      ing.Name,
			Stock:     ing.Stock,
			UnitValue: ing.UnitValue,
			TotalCost: total,
			LowStock:  ing.Stock.LessThanOrEqual(threshold),
		})
		out.GrandTotal = out.GrandTotal.Add(total)
	}
	return out, nil
}
