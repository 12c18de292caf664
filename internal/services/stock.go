package services

import (
	"context"
	"fmt"
	"sort"

	"restopos/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// casAttempts bounds the clamp-to-zero retries under contention.
const casAttempts = 5

// stockPlaces matches the decimal(12,3) stock and recipe columns.
const stockPlaces = 3

// StockService owns ingredient stock. Every decrement is a single
// conditional UPDATE so concurrent orders can never oversell.
type StockService struct {
	db *gorm.DB
}

func NewStockService(db *gorm.DB) *StockService {
	return &StockService{db: db}
}

// StockLine is one product quantity to be consumed.
type StockLine struct {
	ProductID uint
	Quantity  int
}

type recipeRow struct {
	IngredientID     uint
	ProductID        uint
	QuantityRequired decimal.Decimal
}

// Deduct consumes the ingredients behind lines inside tx. In strict mode a
// shortfall returns *InsufficientStockError and the caller must roll back;
// with ignoreInsufficient the ingredient is clamped to zero instead.
func (s *StockService) Deduct(tx *gorm.DB, tenantID uint, lines []StockLine, ignoreInsufficient bool, orderID *uint) error {
	perProduct := make(map[uint]int)
	for _, l := range lines {
		if l.Quantity > 0 && l.ProductID != 0 {
			perProduct[l.ProductID] += l.Quantity
		}
	}
	if len(perProduct) == 0 {
		return nil
	}
	productIDs := make([]uint, 0, len(perProduct))
	for id := range perProduct {
		productIDs = append(productIDs, id)
	}

	var recipes []recipeRow
	err := tx.Table("recipe_links").
		Select("recipe_links.ingredient_id, recipe_links.product_id, recipe_links.quantity_required").
		Joins("JOIN ingredients ON ingredients.id = recipe_links.ingredient_id").
		Where("ingredients.tenant_id = ? AND recipe_links.product_id IN ?", tenantID, productIDs).
		Scan(&recipes).Error
	if err != nil {
		return fmt.Errorf("load recipes: %w", err)
	}

	required := make(map[uint]decimal.Decimal)
	for _, r := range recipes {
		qty := decimal.NewFromInt(int64(perProduct[r.ProductID]))
		required[r.IngredientID] = required[r.IngredientID].Add(r.QuantityRequired.Mul(qty))
	}

	// Fixed order keeps concurrent transactions from deadlocking.
	ingredientIDs := make([]uint, 0, len(required))
	for id := range required {
		ingredientIDs = append(ingredientIDs, id)
	}
	sort.Slice(ingredientIDs, func(i, j int) bool { return ingredientIDs[i] < ingredientIDs[j] })

	for _, id := range ingredientIDs {
		required[id] = required[id].Round(stockPlaces)
		deducted, err := s.deductOne(tx, id, required[id], ignoreInsufficient)
		if err != nil {
			return err
		}
		movement := models.StockMovement{
			TenantID:     tenantID,
			IngredientID: id,
			OrderID:      orderID,
			Kind:         models.MovementSale,
			Requested:    required[id],
			Deducted:     deducted,
		}
		if orderID != nil {
			movement.Reference = fmt.Sprintf("pedido #%d", *orderID)
		}
		if err := tx.Create(&movement).Error; err != nil {
			return fmt.Errorf("record stock movement: %w", err)
		}
	}
	return nil
}

func (s *StockService) deductOne(tx *gorm.DB, ingredientID uint, required decimal.Decimal, ignoreInsufficient bool) (decimal.Decimal, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		res := tx.Model(&models.Ingredient{}).
			Where("id = ? AND stock >= ?", ingredientID, required).
			UpdateColumn("stock", gorm.Expr("ROUND(stock - ?, 3)", required))
		if res.Error != nil {
			return decimal.Zero, res.Error
		}
		if res.RowsAffected == 1 {
			return required, nil
		}

		var ing models.Ingredient
		if err := tx.Select("id", "name", "stock").First(&ing, ingredientID).Error; err != nil {
			return decimal.Zero, notFound(err, "alimento")
		}
		if !ignoreInsufficient {
			return decimal.Zero, &InsufficientStockError{Ingredient: ing.Name, Available: ing.Stock, Required: required}
		}
		if ing.Stock.GreaterThanOrEqual(required) {
			// Restocked between the two statements.
			continue
		}
		if !ing.Stock.IsPositive() {
			return decimal.Zero, nil
		}

		res = tx.Model(&models.Ingredient{}).
			Where("id = ? AND stock = ?", ingredientID, ing.Stock).
			UpdateColumn("stock", decimal.Zero)
		if res.Error != nil {
			return decimal.Zero, res.Error
		}
		if res.RowsAffected == 1 {
			return ing.Stock, nil
		}
	}
	return decimal.Zero, fmt.Errorf("deduct ingredient %d: %w", ingredientID, ErrConflict)
}

// Adjust sets an ingredient's stock by hand and records the difference as
// an "ajuste" movement. The write only lands on the stock value it read, so
// a sale committed in between forces a re-read instead of being overwritten.
func (s *StockService) Adjust(tx *gorm.DB, tenantID, ingredientID uint, newStock decimal.Decimal, reference string) error {
	if newStock.IsNegative() {
		return invalid("El stock no puede ser negativo")
	}
	newStock = newStock.Round(stockPlaces)
	for attempt := 0; attempt < casAttempts; attempt++ {
		var ing models.Ingredient
		if err := tx.Where("tenant_id = ?", tenantID).First(&ing, ingredientID).Error; err != nil {
			return notFound(err, "alimento")
		}
		if ing.Stock.Equal(newStock) {
			return nil
		}
		res := tx.Model(&models.Ingredient{}).
			Where("id = ? AND stock = ?", ingredientID, ing.Stock).
			UpdateColumn("stock", newStock)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		delta := ing.Stock.Sub(newStock)
		return tx.Create(&models.StockMovement{
			TenantID:     tenantID,
			IngredientID: ingredientID,
			Kind:         models.MovementAdjustment,
			Requested:    delta,
			Deducted:     delta,
			Reference:    reference,
		}).Error
	}
	return fmt.Errorf("adjust ingredient %d: %w", ingredientID, ErrConflict)
}

// Movements lists the audit trail of one ingredient, newest first.
func (s *StockService) Movements(ctx context.Context, tenantID, ingredientID uint, limit int) ([]models.StockMovement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []models.StockMovement
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND ingredient_id = ?", tenantID, ingredientID).
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Availability reports, per product of the tenant, whether it can be sold:
// the product is marked available and every linked ingredient covers at
// least one unit.
func (s *StockService) Availability(ctx context.Context, tenantID uint) (map[uint]bool, error) {
	db := s.db.WithContext(ctx)

	var products []models.Product
	if err := db.Select("id", "available").Where("tenant_id = ?", tenantID).Find(&products).Error; err != nil {
		return nil, err
	}

	type row struct {
		ProductID        uint
		QuantityRequired decimal.Decimal
		Stock            decimal.Decimal
	}
	var rows []row
	err := db.Table("recipe_links").
		Select("recipe_links.product_id, recipe_links.quantity_required, ingredients.stock").
		Joins("JOIN ingredients ON ingredients.id = recipe_links.ingredient_id").
		Where("ingredients.tenant_id = ?", tenantID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[uint]bool, len(products))
	for _, p := range products {
		out[p.ID] = p.Available
	}
	for _, r := range rows {
		if _, ok := out[r.ProductID]; ok && r.Stock.LessThan(r.QuantityRequired) {
			out[r.ProductID] = false
		}
	}
	return out, nil
}
