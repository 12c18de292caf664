package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"restopos/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	ExternalTable    = "MANDAO"
	ExternalCategory = "Mandao"
)

type ExternalItemInput struct {
	Name     string          `json:"nombre"`
	Quantity int             `json:"cantidad"`
	Price    decimal.Decimal `json:"precio"`
}

// ExternalOrderInput is an order placed on the delivery platform.
type ExternalOrderInput struct {
	ExternalOrderID string              `json:"mandaoOrderId"`
	Items           []ExternalItemInput `json:"items"`
	Total           decimal.Decimal     `json:"total"`
	PaymentMethod   string              `json:"metodoPago"`
	Address         string              `json:"direccion"`
	Notes           string              `json:"notas"`
}

// ExternalOrderResult reports whether the order was created by this call
// or already existed.
type ExternalOrderResult struct {
	Order   *models.Order
	Created bool
}

func externalPayment(method string) string {
	if strings.EqualFold(strings.TrimSpace(method), models.PaymentTransferencia) {
		return models.PaymentTransferencia
	}
	return models.PaymentEfectivo
}

// CreateExternal materializes a delivery-platform order. Items are matched
// to the catalog by trimmed, case-insensitive name; unmatched items keep
// their snapshot only. Stock is deducted leniently. Receiving the same
// external id twice returns the first order.
func (s *OrderService) CreateExternal(ctx context.Context, actor Actor, in ExternalOrderInput) (*ExternalOrderResult, error) {
	extID := strings.TrimSpace(in.ExternalOrderID)
	if extID == "" || len(in.Items) == 0 {
		return nil, invalid("Datos incompletos")
	}
	for _, it := range in.Items {
		if strings.TrimSpace(it.Name) == "" || it.Quantity < 1 || it.Price.IsNegative() {
			return nil, invalid("Item de Mandao no válido")
		}
	}

	if existing, err := s.findExternal(s.db.WithContext(ctx), actor.TenantID, extID); err == nil {
		return &ExternalOrderResult{Order: existing}, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var products []models.Product
		if err := tx.Where("tenant_id = ?", actor.TenantID).Find(&products).Error; err != nil {
			return err
		}
		byName := make(map[string]models.Product, len(products))
		for _, p := range products {
			key := strings.ToLower(strings.TrimSpace(p.Name))
			if _, dup := byName[key]; !dup {
				byName[key] = p
			}
		}

		items := make([]models.OrderItem, 0, len(in.Items))
		for i, it := range in.Items {
			name := strings.TrimSpace(it.Name)
			item := models.OrderItem{
				Position:    i,
				ProductName: name,
				Category:    ExternalCategory,
				Quantity:    it.Quantity,
				Price:       it.Price,
				Groups:      models.NewStatusGroups(it.Quantity),
			}
			if p, ok := byName[strings.ToLower(name)]; ok {
				id := p.ID
				item.ProductID = &id
				item.Category = p.Category
			}
			items = append(items, item)
		}

		notes := strings.TrimSpace(in.Notes)
		if notes != "" {
			notes += " | "
		}
		notes += "ID Mandao: " + extID
		if len(notes) > maxNotesLen {
			notes = notes[:maxNotesLen]
		}

		order = &models.Order{
			TenantID:        actor.TenantID,
			Table:           ExternalTable,
			Items:           items,
			Status:          models.StatusPendiente,
			Notes:           notes,
			PaymentMethod:   externalPayment(in.PaymentMethod),
			DeliveryAddress: strings.TrimSpace(in.Address),
			Source:          models.SourceMandao,
			ExternalOrderID: &extID,
			CreatedByID:     actor.UserID,
			Waiter:          actor.Name,
		}
		return s.insert(tx, order, true)
	})
	if err != nil {
		// A concurrent delivery of the same id lost the unique-index race.
		if existing, ferr := s.findExternal(s.db.WithContext(ctx), actor.TenantID, extID); ferr == nil {
			return &ExternalOrderResult{Order: existing}, nil
		}
		return nil, err
	}

	s.events.Publish(actor.TenantID, EventOrderExternal, order)
	return &ExternalOrderResult{Order: order, Created: true}, nil
}

func (s *OrderService) findExternal(tx *gorm.DB, tenantID uint, extID string) (*models.Order, error) {
	var order models.Order
	err := tx.Preload("Items", preloadItems).
		Where("tenant_id = ? AND external_order_id = ?", tenantID, extID).
		First(&order).Error
	if err != nil {
		return nil, notFound(err, "pedido")
	}
	return &order, nil
}

// ImportProduct and ImportIngredient describe catalog entries held by the
// delivery platform.
type ImportProduct struct {
	ExternalID  string
	Name        string
	Price       decimal.Decimal
	Category    string
	Description string
}

type ImportRecipe struct {
	ExternalProductID string
	QuantityRequired  decimal.Decimal
}

type ImportIngredient struct {
	Name      string
	Stock     decimal.Decimal
	UnitValue decimal.Decimal
	Recipes   []ImportRecipe
}

type ImportResult struct {
	ProductsCreated    int `json:"productosCreados"`
	IngredientsCreated int `json:"alimentosCreados"`
}

// ImportCatalog creates the products and ingredients the tenant does not
// have yet, matching by name. Existing entries are left untouched.
func (s *CatalogService) ImportCatalog(ctx context.Context, tenantID uint, products []ImportProduct, ingredients []ImportIngredient) (*ImportResult, error) {
	res := &ImportResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		localByExternal := make(map[string]uint, len(products))
		for _, ip := range products {
			name := strings.TrimSpace(ip.Name)
			if name == "" {
				continue
			}
			var p models.Product
			err := tx.Where("tenant_id = ? AND name = ?", tenantID, name).First(&p).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				category := ip.Category
				if !models.IsValidCategory(category) {
					category = models.CategoryOtros
				}
				price := ip.Price
				if price.IsNegative() {
					price = decimal.Zero
				}
				p = models.Product{
					TenantID:    tenantID,
					Name:        name,
					Description: ip.Description,
					Price:       price,
					Category:    category,
					Available:   true,
				}
				if err := tx.Create(&p).Error; err != nil {
					return fmt.Errorf("import product %q: %w", name, err)
				}
				res.ProductsCreated++
			} else if err != nil {
				return err
			}
			if ip.ExternalID != "" {
				localByExternal[ip.ExternalID] = p.ID
			}
		}

		for _, ii := range ingredients {
			name := strings.TrimSpace(ii.Name)
			if name == "" {
				continue
			}
			var count int64
			if err := tx.Model(&models.Ingredient{}).Where("tenant_id = ? AND name = ?", tenantID, name).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			ing := models.Ingredient{TenantID: tenantID, Name: name, Stock: ii.Stock.Round(stockPlaces), UnitValue: ii.UnitValue}
			if ing.Stock.IsNegative() {
				ing.Stock = decimal.Zero
			}
			if ing.UnitValue.IsNegative() {
				ing.UnitValue = decimal.Zero
			}
			for _, r := range ii.Recipes {
				if pid, ok := localByExternal[r.ExternalProductID]; ok && r.QuantityRequired.IsPositive() {
					ing.Recipes = append(ing.Recipes, models.RecipeLink{ProductID: pid, QuantityRequired: r.QuantityRequired.Round(stockPlaces)})
				}
			}
			if err := tx.Create(&ing).Error; err != nil {
				return fmt.Errorf("import ingredient %q: %w", name, err)
			}
			res.IngredientsCreated++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
