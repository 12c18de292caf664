package services

import (
	"context"
	"fmt"
	"strings"

	"restopos/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	maxNameLen        = 100
	maxDescriptionLen = 500
)

// CatalogService manages products and the ingredients ("alimentos") that
// back them.
type CatalogService struct {
	db    *gorm.DB
	stock *StockService
}

func NewCatalogService(db *gorm.DB, stock *StockService) *CatalogService {
	return &CatalogService{db: db, stock: stock}
}

type ProductInput struct {
	Name        *string          `json:"nombre"`
	Description *string          `json:"descripcion"`
	Price       *decimal.Decimal `json:"precio"`
	Category    *string          `json:"categoria"`
	Available   *bool            `json:"disponible"`
	Stock       *int             `json:"stock"`
	ImageURL    *string          `json:"imagen"`
}

// apply copies the fields present in in onto p and validates the result.
func (in ProductInput) apply(p *models.Product) error {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Category != nil {
		p.Category = *in.Category
	}
	if in.Available != nil {
		p.Available = *in.Available
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	if in.ImageURL != nil {
		p.ImageURL = strings.TrimSpace(*in.ImageURL)
	}

	switch {
	case p.Name == "":
		return invalid("El nombre del producto es obligatorio")
	case len(p.Name) > maxNameLen:
		return invalid("El nombre no puede exceder %d caracteres", maxNameLen)
	case len(p.Description) > maxDescriptionLen:
		return invalid("La descripción no puede exceder %d caracteres", maxDescriptionLen)
	case p.Price.IsNegative():
		return invalid("El precio no puede ser negativo")
	case !models.IsValidCategory(p.Category):
		return invalid("Categoría no válida")
	case p.Stock < 0:
		return invalid("El stock no puede ser negativo")
	}
	return nil
}

type ProductFilter struct {
	Category  string
	Available *bool
	Search    string
}

func (s *CatalogService) ListProducts(ctx context.Context, tenantID uint, f ProductFilter) ([]models.Product, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Available != nil {
		q = q.Where("available = ?", *f.Available)
	}
	if f.Search != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(f.Search)+"%")
	}
	var out []models.Product
	if err := q.Order("name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// PublicProducts is the customer-facing menu of a restaurant: available
// products only.
func (s *CatalogService) PublicProducts(ctx context.Context, restaurant, site string) ([]models.Product, error) {
	tenant, err := findTenant(ctx, s.db, restaurant, site)
	if err != nil {
		return nil, err
	}
	available := true
	return s.ListProducts(ctx, tenant.ID, ProductFilter{Available: &available})
}

func (s *CatalogService) GetProduct(ctx context.Context, tenantID, id uint) (*models.Product, error) {
	var p models.Product
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&p, id).Error; err != nil {
		return nil, notFound(err, "producto")
	}
	return &p, nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, actor Actor, in ProductInput) (*models.Product, error) {
	p := &models.Product{TenantID: actor.TenantID, Category: models.CategoryOtros, Available: true}
	if err := in.apply(p); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, actor Actor, id uint, in ProductInput) (*models.Product, error) {
	p, err := s.GetProduct(ctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	if err := in.apply(p); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (s *CatalogService) SetAvailability(ctx context.Context, actor Actor, id uint, available bool) (*models.Product, error) {
	p, err := s.GetProduct(ctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(p).UpdateColumn("available", available).Error; err != nil {
		return nil, err
	}
	p.Available = available
	return p, nil
}

// DeleteProduct removes the product and its recipe links. Historical order
// items keep their snapshot.
func (s *CatalogService) DeleteProduct(ctx context.Context, actor Actor, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Product
		if err := tx.Where("tenant_id = ?", actor.TenantID).First(&p, id).Error; err != nil {
			return notFound(err, "producto")
		}
		if err := tx.Where("product_id = ?", p.ID).Delete(&models.RecipeLink{}).Error; err != nil {
			return err
		}
		return tx.Delete(&p).Error
	})
}

type RecipeInput struct {
	ProductID        uint            `json:"productoId"`
	QuantityRequired decimal.Decimal `json:"cantidadRequerida"`
}

type IngredientInput struct {
	Name      *string          `json:"nombre"`
	Stock     *decimal.Decimal `json:"stock"`
	UnitValue *decimal.Decimal `json:"valor"`
	Recipes   []RecipeInput    `json:"productos"`
}

func (s *CatalogService) buildRecipes(tx *gorm.DB, tenantID uint, in []RecipeInput) ([]models.RecipeLink, error) {
	if len(in) == 0 {
		return nil, invalid("Debe incluir al menos un producto")
	}
	ids := make([]uint, 0, len(in))
	seen := make(map[uint]bool, len(in))
	for _, r := range in {
		if !r.QuantityRequired.IsPositive() {
			return nil, invalid("La cantidad requerida debe ser mayor a 0")
		}
		if seen[r.ProductID] {
			return nil, invalid("Producto %d repetido en la receta", r.ProductID)
		}
		seen[r.ProductID] = true
		ids = append(ids, r.ProductID)
	}

	var count int64
	if err := tx.Model(&models.Product{}).Where("tenant_id = ? AND id IN ?", tenantID, ids).Count(&count).Error; err != nil {
		return nil, err
	}
	if int(count) != len(ids) {
		return nil, fmt.Errorf("producto de la receta: %w", ErrNotFound)
	}

	links := make([]models.RecipeLink, 0, len(in))
	for _, r := range in {
		links = append(links, models.RecipeLink{ProductID: r.ProductID, QuantityRequired: r.QuantityRequired.Round(stockPlaces)})
	}
	return links, nil
}

func (s *CatalogService) ListIngredients(ctx context.Context, tenantID uint) ([]models.Ingredient, error) {
	var out []models.Ingredient
	err := s.db.WithContext(ctx).Preload("Recipes").
		Where("tenant_id = ?", tenantID).
		Order("name ASC").
		Find(&out).Error
	return out, err
}

func (s *CatalogService) PublicIngredients(ctx context.Context, restaurant, site string) ([]models.Ingredient, error) {
	tenant, err := findTenant(ctx, s.db, restaurant, site)
	if err != nil {
		return nil, err
	}
	return s.ListIngredients(ctx, tenant.ID)
}

func (s *CatalogService) GetIngredient(ctx context.Context, tenantID, id uint) (*models.Ingredient, error) {
	var ing models.Ingredient
	if err := s.db.WithContext(ctx).Preload("Recipes").Where("tenant_id = ?", tenantID).First(&ing, id).Error; err != nil {
		return nil, notFound(err, "alimento")
	}
	return &ing, nil
}

func (s *CatalogService) CreateIngredient(ctx context.Context, actor Actor, in IngredientInput) (*models.Ingredient, error) {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, invalid("El nombre del alimento es obligatorio")
	}
	ing := &models.Ingredient{TenantID: actor.TenantID, Name: strings.TrimSpace(*in.Name), Stock: decimal.Zero, UnitValue: decimal.Zero}
	if len(ing.Name) > maxNameLen {
		return nil, invalid("El nombre no puede exceder %d caracteres", maxNameLen)
	}
	if in.Stock != nil {
		ing.Stock = in.Stock.Round(stockPlaces)
	}
	if in.UnitValue != nil {
		ing.UnitValue = *in.UnitValue
	}
	if ing.Stock.IsNegative() || ing.UnitValue.IsNegative() {
		return nil, invalid("Stock y valor no pueden ser negativos")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		links, err := s.buildRecipes(tx, actor.TenantID, in.Recipes)
		if err != nil {
			return err
		}
		ing.Recipes = links
		return tx.Create(ing).Error
	})
	if err != nil {
		return nil, err
	}
	return ing, nil
}

// UpdateIngredient applies a partial update. A stock change goes through
// the stock ledger so it shows up as an adjustment.
func (s *CatalogService) UpdateIngredient(ctx context.Context, actor Actor, id uint, in IngredientInput) (*models.Ingredient, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ing models.Ingredient
		if err := tx.Where("tenant_id = ?", actor.TenantID).First(&ing, id).Error; err != nil {
			return notFound(err, "alimento")
		}

		updates := map[string]interface{}{}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" || len(name) > maxNameLen {
				return invalid("Nombre de alimento no válido")
			}
			updates["name"] = name
		}
		if in.UnitValue != nil {
			if in.UnitValue.IsNegative() {
				return invalid("El valor no puede ser negativo")
			}
			updates["unit_value"] = *in.UnitValue
		}
		if len(updates) > 0 {
			if err := tx.Model(&ing).Updates(updates).Error; err != nil {
				return err
			}
		}

		if in.Stock != nil {
			ref := fmt.Sprintf("ajuste manual por usuario #%d", actor.UserID)
			if err := s.stock.Adjust(tx, actor.TenantID, ing.ID, *in.Stock, ref); err != nil {
				return err
			}
		}

		if in.Recipes != nil {
			links, err := s.buildRecipes(tx, actor.TenantID, in.Recipes)
			if err != nil {
				return err
			}
			if err := tx.Where("ingredient_id = ?", ing.ID).Delete(&models.RecipeLink{}).Error; err != nil {
				return err
			}
			for i := range links {
				links[i].IngredientID = ing.ID
			}
			if err := tx.Create(&links).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetIngredient(ctx, actor.TenantID, id)
}

func (s *CatalogService) DeleteIngredient(ctx context.Context, actor Actor, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ing models.Ingredient
		if err := tx.Where("tenant_id = ?", actor.TenantID).First(&ing, id).Error; err != nil {
			return notFound(err, "alimento")
		}
		if err := tx.Where("ingredient_id = ?", ing.ID).Delete(&models.RecipeLink{}).Error; err != nil {
			return err
		}
		return tx.Delete(&ing).Error
	})
}

// ProductWithAvailability is a catalog entry as seen by external platforms.
type ProductWithAvailability struct {
	models.Product
	InStock bool `json:"hayStock"`
}

// CatalogWithAvailability merges products with what ingredient stock allows.
func (s *CatalogService) CatalogWithAvailability(ctx context.Context, tenantID uint) ([]ProductWithAvailability, error) {
	products, err := s.ListProducts(ctx, tenantID, ProductFilter{})
	if err != nil {
		return nil, err
	}
	avail, err := s.stock.Availability(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]ProductWithAvailability, 0, len(products))
	for _, p := range products {
		out = append(out, ProductWithAvailability{Product: p, InStock: avail[p.ID]})
	}
	return out, nil
}
