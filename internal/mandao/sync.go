package mandao

import (
	"context"
	"fmt"
	"strings"

	"restopos/internal/logger"
	"restopos/internal/services"
)

// Syncer signs Mandao users into the POS and imports their catalog.
type Syncer struct {
	client  *Client
	auth    *services.AuthService
	catalog *services.CatalogService
	log     *logger.Logger
}

func NewSyncer(client *Client, auth *services.AuthService, catalog *services.CatalogService, log *logger.Logger) *Syncer {
	return &Syncer{client: client, auth: auth, catalog: catalog, log: log.WithComponent("mandao-sync")}
}

// Login authenticates with Mandao, provisions the restaurant on first use
// and imports the catalog. On later logins the import runs in the
// background so it never delays the response.
func (s *Syncer) Login(ctx context.Context, email, password string) (*services.AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("faltan credenciales: %w", services.ErrUnauthorized)
	}

	acct, err := s.client.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(acct.Name)
	if len(name) < 2 && acct.LastName != "" {
		name = strings.TrimSpace(name + " " + acct.LastName)
	}
	result, err := s.auth.LoginExternal(ctx, services.ExternalAccount{
		ExternalID: acct.ID,
		Name:       name,
		Username:   email,
		Site:       acct.Site,
	}, password)
	if err != nil {
		return nil, err
	}

	products, ingredients := ToImport(acct)
	tenantID := result.User.TenantID
	if result.IsNew {
		s.importCatalog(ctx, tenantID, products, ingredients)
	} else {
		go s.importCatalog(context.WithoutCancel(ctx), tenantID, products, ingredients)
	}
	return result, nil
}

func (s *Syncer) importCatalog(ctx context.Context, tenantID uint, products []services.ImportProduct, ingredients []services.ImportIngredient) {
	res, err := s.catalog.ImportCatalog(ctx, tenantID, products, ingredients)
	if err != nil {
		s.log.Error("catalog import failed", "tenant_id", tenantID, "error", err)
		return
	}
	s.log.Info("catalog imported", "tenant_id", tenantID, "products", res.ProductsCreated, "ingredients", res.IngredientsCreated)
}

// ToImport converts the Mandao catalog into import records. Ingredient
// value falls back from costo to valor.
func ToImport(acct *Account) ([]services.ImportProduct, []services.ImportIngredient) {
	products := make([]services.ImportProduct, 0, len(acct.Menu))
	for _, p := range acct.Menu {
		products = append(products, services.ImportProduct{
			ExternalID:  p.ID,
			Name:        p.Name,
			Price:       p.Price,
			Category:    p.Category,
			Description: p.Description,
		})
	}

	ingredients := make([]services.ImportIngredient, 0, len(acct.Ingredients))
	for _, ing := range acct.Ingredients {
		value := ing.Cost
		if value.IsZero() {
			value = ing.Value
		}
		recipes := make([]services.ImportRecipe, 0, len(ing.Products))
		for _, r := range ing.Products {
			recipes = append(recipes, services.ImportRecipe{ExternalProductID: r.ProductID, QuantityRequired: r.QuantityRequired})
		}
		ingredients = append(ingredients, services.ImportIngredient{
			Name:      ing.Name,
			Stock:     ing.Stock,
			UnitValue: value,
			Recipes:   recipes,
		})
	}
	return products, ingredients
}
