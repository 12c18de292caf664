package ai

import (
	"context"
	"testing"

	"restopos/internal/database"
	"restopos/internal/models"
	"restopos/internal/services"

	"github.com/google/generative-ai-go/genai"
	"github.com/shopspring/decimal"
)

func newTestAgent(t *testing.T) *Agent {
	t.Helper()
	db, err := database.NewTestDB(t.Name())
	if err != nil {
		t.Fatal(err)
	}
	ings := []models.Ingredient{
		{TenantID: 1, Name: "Harina", Stock: decimal.NewFromInt(10), UnitValue: decimal.NewFromInt(2)},
		{TenantID: 1, Name: "Queso", Stock: decimal.NewFromInt(3), UnitValue: decimal.NewFromInt(5)},
		{TenantID: 2, Name: "Otro", Stock: decimal.NewFromInt(100), UnitValue: decimal.NewFromInt(1)},
	}
	if err := db.Create(&ings).Error; err != nil {
		t.Fatal(err)
	}
	return NewAgent(db, services.NewLiquidacionService(db, nil), "")
}

func TestAskWithoutKey(t *testing.T) {
	a := newTestAgent(t)
	if _, err := a.Ask(context.Background(), 1, "hola"); err != ErrNotConfigured {
		t.Errorf("Ask = %v, want ErrNotConfigured", err)
	}
}

func TestExecuteTool(t *testing.T) {
	a := newTestAgent(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		call    genai.FunctionCall
		wantErr bool
	}{
		{"stock", genai.FunctionCall{Name: "check_ingredients"}, false},
		{"pending", genai.FunctionCall{Name: "get_pending_liquidacion"}, false},
		{"sales", genai.FunctionCall{Name: "get_sales_report", Args: map[string]any{"start_date": "2026-01-01", "end_date": "2026-01-31"}}, false},
		{"bad dates", genai.FunctionCall{Name: "get_sales_report", Args: map[string]any{"start_date": "ayer"}}, true},
		{"unknown", genai.FunctionCall{Name: "drop_tables"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := a.executeTool(ctx, 1, tt.call)
			_, hasErr := out["error"]
			if hasErr != tt.wantErr {
				t.Errorf("executeTool(%s) = %v, wantErr %v", tt.call.Name, out, tt.wantErr)
			}
		})
	}
}

func TestCheckIngredientsScopedToTenant(t *testing.T) {
	a := newTestAgent(t)
	out := a.checkIngredients(context.Background(), 1)

	items, _ := out["alimentos"].([]map[string]any)
	if len(items) != 2 {
		t.Fatalf("got %d ingredients, want 2", len(items))
	}
	if total := out["valor_inventario"].(float64); total != 35 {
		t.Errorf("valor_inventario = %v, want 35", total)
	}
	for _, it := range items {
		if it["nombre"] == "Queso" && it["stock_bajo"] != true {
			t.Errorf("Queso should be flagged as low stock")
		}
	}
}
