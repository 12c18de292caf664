package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"restopos/internal/database"
	"restopos/internal/services"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"gorm.io/gorm"
)

const (
	modelName = "gemini-2.0-flash-001"
	// Upper bound on tool round-trips for one question.
	maxToolRounds = 4
	lowStockLevel = 5
)

var ErrNotConfigured = errors.New("assistant is not configured")

// Agent answers staff questions about one restaurant using Gemini function
// calling over the POS data.
type Agent struct {
	db          *gorm.DB
	liquidacion *services.LiquidacionService
	apiKey      string
	now         func() time.Time
}

func NewAgent(db *gorm.DB, liquidacion *services.LiquidacionService, apiKey string) *Agent {
	return &Agent{db: db, liquidacion: liquidacion, apiKey: apiKey, now: time.Now}
}

func (a *Agent) Enabled() bool { return a.apiKey != "" }

var tools = []*genai.Tool{
	{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        "check_ingredients",
				Description: "Get every ingredient (alimento) with its stock, unit value and total value. Use this for ANY question about stock, inventory or what is running low.",
			},
			{
				Name:        "get_pending_liquidacion",
				Description: "Get the delivered orders and expenses not yet included in a cash closing (liquidación), with their totals.",
			},
			{
				Name:        "get_sales_report",
				Description: "Get sales revenue, order count and best sellers for a date range.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"start_date": {Type: genai.TypeString, Description: "Start date (YYYY-MM-DD)"},
						"end_date":   {Type: genai.TypeString, Description: "End date (YYYY-MM-DD)"},
					},
					Required: []string{"start_date", "end_date"},
				},
			},
		},
	},
}

// Ask runs one question for the tenant and returns the model's answer.
func (a *Agent) Ask(ctx context.Context, tenantID uint, userMessage string) (string, error) {
	if !a.Enabled() {
		return "", ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(a.apiKey))
	if err != nil {
		return "", err
	}
	defer client.Close()

	model := client.GenerativeModel(modelName)
	model.Tools = tools

	// --- 1. System prompt ---
	today := a.now().Format("2006-01-02")
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(fmt.Sprintf(`Hoy es %s. Eres el asistente del punto de venta de un restaurante.
Responde siempre en español y de forma breve.

REGLAS:
1. STOCK: Si preguntan por alimentos, inventario o qué se está acabando, llama a 'check_ingredients' y lee el JSON.
2. CAJA: Si preguntan cuánto hay pendiente por liquidar o cuánto se ha vendido desde el último cierre, usa 'get_pending_liquidacion'.
3. VENTAS: Para ventas o ingresos de un periodo usa 'get_sales_report' con fechas YYYY-MM-DD.
4. Nunca inventes cifras: usa solo lo que devuelvan las herramientas.`, today))}}

	session := model.StartChat()
	resp, err := session.SendMessage(ctx, genai.Text(userMessage))
	if err != nil {
		return "", err
	}

	// --- 2. Tool loop ---
	for round := 0; round < maxToolRounds; round++ {
		calls := functionCalls(resp)
		if len(calls) == 0 {
			return printResponse(resp), nil
		}
		replies := make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			replies = append(replies, genai.FunctionResponse{
				Name:     call.Name,
				Response: a.executeTool(ctx, tenantID, call),
			})
		}
		if resp, err = session.SendMessage(ctx, replies...); err != nil {
			return "", err
		}
	}
	return printResponse(resp), nil
}

func functionCalls(resp *genai.GenerateContentResponse) []genai.FunctionCall {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var calls []genai.FunctionCall
	for _, part := range resp.Candidates[0].Content.Parts {
		if fc, ok := part.(genai.FunctionCall); ok {
			calls = append(calls, fc)
		}
	}
	return calls
}

// executeTool runs one function call against the tenant's data. Errors are
// reported to the model as part of the response.
func (a *Agent) executeTool(ctx context.Context, tenantID uint, call genai.FunctionCall) map[string]any {
	switch call.Name {
	case "check_ingredients":
		return a.checkIngredients(ctx, tenantID)
	case "get_pending_liquidacion":
		return a.pendingLiquidacion(ctx, tenantID)
	case "get_sales_report":
		return a.salesReport(ctx, tenantID, call.Args)
	}
	return map[string]any{"error": "unknown tool " + call.Name}
}

func (a *Agent) checkIngredients(ctx context.Context, tenantID uint) map[string]any {
	valuation, err := database.GetStockValuation(ctx, a.db, tenantID, lowStockLevel)
	if err != nil {
		return map[string]any{"error": "no se pudo leer el inventario"}
	}
	items := make([]map[string]any, 0, len(valuation.Items))
	for _, it := range valuation.Items {
		items = append(items, map[string]any{
			"id":          it.ID,
			"nombre":      it.Name,
			"stock":       it.Stock.InexactFloat64(),
			"valor":       it.UnitValue.InexactFloat64(),
			"valor_total": it.TotalCost.InexactFloat64(),
			"stock_bajo":  it.LowStock,
		})
	}
	return map[string]any{"alimentos": items, "valor_inventario": valuation.GrandTotal.InexactFloat64()}
}

func (a *Agent) pendingLiquidacion(ctx context.Context, tenantID uint) map[string]any {
	p, err := a.liquidacion.Pending(ctx, tenantID)
	if err != nil {
		return map[string]any{"error": "no se pudo calcular lo pendiente"}
	}
	return map[string]any{
		"pedidos":       p.OrderCount,
		"gastos":        p.ExpenseCount,
		"total_pedidos": p.IncomeTotal.InexactFloat64(),
		"total_gastos":  p.ExpenseTotal.InexactFloat64(),
		"neto":          p.IncomeTotal.Sub(p.ExpenseTotal).InexactFloat64(),
	}
}

func (a *Agent) salesReport(ctx context.Context, tenantID uint, args map[string]any) map[string]any {
	startStr, _ := args["start_date"].(string)
	endStr, _ := args["end_date"].(string)

	start, err1 := time.ParseInLocation("2006-01-02", startStr, time.Local)
	end, err2 := time.ParseInLocation("2006-01-02", endStr, time.Local)
	if err1 != nil || err2 != nil {
		return map[string]any{"error": "Las fechas deben tener formato YYYY-MM-DD"}
	}
	end = end.Add(24*time.Hour - time.Nanosecond)

	report, err := database.GetSalesReport(ctx, a.db, tenantID, start, end)
	if err != nil {
		return map[string]any{"error": "no se pudo calcular el reporte"}
	}
	top := make([]map[string]any, 0, len(report.TopSelling))
	for _, tp := range report.TopSelling {
		top = append(top, map[string]any{"nombre": tp.ProductName, "vendidos": tp.Sold, "ingresos": tp.Revenue.InexactFloat64()})
	}
	return map[string]any{
		"ingresos":     report.TotalRevenue.InexactFloat64(),
		"pedidos":      report.TotalOrders,
		"cancelados":   report.Cancelled,
		"mas_vendidos": top,
	}
}

func printResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "No obtuve respuesta del asistente."
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			return string(txt)
		}
	}
	return "Completé la acción."
}
