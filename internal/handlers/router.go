package handlers

import (
	"time"

	"restopos/internal/ai"
	"restopos/internal/logger"
	"restopos/internal/mandao"
	"restopos/internal/middleware"
	"restopos/internal/models"
	"restopos/internal/notify"
	"restopos/internal/realtime"
	"restopos/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps is everything the HTTP layer calls into.
type Deps struct {
	DB           *gorm.DB
	Log          *logger.Logger
	Auth         *services.AuthService
	Catalog      *services.CatalogService
	Stock        *services.StockService
	Orders       *services.OrderService
	Expenses     *services.ExpenseService
	Liquidacion  *services.LiquidacionService
	Push         *notify.Dispatcher
	Mandao       *mandao.Syncer
	Hub          *realtime.Hub
	Agent        *ai.Agent
	MandaoSecret string
	CORSOrigins  []string
	Version      string
	Environment  string
}

type API struct {
	Deps
	log     *logger.Logger
	started time.Time
}

func New(d Deps) *API {
	return &API{Deps: d, log: d.Log.WithComponent("api"), started: time.Now()}
}

// Router wires every route onto a fresh gin engine.
func (h *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.Log.GinMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     h.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.MandaoSecretHeader, logger.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", logger.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", h.Health)
	r.GET("/api/system/status", h.SystemStatus)

	authn := middleware.AuthMiddleware(h.Auth)
	perm := func(name string) gin.HandlerFunc { return middleware.RequirePermission(h.Auth, name) }
	adminOnly := middleware.RequireRole(models.RoleAdmin, models.RoleSuperAdmin)

	// --- AUTH ---
	a := r.Group("/api/auth")
	a.POST("/register", h.Register)
	a.POST("/login", h.Login)
	a.POST("/login-mandao", h.LoginMandao)
	a.GET("/verify", authn, h.Verify)
	a.GET("/me", authn, h.Me)
	a.GET("/solicitudes", authn, adminOnly, h.Requests)
	a.POST("/gestionar-solicitud", authn, adminOnly, h.DecideRequest)

	super := a.Group("/superadmin", authn, middleware.RequireRole(models.RoleSuperAdmin))
	super.GET("/usuarios", h.ListUsers)
	super.PATCH("/toggle-bloqueo/:userId", h.ToggleBlock)
	super.PATCH("/fecha-pago/:userId", h.SetPaidUntil)
	super.PATCH("/confirmar-pago/:userId", h.ConfirmPayment)

	// --- PUBLIC (customers scanning the table QR) ---
	r.GET("/api/products/public/restaurante", h.PublicProducts)
	r.GET("/api/alimentos/public/restaurante", h.PublicIngredients)
	r.GET("/api/orders/mesa/:numeroMesa", h.TrackOrder)

	push := r.Group("/api/push")
	push.POST("/register", h.RegisterPush)
	push.DELETE("/unregister", h.UnregisterPush)
	push.POST("/test", h.TestPush)

	// --- PROTECTED ---
	api := r.Group("/api", authn)

	products := api.Group("/products")
	products.GET("", perm(models.PermVerProductos), h.ListProducts)
	products.GET("/:id", perm(models.PermVerProductos), h.GetProduct)
	products.POST("", perm(models.PermCrearProductos), h.CreateProduct)
	products.PUT("/:id", perm(models.PermEditarProductos), h.UpdateProduct)
	products.PATCH("/:id/disponibilidad", perm(models.PermEditarProductos), h.SetAvailability)
	products.DELETE("/:id", perm(models.PermEliminarProductos), h.DeleteProduct)

	alimentos := api.Group("/alimentos")
	alimentos.GET("", perm(models.PermVerProductos), h.ListIngredients)
	alimentos.GET("/:id", perm(models.PermVerProductos), h.GetIngredient)
	alimentos.GET("/:id/movimientos", perm(models.PermVerProductos), h.IngredientMovements)
	alimentos.POST("", perm(models.PermCrearProductos), h.CreateIngredient)
	alimentos.PUT("/:id", perm(models.PermEditarProductos), h.UpdateIngredient)
	alimentos.DELETE("/:id", perm(models.PermEliminarProductos), h.DeleteIngredient)

	orders := api.Group("/orders")
	orders.GET("", perm(models.PermVerPedidos), h.ListOrders)
	orders.POST("", perm(models.PermCrearPedidos), h.CreateOrder)
	orders.GET("/stats/resumen", perm(models.PermVerPedidos), h.OrderStats)
	orders.GET("/:id", perm(models.PermVerPedidos), h.GetOrder)
	orders.PUT("/:id", perm(models.PermEditarPedidos), h.UpdateOrder)
	orders.DELETE("/:id", perm(models.PermCancelarPedidos), h.DeleteOrder)
	orders.PATCH("/:id/estado", perm(models.PermEditarPedidos), h.SetOrderStatus)
	orders.PATCH("/:id/item/:itemIndex/estado", perm(models.PermEditarPedidos), h.SetItemStatus)

	expenses := api.Group("/expenses")
	expenses.GET("", perm(models.PermVerGastos), h.ListExpenses)
	expenses.POST("", perm(models.PermCrearGastos), h.CreateExpense)
	expenses.GET("/stats/summary", perm(models.PermVerGastos), h.ExpenseSummary)
	expenses.GET("/:id", perm(models.PermVerGastos), h.GetExpense)
	expenses.PUT("/:id", perm(models.PermEditarGastos), h.UpdateExpense)
	expenses.DELETE("/:id", perm(models.PermEliminarGastos), h.DeleteExpense)

	liq := api.Group("/liquidaciones", perm(models.PermVerLiquidaciones))
	liq.GET("", h.ListLiquidaciones)
	liq.POST("", h.CloseLiquidacion)
	liq.GET("/pendientes", h.PendingLiquidacion)
	liq.GET("/ultima", h.LatestLiquidacion)
	liq.GET("/stats/resumen", h.LiquidacionStats)
	liq.GET("/:id", h.GetLiquidacion)
	liq.GET("/:id/export", h.ExportLiquidacion)

	reports := api.Group("/reports", perm(models.PermVerReportes))
	reports.GET("", h.GetSalesReport)
	reports.GET("/valuation", h.GetStockValuation)

	staff := api.Group("/admin-meseros")
	staff.GET("/mis-permisos", h.MyPermissions)
	staff.GET("", adminOnly, h.ListStaff)
	staff.POST("", adminOnly, h.AddStaff)
	staff.PUT("/:id", adminOnly, h.UpdateStaff)
	staff.DELETE("/:id", adminOnly, h.RemoveStaff)

	mnd := api.Group("/mandao", middleware.MandaoSecret(h.MandaoSecret))
	mnd.POST("/order", h.MandaoOrder)
	mnd.GET("/products", h.MandaoProducts)

	api.GET("/mesas/:mesa/qr", h.TableQR)
	api.GET("/ws", h.Realtime)
	api.POST("/ask", adminOnly, h.AskAI)

	return r
}
