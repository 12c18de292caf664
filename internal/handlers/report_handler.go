package handlers

import (
	"net/http"
	"time"

	"restopos/internal/database"
	"restopos/internal/middleware"

	"github.com/gin-gonic/gin"
)

const (
	defaultReportDays = 30
	lowStockLevel     = 5
)

// --- GET: /api/reports?desde=&hasta= ---
// Defaults to the last 30 days.
func (h *API) GetSalesReport(c *gin.Context) {
	start, end, valid := dateRange(c, "desde", "hasta")
	if !valid {
		return
	}
	if end.IsZero() {
		end = time.Now()
	}
	if start.IsZero() {
		start = end.AddDate(0, 0, -defaultReportDays)
	}
	if start.After(end) {
		fail(c, http.StatusBadRequest, "La fecha inicial debe ser anterior a la final")
		return
	}
	report, err := database.GetSalesReport(c.Request.Context(), h.DB, middleware.ActorFrom(c).TenantID, start, end)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "", report)
}

// --- GET: /api/reports/valuation ---
// Monetary value of the ingredient stock.
func (h *API) GetStockValuation(c *gin.Context) {
	v, err := database.GetStockValuation(c.Request.Context(), h.DB, middleware.ActorFrom(c).TenantID, lowStockLevel)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "", v)
}
