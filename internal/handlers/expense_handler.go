package handlers

import (
	"net/http"

	"restopos/internal/middleware"
	"restopos/internal/services"

	"github.com/gin-gonic/gin"
)

// --- GET: /api/expenses?mes=2006-01 ---
func (h *API) ListExpenses(c *gin.Context) {
	list, err := h.Expenses.List(c.Request.Context(), middleware.ActorFrom(c).TenantID, c.Query("mes"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	okList(c, list)
}

func (h *API) CreateExpense(c *gin.Context) {
	var in services.ExpenseInput
	if !bindJSON(c, &in) {
		return
	}
	e, err := h.Expenses.Create(c.Request.Context(), middleware.ActorFrom(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, "Gasto registrado exitosamente", e)
}

func (h *API) GetExpense(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	e, err := h.Expenses.Get(c.Request.Context(), middleware.ActorFrom(c).TenantID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "", e)
}

func (h *API) UpdateExpense(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var in services.ExpenseInput
	if !bindJSON(c, &in) {
		return
	}
	e, err := h.Expenses.Update(c.Request.Context(), middleware.ActorFrom(c), id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Gasto actualizado exitosamente", e)
}

func (h *API) DeleteExpense(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.Expenses.Delete(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Gasto eliminado exitosamente", nil)
}

// --- GET: /api/expenses/stats/summary?startDate=&endDate= ---
func (h *API) ExpenseSummary(c *gin.Context) {
	start, end, valid := dateRange(c, "startDate", "endDate")
	if !valid {
		return
	}
	sum, err := h.Expenses.Summary(c.Request.Context(), middleware.ActorFrom(c).TenantID, start, end)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "", sum)
}
