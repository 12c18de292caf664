package handlers

import (
	"net/http"
	"strconv"

	"restopos/internal/middleware"
	"restopos/internal/models"
	"restopos/internal/services"

	"github.com/gin-gonic/gin"
)

// --- GET: /api/orders?estado=&mesa=&fecha=hoy|semana|mes ---
func (h *API) ListOrders(c *gin.Context) {
	f := services.OrderFilter{
		Status: models.OrderStatus(c.Query("estado")),
		Table:  c.Query("mesa"),
		Period: c.Query("fecha"),
	}
	orders, err := h.Orders.List(c.Request.Context(), middleware.ActorFrom(c).TenantID, f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	okList(c, orders)
}

// --- POST: /api/orders ---
// Stock is deducted in the same transaction; a shortfall rejects the order
// unless ignoreInsufficientStock is set.
func (h *API) CreateOrder(c *gin.Context) {
	var in services.CreateOrderInput
	if !bindJSON(c, &in) {
		return
	}
	order, err := h.Orders.Create(c.Request.Context(), middleware.ActorFrom(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, "Pedido creado exitosamente", order)
}

func (h *API) GetOrder(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	order, err := h.Orders.Get(c.Request.Context(), middleware.ActorFrom(c).TenantID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "", order)
}

func (h *API) UpdateOrder(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var in services.UpdateOrderInput
	if !bindJSON(c, &in) {
		return
	}
	order, err := h.Orders.Update(c.Request.Context(), middleware.ActorFrom(c), id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Pedido actualizado exitosamente", order)
}

func (h *API) DeleteOrder(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.Orders.Delete(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Pedido eliminado exitosamente", nil)
}

// --- PATCH: /api/orders/:id/estado ---
func (h *API) SetOrderStatus(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var in services.SetStatusInput
	if !bindJSON(c, &in) {
		return
	}
	actor := middleware.ActorFrom(c)
	if in.Status == models.StatusCancelado {
		if err := h.Auth.Can(c.Request.Context(), actor, models.PermCancelarPedidos); err != nil {
			h.respondError(c, err)
			return
		}
	}
	order, err := h.Orders.SetStatus(c.Request.Context(), actor, id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Estado actualizado", order)
}

// --- PATCH: /api/orders/:id/item/:itemIndex/estado ---
func (h *API) SetItemStatus(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	index, err := strconv.Atoi(c.Param("itemIndex"))
	if err != nil {
		fail(c, http.StatusBadRequest, "Índice de item no válido")
		return
	}
	var in services.SetItemStatusInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.Orders.SetItemStatus(c.Request.Context(), middleware.ActorFrom(c), id, index, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Estado del item actualizado", res)
}

func (h *API) OrderStats(c *gin.Context) {
	stats, err := h.Orders.Stats(c.Request.Context(), middleware.ActorFrom(c).TenantID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "", stats)
}

// --- GET: /api/orders/mesa/:numeroMesa?restaurante=&sede= (public) ---
func (h *API) TrackOrder(c *gin.Context) {
	restaurant := c.Query("restaurante")
	if restaurant == "" {
		fail(c, http.StatusBadRequest, "El nombre del restaurante es requerido")
		return
	}
	order, err := h.Orders.TrackByTable(c.Request.Context(), c.Param("numeroMesa"), restaurant, c.Query("sede"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "", order)
}
