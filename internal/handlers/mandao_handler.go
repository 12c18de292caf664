package handlers

import (
	"net/http"

	"restopos/internal/middleware"
	"restopos/internal/services"

	"github.com/gin-gonic/gin"
)

// --- POST: /api/mandao/order ---
// Replays of the same mandaoOrderId answer 200 with the existing order.
func (h *API) MandaoOrder(c *gin.Context) {
	var in services.ExternalOrderInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.Orders.CreateExternal(c.Request.Context(), middleware.ActorFrom(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !res.Created {
		ok(c, http.StatusOK, "Pedido ya registrado", res.Order)
		return
	}
	ok(c, http.StatusCreated, "Pedido de Mandao recibido", res.Order)
}

// --- GET: /api/mandao/products ---
func (h *API) MandaoProducts(c *gin.Context) {
	products, err := h.Catalog.CatalogWithAvailability(c.Request.Context(), middleware.ActorFrom(c).TenantID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	okList(c, products)
}
