package handlers

import (
	"net/http"
	"strconv"

	"restopos/internal/middleware"
	"restopos/internal/services"

	"github.com/gin-gonic/gin"
)

// --- GET: /api/products?categoria=&disponible=&buscar= ---
func (h *API) ListProducts(c *gin.Context) {
	f := services.ProductFilter{Category: c.Query("categoria"), Search: c.Query("buscar")}
	if raw := c.Query("disponible"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, "Filtro de disponibilidad no válido")
			return
		}
		f.Available = &v
	}
	products, err := h.Catalog.ListProducts(c.Request.Context(), middleware.ActorFrom(c).TenantID, f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	okList(c, products)
}

// --- GET: /api/products/public/restaurante?restaurante=&sede= ---
func (h *API) PublicProducts(c *gin.Context) {
	restaurant := c.Query("restaurante")
	if restaurant == "" {
		fail(c, http.StatusBadRequest, "El nombre del restaurante es requerido")
		return
	}
	products, err := h.Catalog.PublicProducts(c.Request.Context(), restaurant, c.Query("sede"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	okList(c, products)
}

func (h *API) GetProduct(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	p, err := h.Catalog.GetProduct(c.Request.Context(), middleware.ActorFrom(c).TenantID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "", p)
}

// --- POST: Add a new product ---
func (h *API) CreateProduct(c *gin.Context) {
	var in services.ProductInput
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.Catalog.CreateProduct(c.Request.Context(), middleware.ActorFrom(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, "Producto creado exitosamente", p)
}

// --- PUT: partial update, only the fields sent change ---
func (h *API) UpdateProduct(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var in services.ProductInput
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.Catalog.UpdateProduct(c.Request.Context(), middleware.ActorFrom(c), id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Producto actualizado exitosamente", p)
}

type availabilityRequest struct {
	Available *bool `json:"disponible" binding:"required"`
}

func (h *API) SetAvailability(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var in availabilityRequest
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.Catalog.SetAvailability(c.Request.Context(), middleware.ActorFrom(c), id, *in.Available)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Disponibilidad actualizada", p)
}

// --- DELETE: Remove a product. Past orders keep their snapshot. ---
func (h *API) DeleteProduct(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.Catalog.DeleteProduct(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Producto eliminado exitosamente", nil)
}

// --- ALIMENTOS ---

func (h *API) ListIngredients(c *gin.Context) {
	ings, err := h.Catalog.ListIngredients(c.Request.Context(), middleware.ActorFrom(c).TenantID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	okList(c, ings)
}

func (h *API) PublicIngredients(c *gin.Context) {
	restaurant := c.Query("restaurante")
	if restaurant == "" {
		fail(c, http.StatusBadRequest, "El nombre del restaurante es requerido")
		return
	}
	ings, err := h.Catalog.PublicIngredients(c.Request.Context(), restaurant, c.Query("sede"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	okList(c, ings)
}

func (h *API) GetIngredient(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	ing, err := h.Catalog.GetIngredient(c.Request.Context(), middleware.ActorFrom(c).TenantID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "", ing)
}

// IngredientMovements returns the stock audit trail, ?limit= rows.
func (h *API) IngredientMovements(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	tenantID := middleware.ActorFrom(c).TenantID
	if _, err := h.Catalog.GetIngredient(c.Request.Context(), tenantID, id); err != nil {
		h.respondError(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	moves, err := h.Stock.Movements(c.Request.Context(), tenantID, id, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	okList(c, moves)
}

func (h *API) CreateIngredient(c *gin.Context) {
	var in services.IngredientInput
	if !bindJSON(c, &in) {
		return
	}
	ing, err := h.Catalog.CreateIngredient(c.Request.Context(), middleware.ActorFrom(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, "Alimento creado exitosamente", ing)
}

func (h *API) UpdateIngredient(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var in services.IngredientInput
	if !bindJSON(c, &in) {
		return
	}
	ing, err := h.Catalog.UpdateIngredient(c.Request.Context(), middleware.ActorFrom(c), id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Alimento actualizado exitosamente", ing)
}

func (h *API) DeleteIngredient(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.Catalog.DeleteIngredient(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Alimento eliminado exitosamente", nil)
}
