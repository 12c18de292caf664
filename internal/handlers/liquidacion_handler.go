package handlers

import (
	"net/http"

	"restopos/internal/middleware"
	"restopos/internal/services"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// --- GET: /api/liquidaciones?startDate=&endDate= ---
func (h *API) ListLiquidaciones(c *gin.Context) {
	start, end, valid := dateRange(c, "startDate", "endDate")
	if !valid {
		return
	}
	list, err := h.Liquidacion.List(c.Request.Context(), middleware.ActorFrom(c).TenantID, start, end)
	if err != nil {
		h.respondError(c, err)
		return
	}
	okList(c, list)
}

// --- GET: /api/liquidaciones/pendientes ---
// Preview only; nothing is flagged.
func (h *API) PendingLiquidacion(c *gin.Context) {
	p, err := h.Liquidacion.Pending(c.Request.Context(), middleware.ActorFrom(c).TenantID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "", p)
}

// --- POST: /api/liquidaciones ---
func (h *API) CloseLiquidacion(c *gin.Context) {
	var in services.CloseInput
	if !bindJSON(c, &in) {
		return
	}
	l, err := h.Liquidacion.Close(c.Request.Context(), middleware.ActorFrom(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, "Liquidación creada exitosamente", l)
}

func (h *API) LatestLiquidacion(c *gin.Context) {
	l, err := h.Liquidacion.Latest(c.Request.Context(), middleware.ActorFrom(c).TenantID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if l == nil {
		// First day: nothing closed yet.
		c.JSON(http.StatusOK, gin.H{"success": true, "data": nil})
		return
	}
	ok(c, http.StatusOK, "", l)
}

func (h *API) LiquidacionStats(c *gin.Context) {
	start, end, valid := dateRange(c, "startDate", "endDate")
	if !valid {
		return
	}
	st, err := h.Liquidacion.Stats(c.Request.Context(), middleware.ActorFrom(c).TenantID, start, end)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "", st)
}

func (h *API) GetLiquidacion(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	l, err := h.Liquidacion.Get(c.Request.Context(), middleware.ActorFrom(c).TenantID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "", l)
}

// ExportLiquidacion downloads the batch as an XLSX workbook.
func (h *API) ExportLiquidacion(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	l, buf, err := h.Liquidacion.Export(c.Request.Context(), middleware.ActorFrom(c).TenantID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+services.ExportFilename(l)+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
