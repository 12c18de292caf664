package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"restopos/internal/ai"
	"restopos/internal/mandao"
	"restopos/internal/notify"
	"restopos/internal/services"

	"github.com/gin-gonic/gin"
)

// envelope is the shape of every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(c *gin.Context, code int, message string, data any) {
	c.JSON(code, envelope{Success: true, Message: message, Data: data})
}

func okList[T any](c *gin.Context, items []T) {
	if items == nil {
		items = []T{}
	}
	n := len(items)
	c.JSON(http.StatusOK, envelope{Success: true, Data: items, Count: &n})
}

func fail(c *gin.Context, code int, message string) {
	c.JSON(code, envelope{Success: false, Message: message})
}

// respondError maps service errors onto status codes. Anything unexpected
// is logged and answered with a generic 500.
func (h *API) respondError(c *gin.Context, err error) {
	var (
		validation *services.ValidationError
		stock      *services.InsufficientStockError
		blocked    *services.BlockedError
	)
	switch {
	case errors.As(err, &validation):
		fail(c, http.StatusBadRequest, validation.Message)
	case errors.As(err, &stock):
		c.JSON(http.StatusBadRequest, envelope{Success: false, Message: stock.Error(), Data: stock})
	case errors.As(err, &blocked):
		c.JSON(http.StatusForbidden, gin.H{
			"success":       false,
			"message":       blocked.Error(),
			"bloqueado":     true,
			"motivoBloqueo": blocked.Reason,
		})
	case errors.Is(err, notify.ErrMissingFields):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrUnauthorized), errors.Is(err, mandao.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, "Credenciales inválidas")
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrConflict):
		fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, mandao.ErrUnavailable):
		fail(c, http.StatusServiceUnavailable, "Mandao no está disponible, intente más tarde")
	case errors.Is(err, ai.ErrNotConfigured):
		fail(c, http.StatusServiceUnavailable, "El asistente no está configurado")
	default:
		h.log.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", c.GetString("requestID"),
			"error", err)
		c.JSON(http.StatusInternalServerError, envelope{Success: false, Message: "Error interno del servidor"})
	}
}

// idParam parses a positive numeric path parameter, answering 400 itself
// when it is malformed.
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, "ID no válido")
		return 0, false
	}
	return uint(id), true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, http.StatusBadRequest, "Datos de entrada no válidos")
		return false
	}
	return true
}

const dateLayout = "2006-01-02"

// dateRange reads YYYY-MM-DD query parameters. The end date is inclusive;
// missing values stay zero.
func dateRange(c *gin.Context, startKey, endKey string) (start, end time.Time, valid bool) {
	if s := c.Query(startKey); s != "" {
		t, err := time.ParseInLocation(dateLayout, s, time.Local)
		if err != nil {
			fail(c, http.StatusBadRequest, "Fecha no válida, use el formato AAAA-MM-DD")
			return start, end, false
		}
		start = t
	}
	if s := c.Query(endKey); s != "" {
		t, err := time.ParseInLocation(dateLayout, s, time.Local)
		if err != nil {
			fail(c, http.StatusBadRequest, "Fecha no válida, use el formato AAAA-MM-DD")
			return start, end, false
		}
		end = t.Add(24*time.Hour - time.Nanosecond)
	}
	return start, end, true
}
