package handlers

import (
	"net/http"
	"strconv"

	"restopos/internal/middleware"
	"restopos/internal/notify"
	"restopos/internal/services"

	"github.com/gin-gonic/gin"
)

type pushRegisterRequest struct {
	Token      string              `json:"token"`
	Table      services.FlexString `json:"mesa"`
	Restaurant string              `json:"restaurante"`
	Site       string              `json:"sede"`
}

// --- POST: /api/push/register (public, called by the tracking page) ---
func (h *API) RegisterPush(c *gin.Context) {
	var in pushRegisterRequest
	if !bindJSON(c, &in) {
		return
	}
	tok, err := h.Push.Register(c.Request.Context(), notify.RegisterInput{
		Token:      in.Token,
		Table:      in.Table.String(),
		Restaurant: in.Restaurant,
		Site:       in.Site,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Token registrado exitosamente", tok)
}

type pushTokenRequest struct {
	Token string `json:"token"`
}

func (h *API) UnregisterPush(c *gin.Context) {
	var in pushTokenRequest
	if !bindJSON(c, &in) {
		return
	}
	if err := h.Push.Unregister(c.Request.Context(), in.Token); err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Token desregistrado", nil)
}

func (h *API) TestPush(c *gin.Context) {
	var in pushTokenRequest
	if !bindJSON(c, &in) {
		return
	}
	if err := h.Push.SendTest(c.Request.Context(), in.Token); err != nil {
		if err == notify.ErrMissingFields {
			h.respondError(c, err)
			return
		}
		h.log.Warn("test push failed", "error", err)
		fail(c, http.StatusBadGateway, "No se pudo enviar la notificación de prueba")
		return
	}
	ok(c, http.StatusOK, "Notificación de prueba enviada", nil)
}

// --- GET: /api/mesas/:mesa/qr?size= ---
// PNG for the caller's own restaurant.
func (h *API) TableQR(c *gin.Context) {
	user, err := h.Auth.Me(c.Request.Context(), middleware.ActorFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if user.Tenant == nil {
		fail(c, http.StatusBadRequest, "El usuario no pertenece a ningún restaurante")
		return
	}
	size, _ := strconv.Atoi(c.Query("size"))
	png, err := h.Push.TableQR(c.Param("mesa"), user.Tenant.Name, user.Tenant.Site, size)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, "image/png", png)
}
