package handlers

import (
	"net/http"

	"restopos/internal/middleware"

	"github.com/gin-gonic/gin"
)

type AskRequest struct {
	Message string `json:"message" binding:"required"`
}

func (h *API) AskAI(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "El mensaje es obligatorio")
		return
	}

	reply, err := h.Agent.Ask(c.Request.Context(), middleware.ActorFrom(c).TenantID, req.Message)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "", gin.H{"reply": reply})
}
