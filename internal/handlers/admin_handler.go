package handlers

import (
	"net/http"

	"restopos/internal/middleware"

	"github.com/gin-gonic/gin"
)

func (h *API) ListStaff(c *gin.Context) {
	rels, err := h.Auth.ListStaff(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	okList(c, rels)
}

type addStaffRequest struct {
	StaffID uint `json:"meseroId" binding:"required"`
}

func (h *API) AddStaff(c *gin.Context) {
	var in addStaffRequest
	if !bindJSON(c, &in) {
		return
	}
	rel, err := h.Auth.AddStaff(c.Request.Context(), middleware.ActorFrom(c), in.StaffID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, "Mesero asignado", rel)
}

type updateStaffRequest struct {
	Permissions map[string]bool `json:"permisos" binding:"required"`
}

func (h *API) UpdateStaff(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var in updateStaffRequest
	if !bindJSON(c, &in) {
		return
	}
	rel, err := h.Auth.UpdateStaffPermissions(c.Request.Context(), middleware.ActorFrom(c), id, in.Permissions)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Permisos actualizados", rel)
}

func (h *API) RemoveStaff(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.Auth.RemoveStaff(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Mesero removido", nil)
}

// MyPermissions lets any staff member read their own flags.
func (h *API) MyPermissions(c *gin.Context) {
	actor := middleware.ActorFrom(c)
	if actor.IsAdmin() {
		ok(c, http.StatusOK, "", gin.H{"admin": true})
		return
	}
	perms, err := h.Auth.Permissions(c.Request.Context(), actor)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "", perms)
}
