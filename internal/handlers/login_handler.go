package handlers

import (
	"net/http"
	"time"

	"restopos/internal/middleware"
	"restopos/internal/services"

	"github.com/gin-gonic/gin"
)

// --- POST: /api/auth/register ---
// Either founds a new restaurant (the caller becomes its admin) or files a
// staff request that an admin must approve.
func (h *API) Register(c *gin.Context) {
	var in services.RegisterInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.Auth.Register(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if res.RequiresApproval {
		ok(c, http.StatusCreated, "Solicitud enviada. Un administrador debe aprobar tu cuenta.", res)
		return
	}
	ok(c, http.StatusCreated, "Usuario registrado exitosamente", res)
}

// --- POST: /api/auth/login ---
func (h *API) Login(c *gin.Context) {
	var in services.LoginInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.Auth.Login(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Login exitoso", res)
}

// --- POST: /api/auth/login-mandao ---
func (h *API) LoginMandao(c *gin.Context) {
	var in services.LoginInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.Mandao.Login(c.Request.Context(), in.Username, in.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Login exitoso", res)
}

func (h *API) Verify(c *gin.Context) {
	user, err := h.Auth.Me(c.Request.Context(), middleware.ActorFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Token válido", gin.H{"valid": true, "usuario": user})
}

// Me returns the profile together with the effective permission flags.
func (h *API) Me(c *gin.Context) {
	actor := middleware.ActorFrom(c)
	user, err := h.Auth.Me(c.Request.Context(), actor.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	out := gin.H{"usuario": user}
	if !actor.IsAdmin() {
		if perms, err := h.Auth.Permissions(c.Request.Context(), actor); err == nil {
			out["permisos"] = perms
		}
	}
	ok(c, http.StatusOK, "", out)
}

func (h *API) Requests(c *gin.Context) {
	users, err := h.Auth.Requests(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	okList(c, users)
}

type decideRequest struct {
	UserID uint   `json:"userId" binding:"required"`
	Action string `json:"accion" binding:"required"`
}

func (h *API) DecideRequest(c *gin.Context) {
	var in decideRequest
	if !bindJSON(c, &in) {
		return
	}
	if err := h.Auth.DecideRequest(c.Request.Context(), middleware.ActorFrom(c), in.UserID, in.Action); err != nil {
		h.respondError(c, err)
		return
	}
	msg := "Solicitud aprobada"
	if in.Action == services.ActionReject {
		msg = "Solicitud rechazada"
	}
	ok(c, http.StatusOK, msg, nil)
}

// --- SUPERADMIN ---

func (h *API) ListUsers(c *gin.Context) {
	users, err := h.Auth.ListUsers(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	okList(c, users)
}

func (h *API) ToggleBlock(c *gin.Context) {
	id, valid := idParam(c, "userId")
	if !valid {
		return
	}
	tenant, err := h.Auth.ToggleBlock(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	msg := "Cuenta desbloqueada"
	if tenant.Blocked {
		msg = "Cuenta bloqueada"
	}
	ok(c, http.StatusOK, msg, tenant)
}

type paidUntilRequest struct {
	PaidUntil string `json:"fechaPago" binding:"required"`
}

func (h *API) SetPaidUntil(c *gin.Context) {
	id, valid := idParam(c, "userId")
	if !valid {
		return
	}
	var in paidUntilRequest
	if !bindJSON(c, &in) {
		return
	}
	t, err := time.Parse(time.RFC3339, in.PaidUntil)
	if err != nil {
		if t, err = time.ParseInLocation(dateLayout, in.PaidUntil, time.Local); err != nil {
			fail(c, http.StatusBadRequest, "Fecha de pago no válida")
			return
		}
	}
	tenant, err := h.Auth.SetPaidUntil(c.Request.Context(), id, t)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Fecha de pago actualizada", tenant)
}

func (h *API) ConfirmPayment(c *gin.Context) {
	id, valid := idParam(c, "userId")
	if !valid {
		return
	}
	tenant, err := h.Auth.ConfirmPayment(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Pago confirmado", tenant)
}
