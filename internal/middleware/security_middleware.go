package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"restopos/internal/auth"
	"restopos/internal/services"

	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

// MandaoSecretHeader carries the shared secret of the delivery platform.
const MandaoSecretHeader = "X-Mandao-Secret"

// Authenticator is the slice of the auth service the guards need.
type Authenticator interface {
	ValidateToken(token string) (*auth.Claims, error)
	Resolve(ctx context.Context, claims *auth.Claims) (services.Actor, error)
	Can(ctx context.Context, actor services.Actor, perm string) error
}

func abort(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"success": false, "message": message})
}

// bearerToken reads "Authorization: Bearer <token>". Websocket upgrades
// cannot set headers from a browser, so they may pass ?token= instead.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return c.Query("token")
	}
	return ""
}

// AuthMiddleware checks the JWT, reloads the user and stores the Actor in
// the context for the handlers.
func AuthMiddleware(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abort(c, http.StatusUnauthorized, "Token no proporcionado")
			return
		}
		claims, err := a.ValidateToken(token)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Token inválido o expirado")
			return
		}
		actor, err := a.Resolve(c.Request.Context(), claims)
		if err != nil {
			var blocked *services.BlockedError
			switch {
			case errors.As(err, &blocked):
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"success":       false,
					"message":       blocked.Error(),
					"bloqueado":     true,
					"motivoBloqueo": blocked.Reason,
				})
			case errors.Is(err, services.ErrUnauthorized):
				abort(c, http.StatusUnauthorized, "Token inválido o expirado")
			default:
				abort(c, http.StatusInternalServerError, "Error interno del servidor")
			}
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// ActorFrom returns the caller stored by AuthMiddleware.
func ActorFrom(c *gin.Context) services.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(services.Actor); ok {
			return actor
		}
	}
	return services.Actor{}
}

// RequireRole lets through only the listed roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := ActorFrom(c).Role
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "No tienes permiso para acceder a este recurso")
	}
}

// RequirePermission checks one delegated permission flag. Admins always
// pass.
func RequirePermission(a Authenticator, perm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := a.Can(c.Request.Context(), ActorFrom(c), perm)
		if err == nil {
			c.Next()
			return
		}
		if errors.Is(err, services.ErrForbidden) {
			abort(c, http.StatusForbidden, "No tienes permiso para realizar esta acción")
			return
		}
		abort(c, http.StatusInternalServerError, "Error interno del servidor")
	}
}

// MandaoSecret guards webhook routes with the shared secret.
func MandaoSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(MandaoSecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			abort(c, http.StatusUnauthorized, "Secreto de integración inválido")
			return
		}
		c.Next()
	}
}
