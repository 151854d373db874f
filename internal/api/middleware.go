package api

import (
	"strings"

	"backoffice-service/internal/auth"
	"backoffice-service/internal/models"
	"backoffice-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ctxClaims = "claims"

// authRequired verifies the bearer token and stores its claims on the
// request context
func (h *Handler) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := extractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortWithError(c, service.UnauthorizedError(service.CodeUnauthorized, "Access token required"))
			return
		}

		claims, err := h.tokens.Verify(token)
		if err != nil {
			h.logger.Debug("Token rejected", zap.Error(err))
			abortWithError(c, service.UnauthorizedError(service.CodeUnauthorized, "Invalid or expired token"))
			return
		}

		c.Set(ctxClaims, claims)
		c.Next()
	}
}

// adminRequired must run after authRequired. The role is re-read from the
// store so a deleted or demoted admin loses access before the token expires.
func (h *Handler) adminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFrom(c)
		if claims == nil || !claims.IsAdmin() {
			abortWithError(c, service.ForbiddenError("Admin access required"))
			return
		}

		user, err := h.accounts.Me(c.Request.Context(), claims.UserID)
		if err != nil {
			if service.AsError(err).Kind == service.KindNotFound {
				abortWithError(c, service.ForbiddenError("Admin access required"))
				return
			}
			abortWithError(c, err)
			return
		}
		if user.Role != models.RoleAdmin {
			abortWithError(c, service.ForbiddenError("Admin access required"))
			return
		}
		c.Next()
	}
}

func claimsFrom(c *gin.Context) *auth.Claims {
	v, ok := c.Get(ctxClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
