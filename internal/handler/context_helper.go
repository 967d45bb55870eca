package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/easypass/easypass-api/internal/middleware"
	"github.com/easypass/easypass-api/internal/models"
)

// claimsFromContext returns the JWT claims the auth middleware stored, or
// nil on unauthenticated requests (possible behind OptionalJWT).
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	if claims, ok := value.(*models.JWTClaims); ok {
		return claims
	}
	return nil
}
