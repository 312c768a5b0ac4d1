package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gmarko-dV/Integrador/internal/api/middleware"
	"github.com/gmarko-dV/Integrador/internal/auth"
)

const serviceName = "Integrador Backend"

// PublicHandler serves the unauthenticated informational endpoints and the
// caller identity endpoints.
type PublicHandler struct {
	authEndpoint string
}

// NewPublicHandler creates a PublicHandler. authEndpoint is advertised to
// clients as the place to sign in.
func NewPublicHandler(authEndpoint string) *PublicHandler {
	return &PublicHandler{authEndpoint: authEndpoint}
}

// Health handles GET /api/public/health.
func (h *PublicHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK", "service": serviceName})
}

// Info handles GET /api/public/info.
func (h *PublicHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":       "API pública disponible",
		"auth_endpoint": h.authEndpoint,
	})
}

func userPayload(p auth.Principal, id string) gin.H {
	return gin.H{
		"id":      id,
		"name":    auth.Name(p),
		"email":   auth.Email(p),
		"picture": auth.Picture(p),
	}
}

// User handles GET /api/auth/user.
func (h *PublicHandler) User(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, userPayload(middleware.Principal(c), userID))
}

// Check handles GET /api/auth/check behind OptionalAuth.
func (h *PublicHandler) Check(c *gin.Context) {
	principal := middleware.Principal(c)
	userID, err := auth.UserID(principal)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user":          userPayload(principal, userID),
	})
}
