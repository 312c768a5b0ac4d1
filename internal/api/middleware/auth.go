package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gmarko-dV/Integrador/internal/auth"
)

// ContextKeyPrincipal holds the authenticated auth.Principal in Gin context.
const ContextKeyPrincipal = "principal"

// TokenVerifier resolves a bearer token to a principal. Implemented by
// *auth.Verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.Principal, error)
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Usuario no autenticado"})
			return
		}

		principal, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token inválido o expirado"})
			return
		}
		if _, err := auth.UserID(principal); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No se pudo obtener el ID del usuario"})
			return
		}

		c.Set(ContextKeyPrincipal, principal)
		c.Next()
	}
}

// OptionalAuth attaches the principal when a valid token is present and
// lets the request through either way.
func OptionalAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if principal, err := verifier.Verify(c.Request.Context(), token); err == nil {
				c.Set(ContextKeyPrincipal, principal)
			}
		}
		c.Next()
	}
}

// Principal returns the caller's principal, or nil for anonymous requests.
func Principal(c *gin.Context) auth.Principal {
	v, exists := c.Get(ContextKeyPrincipal)
	if !exists {
		return nil
	}
	p, _ := v.(auth.Principal)
	return p
}

// CallerID returns the stable user id of the caller.
func CallerID(c *gin.Context) (string, error) {
	v, exists := c.Get(ContextKeyPrincipal)
	if !exists {
		return auth.UserID(nil)
	}
	return auth.UserID(v)
}
