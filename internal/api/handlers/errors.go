package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gmarko-dV/Integrador/internal/api/middleware"
	"github.com/gmarko-dV/Integrador/internal/auth"
	"github.com/gmarko-dV/Integrador/internal/services"
)

// statusFor maps an error kind to an HTTP status. ok is false for errors
// that carry no kind.
func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrUnsupportedPrincipal):
		return http.StatusUnauthorized, true
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, true
	case errors.Is(err, services.ErrForbidden), errors.Is(err, services.ErrNotOwner):
		return http.StatusForbidden, true
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, services.ErrUpstream), errors.Is(err, services.ErrEmptyResponse), errors.Is(err, services.ErrMalformedPayload):
		return http.StatusBadGateway, true
	}
	return 0, false
}

// respondError writes {"error": ...}. Domain errors carry their own
// message; anything else is logged through c.Error and answered with
// fallback.
func respondError(c *gin.Context, err error, fallback string) {
	status, ok := statusFor(err)
	if !ok {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
		return
	}

	message := err.Error()
	var domainErr *services.Error
	switch {
	case errors.As(err, &domainErr):
		message = domainErr.Message
	case status == http.StatusUnauthorized:
		message = "Usuario no autenticado"
	}
	c.JSON(status, gin.H{"error": message})
}

// callerID resolves the caller or writes a 401 and returns false.
func callerID(c *gin.Context) (string, bool) {
	userID, err := middleware.CallerID(c)
	if err != nil {
		respondError(c, err, "Usuario no autenticado")
		return "", false
	}
	return userID, true
}

// pathID parses a numeric path parameter or writes a 400.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID inválido"})
		return 0, false
	}
	return id, true
}
