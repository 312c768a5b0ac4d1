package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gmarko-dV/Integrador/internal/api/middleware"
	"github.com/gmarko-dV/Integrador/internal/auth"
	"github.com/gmarko-dV/Integrador/internal/services"
)

const (
	internalErrorMessage = "Error interno del servidor. Por favor, intenta nuevamente."
	invalidPlateMessage  = "Formato de placa inválido. Debe tener entre 6-7 caracteres alfanuméricos (ej: ABC123, T3V213)"
)

type PlateSearchHandler struct {
	plates services.IPlateSearchService
}

func NewPlateSearchHandler(plates services.IPlateSearchService) *PlateSearchHandler {
	return &PlateSearchHandler{plates: plates}
}

type plateSearchRequest struct {
	PlateNumber string `json:"plateNumber"`
	UserID      string `json:"userId"`
}

// Search handles POST /api/plate-search. Authentication is optional; the
// search is attributed to the body's userId, then the caller, then guest.
func (h *PlateSearchHandler) Search(c *gin.Context) {
	var req plateSearchRequest
	_ = c.ShouldBindJSON(&req)
	if strings.TrimSpace(req.PlateNumber) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "El número de placa es requerido"})
		return
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		if id, err := auth.UserID(middleware.Principal(c)); err == nil {
			userID = id
		}
	}
	if userID == "" {
		userID = services.GuestUserID
	}

	vehicle, err := h.plates.SearchPlate(c.Request.Context(), req.PlateNumber, userID)
	if err != nil {
		h.respondSearchError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Búsqueda realizada exitosamente",
		"vehicle": vehicle,
	})
}

func (h *PlateSearchHandler) respondSearchError(c *gin.Context, err error) {
	var domainErr *services.Error
	if !errors.As(err, &domainErr) {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": internalErrorMessage, "message": internalErrorMessage})
		return
	}

	status := http.StatusBadGateway
	switch {
	case strings.Contains(domainErr.Message, services.PlateSearchFailurePrefix), errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": domainErr.Message, "message": domainErr.Message})
}

// History handles GET /api/plate-search/history.
func (h *PlateSearchHandler) History(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	history, err := h.plates.SearchHistory(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, internalErrorMessage)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "history": history})
}

// Recent handles GET /api/plate-search/recent.
func (h *PlateSearchHandler) Recent(c *gin.Context) {
	vehicles, err := h.plates.RecentVehicles(c.Request.Context())
	if err != nil {
		respondError(c, err, internalErrorMessage)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "vehicles": vehicles})
}

// Validate handles GET /api/plate-search/validate/:plate.
func (h *PlateSearchHandler) Validate(c *gin.Context) {
	plate := strings.ToUpper(strings.TrimSpace(c.Param("plate")))
	resp := gin.H{"valid": services.ValidatePlateFormat(plate), "plate": plate}
	if !services.ValidatePlateFormat(plate) {
		resp["message"] = invalidPlateMessage
	}
	c.JSON(http.StatusOK, resp)
}

// Test handles GET /api/plate-search/test.
func (h *PlateSearchHandler) Test(c *gin.Context) {
	c.String(http.StatusOK, "Plate search API operativa")
}

// Raw handles GET /api/plate-search/raw/:placa and returns the upstream
// JSON untouched.
func (h *PlateSearchHandler) Raw(c *gin.Context) {
	raw, err := h.plates.RawLookup(c.Request.Context(), c.Param("placa"))
	if err != nil {
		msg := err.Error()
		var domainErr *services.Error
		if errors.As(err, &domainErr) {
			msg = domainErr.Message
		}
		c.String(http.StatusBadRequest, "Error: "+msg)
		return
	}
	c.String(http.StatusOK, "JSON crudo de la API:\n"+raw)
}
