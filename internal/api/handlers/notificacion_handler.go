package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gmarko-dV/Integrador/internal/api/middleware"
	"github.com/gmarko-dV/Integrador/internal/auth"
	"github.com/gmarko-dV/Integrador/internal/services"
)

type NotificacionHandler struct {
	notificaciones services.INotificacionService
}

func NewNotificacionHandler(notificaciones services.INotificacionService) *NotificacionHandler {
	return &NotificacionHandler{notificaciones: notificaciones}
}

type contactarRequest struct {
	AnuncioID  int64  `json:"idAnuncio"`
	VendedorID string `json:"idVendedor"`
	Mensaje    string `json:"mensaje"`
}

// Contactar handles POST /api/notificaciones/contactar. The caller is the
// interested buyer.
func (h *NotificacionHandler) Contactar(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req contactarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cuerpo de la solicitud inválido"})
		return
	}
	if strings.TrimSpace(req.VendedorID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID del vendedor es requerido"})
		return
	}
	if req.AnuncioID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID del anuncio es requerido"})
		return
	}

	principal := middleware.Principal(c)
	notificacion, err := h.notificaciones.Create(c.Request.Context(), services.NewNotificacion{
		AnuncioID:       req.AnuncioID,
		VendedorID:      req.VendedorID,
		CompradorID:     userID,
		NombreComprador: auth.Name(principal),
		EmailComprador:  auth.Email(principal),
		Mensaje:         req.Mensaje,
	})
	if err != nil {
		respondError(c, err, "Error al enviar la notificación")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Notificación enviada exitosamente",
		"notificacion": notificacion,
	})
}

// List handles GET /api/notificaciones.
func (h *NotificacionHandler) List(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	notificaciones, err := h.notificaciones.ListByVendedor(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Error al obtener notificaciones")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "notificaciones": notificaciones})
}

// Unread handles GET /api/notificaciones/no-leidas.
func (h *NotificacionHandler) Unread(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	notificaciones, err := h.notificaciones.Unread(ctx, userID)
	if err != nil {
		respondError(c, err, "Error al obtener notificaciones")
		return
	}
	count, err := h.notificaciones.UnreadCount(ctx, userID)
	if err != nil {
		respondError(c, err, "Error al obtener notificaciones")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"notificaciones":   notificaciones,
		"cantidadNoLeidas": count,
	})
}

// MarkRead handles PUT /api/notificaciones/:id/marcar-leida.
func (h *NotificacionHandler) MarkRead(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.notificaciones.MarkRead(c.Request.Context(), id, userID); err != nil {
		respondError(c, err, "Error al marcar la notificación")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Notificación marcada como leída"})
}

// MarkAllRead handles PUT /api/notificaciones/marcar-todas-leidas.
func (h *NotificacionHandler) MarkAllRead(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	updated, err := h.notificaciones.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Error al marcar las notificaciones")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Todas las notificaciones marcadas como leídas",
		"actualizadas": updated,
	})
}
