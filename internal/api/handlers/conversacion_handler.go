package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gmarko-dV/Integrador/internal/api/middleware"
	"github.com/gmarko-dV/Integrador/internal/auth"
	"github.com/gmarko-dV/Integrador/internal/logger"
	"github.com/gmarko-dV/Integrador/internal/services"
)

// ConversacionHandler handles buyer/seller messaging.
type ConversacionHandler struct {
	conversaciones services.IConversacionService
	notificaciones services.INotificacionService
	log            *zap.Logger
}

func NewConversacionHandler(conversaciones services.IConversacionService, notificaciones services.INotificacionService, log *zap.Logger) *ConversacionHandler {
	return &ConversacionHandler{
		conversaciones: conversaciones,
		notificaciones: notificaciones,
		log:            logger.OrNop(log),
	}
}

type createConversacionRequest struct {
	AnuncioID   int64  `json:"idAnuncio"`
	VendedorID  string `json:"idVendedor"`
	CompradorID string `json:"idComprador"`
	Mensaje     string `json:"mensaje"`
}

type sendMensajeRequest struct {
	Mensaje string `json:"mensaje"`
}

// CreateOrGet handles POST /api/conversaciones. When the buyer opens (or
// reopens) the conversation the seller is notified.
func (h *ConversacionHandler) CreateOrGet(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req createConversacionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AnuncioID <= 0 || req.VendedorID == "" || req.CompradorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idAnuncio, idVendedor e idComprador son requeridos"})
		return
	}
	if userID != req.VendedorID && userID != req.CompradorID {
		c.JSON(http.StatusForbidden, gin.H{"error": "No tienes permiso para crear esta conversación"})
		return
	}

	conversacion, err := h.conversaciones.CreateOrGet(c.Request.Context(), req.AnuncioID, req.VendedorID, req.CompradorID)
	if err != nil {
		respondError(c, err, "Error al crear/obtener conversación")
		return
	}

	if userID == req.CompradorID {
		principal := middleware.Principal(c)
		_, err := h.notificaciones.Create(c.Request.Context(), services.NewNotificacion{
			AnuncioID:       req.AnuncioID,
			VendedorID:      req.VendedorID,
			CompradorID:     req.CompradorID,
			NombreComprador: auth.Name(principal),
			EmailComprador:  auth.Email(principal),
			Mensaje:         req.Mensaje,
		})
		if err != nil {
			h.log.Warn("Failed to notify seller of new contact",
				zap.Int64("conversacion_id", conversacion.ID), zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "conversacion": conversacion})
}

// List handles GET /api/conversaciones. Only active conversations are
// returned unless activas=false.
func (h *ConversacionHandler) List(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	list := h.conversaciones.ListActiveByUser
	if c.Query("activas") == "false" {
		list = h.conversaciones.ListByUser
	}
	conversaciones, err := list(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Error al obtener conversaciones")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "conversaciones": conversaciones})
}

// Get handles GET /api/conversaciones/:id.
func (h *ConversacionHandler) Get(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	conversacion, err := h.conversaciones.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, err, "Error al obtener conversación")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "conversacion": conversacion})
}

// SendMessage handles POST /api/conversaciones/:id/mensajes.
func (h *ConversacionHandler) SendMessage(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req sendMensajeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "El mensaje no puede estar vacío"})
		return
	}

	mensaje, err := h.conversaciones.SendMessage(c.Request.Context(), id, userID, req.Mensaje)
	if err != nil {
		respondError(c, err, "Error al enviar mensaje")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "mensaje": mensaje})
}

// Messages handles GET /api/conversaciones/:id/mensajes.
func (h *ConversacionHandler) Messages(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	mensajes, err := h.conversaciones.Messages(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, err, "Error al obtener mensajes")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "mensajes": mensajes})
}

// MarkRead handles PUT /api/conversaciones/:id/mensajes/leer.
func (h *ConversacionHandler) MarkRead(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	updated, err := h.conversaciones.MarkRead(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, err, "Error al marcar mensajes como leídos")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Mensajes marcados como leídos",
		"actualizados": updated,
	})
}

// UnreadCount handles GET /api/conversaciones/mensajes/no-leidos.
func (h *ConversacionHandler) UnreadCount(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	count, err := h.conversaciones.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Error al contar mensajes no leídos")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cantidad": count})
}

// Archive handles PUT /api/conversaciones/:id/archivar.
func (h *ConversacionHandler) Archive(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.conversaciones.Archive(c.Request.Context(), id, userID); err != nil {
		respondError(c, err, "Error al archivar conversación")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Conversación archivada"})
}
