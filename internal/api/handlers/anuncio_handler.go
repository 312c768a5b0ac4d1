package handlers

import (
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gmarko-dV/Integrador/internal/api/middleware"
	"github.com/gmarko-dV/Integrador/internal/auth"
	"github.com/gmarko-dV/Integrador/internal/services"
)

const numericFormatError = "Error en el formato de los datos numéricos"

// AnuncioHandler handles the listing endpoints.
type AnuncioHandler struct {
	anuncios      services.IAnuncioService
	allowedDomain string
}

// NewAnuncioHandler creates an AnuncioHandler. allowedDomain restricts who
// may publish; empty allows everyone.
func NewAnuncioHandler(anuncios services.IAnuncioService, allowedDomain string) *AnuncioHandler {
	return &AnuncioHandler{anuncios: anuncios, allowedDomain: allowedDomain}
}

func uploadFrom(fh *multipart.FileHeader) services.Upload {
	return services.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// bindAnuncioForm reads the multipart text fields.
func bindAnuncioForm(c *gin.Context) (services.AnuncioInput, bool) {
	in := services.AnuncioInput{
		Modelo:           c.PostForm("modelo"),
		Descripcion:      c.PostForm("descripcion"),
		TipoVehiculo:     c.PostForm("tipoVehiculo"),
		EmailContacto:    strings.TrimSpace(c.PostForm("emailContacto")),
		TelefonoContacto: strings.TrimSpace(c.PostForm("telefonoContacto")),
	}

	var err error
	if in.Anio, err = strconv.Atoi(strings.TrimSpace(c.PostForm("anio"))); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": numericFormatError + ": anio"})
		return in, false
	}
	if in.Kilometraje, err = strconv.Atoi(strings.TrimSpace(c.PostForm("kilometraje"))); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": numericFormatError + ": kilometraje"})
		return in, false
	}
	if in.Precio, err = strconv.ParseFloat(strings.TrimSpace(c.PostForm("precio")), 64); err != nil || math.IsNaN(in.Precio) || math.IsInf(in.Precio, 0) {
		c.JSON(http.StatusBadRequest, gin.H{"error": numericFormatError + ": precio"})
		return in, false
	}
	if raw := strings.TrimSpace(c.PostForm("idCategoria")); raw != "" {
		categoria, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": numericFormatError + ": idCategoria"})
			return in, false
		}
		in.CategoriaID = &categoria
	}
	return in, true
}

// Create handles POST /api/anuncios (multipart).
func (h *AnuncioHandler) Create(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	if err := services.CheckEmailDomain(auth.Email(middleware.Principal(c)), h.allowedDomain); err != nil {
		respondError(c, err, "")
		return
	}

	in, ok := bindAnuncioForm(c)
	if !ok {
		return
	}

	imagen1, err := c.FormFile("imagen1")
	if err != nil || imagen1.Size == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "La primera imagen es requerida"})
		return
	}
	imagen2, err := c.FormFile("imagen2")
	if err != nil || imagen2.Size == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "La segunda imagen es requerida"})
		return
	}

	anuncio, err := h.anuncios.Create(c.Request.Context(), userID, in,
		[]services.Upload{uploadFrom(imagen1), uploadFrom(imagen2)})
	if err != nil {
		respondError(c, err, "Error al crear el anuncio")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Anuncio creado exitosamente",
		"anuncio": anuncio,
	})
}

// Update handles PUT /api/anuncios/:id (multipart, images optional).
func (h *AnuncioHandler) Update(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	in, ok := bindAnuncioForm(c)
	if !ok {
		return
	}

	var uploads []services.Upload
	for _, field := range []string{"imagen1", "imagen2"} {
		if fh, err := c.FormFile(field); err == nil {
			uploads = append(uploads, uploadFrom(fh))
		}
	}

	anuncio, err := h.anuncios.Update(c.Request.Context(), id, userID, in, uploads)
	if err != nil {
		respondError(c, err, "Error al actualizar el anuncio")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Anuncio actualizado exitosamente",
		"anuncio": anuncio,
	})
}

// ListActive handles GET /api/anuncios.
func (h *AnuncioHandler) ListActive(c *gin.Context) {
	anuncios, err := h.anuncios.ListActive(c.Request.Context())
	if err != nil {
		respondError(c, err, "Error al obtener los anuncios")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "anuncios": anuncios})
}

// ListMine handles GET /api/anuncios/mis-anuncios.
func (h *AnuncioHandler) ListMine(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	anuncios, err := h.anuncios.ListByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Error al obtener los anuncios")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "anuncios": anuncios})
}

// GetByID handles GET /api/anuncios/:id.
func (h *AnuncioHandler) GetByID(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	anuncio, err := h.anuncios.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Error al obtener el anuncio")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "anuncio": anuncio})
}

// Delete handles DELETE /api/anuncios/:id.
func (h *AnuncioHandler) Delete(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.anuncios.Delete(c.Request.Context(), id, userID); err != nil {
		respondError(c, err, "Error al eliminar el anuncio")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Anuncio eliminado exitosamente"})
}
