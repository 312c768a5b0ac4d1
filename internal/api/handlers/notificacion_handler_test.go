package handlers_test

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/gmarko-dV/Integrador/internal/api/handlers"
	"github.com/gmarko-dV/Integrador/internal/auth"
	"github.com/gmarko-dV/Integrador/internal/models"
	"github.com/gmarko-dV/Integrador/internal/services"
)

func notificacionEngine(svc *MockNotificacionService, p auth.Principal) *gin.Engine {
	h := handlers.NewNotificacionHandler(svc)
	r := newEngine(p)
	r.POST("/api/notificaciones/contactar", h.Contactar)
	r.GET("/api/notificaciones", h.List)
	r.GET("/api/notificaciones/no-leidas", h.Unread)
	r.PUT("/api/notificaciones/marcar-todas-leidas", h.MarkAllRead)
	r.PUT("/api/notificaciones/:id/marcar-leida", h.MarkRead)
	return r
}

func TestNotificacionHandler_Contactar(t *testing.T) {
	svc := new(MockNotificacionService)
	r := notificacionEngine(svc, principalFor("buyer", "buyer@uni.edu.pe", "Bruno"))
	svc.On("Create", mock.Anything, services.NewNotificacion{
		AnuncioID:       10,
		VendedorID:      "seller",
		CompradorID:     "buyer",
		NombreComprador: "Bruno",
		EmailComprador:  "buyer@uni.edu.pe",
	}).Return(&models.Notificacion{ID: 1, Titulo: "Interés en tu anuncio: Kia Rio 2019"}, nil)

	w := serve(r, jsonRequest(http.MethodPost, "/api/notificaciones/contactar", `{"idAnuncio":10,"idVendedor":"seller"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Notificación enviada exitosamente")
	assert.Contains(t, w.Body.String(), "Interés en tu anuncio: Kia Rio 2019")
	svc.AssertExpectations(t)
}

func TestNotificacionHandler_Contactar_Validation(t *testing.T) {
	svc := new(MockNotificacionService)
	r := notificacionEngine(svc, principalFor("buyer", "", ""))

	w := serve(r, jsonRequest(http.MethodPost, "/api/notificaciones/contactar", `{"idAnuncio":10}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"ID del vendedor es requerido"}`, w.Body.String())

	w = serve(r, jsonRequest(http.MethodPost, "/api/notificaciones/contactar", `{"idVendedor":"seller"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"ID del anuncio es requerido"}`, w.Body.String())

	svc.On("Create", mock.Anything, mock.Anything).
		Return(nil, &services.Error{Kind: services.ErrNotOwner, Message: "El vendedor no es el propietario del anuncio"})
	w = serve(r, jsonRequest(http.MethodPost, "/api/notificaciones/contactar", `{"idAnuncio":10,"idVendedor":"otro"}`))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestNotificacionHandler_Unread(t *testing.T) {
	svc := new(MockNotificacionService)
	r := notificacionEngine(svc, principalFor("seller", "", ""))
	svc.On("Unread", mock.Anything, "seller").Return([]models.Notificacion{{ID: 1}, {ID: 2}}, nil)
	svc.On("UnreadCount", mock.Anything, "seller").Return(int64(2), nil)

	w := serve(r, httptestRequest(http.MethodGet, "/api/notificaciones/no-leidas"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cantidadNoLeidas":2`)
	svc.AssertExpectations(t)
}

func TestNotificacionHandler_MarkRead(t *testing.T) {
	svc := new(MockNotificacionService)
	r := notificacionEngine(svc, principalFor("seller", "", ""))
	svc.On("MarkRead", mock.Anything, int64(1), "seller").Return(nil)
	svc.On("MarkRead", mock.Anything, int64(2), "seller").
		Return(&services.Error{Kind: services.ErrForbidden, Message: "No tienes permiso para marcar esta notificación"})
	svc.On("MarkAllRead", mock.Anything, "seller").Return(int64(4), nil)
	svc.On("ListByVendedor", mock.Anything, "seller").Return([]models.Notificacion{}, nil)

	w := serve(r, httptestRequest(http.MethodPut, "/api/notificaciones/1/marcar-leida"))
	assert.JSONEq(t, `{"success":true,"message":"Notificación marcada como leída"}`, w.Body.String())

	w = serve(r, httptestRequest(http.MethodPut, "/api/notificaciones/2/marcar-leida"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(r, httptestRequest(http.MethodPut, "/api/notificaciones/marcar-todas-leidas"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"actualizadas":4`)

	w = serve(r, httptestRequest(http.MethodGet, "/api/notificaciones"))
	assert.JSONEq(t, `{"success":true,"notificaciones":[]}`, w.Body.String())
}
