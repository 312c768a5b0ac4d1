package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"

	"github.com/gmarko-dV/Integrador/internal/api/middleware"
	"github.com/gmarko-dV/Integrador/internal/auth"
	"github.com/gmarko-dV/Integrador/internal/models"
	"github.com/gmarko-dV/Integrador/internal/services"
)

// --- Mocks ---

type MockAnuncioService struct {
	mock.Mock
}

func (m *MockAnuncioService) Create(ctx context.Context, userID string, in services.AnuncioInput, uploads []services.Upload) (*models.Anuncio, error) {
	args := m.Called(ctx, userID, in, uploads)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Anuncio), args.Error(1)
}

func (m *MockAnuncioService) Update(ctx context.Context, id int64, userID string, in services.AnuncioInput, uploads []services.Upload) (*models.Anuncio, error) {
	args := m.Called(ctx, id, userID, in, uploads)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Anuncio), args.Error(1)
}

func (m *MockAnuncioService) Delete(ctx context.Context, id int64, userID string) error {
	return m.Called(ctx, id, userID).Error(0)
}

func (m *MockAnuncioService) GetByID(ctx context.Context, id int64) (*models.Anuncio, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Anuncio), args.Error(1)
}

func (m *MockAnuncioService) ListByUser(ctx context.Context, userID string) ([]models.Anuncio, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Anuncio), args.Error(1)
}

func (m *MockAnuncioService) ListActive(ctx context.Context) ([]models.Anuncio, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Anuncio), args.Error(1)
}

type MockConversacionService struct {
	mock.Mock
}

func (m *MockConversacionService) Exists(ctx context.Context, anuncioID int64, vendedorID, compradorID string) (bool, error) {
	args := m.Called(ctx, anuncioID, vendedorID, compradorID)
	return args.Bool(0), args.Error(1)
}

func (m *MockConversacionService) CreateOrGet(ctx context.Context, anuncioID int64, vendedorID, compradorID string) (*models.Conversacion, error) {
	args := m.Called(ctx, anuncioID, vendedorID, compradorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversacion), args.Error(1)
}

func (m *MockConversacionService) ListByUser(ctx context.Context, userID string) ([]models.Conversacion, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Conversacion), args.Error(1)
}

func (m *MockConversacionService) ListActiveByUser(ctx context.Context, userID string) ([]models.Conversacion, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Conversacion), args.Error(1)
}

func (m *MockConversacionService) GetByID(ctx context.Context, id int64, userID string) (*models.Conversacion, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversacion), args.Error(1)
}

func (m *MockConversacionService) SendMessage(ctx context.Context, id int64, userID, text string) (*models.Mensaje, error) {
	args := m.Called(ctx, id, userID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Mensaje), args.Error(1)
}

func (m *MockConversacionService) Messages(ctx context.Context, id int64, userID string) ([]models.Mensaje, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Mensaje), args.Error(1)
}

func (m *MockConversacionService) MarkRead(ctx context.Context, id int64, userID string) (int64, error) {
	args := m.Called(ctx, id, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockConversacionService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockConversacionService) Archive(ctx context.Context, id int64, userID string) error {
	return m.Called(ctx, id, userID).Error(0)
}

type MockNotificacionService struct {
	mock.Mock
}

func (m *MockNotificacionService) Create(ctx context.Context, in services.NewNotificacion) (*models.Notificacion, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Notificacion), args.Error(1)
}

func (m *MockNotificacionService) ListByVendedor(ctx context.Context, vendedorID string) ([]models.Notificacion, error) {
	args := m.Called(ctx, vendedorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Notificacion), args.Error(1)
}

func (m *MockNotificacionService) Unread(ctx context.Context, vendedorID string) ([]models.Notificacion, error) {
	args := m.Called(ctx, vendedorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Notificacion), args.Error(1)
}

func (m *MockNotificacionService) UnreadCount(ctx context.Context, vendedorID string) (int64, error) {
	args := m.Called(ctx, vendedorID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNotificacionService) MarkRead(ctx context.Context, id int64, userID string) error {
	return m.Called(ctx, id, userID).Error(0)
}

func (m *MockNotificacionService) MarkAllRead(ctx context.Context, vendedorID string) (int64, error) {
	args := m.Called(ctx, vendedorID)
	return args.Get(0).(int64), args.Error(1)
}

type MockPlateSearchService struct {
	mock.Mock
}

func (m *MockPlateSearchService) SearchPlate(ctx context.Context, plate, userID string) (map[string]any, error) {
	args := m.Called(ctx, plate, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

func (m *MockPlateSearchService) SearchHistory(ctx context.Context, userID string) ([]models.HistorialBusqueda, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.HistorialBusqueda), args.Error(1)
}

func (m *MockPlateSearchService) RecentVehicles(ctx context.Context) ([]models.Vehiculo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Vehiculo), args.Error(1)
}

func (m *MockPlateSearchService) RawLookup(ctx context.Context, plate string) (string, error) {
	args := m.Called(ctx, plate)
	return args.String(0), args.Error(1)
}

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) ProcessMessage(ctx context.Context, message string, history []models.ChatMessage) (*models.ChatResponse, error) {
	args := m.Called(ctx, message, history)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatResponse), args.Error(1)
}

// --- Helpers ---

func principalFor(sub, email, name string) auth.Principal {
	return &auth.TokenPrincipal{Claims: jwt.MapClaims{"sub": sub, "email": email, "name": name}}
}

// asCaller installs p the way RequireAuth would. nil leaves the request
// anonymous.
func asCaller(p auth.Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p != nil {
			c.Set(middleware.ContextKeyPrincipal, p)
		}
		c.Next()
	}
}

func newEngine(p auth.Principal) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(asCaller(p))
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
