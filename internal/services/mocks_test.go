package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/gmarko-dV/Integrador/internal/db"
	"github.com/gmarko-dV/Integrador/internal/models"
)

type mockAnuncioService struct {
	mock.Mock
}

func (m *mockAnuncioService) Create(ctx context.Context, userID string, in AnuncioInput, uploads []Upload) (*models.Anuncio, error) {
	args := m.Called(ctx, userID, in, uploads)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Anuncio), args.Error(1)
}

func (m *mockAnuncioService) Update(ctx context.Context, id int64, userID string, in AnuncioInput, uploads []Upload) (*models.Anuncio, error) {
	args := m.Called(ctx, id, userID, in, uploads)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Anuncio), args.Error(1)
}

func (m *mockAnuncioService) Delete(ctx context.Context, id int64, userID string) error {
	return m.Called(ctx, id, userID).Error(0)
}

func (m *mockAnuncioService) GetByID(ctx context.Context, id int64) (*models.Anuncio, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Anuncio), args.Error(1)
}

func (m *mockAnuncioService) ListByUser(ctx context.Context, userID string) ([]models.Anuncio, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Anuncio), args.Error(1)
}

func (m *mockAnuncioService) ListActive(ctx context.Context) ([]models.Anuncio, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Anuncio), args.Error(1)
}

type mockPlacaAPI struct {
	mock.Mock
}

func (m *mockPlacaAPI) LookupPlate(ctx context.Context, plate string) (string, error) {
	args := m.Called(ctx, plate)
	return args.String(0), args.Error(1)
}

type mockJobs struct {
	mock.Mock
}

func (m *mockJobs) NotifyVendedor(ctx context.Context, to, subject, body string) error {
	return m.Called(ctx, to, subject, body).Error(0)
}

func (m *mockJobs) ProcessImage(ctx context.Context, anuncioID int64, url string) error {
	return m.Called(ctx, anuncioID, url).Error(0)
}

// insertTestAnuncio stores a minimal active listing owned by owner.
func insertTestAnuncio(t *testing.T, database *mongo.Database, id int64, owner string) *models.Anuncio {
	t.Helper()
	now := time.Now().UTC()
	a := &models.Anuncio{
		ID:                 id,
		UserID:             owner,
		Titulo:             "Toyota RAV4 2020",
		Modelo:             "Toyota RAV4",
		Anio:               2020,
		Kilometraje:        30000,
		Precio:             25000,
		Descripcion:        "Único dueño",
		EmailContacto:      "vendedor@uni.edu.pe",
		TipoVehiculo:       "SUV",
		Imagenes:           []models.Imagen{},
		FechaCreacion:      now,
		FechaActualizacion: now,
		Activo:             true,
	}
	_, err := database.Collection(db.AnunciosCollection).InsertOne(context.Background(), a)
	require.NoError(t, err)
	return a
}
