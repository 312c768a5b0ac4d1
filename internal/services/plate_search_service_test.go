package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/gmarko-dV/Integrador/internal/db"
	"github.com/gmarko-dV/Integrador/internal/models"
	"github.com/gmarko-dV/Integrador/internal/utils"
)

const sampleVehicleJSON = `{
	"Description": "TOYOTA YARIS",
	"RegistrationYear": "Year: 2015",
	"CarMake": {"CurrentTextValue": "TOYOTA"},
	"CarModel": {"Code": 12, "Label": "YARIS"},
	"Owner": "JUAN PEREZ",
	"VIN": "JT123",
	"NumberOfSeats": 5,
	"ExtraField": "kept"
}`

func TestValidatePlateFormat(t *testing.T) {
	assert.True(t, ValidatePlateFormat("ABC123"))
	assert.True(t, ValidatePlateFormat("t3v213"))
	assert.True(t, ValidatePlateFormat("ABCD123"))
	assert.False(t, ValidatePlateFormat("AB12"))
	assert.False(t, ValidatePlateFormat("ABC-123"))
	assert.False(t, ValidatePlateFormat("ABCD1234"))
}

func TestPropertyString(t *testing.T) {
	bag := gjson.Parse(sampleVehicleJSON)
	assert.Equal(t, "TOYOTA YARIS", propertyString(bag, "Description"))
	assert.Equal(t, "TOYOTA", propertyString(bag, "CarMake"))
	assert.Equal(t, "YARIS", propertyString(bag, "CarModel"))
	assert.Equal(t, "5", propertyString(bag, "NumberOfSeats"))
	assert.Equal(t, "", propertyString(bag, "Missing"))
}

func TestParseRegistrationYear(t *testing.T) {
	assert.Equal(t, 2015, parseRegistrationYear("Year: 2015", 2026))
	assert.Equal(t, 2027, parseRegistrationYear("2027", 2026))
	assert.Nil(t, parseRegistrationYear("2028", 2026))
	assert.Nil(t, parseRegistrationYear("1899", 2026))
	assert.Nil(t, parseRegistrationYear("sin año", 2026))
}

func TestVehicleInfo_DefaultsAndNulls(t *testing.T) {
	info := vehicleInfo(gjson.Parse(`{"Make":"KIA"}`), "abc123", 2026)
	assert.Equal(t, "ABC123", info["placa"])
	assert.Equal(t, "KIA", info["marca"])
	assert.Equal(t, "No especificado", info["modelo"])
	assert.Equal(t, "Sin descripción", info["descripcion_api"])
	assert.Nil(t, info["anio_registro_api"])
	assert.Nil(t, info["vin"])
	assert.Contains(t, info, "numero_asientos")
}

func TestSearchPlate_FailureMessageKeepsKind(t *testing.T) {
	api := new(mockPlacaAPI)
	api.On("LookupPlate", mock.Anything, "ABC123").Return("", newError(ErrEmptyResponse, "Respuesta SOAP vacía"))
	svc := NewPlateSearchService(nil, api, Deps{})

	_, err := svc.SearchPlate(context.Background(), "abc123", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.True(t, strings.HasPrefix(err.Error(), "No se pudo obtener información para la placa ABC123. Posibles causas:"))
}

func TestSearchPlate_MalformedJSON(t *testing.T) {
	api := new(mockPlacaAPI)
	api.On("LookupPlate", mock.Anything, "ABC123").Return("{not json", nil)
	svc := NewPlateSearchService(nil, api, Deps{})

	_, err := svc.SearchPlate(context.Background(), "ABC123", "user-1")
	assert.ErrorIs(t, err, ErrMalformedPayload)
	assert.Contains(t, err.Error(), PlateSearchFailurePrefix)
}

func TestPlateSearchService_PersistsVehicleAndHistory(t *testing.T) {
	database := utils.SetupTestDB(t, "testdb_plate_search",
		db.VehiculosCollection, db.HistorialCollection, db.CountersCollection)
	api := new(mockPlacaAPI)
	api.On("LookupPlate", mock.Anything, "ABC123").Return(sampleVehicleJSON, nil)
	svc := NewPlateSearchService(database, api, Deps{})
	ctx := context.Background()

	vehicle, err := svc.SearchPlate(ctx, "ABC123", "")
	require.NoError(t, err)
	assert.Equal(t, "TOYOTA", vehicle["marca"])
	assert.Equal(t, 2015, vehicle["anio_registro_api"])

	// A second lookup of the same plate updates the vehicle row.
	_, err = svc.SearchPlate(ctx, "ABC123", "user-1")
	require.NoError(t, err)

	count, err := database.Collection(db.VehiculosCollection).CountDocuments(ctx, bson.M{"placa": "ABC123"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var stored models.Vehiculo
	require.NoError(t, database.Collection(db.VehiculosCollection).FindOne(ctx, bson.M{"placa": "ABC123"}).Decode(&stored))
	assert.Equal(t, "kept", stored.DatosAPI["ExtraField"])

	guestHistory, err := svc.SearchHistory(ctx, GuestUserID)
	require.NoError(t, err)
	assert.Len(t, guestHistory, 1)

	userHistory, err := svc.SearchHistory(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, userHistory, 1)
	assert.Equal(t, "ABC123", userHistory[0].PlacaConsultada)

	recent, err := svc.RecentVehicles(ctx)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestPlateSearchService_HistoryKeepsLastFive(t *testing.T) {
	database := utils.SetupTestDB(t, "testdb_plate_history",
		db.VehiculosCollection, db.HistorialCollection, db.CountersCollection)
	api := new(mockPlacaAPI)
	api.On("LookupPlate", mock.Anything, mock.Anything).Return(sampleVehicleJSON, nil)
	svc := NewPlateSearchService(database, api, Deps{})
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := svc.SearchPlate(ctx, "ABC123", "user-1")
		require.NoError(t, err)
	}

	history, err := svc.SearchHistory(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, history, 5)
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].FechaConsulta.After(history[i-1].FechaConsulta))
	}
}
