package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/gmarko-dV/Integrador/internal/db"
	"github.com/gmarko-dV/Integrador/internal/events"
	"github.com/gmarko-dV/Integrador/internal/models"
)

const (
	// GuestUserID is recorded in the search history for anonymous lookups.
	GuestUserID = "guest"

	historyLimit = 5
	recentLimit  = 10
	notSpecified = "No especificado"
)

// PlateSearchFailurePrefix starts the message of every failed plate search.
const PlateSearchFailurePrefix = "No se pudo obtener información"

var plateFormat = regexp.MustCompile(`^[A-Z0-9]{6,7}$`)

// IPlateSearchService looks plates up and remembers what it found.
type IPlateSearchService interface {
	SearchPlate(ctx context.Context, plate, userID string) (map[string]any, error)
	SearchHistory(ctx context.Context, userID string) ([]models.HistorialBusqueda, error)
	RecentVehicles(ctx context.Context) ([]models.Vehiculo, error)
	RawLookup(ctx context.Context, plate string) (string, error)
}

type plateSearchService struct {
	db   *mongo.Database
	api  IPlacaAPIService
	deps Deps
}

// NewPlateSearchService creates a PlateSearchService.
func NewPlateSearchService(database *mongo.Database, api IPlacaAPIService, deps Deps) IPlateSearchService {
	return &plateSearchService{db: database, api: api, deps: deps}
}

// ValidatePlateFormat reports whether plate has 6 or 7 letters or digits.
func ValidatePlateFormat(plate string) bool {
	return plateFormat.MatchString(strings.ToUpper(plate))
}

func plateSearchFailure(plate string, cause error) error {
	kind := ErrUpstream
	var domainErr *Error
	if errors.As(cause, &domainErr) {
		kind = domainErr.Kind
	}
	return newError(kind, PlateSearchFailurePrefix+" para la placa "+plate+
		". Posibles causas:\n"+
		"1. La placa no existe en el sistema\n"+
		"2. Problema temporal con la API\n"+
		"3. Formato de placa no reconocido")
}

func (s *plateSearchService) recordOutcome(outcome string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.PlateLookupsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *plateSearchService) SearchPlate(ctx context.Context, plate, userID string) (map[string]any, error) {
	plate = strings.ToUpper(strings.TrimSpace(plate))
	if userID == "" {
		userID = GuestUserID
	}

	jsonText, err := s.api.LookupPlate(ctx, plate)
	if err != nil {
		s.deps.logger().Warn("Plate lookup failed", zap.String("placa", plate), zap.Error(err))
		s.recordOutcome("error")
		return nil, plateSearchFailure(plate, err)
	}
	if strings.TrimSpace(jsonText) == "" {
		s.recordOutcome("empty")
		return nil, plateSearchFailure(plate, newError(ErrEmptyResponse, "La API devolvió una respuesta vacía"))
	}
	if !gjson.Valid(jsonText) {
		s.recordOutcome("malformed")
		return nil, plateSearchFailure(plate, newError(ErrMalformedPayload, "JSON inválido"))
	}

	bag := gjson.Parse(jsonText)
	vehicle := vehicleInfo(bag, plate, time.Now().Year())
	s.recordOutcome("found")

	s.saveVehicle(ctx, plate, bag)
	s.saveHistory(ctx, userID, plate, bag)
	s.deps.publish(ctx, events.PlacaConsultadaSubject, map[string]any{"placa": plate, "idUsuario": userID})

	return vehicle, nil
}

// propertyString reads a property of the registry payload as text. Objects
// yield their CurrentTextValue, or their first string member.
func propertyString(bag gjson.Result, name string) string {
	v := bag.Get(gjson.Escape(name))
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return ""
	case v.IsObject():
		if t := v.Get("CurrentTextValue"); t.Exists() && t.Type != gjson.Null {
			return t.String()
		}
		first := ""
		v.ForEach(func(_, member gjson.Result) bool {
			if member.Type == gjson.String {
				first = member.String()
				return false
			}
			return true
		})
		return first
	default:
		return v.String()
	}
}

func firstProperty(bag gjson.Result, names ...string) string {
	for _, n := range names {
		if v := propertyString(bag, n); v != "" {
			return v
		}
	}
	return ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// nullable maps "" to nil so the JSON carries null.
func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// parseRegistrationYear keeps the digits of raw and accepts them as a year
// between 1900 and currentYear+1.
func parseRegistrationYear(raw string, currentYear int) any {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return nil
	}
	year, err := strconv.Atoi(digits.String())
	if err != nil || year < 1900 || year > currentYear+1 {
		return nil
	}
	return year
}

func vehicleInfo(bag gjson.Result, plate string, currentYear int) map[string]any {
	return map[string]any{
		"placa":              strings.ToUpper(plate),
		"marca":              orDefault(firstProperty(bag, "CarMake", "Make"), notSpecified),
		"modelo":             orDefault(firstProperty(bag, "CarModel", "Model"), notSpecified),
		"anio_registro_api":  parseRegistrationYear(propertyString(bag, "RegistrationYear"), currentYear),
		"descripcion_api":    orDefault(propertyString(bag, "Description"), "Sin descripción"),
		"propietario":        nullable(propertyString(bag, "Owner")),
		"vin":                nullable(propertyString(bag, "VIN")),
		"image_url_api":      nullable(propertyString(bag, "ImageUrl")),
		"uso":                nullable(propertyString(bag, "Use")),
		"delivery_point":     nullable(propertyString(bag, "DeliveryPoint")),
		"fecha_registro_api": nullable(propertyString(bag, "Date")),
		"tamano_motor":       nullable(propertyString(bag, "EngineSize")),
		"tipo_combustible":   nullable(propertyString(bag, "FuelType")),
		"numero_asientos":    nullable(propertyString(bag, "NumberOfSeats")),
	}
}

func propertyBag(bag gjson.Result) map[string]any {
	if m, ok := bag.Value().(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// saveVehicle upserts the vehicle by plate. Failures are logged only.
func (s *plateSearchService) saveVehicle(ctx context.Context, plate string, bag gjson.Result) {
	coll := s.db.Collection(db.VehiculosCollection)
	now := time.Now().UTC()

	set := bson.M{
		"descripcion_api":         propertyString(bag, "Description"),
		"marca":                   firstProperty(bag, "CarMake", "Make"),
		"modelo":                  firstProperty(bag, "CarModel", "Model"),
		"anio_registro_api":       propertyString(bag, "RegistrationYear"),
		"vin":                     propertyString(bag, "VIN"),
		"uso":                     propertyString(bag, "Use"),
		"propietario":             propertyString(bag, "Owner"),
		"delivery_point":          propertyString(bag, "DeliveryPoint"),
		"image_url_api":           propertyString(bag, "ImageUrl"),
		"datos_api":               propertyBag(bag),
		"fecha_registro_api":      now,
		"fecha_actualizacion_api": now,
	}

	err := db.Try(ctx, func(ctx context.Context) error {
		res, err := coll.UpdateOne(ctx, bson.M{"placa": plate}, bson.M{"$set": set})
		if err != nil {
			return err
		}
		if res.MatchedCount > 0 {
			return nil
		}
		id, err := db.NextID(ctx, s.db, db.VehiculosCollection)
		if err != nil {
			return err
		}
		doc := bson.M{"_id": id, "placa": plate}
		for k, v := range set {
			doc[k] = v
		}
		_, err = coll.InsertOne(ctx, doc)
		return err
	})
	if err != nil {
		s.deps.logger().Warn("Failed to save vehiculo", zap.String("placa", plate), zap.Error(err))
	}
}

// saveHistory appends one search history row. Failures are logged only.
func (s *plateSearchService) saveHistory(ctx context.Context, userID, plate string, bag gjson.Result) {
	id, err := db.NextID(ctx, s.db, db.HistorialCollection)
	if err == nil {
		_, err = s.db.Collection(db.HistorialCollection).InsertOne(ctx, &models.HistorialBusqueda{
			ID:              id,
			UserID:          userID,
			PlacaConsultada: plate,
			FechaConsulta:   time.Now().UTC(),
			ResultadoAPI:    propertyBag(bag),
		})
	}
	if err != nil {
		s.deps.logger().Warn("Failed to save search history", zap.String("placa", plate), zap.Error(err))
	}
}

func (s *plateSearchService) SearchHistory(ctx context.Context, userID string) ([]models.HistorialBusqueda, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "fecha_consulta", Value: -1}}).
		SetLimit(historyLimit)
	cursor, err := s.db.Collection(db.HistorialCollection).Find(ctx, bson.M{"id_usuario": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list search history: %w", err)
	}
	history := []models.HistorialBusqueda{}
	if err := cursor.All(ctx, &history); err != nil {
		return nil, fmt.Errorf("failed to decode search history: %w", err)
	}
	return history, nil
}

func (s *plateSearchService) RecentVehicles(ctx context.Context) ([]models.Vehiculo, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "fecha_actualizacion_api", Value: -1}}).
		SetLimit(recentLimit)
	cursor, err := s.db.Collection(db.VehiculosCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent vehiculos: %w", err)
	}
	vehiculos := []models.Vehiculo{}
	if err := cursor.All(ctx, &vehiculos); err != nil {
		return nil, fmt.Errorf("failed to decode vehiculos: %w", err)
	}
	return vehiculos, nil
}

func (s *plateSearchService) RawLookup(ctx context.Context, plate string) (string, error) {
	jsonText, err := s.api.LookupPlate(ctx, plate)
	if err != nil {
		return "", fmt.Errorf("Error al obtener respuesta cruda de la API: %w", err)
	}
	return jsonText, nil
}
