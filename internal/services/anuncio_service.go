package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/gmarko-dV/Integrador/internal/db"
	"github.com/gmarko-dV/Integrador/internal/events"
	"github.com/gmarko-dV/Integrador/internal/models"
	"github.com/gmarko-dV/Integrador/internal/storage"
)

// ImagesPerAnuncio is the exact number of photos a listing carries.
const ImagesPerAnuncio = 2

// AnuncioInput holds the editable fields of a listing.
type AnuncioInput struct {
	Modelo           string
	Anio             int
	Kilometraje      int
	Precio           float64
	Descripcion      string
	TipoVehiculo     string
	EmailContacto    string
	TelefonoContacto string
	CategoriaID      *int64
}

// Upload is one uploaded image file.
type Upload struct {
	Filename    string
	ContentType string // as declared by the client; stored images use the sniffed type
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// AnuncioCache is the read-through cache in front of the anuncios
// collection. Implemented by cache.AnuncioCache.
type AnuncioCache interface {
	Get(ctx context.Context, id int64) (*models.Anuncio, error)
	Set(ctx context.Context, anuncio *models.Anuncio) error
	GetActive(ctx context.Context) ([]models.Anuncio, error)
	SetActive(ctx context.Context, anuncios []models.Anuncio) error
	Invalidate(ctx context.Context, id int64) error
}

// IAnuncioService defines listing operations.
type IAnuncioService interface {
	Create(ctx context.Context, userID string, in AnuncioInput, uploads []Upload) (*models.Anuncio, error)
	Update(ctx context.Context, id int64, userID string, in AnuncioInput, uploads []Upload) (*models.Anuncio, error)
	Delete(ctx context.Context, id int64, userID string) error
	GetByID(ctx context.Context, id int64) (*models.Anuncio, error)
	ListByUser(ctx context.Context, userID string) ([]models.Anuncio, error)
	ListActive(ctx context.Context) ([]models.Anuncio, error)
}

type anuncioService struct {
	db           *mongo.Database
	store        storage.ImageStore
	cache        AnuncioCache
	maxImageSize int64
	deps         Deps
}

// NewAnuncioService creates an AnuncioService. cache may be nil.
func NewAnuncioService(database *mongo.Database, store storage.ImageStore, cache AnuncioCache, maxImageSize int64, deps Deps) IAnuncioService {
	return &anuncioService{db: database, store: store, cache: cache, maxImageSize: maxImageSize, deps: deps}
}

// CheckEmailDomain rejects e-mails outside allowedDomain. An empty domain or
// e-mail passes.
func CheckEmailDomain(email, allowedDomain string) error {
	if allowedDomain == "" || email == "" {
		return nil
	}
	if !strings.HasSuffix(strings.ToLower(email), "@"+strings.ToLower(allowedDomain)) {
		return forbiddenError("Email no pertenece al dominio institucional permitido")
	}
	return nil
}

func validateAnuncioInput(in AnuncioInput) error {
	switch {
	case strings.TrimSpace(in.Modelo) == "":
		return validationError("El modelo es requerido")
	case in.Anio < 1900 || in.Anio > 2100:
		return validationError("El año debe ser válido")
	case in.Kilometraje < 0:
		return validationError("El kilometraje debe ser mayor o igual a 0")
	case in.Precio <= 0 || math.IsNaN(in.Precio) || math.IsInf(in.Precio, 0):
		return validationError("El precio debe ser mayor a 0")
	case strings.TrimSpace(in.Descripcion) == "":
		return validationError("La descripción es requerida")
	}
	return nil
}

func validateUploads(uploads []Upload, maxSize int64) error {
	if len(uploads) < ImagesPerAnuncio {
		return validationError("Se requieren al menos 2 imágenes")
	}
	if len(uploads) > ImagesPerAnuncio {
		return validationError("Solo se permiten 2 imágenes")
	}
	for _, u := range uploads {
		if u.Size <= 0 || u.Open == nil {
			return validationError("Las imágenes no pueden estar vacías")
		}
		if maxSize > 0 && u.Size > maxSize {
			return validationError("La imagen excede el tamaño máximo permitido")
		}
	}
	return nil
}

func (s *anuncioService) Create(ctx context.Context, userID string, in AnuncioInput, uploads []Upload) (*models.Anuncio, error) {
	if err := validateAnuncioInput(in); err != nil {
		return nil, err
	}
	if err := validateUploads(uploads, s.maxImageSize); err != nil {
		return nil, err
	}

	id, err := db.NextID(ctx, s.db, db.AnunciosCollection)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	anuncio := &models.Anuncio{
		ID:                 id,
		UserID:             userID,
		Titulo:             strings.TrimSpace(in.Modelo) + " " + strconv.Itoa(in.Anio),
		Imagenes:           []models.Imagen{},
		FechaCreacion:      now,
		FechaActualizacion: now,
		Activo:             true,
	}
	applyAnuncioInput(anuncio, in)

	coll := s.db.Collection(db.AnunciosCollection)
	if _, err := coll.InsertOne(ctx, anuncio); err != nil {
		return nil, fmt.Errorf("failed to insert anuncio: %w", err)
	}

	imagenes, err := s.storeImages(ctx, uploads)
	if err != nil {
		if _, delErr := coll.DeleteOne(ctx, bson.M{"_id": id}); delErr != nil {
			s.deps.logger().Error("Failed to remove anuncio after image failure", zap.Int64("anuncio_id", id), zap.Error(delErr))
		}
		return nil, err
	}

	if _, err := coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"imagenes": imagenes}}); err != nil {
		s.removeImages(ctx, imagenes)
		if _, delErr := coll.DeleteOne(ctx, bson.M{"_id": id}); delErr != nil {
			s.deps.logger().Warn("Failed to remove anuncio after image attach failure", zap.Int64("anuncio_id", id), zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to attach images to anuncio %d: %w", id, err)
	}
	anuncio.Imagenes = imagenes

	s.queueImageProcessing(ctx, id, imagenes)
	s.invalidate(ctx, id)
	s.deps.publish(ctx, events.AnuncioCreadoSubject, anuncio)
	if s.deps.Metrics != nil {
		s.deps.Metrics.AnunciosCreatedTotal.Inc()
	}
	s.deps.logger().Info("Anuncio created", zap.Int64("anuncio_id", id), zap.String("user_id", userID))
	return anuncio, nil
}

func (s *anuncioService) Update(ctx context.Context, id int64, userID string, in AnuncioInput, uploads []Upload) (*models.Anuncio, error) {
	existing, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !existing.IsOwnedBy(userID) {
		return nil, notOwnerError("No tienes permiso para editar este anuncio")
	}
	if err := validateAnuncioInput(in); err != nil {
		return nil, err
	}

	var newImages []models.Imagen
	if len(uploads) > 0 {
		if err := validateUploads(uploads, s.maxImageSize); err != nil {
			return nil, err
		}
		if newImages, err = s.storeImages(ctx, uploads); err != nil {
			return nil, err
		}
	}

	set := bson.M{
		"titulo":              strings.TrimSpace(in.Modelo) + " " + strconv.Itoa(in.Anio),
		"modelo":              strings.TrimSpace(in.Modelo),
		"anio":                in.Anio,
		"kilometraje":         in.Kilometraje,
		"precio":              in.Precio,
		"descripcion":         strings.TrimSpace(in.Descripcion),
		"tipo_vehiculo":       in.TipoVehiculo,
		"email_contacto":      in.EmailContacto,
		"telefono_contacto":   in.TelefonoContacto,
		"fecha_actualizacion": time.Now().UTC(),
	}
	if in.CategoriaID != nil {
		set["id_categoria"] = *in.CategoriaID
	}
	if newImages != nil {
		set["imagenes"] = newImages
	}

	var updated models.Anuncio
	err = s.db.Collection(db.AnunciosCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": id, "id_usuario": userID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		s.removeImages(ctx, newImages)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFoundError("Anuncio no encontrado")
		}
		return nil, fmt.Errorf("failed to update anuncio %d: %w", id, err)
	}

	if newImages != nil {
		s.removeImages(ctx, existing.Imagenes)
		s.queueImageProcessing(ctx, id, newImages)
	}
	s.invalidate(ctx, id)
	s.deps.publish(ctx, events.AnuncioActualizadoSubject, &updated)
	return &updated, nil
}

func (s *anuncioService) Delete(ctx context.Context, id int64, userID string) error {
	existing, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if !existing.IsOwnedBy(userID) {
		return notOwnerError("No tienes permiso para eliminar este anuncio")
	}

	res, err := s.db.Collection(db.AnunciosCollection).DeleteOne(ctx, bson.M{"_id": id, "id_usuario": userID})
	if err != nil {
		return fmt.Errorf("failed to delete anuncio %d: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return notFoundError("Anuncio no encontrado")
	}

	s.removeImages(ctx, existing.Imagenes)
	s.invalidate(ctx, id)
	s.deps.publish(ctx, events.AnuncioEliminadoSubject, map[string]any{"idAnuncio": id, "idUsuario": userID})
	s.deps.logger().Info("Anuncio deleted", zap.Int64("anuncio_id", id), zap.String("user_id", userID))
	return nil
}

func (s *anuncioService) GetByID(ctx context.Context, id int64) (*models.Anuncio, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, id)
		if err != nil {
			s.deps.logger().Warn("Anuncio cache read failed", zap.Int64("anuncio_id", id), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	anuncio, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, anuncio); err != nil {
			s.deps.logger().Warn("Anuncio cache write failed", zap.Int64("anuncio_id", id), zap.Error(err))
		}
	}
	return anuncio, nil
}

func (s *anuncioService) ListByUser(ctx context.Context, userID string) ([]models.Anuncio, error) {
	return s.list(ctx, bson.M{"id_usuario": userID})
}

func (s *anuncioService) ListActive(ctx context.Context) ([]models.Anuncio, error) {
	if s.cache != nil {
		cached, err := s.cache.GetActive(ctx)
		if err != nil {
			s.deps.logger().Warn("Active anuncios cache read failed", zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	anuncios, err := s.list(ctx, bson.M{"activo": true})
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetActive(ctx, anuncios); err != nil {
			s.deps.logger().Warn("Active anuncios cache write failed", zap.Error(err))
		}
	}
	return anuncios, nil
}

func (s *anuncioService) find(ctx context.Context, id int64) (*models.Anuncio, error) {
	var anuncio models.Anuncio
	err := s.db.Collection(db.AnunciosCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&anuncio)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFoundError("Anuncio no encontrado")
		}
		return nil, fmt.Errorf("error finding anuncio %d: %w", id, err)
	}
	return &anuncio, nil
}

func (s *anuncioService) list(ctx context.Context, filter bson.M) ([]models.Anuncio, error) {
	opts := options.Find().SetSort(bson.D{{Key: "fecha_creacion", Value: -1}})
	cursor, err := s.db.Collection(db.AnunciosCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list anuncios: %w", err)
	}
	anuncios := []models.Anuncio{}
	if err := cursor.All(ctx, &anuncios); err != nil {
		return nil, fmt.Errorf("failed to decode anuncios: %w", err)
	}
	return anuncios, nil
}

// storeImages writes every upload. If one fails, the ones already written
// are removed before the error is returned.
func (s *anuncioService) storeImages(ctx context.Context, uploads []Upload) ([]models.Imagen, error) {
	imagenes := make([]models.Imagen, 0, len(uploads))
	for i, u := range uploads {
		img, err := s.storeImage(ctx, u, i+1)
		if err != nil {
			s.removeImages(ctx, imagenes)
			return nil, err
		}
		imagenes = append(imagenes, img)
	}
	return imagenes, nil
}

func (s *anuncioService) storeImage(ctx context.Context, u Upload, orden int) (models.Imagen, error) {
	rc, err := u.Open()
	if err != nil {
		return models.Imagen{}, fmt.Errorf("failed to open upload %s: %w", u.Filename, err)
	}
	defer rc.Close()

	head := make([]byte, storage.SniffLen)
	n, err := io.ReadFull(rc, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return models.Imagen{}, fmt.Errorf("failed to read upload %s: %w", u.Filename, err)
	}
	head = head[:n]
	contentType, ext, ok := storage.DetectImageType(head)
	if !ok {
		return models.Imagen{}, validationError("Solo se permiten imágenes JPEG, PNG, GIF o WEBP")
	}

	url, err := s.store.Save(ctx, storage.NewObjectName(ext), contentType, io.MultiReader(bytes.NewReader(head), rc))
	if err != nil {
		return models.Imagen{}, fmt.Errorf("failed to store image %s: %w", u.Filename, err)
	}

	imageID, err := db.NextID(ctx, s.db, "imagenes")
	if err != nil {
		if delErr := s.store.Delete(ctx, url); delErr != nil {
			s.deps.logger().Warn("Failed to delete image after id allocation failure", zap.String("url", url), zap.Error(delErr))
		}
		return models.Imagen{}, err
	}

	return models.Imagen{
		ID:            imageID,
		URL:           url,
		NombreArchivo: u.Filename,
		TipoArchivo:   contentType,
		TamanoArchivo: u.Size,
		FechaSubida:   time.Now().UTC(),
		Orden:         orden,
	}, nil
}

func (s *anuncioService) removeImages(ctx context.Context, imagenes []models.Imagen) {
	for _, img := range imagenes {
		if err := s.store.Delete(ctx, img.URL); err != nil {
			s.deps.logger().Warn("Failed to delete image", zap.String("url", img.URL), zap.Error(err))
		}
	}
}

func (s *anuncioService) queueImageProcessing(ctx context.Context, id int64, imagenes []models.Imagen) {
	if s.deps.Jobs == nil {
		return
	}
	for _, img := range imagenes {
		if err := s.deps.Jobs.ProcessImage(ctx, id, img.URL); err != nil {
			s.deps.logger().Warn("Failed to queue image processing", zap.Int64("anuncio_id", id), zap.String("url", img.URL), zap.Error(err))
		}
	}
}

func (s *anuncioService) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.deps.logger().Warn("Anuncio cache invalidation failed", zap.Int64("anuncio_id", id), zap.Error(err))
	}
}

func applyAnuncioInput(a *models.Anuncio, in AnuncioInput) {
	a.Modelo = strings.TrimSpace(in.Modelo)
	a.Anio = in.Anio
	a.Kilometraje = in.Kilometraje
	a.Precio = in.Precio
	a.Descripcion = strings.TrimSpace(in.Descripcion)
	a.TipoVehiculo = in.TipoVehiculo
	a.EmailContacto = in.EmailContacto
	a.TelefonoContacto = in.TelefonoContacto
	a.CategoriaID = in.CategoriaID
}
