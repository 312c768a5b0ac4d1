package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/gmarko-dV/Integrador/internal/db"
	"github.com/gmarko-dV/Integrador/internal/events"
	"github.com/gmarko-dV/Integrador/internal/models"
)

const (
	// DefaultInterestMessage is used when a buyer contacts a seller without
	// writing anything.
	DefaultInterestMessage = "Un comprador está interesado en tu anuncio"
	interestTitlePrefix    = "Interés en tu anuncio: "
)

// NewNotificacion describes a buyer's interest in a listing.
type NewNotificacion struct {
	AnuncioID       int64
	VendedorID      string
	CompradorID     string
	NombreComprador string
	EmailComprador  string
	Mensaje         string
}

// INotificacionService defines seller notification operations.
type INotificacionService interface {
	Create(ctx context.Context, in NewNotificacion) (*models.Notificacion, error)
	ListByVendedor(ctx context.Context, vendedorID string) ([]models.Notificacion, error)
	Unread(ctx context.Context, vendedorID string) ([]models.Notificacion, error)
	UnreadCount(ctx context.Context, vendedorID string) (int64, error)
	MarkRead(ctx context.Context, id int64, userID string) error
	MarkAllRead(ctx context.Context, vendedorID string) (int64, error)
}

type notificacionService struct {
	db       *mongo.Database
	anuncios IAnuncioService
	deps     Deps
}

// NewNotificacionService creates a NotificacionService.
func NewNotificacionService(database *mongo.Database, anuncios IAnuncioService, deps Deps) INotificacionService {
	return &notificacionService{db: database, anuncios: anuncios, deps: deps}
}

// unreadFilter matches documents where either stored read flag is not true,
// including documents written before one of the flags existed.
func unreadFilter(vendedorID string) bson.M {
	return bson.M{
		"id_vendedor": vendedorID,
		"$or": bson.A{
			bson.M{"leida": bson.M{"$ne": true}},
			bson.M{"leido": bson.M{"$ne": true}},
		},
	}
}

// InterestTitle is the notification title for a listing.
func InterestTitle(a *models.Anuncio) string {
	return interestTitlePrefix + a.DisplayTitle()
}

func (s *notificacionService) Create(ctx context.Context, in NewNotificacion) (*models.Notificacion, error) {
	anuncio, err := s.anuncios.GetByID(ctx, in.AnuncioID)
	if err != nil {
		return nil, err
	}
	if !anuncio.IsOwnedBy(in.VendedorID) {
		return nil, notOwnerError("El usuario no es el vendedor de este anuncio")
	}

	id, err := db.NextID(ctx, s.db, db.NotificacionesCollection)
	if err != nil {
		return nil, err
	}

	mensaje := strings.TrimSpace(in.Mensaje)
	if mensaje == "" {
		mensaje = DefaultInterestMessage
	}

	n := &models.Notificacion{
		ID:              id,
		VendedorID:      in.VendedorID,
		CompradorID:     in.CompradorID,
		NombreComprador: in.NombreComprador,
		EmailComprador:  in.EmailComprador,
		AnuncioID:       in.AnuncioID,
		Titulo:          InterestTitle(anuncio),
		Mensaje:         mensaje,
		FechaCreacion:   time.Now().UTC(),
		Metadata:        notificacionMetadata(anuncio, in),
	}
	n.MarkUnread()

	if _, err := s.db.Collection(db.NotificacionesCollection).InsertOne(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to insert notificacion: %w", err)
	}

	s.deps.publish(ctx, events.NotificacionCreadaSubject, n)
	if s.deps.Metrics != nil {
		s.deps.Metrics.NotificationsCreatedTotal.Inc()
	}
	s.queueEmail(ctx, anuncio, n)
	return n, nil
}

func notificacionMetadata(anuncio *models.Anuncio, in NewNotificacion) map[string]any {
	meta := map[string]any{
		"idAnuncio":     anuncio.ID,
		"tituloAnuncio": anuncio.DisplayTitle(),
	}
	if in.EmailComprador != "" {
		meta["emailComprador"] = in.EmailComprador
	}
	return meta
}

func (s *notificacionService) queueEmail(ctx context.Context, anuncio *models.Anuncio, n *models.Notificacion) {
	if s.deps.Jobs == nil || anuncio.EmailContacto == "" {
		return
	}
	comprador := n.NombreComprador
	if comprador == "" {
		comprador = "Un comprador"
	}
	if n.EmailComprador != "" {
		comprador += " (" + n.EmailComprador + ")"
	}
	body := fmt.Sprintf("%s está interesado en tu anuncio \"%s\".\n\n%s", comprador, anuncio.DisplayTitle(), n.Mensaje)
	if err := s.deps.Jobs.NotifyVendedor(ctx, anuncio.EmailContacto, n.Titulo, body); err != nil {
		s.deps.logger().Warn("Failed to queue notification email", zap.Int64("notificacion_id", n.ID), zap.Error(err))
	}
}

func (s *notificacionService) ListByVendedor(ctx context.Context, vendedorID string) ([]models.Notificacion, error) {
	return s.list(ctx, bson.M{"id_vendedor": vendedorID})
}

func (s *notificacionService) Unread(ctx context.Context, vendedorID string) ([]models.Notificacion, error) {
	return s.list(ctx, unreadFilter(vendedorID))
}

func (s *notificacionService) UnreadCount(ctx context.Context, vendedorID string) (int64, error) {
	count, err := s.db.Collection(db.NotificacionesCollection).CountDocuments(ctx, unreadFilter(vendedorID))
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notificaciones: %w", err)
	}
	return count, nil
}

func (s *notificacionService) MarkRead(ctx context.Context, id int64, userID string) error {
	coll := s.db.Collection(db.NotificacionesCollection)

	var n models.Notificacion
	if err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(&n); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return notFoundError("Notificación no encontrada")
		}
		return fmt.Errorf("error finding notificacion %d: %w", id, err)
	}
	if n.VendedorID != userID {
		return forbiddenError("No tienes permiso para marcar esta notificación como leída")
	}

	n.MarkRead()
	_, err := coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"leida": n.Leida, "leido": n.Leido}})
	if err != nil {
		return fmt.Errorf("failed to mark notificacion %d as read: %w", id, err)
	}
	return nil
}

func (s *notificacionService) MarkAllRead(ctx context.Context, vendedorID string) (int64, error) {
	var read models.Notificacion
	read.MarkRead()
	res, err := s.db.Collection(db.NotificacionesCollection).UpdateMany(ctx,
		unreadFilter(vendedorID),
		bson.M{"$set": bson.M{"leida": read.Leida, "leido": read.Leido}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notificaciones as read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *notificacionService) list(ctx context.Context, filter bson.M) ([]models.Notificacion, error) {
	opts := options.Find().SetSort(bson.D{{Key: "fecha_creacion", Value: -1}})
	cursor, err := s.db.Collection(db.NotificacionesCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list notificaciones: %w", err)
	}
	notificaciones := []models.Notificacion{}
	if err := cursor.All(ctx, &notificaciones); err != nil {
		return nil, fmt.Errorf("failed to decode notificaciones: %w", err)
	}
	return notificaciones, nil
}
