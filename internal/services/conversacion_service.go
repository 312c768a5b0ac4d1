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

// IConversacionService defines buyer/seller messaging operations.
type IConversacionService interface {
	Exists(ctx context.Context, anuncioID int64, vendedorID, compradorID string) (bool, error)
	CreateOrGet(ctx context.Context, anuncioID int64, vendedorID, compradorID string) (*models.Conversacion, error)
	ListByUser(ctx context.Context, userID string) ([]models.Conversacion, error)
	ListActiveByUser(ctx context.Context, userID string) ([]models.Conversacion, error)
	GetByID(ctx context.Context, id int64, userID string) (*models.Conversacion, error)
	SendMessage(ctx context.Context, id int64, userID, text string) (*models.Mensaje, error)
	Messages(ctx context.Context, id int64, userID string) ([]models.Mensaje, error)
	MarkRead(ctx context.Context, id int64, userID string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	Archive(ctx context.Context, id int64, userID string) error
}

type conversacionService struct {
	db       *mongo.Database
	anuncios IAnuncioService
	deps     Deps
}

// NewConversacionService creates a ConversacionService.
func NewConversacionService(database *mongo.Database, anuncios IAnuncioService, deps Deps) IConversacionService {
	return &conversacionService{db: database, anuncios: anuncios, deps: deps}
}

func tripleFilter(anuncioID int64, vendedorID, compradorID string) bson.M {
	return bson.M{"id_anuncio": anuncioID, "id_vendedor": vendedorID, "id_comprador": compradorID}
}

func participantFilter(userID string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"id_vendedor": userID},
		bson.M{"id_comprador": userID},
	}}
}

func (s *conversacionService) Exists(ctx context.Context, anuncioID int64, vendedorID, compradorID string) (bool, error) {
	count, err := s.db.Collection(db.ConversacionesCollection).CountDocuments(ctx,
		tripleFilter(anuncioID, vendedorID, compradorID),
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("failed to check conversacion: %w", err)
	}
	return count > 0, nil
}

// CreateOrGet returns the conversation for the triple, creating it if
// needed. Two first contacts racing on the same triple both end up with the
// row that won the unique index.
func (s *conversacionService) CreateOrGet(ctx context.Context, anuncioID int64, vendedorID, compradorID string) (*models.Conversacion, error) {
	anuncio, err := s.anuncios.GetByID(ctx, anuncioID)
	if err != nil {
		return nil, err
	}
	if !anuncio.IsOwnedBy(vendedorID) {
		return nil, notOwnerError("El usuario no es el vendedor de este anuncio")
	}
	if vendedorID == compradorID {
		return nil, validationError("No puedes crear una conversación contigo mismo")
	}

	coll := s.db.Collection(db.ConversacionesCollection)
	var conv *models.Conversacion
	created := false

	err = db.Try(ctx, func(ctx context.Context) error {
		var existing models.Conversacion
		err := coll.FindOne(ctx, tripleFilter(anuncioID, vendedorID, compradorID)).Decode(&existing)
		if err == nil {
			if !existing.Activa {
				if _, err := coll.UpdateOne(ctx, bson.M{"_id": existing.ID}, bson.M{"$set": bson.M{"activa": true}}); err != nil {
					return fmt.Errorf("failed to reactivate conversacion %d: %w", existing.ID, err)
				}
				existing.Activa = true
			}
			conv = &existing
			return nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("error finding conversacion: %w", err)
		}

		id, err := db.NextID(ctx, s.db, db.ConversacionesCollection)
		if err != nil {
			return err
		}
		c := &models.Conversacion{
			ID:            id,
			AnuncioID:     anuncioID,
			VendedorID:    vendedorID,
			CompradorID:   compradorID,
			FechaCreacion: time.Now().UTC(),
			Activa:        true,
		}
		if _, err := coll.InsertOne(ctx, c); err != nil {
			return err
		}
		conv = c
		created = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversacion: %w", err)
	}

	if created {
		s.deps.publish(ctx, events.ConversacionCreadaSubject, conv)
		s.deps.logger().Info("Conversacion created",
			zap.Int64("conversacion_id", conv.ID),
			zap.Int64("anuncio_id", anuncioID),
		)
	}
	return conv, nil
}

func (s *conversacionService) ListByUser(ctx context.Context, userID string) ([]models.Conversacion, error) {
	return s.list(ctx, participantFilter(userID))
}

func (s *conversacionService) ListActiveByUser(ctx context.Context, userID string) ([]models.Conversacion, error) {
	filter := participantFilter(userID)
	filter["activa"] = true
	return s.list(ctx, filter)
}

func (s *conversacionService) list(ctx context.Context, filter bson.M) ([]models.Conversacion, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "fecha_ultimo_mensaje", Value: -1},
		{Key: "fecha_creacion", Value: -1},
	})
	cursor, err := s.db.Collection(db.ConversacionesCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversaciones: %w", err)
	}
	conversaciones := []models.Conversacion{}
	if err := cursor.All(ctx, &conversaciones); err != nil {
		return nil, fmt.Errorf("failed to decode conversaciones: %w", err)
	}
	return conversaciones, nil
}

func (s *conversacionService) find(ctx context.Context, id int64) (*models.Conversacion, error) {
	var conv models.Conversacion
	err := s.db.Collection(db.ConversacionesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFoundError("Conversación no encontrada")
		}
		return nil, fmt.Errorf("error finding conversacion %d: %w", id, err)
	}
	return &conv, nil
}

func (s *conversacionService) GetByID(ctx context.Context, id int64, userID string) (*models.Conversacion, error) {
	conv, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(userID) {
		return nil, forbiddenError("No tienes acceso a esta conversación")
	}
	return conv, nil
}

func (s *conversacionService) SendMessage(ctx context.Context, id int64, userID, text string) (*models.Mensaje, error) {
	conv, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(userID) {
		return nil, forbiddenError("No puedes enviar mensajes en esta conversación")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, validationError("El mensaje no puede estar vacío")
	}

	msgID, err := db.NextID(ctx, s.db, db.MensajesCollection)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	msg := &models.Mensaje{
		ID:             msgID,
		ConversacionID: conv.ID,
		RemitenteID:    userID,
		Mensaje:        text,
		FechaEnvio:     now,
	}
	if _, err := s.db.Collection(db.MensajesCollection).InsertOne(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to insert mensaje: %w", err)
	}

	_, err = s.db.Collection(db.ConversacionesCollection).UpdateOne(ctx,
		bson.M{"_id": conv.ID},
		bson.M{"$set": bson.M{"fecha_ultimo_mensaje": now}},
	)
	if err != nil {
		s.deps.logger().Warn("Failed to update conversacion activity", zap.Int64("conversacion_id", conv.ID), zap.Error(err))
	}

	s.deps.publish(ctx, events.MensajeEnviadoSubject, msg)
	if s.deps.Metrics != nil {
		s.deps.Metrics.MessagesSentTotal.Inc()
	}
	return msg, nil
}

func (s *conversacionService) Messages(ctx context.Context, id int64, userID string) ([]models.Mensaje, error) {
	if _, err := s.GetByID(ctx, id, userID); err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "fecha_envio", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(db.MensajesCollection).Find(ctx, bson.M{"id_conversacion": id}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list mensajes: %w", err)
	}
	mensajes := []models.Mensaje{}
	if err := cursor.All(ctx, &mensajes); err != nil {
		return nil, fmt.Errorf("failed to decode mensajes: %w", err)
	}
	return mensajes, nil
}

func (s *conversacionService) MarkRead(ctx context.Context, id int64, userID string) (int64, error) {
	if _, err := s.GetByID(ctx, id, userID); err != nil {
		return 0, err
	}
	res, err := s.db.Collection(db.MensajesCollection).UpdateMany(ctx,
		bson.M{
			"id_conversacion": id,
			"id_remitente":    bson.M{"$ne": userID},
			"leido":           bson.M{"$ne": true},
		},
		bson.M{"$set": bson.M{"leido": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark mensajes as read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *conversacionService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	cursor, err := s.db.Collection(db.ConversacionesCollection).Find(ctx,
		participantFilter(userID),
		options.Find().SetProjection(bson.M{"_id": 1}),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to list conversaciones: %w", err)
	}
	var ids []struct {
		ID int64 `bson:"_id"`
	}
	if err := cursor.All(ctx, &ids); err != nil {
		return 0, fmt.Errorf("failed to decode conversacion ids: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	convIDs := make(bson.A, 0, len(ids))
	for _, c := range ids {
		convIDs = append(convIDs, c.ID)
	}
	count, err := s.db.Collection(db.MensajesCollection).CountDocuments(ctx, bson.M{
		"id_conversacion": bson.M{"$in": convIDs},
		"id_remitente":    bson.M{"$ne": userID},
		"leido":           bson.M{"$ne": true},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread mensajes: %w", err)
	}
	return count, nil
}

func (s *conversacionService) Archive(ctx context.Context, id int64, userID string) error {
	if _, err := s.GetByID(ctx, id, userID); err != nil {
		return err
	}
	_, err := s.db.Collection(db.ConversacionesCollection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"activa": false}},
	)
	if err != nil {
		return fmt.Errorf("failed to archive conversacion %d: %w", id, err)
	}
	return nil
}
