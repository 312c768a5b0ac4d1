package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names.
const (
	AnunciosCollection       = "anuncios"
	ConversacionesCollection = "conversaciones"
	MensajesCollection       = "mensajes"
	NotificacionesCollection = "notificaciones"
	VehiculosCollection      = "vehiculos"
	HistorialCollection      = "historial_busquedas"
	CountersCollection       = "counters"
)

// ConnectDB initializes and returns a MongoDB client and database instance.
func ConnectDB(ctx context.Context, uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	ctxConnect, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctxConnect, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	ctxPing, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	defer cancelPing()
	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client, client.Database(dbName), nil
}

// DisconnectDB closes the MongoDB client connection.
func DisconnectDB(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %w", err)
	}
	return nil
}

// Ping checks that the primary is reachable.
func Ping(ctx context.Context, database *mongo.Database) error {
	return database.Client().Ping(ctx, readpref.Primary())
}

// EnsureIndexes creates the indexes the services rely on. The unique
// conversation index is what arbitrates concurrent first contacts.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		AnunciosCollection: {
			{Keys: bson.D{{Key: "id_usuario", Value: 1}, {Key: "fecha_creacion", Value: -1}}},
			{Keys: bson.D{{Key: "activo", Value: 1}, {Key: "fecha_creacion", Value: -1}}},
		},
		ConversacionesCollection: {
			{
				Keys:    bson.D{{Key: "id_anuncio", Value: 1}, {Key: "id_vendedor", Value: 1}, {Key: "id_comprador", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_anuncio_vendedor_comprador"),
			},
			{Keys: bson.D{{Key: "id_vendedor", Value: 1}}},
			{Keys: bson.D{{Key: "id_comprador", Value: 1}}},
		},
		MensajesCollection: {
			{Keys: bson.D{{Key: "id_conversacion", Value: 1}, {Key: "fecha_envio", Value: 1}}},
		},
		NotificacionesCollection: {
			{Keys: bson.D{{Key: "id_vendedor", Value: 1}, {Key: "fecha_creacion", Value: -1}}},
		},
		VehiculosCollection: {
			{Keys: bson.D{{Key: "placa", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "fecha_actualizacion_api", Value: -1}}},
		},
		HistorialCollection: {
			{Keys: bson.D{{Key: "id_usuario", Value: 1}, {Key: "fecha_consulta", Value: -1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := database.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll, err)
		}
	}
	return nil
}
