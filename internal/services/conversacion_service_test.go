package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/gmarko-dV/Integrador/internal/db"
	"github.com/gmarko-dV/Integrador/internal/utils"
)

func setupConversacionTest(t *testing.T, dbName string) (IConversacionService, *mongo.Database) {
	t.Helper()
	database := utils.SetupTestDB(t, dbName,
		db.AnunciosCollection, db.ConversacionesCollection, db.MensajesCollection, db.CountersCollection)
	anuncios := NewAnuncioService(database, nil, nil, 0, Deps{})
	return NewConversacionService(database, anuncios, Deps{}), database
}

func TestConversacionService_CreateOrGetValidation(t *testing.T) {
	svc, database := setupConversacionTest(t, "testdb_conversacion_validation")
	insertTestAnuncio(t, database, 10, "seller")
	ctx := context.Background()

	_, err := svc.CreateOrGet(ctx, 999, "seller", "buyer")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "Anuncio no encontrado")

	_, err = svc.CreateOrGet(ctx, 10, "someone-else", "buyer")
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.EqualError(t, err, "El usuario no es el vendedor de este anuncio")

	_, err = svc.CreateOrGet(ctx, 10, "seller", "seller")
	assert.ErrorIs(t, err, ErrValidation)
	assert.EqualError(t, err, "No puedes crear una conversación contigo mismo")
}

func TestConversacionService_CreateOrGetIsIdempotent(t *testing.T) {
	svc, database := setupConversacionTest(t, "testdb_conversacion_idempotent")
	insertTestAnuncio(t, database, 10, "seller")
	ctx := context.Background()

	exists, err := svc.Exists(ctx, 10, "seller", "buyer")
	require.NoError(t, err)
	assert.False(t, exists)

	first, err := svc.CreateOrGet(ctx, 10, "seller", "buyer")
	require.NoError(t, err)
	assert.True(t, first.Activa)

	require.NoError(t, svc.Archive(ctx, first.ID, "buyer"))

	second, err := svc.CreateOrGet(ctx, 10, "seller", "buyer")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Activa)

	exists, err = svc.Exists(ctx, 10, "seller", "buyer")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestConversacionService_ConcurrentFirstContact(t *testing.T) {
	svc, database := setupConversacionTest(t, "testdb_conversacion_race")
	insertTestAnuncio(t, database, 10, "seller")
	ctx := context.Background()

	const workers = 8
	ids := make([]int64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := svc.CreateOrGet(ctx, 10, "seller", "buyer")
			errs[i] = err
			if conv != nil {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	count, err := database.Collection(db.ConversacionesCollection).CountDocuments(ctx, bson.M{"id_anuncio": 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestConversacionService_Messaging(t *testing.T) {
	svc, database := setupConversacionTest(t, "testdb_conversacion_messaging")
	insertTestAnuncio(t, database, 10, "seller")
	ctx := context.Background()

	conv, err := svc.CreateOrGet(ctx, 10, "seller", "buyer")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, conv.ID, "outsider", "hola")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.EqualError(t, err, "No puedes enviar mensajes en esta conversación")

	_, err = svc.SendMessage(ctx, conv.ID, "buyer", "   ")
	assert.EqualError(t, err, "El mensaje no puede estar vacío")

	_, err = svc.SendMessage(ctx, conv.ID, "buyer", "¿Sigue disponible?")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, conv.ID, "buyer", "Puedo verlo mañana")
	require.NoError(t, err)
	reply, err := svc.SendMessage(ctx, conv.ID, "seller", " Sí, claro ")
	require.NoError(t, err)
	assert.Equal(t, "Sí, claro", reply.Mensaje)

	msgs, err := svc.Messages(ctx, conv.ID, "seller")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "¿Sigue disponible?", msgs[0].Mensaje)
	assert.Equal(t, "seller", msgs[2].RemitenteID)

	_, err = svc.Messages(ctx, conv.ID, "outsider")
	assert.EqualError(t, err, "No tienes acceso a esta conversación")

	unread, err := svc.UnreadCount(ctx, "seller")
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	updated, err := svc.MarkRead(ctx, conv.ID, "seller")
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	unread, err = svc.UnreadCount(ctx, "seller")
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread)

	unread, err = svc.UnreadCount(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	got, err := svc.GetByID(ctx, conv.ID, "buyer")
	require.NoError(t, err)
	assert.NotNil(t, got.FechaUltimoMensaje)

	_, err = svc.GetByID(ctx, 12345, "buyer")
	assert.EqualError(t, err, "Conversación no encontrada")
}

func TestConversacionService_ListAndArchive(t *testing.T) {
	svc, database := setupConversacionTest(t, "testdb_conversacion_list")
	insertTestAnuncio(t, database, 10, "seller")
	insertTestAnuncio(t, database, 11, "seller")
	ctx := context.Background()

	c1, err := svc.CreateOrGet(ctx, 10, "seller", "buyer")
	require.NoError(t, err)
	_, err = svc.CreateOrGet(ctx, 11, "seller", "buyer")
	require.NoError(t, err)

	all, err := svc.ListByUser(ctx, "seller")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, svc.Archive(ctx, c1.ID, "seller"))
	assert.Error(t, svc.Archive(ctx, c1.ID, "outsider"))

	active, err := svc.ListActiveByUser(ctx, "buyer")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(11), active[0].AnuncioID)

	none, err := svc.ListByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
