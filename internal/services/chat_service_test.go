package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/gmarko-dV/Integrador/internal/models"
)

func chatListings() []models.Anuncio {
	return []models.Anuncio{
		{ID: 1, Modelo: "Toyota RAV4", Anio: 2020, Precio: 25000, Kilometraje: 30000, TipoVehiculo: "SUV", Descripcion: "SUV familiar"},
		{ID: 2, Modelo: "Honda Civic", Anio: 2019, Precio: 18000, Kilometraje: 45000, TipoVehiculo: "Sedan", Descripcion: "Sedán económico"},
		{ID: 3, Modelo: "Mazda CX-5", Anio: 2021, Precio: 27000, Kilometraje: 15000, TipoVehiculo: "suv", Descripcion: strings.Repeat("a", 150)},
		{ID: 7, Modelo: "Kia Sportage", Anio: 2022, Precio: 29000, Kilometraje: 5000, TipoVehiculo: "SUV", Descripcion: "Como nuevo"},
	}
}

func newChatServiceWithListings(t *testing.T, cfg ChatConfig, anuncios []models.Anuncio) IChatService {
	t.Helper()
	svc := new(mockAnuncioService)
	svc.On("ListActive", mock.Anything).Return(anuncios, nil)
	return NewChatService(cfg, svc, Deps{})
}

func TestBuildListingDigest(t *testing.T) {
	assert.Equal(t, "No hay anuncios disponibles en este momento.", BuildListingDigest(nil))

	digest := BuildListingDigest(chatListings())
	lines := strings.Split(strings.TrimRight(digest, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ID: 1 | Modelo: Toyota RAV4 | Año: 2020 | Precio: 25000.00 | Kilometraje: 30000 km | Tipo: SUV | Descripción: SUV familiar", lines[0])
	assert.True(t, strings.HasSuffix(lines[2], strings.Repeat("a", 100)+"..."))

	noType := BuildListingDigest([]models.Anuncio{{ID: 9, Modelo: "X", Descripcion: "d"}})
	assert.Contains(t, noType, "Tipo: No especificado")
}

func TestExtractRecommendedIDsAndCleanReply(t *testing.T) {
	reply := "Te recomiendo estos dos. [RECOMMEND: 3, 7]"
	assert.Equal(t, []int64{3, 7}, ExtractRecommendedIDs(reply))
	assert.Equal(t, "Te recomiendo estos dos.", CleanReply(reply))

	assert.Empty(t, ExtractRecommendedIDs("sin marcador"))
	assert.Equal(t, "hola", CleanReply("  hola  "))
}

func TestFallbackRecommendation(t *testing.T) {
	resp := fallbackRecommendation("Busco una SUV", chatListings())
	assert.Equal(t, []int64{1, 3, 7}, resp.RecommendedAnuncioIDs)
	assert.True(t, resp.HasRecommendations)
	assert.Equal(t, "Encontré 3 vehículo(s) que podrían interesarte. Aquí están mis recomendaciones:", resp.Response)

	resp = fallbackRecommendation("quiero un coupé", chatListings())
	assert.Empty(t, resp.RecommendedAnuncioIDs)
	assert.False(t, resp.HasRecommendations)
	assert.True(t, strings.HasPrefix(resp.Response, "Lo siento, no encontré vehículos"))

	many := make([]models.Anuncio, 8)
	for i := range many {
		many[i] = models.Anuncio{ID: int64(i + 1)}
	}
	resp = fallbackRecommendation("algo barato", many)
	assert.Len(t, resp.RecommendedAnuncioIDs, 5)
	assert.Contains(t, resp.Response, "Encontré 8 vehículo(s)")
}

func TestProcessMessage_UsesDeepSeek(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "deepseek-chat", req.Model)
		assert.Equal(t, 2000, req.MaxTokens)
		require.Len(t, req.Messages, 3)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Contains(t, req.Messages[0].Content, "Anuncios disponibles:\nID: 1 |")
		assert.Equal(t, "assistant", req.Messages[1].Role)
		assert.Equal(t, "user", req.Messages[2].Role)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Mira estas opciones [RECOMMEND: 3, 99, 7]"}}]}`))
	}))
	defer server.Close()

	svc := newChatServiceWithListings(t, ChatConfig{APIKey: "test-key", URL: server.URL}, chatListings())
	history := []models.ChatMessage{{Role: "assistant", Content: "¿Qué buscas?"}}

	resp, err := svc.ProcessMessage(context.Background(), "una SUV", history)
	require.NoError(t, err)
	assert.Equal(t, "Mira estas opciones", resp.Response)
	assert.Equal(t, []int64{3, 7}, resp.RecommendedAnuncioIDs)
	assert.True(t, resp.HasRecommendations)
}

func TestProcessMessage_FallsBackOnUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc := newChatServiceWithListings(t, ChatConfig{APIKey: "k", URL: server.URL}, chatListings())
	resp, err := svc.ProcessMessage(context.Background(), "busco un sedan", nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, resp.RecommendedAnuncioIDs)
}

func TestProcessMessage_FallsBackWithoutAPIKey(t *testing.T) {
	svc := newChatServiceWithListings(t, ChatConfig{}, chatListings())
	resp, err := svc.ProcessMessage(context.Background(), "busco una SUV", nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 7}, resp.RecommendedAnuncioIDs)
}

func TestProcessMessage_FallsBackOnMalformedReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	svc := newChatServiceWithListings(t, ChatConfig{APIKey: "k", URL: server.URL}, chatListings())
	resp, err := svc.ProcessMessage(context.Background(), "hola", nil)
	require.NoError(t, err)
	assert.Len(t, resp.RecommendedAnuncioIDs, 4)
}

func TestChatCompletionRequestShape(t *testing.T) {
	payload, err := json.Marshal(chatCompletionRequest{Model: "m", Temperature: 0.7, MaxTokens: 2000})
	require.NoError(t, err)
	assert.Equal(t, 0.7, gjson.GetBytes(payload, "temperature").Float())
	assert.Equal(t, int64(2000), gjson.GetBytes(payload, "max_tokens").Int())
}
