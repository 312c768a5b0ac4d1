package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/gmarko-dV/Integrador/internal/models"
)

const (
	DefaultDeepSeekURL   = "https://api.deepseek.com/v1/chat/completions"
	DefaultDeepSeekModel = "deepseek-chat"

	chatTemperature      = 0.7
	chatMaxTokens        = 2000
	fallbackLimit        = 5
	digestDescriptionMax = 100

	chatSystemPrompt = "Eres un asistente virtual especializado en ayudar a los usuarios a encontrar el vehículo perfecto. " +
		"Tu tarea es hacer preguntas sobre las características que el usuario busca en un auto (tipo de vehículo, año, precio, kilometraje, etc.) " +
		"y luego recomendar los vehículos más adecuados de la lista disponible. " +
		"Sé amigable, profesional y específico en tus recomendaciones. " +
		"Cuando recomiendes vehículos, menciona los IDs de los anuncios recomendados al final de tu respuesta en el formato: [RECOMMEND: id1, id2, id3]"

	noListingsDigest = "No hay anuncios disponibles en este momento."
	noMatchReply     = "Lo siento, no encontré vehículos que coincidan con tus criterios. ¿Podrías ser más específico sobre qué tipo de vehículo buscas?"
)

var (
	recommendPattern = regexp.MustCompile(`\[RECOMMEND:\s*([0-9,\s]+)\]`)
	recommendMarker  = regexp.MustCompile(`\[RECOMMEND:[^\]]+\]`)

	errNoAPIKey = errors.New("DeepSeek API key no configurada")
)

// vehicleTypeKeywords maps message keywords to the tipoVehiculo they select,
// checked in order.
var vehicleTypeKeywords = []struct {
	keywords []string
	tipo     string
}{
	{[]string{"suv", "s.u.v"}, "suv"},
	{[]string{"sedan", "sedán"}, "sedan"},
	{[]string{"hatchback"}, "hatchback"},
	{[]string{"coupe", "coupé"}, "coupe"},
	{[]string{"deportivo"}, "deportivo"},
}

// ChatConfig configures the DeepSeek client.
type ChatConfig struct {
	APIKey  string
	URL     string
	Model   string
	Timeout time.Duration
}

// IChatService answers buyer questions with listing recommendations.
type IChatService interface {
	ProcessMessage(ctx context.Context, message string, history []models.ChatMessage) (*models.ChatResponse, error)
}

type chatService struct {
	cfg      ChatConfig
	anuncios IAnuncioService
	client   *http.Client
	deps     Deps
}

// NewChatService creates a ChatService.
func NewChatService(cfg ChatConfig, anuncios IAnuncioService, deps Deps) IChatService {
	if cfg.URL == "" {
		cfg.URL = DefaultDeepSeekURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultDeepSeekModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &chatService{
		cfg:      cfg,
		anuncios: anuncios,
		client:   &http.Client{Timeout: cfg.Timeout},
		deps:     deps,
	}
}

func (s *chatService) ProcessMessage(ctx context.Context, message string, history []models.ChatMessage) (*models.ChatResponse, error) {
	anuncios, err := s.anuncios.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	reply, err := s.callDeepSeek(ctx, buildChatMessages(message, history, anuncios))
	if err != nil {
		s.deps.logger().Warn("Chat assistant unavailable, using fallback", zap.Error(err))
		s.recordReply("fallback")
		return fallbackRecommendation(message, anuncios), nil
	}
	s.recordReply("llm")

	ids := filterActiveIDs(ExtractRecommendedIDs(reply), anuncios)
	return &models.ChatResponse{
		Response:              CleanReply(reply),
		RecommendedAnuncioIDs: ids,
		HasRecommendations:    len(ids) > 0,
	}, nil
}

func (s *chatService) recordReply(source string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ChatRepliesTotal.WithLabelValues(source).Inc()
	}
}

type chatCompletionRequest struct {
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
}

func (s *chatService) callDeepSeek(ctx context.Context, messages []models.ChatMessage) (string, error) {
	if s.cfg.APIKey == "" {
		return "", errNoAPIKey
	}

	payload, err := json.Marshal(chatCompletionRequest{
		Model:       s.cfg.Model,
		Messages:    messages,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Error al llamar a DeepSeek: %d", resp.StatusCode)
	}

	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() || content.Type != gjson.String {
		return "", newError(ErrMalformedPayload, "respuesta de DeepSeek sin contenido")
	}
	return content.String(), nil
}

func buildChatMessages(message string, history []models.ChatMessage, anuncios []models.Anuncio) []models.ChatMessage {
	messages := make([]models.ChatMessage, 0, len(history)+2)
	messages = append(messages, models.ChatMessage{
		Role:    "system",
		Content: chatSystemPrompt + "\n\nAnuncios disponibles:\n" + BuildListingDigest(anuncios),
	})
	messages = append(messages, history...)
	messages = append(messages, models.ChatMessage{Role: "user", Content: message})
	return messages
}

// BuildListingDigest renders one line per listing for the assistant's
// context.
func BuildListingDigest(anuncios []models.Anuncio) string {
	if len(anuncios) == 0 {
		return noListingsDigest
	}
	var b strings.Builder
	for _, a := range anuncios {
		tipo := a.TipoVehiculo
		if tipo == "" {
			tipo = notSpecified
		}
		desc := a.Descripcion
		if r := []rune(desc); len(r) > digestDescriptionMax {
			desc = string(r[:digestDescriptionMax]) + "..."
		}
		fmt.Fprintf(&b, "ID: %d | Modelo: %s | Año: %d | Precio: %s | Kilometraje: %d km | Tipo: %s | Descripción: %s\n",
			a.ID, a.Modelo, a.Anio, strconv.FormatFloat(a.Precio, 'f', 2, 64), a.Kilometraje, tipo, desc)
	}
	return b.String()
}

// ExtractRecommendedIDs parses the ids of the first [RECOMMEND: ...] marker.
func ExtractRecommendedIDs(reply string) []int64 {
	ids := []int64{}
	m := recommendPattern.FindStringSubmatch(reply)
	if m == nil {
		return ids
	}
	for _, part := range strings.Split(m[1], ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// CleanReply strips recommendation markers from the assistant's reply.
func CleanReply(reply string) string {
	return strings.TrimSpace(recommendMarker.ReplaceAllString(reply, ""))
}

func filterActiveIDs(ids []int64, anuncios []models.Anuncio) []int64 {
	active := make(map[int64]bool, len(anuncios))
	for _, a := range anuncios {
		active[a.ID] = true
	}
	filtered := []int64{}
	for _, id := range ids {
		if active[id] {
			filtered = append(filtered, id)
		}
	}
	return filtered
}

// fallbackRecommendation picks listings by vehicle type keywords when the
// assistant cannot be reached.
func fallbackRecommendation(message string, anuncios []models.Anuncio) *models.ChatResponse {
	lower := strings.ToLower(message)

	matched := anuncios
	for _, vt := range vehicleTypeKeywords {
		if containsAny(lower, vt.keywords) {
			matched = nil
			for _, a := range anuncios {
				if strings.EqualFold(a.TipoVehiculo, vt.tipo) {
					matched = append(matched, a)
				}
			}
			break
		}
	}

	ids := []int64{}
	for i, a := range matched {
		if i == fallbackLimit {
			break
		}
		ids = append(ids, a.ID)
	}

	reply := noMatchReply
	if len(matched) > 0 {
		reply = fmt.Sprintf("Encontré %d vehículo(s) que podrían interesarte. Aquí están mis recomendaciones:", len(matched))
	}
	return &models.ChatResponse{
		Response:              reply,
		RecommendedAnuncioIDs: ids,
		HasRecommendations:    len(ids) > 0,
	}
}
