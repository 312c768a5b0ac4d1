package services

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPlacaAPIURL   = "https://www.placaapi.pe/api/reg.asmx"
	placaSOAPAction      = "http://regcheck.org.uk/CheckPeru"
	maxSOAPResponseBytes = 5 << 20
)

var (
	authKeywords     = []string{"invalid", "unauthorized", "token", "credential", "authentication", "forbidden"}
	notFoundKeywords = []string{"no se encontró", "not found", "no existe", "does not exist"}
)

// PlacaAPIConfig configures the plate registry client.
type PlacaAPIConfig struct {
	URL      string
	Username string
	Timeout  time.Duration
}

// IPlacaAPIService looks plates up in the Peruvian vehicle registry.
type IPlacaAPIService interface {
	// LookupPlate returns the vehicle JSON embedded in the SOAP reply.
	LookupPlate(ctx context.Context, plate string) (string, error)
}

type placaAPIService struct {
	cfg    PlacaAPIConfig
	client *http.Client
	logger *zap.Logger
}

// NewPlacaAPIService creates the SOAP client.
func NewPlacaAPIService(cfg PlacaAPIConfig, logger *zap.Logger) IPlacaAPIService {
	if cfg.URL == "" {
		cfg.URL = DefaultPlacaAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Username == "" {
		logger.Warn("PLACA_API_USERNAME not set, plate lookups will be rejected by the registry")
	}
	return &placaAPIService{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// NormalizePlate upper-cases a plate and strips dashes and spaces.
func NormalizePlate(plate string) string {
	return strings.NewReplacer("-", "", " ", "").Replace(strings.ToUpper(plate))
}

func upstreamError(message string) error { return newError(ErrUpstream, message) }

func (s *placaAPIService) LookupPlate(ctx context.Context, plate string) (string, error) {
	placa := NormalizePlate(plate)
	s.logger.Info("Looking up plate", zap.String("placa", placa))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, strings.NewReader(buildSOAPRequest(placa, s.cfg.Username)))
	if err != nil {
		return "", fmt.Errorf("failed to build SOAP request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", placaSOAPAction)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", upstreamError("Error de conexión con la API de placas: " + err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSOAPResponseBytes))
	if err != nil {
		return "", upstreamError("Error de conexión con la API de placas: " + err.Error())
	}
	body := string(raw)
	s.logger.Debug("SOAP response received", zap.Int("status", resp.StatusCode), zap.Int("bytes", len(body)))

	if containsSOAPFault(body) {
		return "", upstreamError(s.faultMessage(extractSOAPFault(body), placa))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", upstreamError(fmt.Sprintf("Error del servidor al consultar la API de placas: %d", resp.StatusCode))
	}
	if strings.TrimSpace(body) == "" {
		return "", newError(ErrEmptyResponse, "Respuesta SOAP vacía")
	}

	jsonText, found := extractVehicleJSON(body)
	if !found {
		lower := strings.ToLower(body)
		if containsAny(lower, authKeywords) {
			return "", upstreamError("Error de autenticación con la API de placas. Verifica las credenciales configuradas.")
		}
		if containsAny(lower, notFoundKeywords) {
			return "", notFoundError("La placa " + placa + " no fue encontrada en el sistema.")
		}
		return "", newError(ErrEmptyResponse, "No se encontró JSON en la respuesta SOAP")
	}

	jsonText = strings.TrimSpace(jsonText)
	if jsonText == "" {
		return "", newError(ErrEmptyResponse, "El JSON extraído está vacío")
	}
	if !strings.HasPrefix(jsonText, "{") && !strings.HasPrefix(jsonText, "[") {
		return "", newError(ErrMalformedPayload, "El JSON extraído no tiene un formato válido")
	}
	return jsonText, nil
}

func buildSOAPRequest(placa, username string) string {
	return `<?xml version="1.0" encoding="utf-8"?>` +
		`<soap:Envelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" ` +
		`xmlns:xsd="http://www.w3.org/2001/XMLSchema" ` +
		`xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">` +
		`<soap:Body>` +
		`<CheckPeru xmlns="http://regcheck.org.uk">` +
		`<RegistrationNumber>` + xmlEscape(placa) + `</RegistrationNumber>` +
		`<username>` + xmlEscape(username) + `</username>` +
		`</CheckPeru>` +
		`</soap:Body>` +
		`</soap:Envelope>`
}

func xmlEscape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func containsSOAPFault(body string) bool {
	return strings.Contains(body, "<soap:Fault>") || strings.Contains(body, "soap:Fault") || strings.Contains(body, "<Fault")
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// elementText maps each of names to the text of the first element with
// that local name, ignoring namespace and case. The error is non-nil only
// when the document broke before any of them was found.
func elementText(body string, names ...string) (map[string]string, error) {
	found := make(map[string]string)
	dec := xml.NewDecoder(strings.NewReader(body))
	dec.Strict = false

	var current string
	var text bytes.Buffer
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return found, nil
		}
		if err != nil {
			if len(found) > 0 {
				return found, nil
			}
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if current != "" {
				continue
			}
			for _, n := range names {
				if _, seen := found[n]; !seen && strings.EqualFold(t.Name.Local, n) {
					current = n
					text.Reset()
				}
			}
		case xml.CharData:
			if current != "" {
				text.Write(t)
			}
		case xml.EndElement:
			if current != "" && strings.EqualFold(t.Name.Local, current) {
				found[current] = text.String()
				current = ""
			}
		}
	}
}

// extractVehicleJSON finds the vehicleJson payload. When the element is
// missing, the object around the "Description" key is cut out of the raw
// body instead.
func extractVehicleJSON(body string) (string, bool) {
	if found, err := elementText(body, "vehicleJson"); err == nil {
		if v, ok := found["vehicleJson"]; ok {
			return v, true
		}
	}

	idx := strings.Index(body, `"Description"`)
	if idx < 0 {
		return "", false
	}
	start := strings.LastIndex(body[:idx], "{")
	if start < 0 {
		return "", false
	}
	end := strings.Index(body[idx:], "}")
	if end < 0 {
		return "", false
	}
	return body[start : idx+end+1], true
}

// extractSOAPFault returns the fault string of a SOAP fault reply.
func extractSOAPFault(body string) string {
	found, err := elementText(body, "faultstring", "faultcode")
	if err == nil {
		if v, ok := found["faultstring"]; ok {
			return strings.TrimSpace(v)
		}
		if v, ok := found["faultcode"]; ok {
			return strings.TrimSpace(v)
		}
		return "Error desconocido en la respuesta SOAP"
	}

	if strings.Contains(strings.ToLower(body), "faultstring") {
		for _, pattern := range []string{"<faultstring>", "<soap:faultstring>", "faultstring>"} {
			start := strings.Index(body, pattern)
			if start < 0 {
				continue
			}
			start += len(pattern)
			end := strings.Index(body[start:], "<")
			if end > 0 {
				return strings.TrimSpace(html.UnescapeString(body[start : start+end]))
			}
		}
	}
	return "Error al procesar la respuesta de error de la API"
}

func (s *placaAPIService) faultMessage(fault, placa string) string {
	lower := strings.ToLower(fault)
	switch {
	case strings.Contains(lower, "peru lookup failed"):
		return "La búsqueda de la placa '" + placa + "' falló. " +
			"Posibles causas:\n" +
			"1. La placa no existe en el sistema de registro\n" +
			"2. El usuario '" + s.cfg.Username + "' no tiene créditos suficientes\n" +
			"3. Problema temporal con el servicio de búsqueda\n\n" +
			"Por favor, verifica:\n" +
			"- Que la placa esté correctamente escrita\n" +
			"- Que el usuario tenga créditos disponibles en placaapi.pe\n" +
			"- Intenta con otra placa conocida"
	case containsAny(lower, []string{"invalid", "unauthorized", "credential", "authentication"}):
		return "Error de autenticación con la API de placas.\n\n" +
			"El usuario '" + s.cfg.Username + "' puede no tener créditos disponibles o las credenciales son incorrectas.\n" +
			"Por favor, verifica en el dashboard de placaapi.pe que el usuario tenga créditos suficientes."
	default:
		return "Error en la API de placas: " + fault + "\n\n" +
			"Placa consultada: " + placa + "\n" +
			"Usuario: " + s.cfg.Username
	}
}
