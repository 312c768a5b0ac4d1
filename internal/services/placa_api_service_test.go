package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const vehicleSOAPResponse = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <CheckPeruResponse xmlns="http://regcheck.org.uk">
      <CheckPeruResult>
        <vehicleJson>{&quot;Description&quot;:&quot;TOYOTA YARIS&quot;,&quot;RegistrationYear&quot;:&quot;2015&quot;,&quot;CarMake&quot;:{&quot;CurrentTextValue&quot;:&quot;TOYOTA&quot;}}</vehicleJson>
      </CheckPeruResult>
    </CheckPeruResponse>
  </soap:Body>
</soap:Envelope>`

func soapFault(msg string) string {
	return `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <soap:Fault>
      <faultcode>soap:Server</faultcode>
      <faultstring>` + msg + `</faultstring>
    </soap:Fault>
  </soap:Body>
</soap:Envelope>`
}

func newTestPlacaAPI(t *testing.T, status int, body string) (IPlacaAPIService, *string) {
	t.Helper()
	var captured string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "http://regcheck.org.uk/CheckPeru", r.Header.Get("SOAPAction"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "text/xml"))
		b, _ := io.ReadAll(r.Body)
		captured = string(b)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return NewPlacaAPIService(PlacaAPIConfig{URL: server.URL, Username: "user&co"}, zap.NewNop()), &captured
}

func TestNormalizePlate(t *testing.T) {
	assert.Equal(t, "ABC123", NormalizePlate("abc-123"))
	assert.Equal(t, "T3V213", NormalizePlate(" t3v 213 "))
}

func TestLookupPlate_ExtractsAndDecodesVehicleJSON(t *testing.T) {
	api, captured := newTestPlacaAPI(t, http.StatusOK, vehicleSOAPResponse)

	jsonText, err := api.LookupPlate(context.Background(), "abc-123")
	require.NoError(t, err)
	assert.Equal(t, `{"Description":"TOYOTA YARIS","RegistrationYear":"2015","CarMake":{"CurrentTextValue":"TOYOTA"}}`, jsonText)

	assert.Contains(t, *captured, "<RegistrationNumber>ABC123</RegistrationNumber>")
	assert.Contains(t, *captured, "<username>user&amp;co</username>")
}

func TestLookupPlate_DecodesEntitiesOnce(t *testing.T) {
	body := `<r><vehicleJson>{&quot;Description&quot;:&quot;FORD F&amp;amp;S&quot;,&quot;Owner&quot;:&quot;A &amp;lt;B&amp;gt;&quot;}</vehicleJson></r>`
	api, _ := newTestPlacaAPI(t, http.StatusOK, body)

	jsonText, err := api.LookupPlate(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.Equal(t, `{"Description":"FORD F&amp;S","Owner":"A &lt;B&gt;"}`, jsonText)
}

func TestNewPlacaAPIService_WarnsWithoutUsername(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	NewPlacaAPIService(PlacaAPIConfig{}, zap.New(core))
	assert.Equal(t, 1, logs.FilterMessage("PLACA_API_USERNAME not set, plate lookups will be rejected by the registry").Len())

	core, logs = observer.New(zap.WarnLevel)
	NewPlacaAPIService(PlacaAPIConfig{Username: "cuenta"}, zap.New(core))
	assert.Zero(t, logs.Len())
}

func TestLookupPlate_FallsBackToRawDescriptionObject(t *testing.T) {
	body := `<result>{"Description":"KIA RIO","Owner":"X"}</result>`
	api, _ := newTestPlacaAPI(t, http.StatusOK, body)

	jsonText, err := api.LookupPlate(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.Equal(t, `{"Description":"KIA RIO","Owner":"X"}`, jsonText)
}

func TestLookupPlate_PeruLookupFailedFault(t *testing.T) {
	api, _ := newTestPlacaAPI(t, http.StatusInternalServerError, soapFault("Peru Lookup Failed"))

	_, err := api.LookupPlate(context.Background(), "ABC123")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "La búsqueda de la placa 'ABC123' falló")
	assert.Contains(t, err.Error(), "El usuario 'user&co' no tiene créditos suficientes")
}

func TestLookupPlate_AuthFaultOnSuccessStatus(t *testing.T) {
	api, _ := newTestPlacaAPI(t, http.StatusOK, soapFault("Invalid username"))

	_, err := api.LookupPlate(context.Background(), "ABC123")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.True(t, strings.HasPrefix(err.Error(), "Error de autenticación con la API de placas."))
}

func TestLookupPlate_GenericFault(t *testing.T) {
	api, _ := newTestPlacaAPI(t, http.StatusInternalServerError, soapFault("Server busy &amp; overloaded"))

	_, err := api.LookupPlate(context.Background(), "ABC123")
	require.Error(t, err)
	assert.Equal(t, "Error en la API de placas: Server busy & overloaded\n\nPlaca consultada: ABC123\nUsuario: user&co", err.Error())
}

func TestLookupPlate_ServerErrorWithoutFault(t *testing.T) {
	api, _ := newTestPlacaAPI(t, http.StatusBadGateway, "bad gateway")

	_, err := api.LookupPlate(context.Background(), "ABC123")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "502")
}

func TestLookupPlate_NotFoundKeywords(t *testing.T) {
	api, _ := newTestPlacaAPI(t, http.StatusOK, `<soap:Envelope><soap:Body><r>Vehicle not found</r></soap:Body></soap:Envelope>`)

	_, err := api.LookupPlate(context.Background(), "ABC123")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "La placa ABC123 no fue encontrada en el sistema.", err.Error())
}

func TestLookupPlate_EmptyAndMalformed(t *testing.T) {
	api, _ := newTestPlacaAPI(t, http.StatusOK, "")
	_, err := api.LookupPlate(context.Background(), "ABC123")
	assert.ErrorIs(t, err, ErrEmptyResponse)

	api, _ = newTestPlacaAPI(t, http.StatusOK, `<r><vehicleJson>   </vehicleJson></r>`)
	_, err = api.LookupPlate(context.Background(), "ABC123")
	assert.ErrorIs(t, err, ErrEmptyResponse)

	api, _ = newTestPlacaAPI(t, http.StatusOK, `<r><VehicleJson>plain text</VehicleJson></r>`)
	_, err = api.LookupPlate(context.Background(), "ABC123")
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestExtractSOAPFault(t *testing.T) {
	assert.Equal(t, "Boom", extractSOAPFault(soapFault("Boom")))
	assert.Equal(t, "Cuota &amp; límite", extractSOAPFault(soapFault("Cuota &amp;amp; límite")))
	assert.Equal(t, "soap:Client", extractSOAPFault(`<Envelope><Fault><faultcode>soap:Client</faultcode></Fault></Envelope>`))
	assert.Equal(t, "Error desconocido en la respuesta SOAP", extractSOAPFault(`<Envelope><Fault></Fault></Envelope>`))
}
