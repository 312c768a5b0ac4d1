package models

import "time"

// Vehiculo is the latest registry data seen for a plate. Each lookup of the
// same plate overwrites it.
type Vehiculo struct {
	ID                    int64          `bson:"_id" json:"idVehiculo"`
	Placa                 string         `bson:"placa" json:"placa"`
	DescripcionAPI        string         `bson:"descripcion_api,omitempty" json:"descripcionApi,omitempty"`
	Marca                 string         `bson:"marca,omitempty" json:"marca,omitempty"`
	Modelo                string         `bson:"modelo,omitempty" json:"modelo,omitempty"`
	AnioRegistroAPI       string         `bson:"anio_registro_api,omitempty" json:"anioRegistroApi,omitempty"`
	VIN                   string         `bson:"vin,omitempty" json:"vin,omitempty"`
	Uso                   string         `bson:"uso,omitempty" json:"uso,omitempty"`
	Propietario           string         `bson:"propietario,omitempty" json:"propietario,omitempty"`
	DeliveryPoint         string         `bson:"delivery_point,omitempty" json:"deliveryPoint,omitempty"`
	FechaRegistroAPI      *time.Time     `bson:"fecha_registro_api,omitempty" json:"fechaRegistroApi,omitempty"`
	ImageURLAPI           string         `bson:"image_url_api,omitempty" json:"imageUrlApi,omitempty"`
	DatosAPI              map[string]any `bson:"datos_api,omitempty" json:"datosApi,omitempty"`
	FechaActualizacionAPI time.Time      `bson:"fecha_actualizacion_api" json:"fechaActualizacionApi"`
}

// HistorialBusqueda is one plate lookup made by a user. Rows are only ever
// appended.
type HistorialBusqueda struct {
	ID              int64          `bson:"_id" json:"idHistorial"`
	UserID          string         `bson:"id_usuario" json:"idUsuario"`
	PlacaConsultada string         `bson:"placa_consultada" json:"placaConsultada"`
	FechaConsulta   time.Time      `bson:"fecha_consulta" json:"fechaConsulta"`
	ResultadoAPI    map[string]any `bson:"resultado_api" json:"resultadoApi"`
}
