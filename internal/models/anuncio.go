package models

import (
	"strconv"
	"time"
)

// Anuncio is a vehicle listing. Images are embedded so deleting the
// document removes them with it.
type Anuncio struct {
	ID                 int64     `bson:"_id" json:"idAnuncio"`
	UserID             string    `bson:"id_usuario" json:"idUsuario"`
	Titulo             string    `bson:"titulo" json:"titulo"`
	Modelo             string    `bson:"modelo" json:"modelo"`
	Anio               int       `bson:"anio" json:"anio"`
	Kilometraje        int       `bson:"kilometraje" json:"kilometraje"`
	Precio             float64   `bson:"precio" json:"precio"`
	Descripcion        string    `bson:"descripcion" json:"descripcion"`
	EmailContacto      string    `bson:"email_contacto,omitempty" json:"emailContacto,omitempty"`
	TelefonoContacto   string    `bson:"telefono_contacto,omitempty" json:"telefonoContacto,omitempty"`
	TipoVehiculo       string    `bson:"tipo_vehiculo,omitempty" json:"tipoVehiculo,omitempty"`
	CategoriaID        *int64    `bson:"id_categoria,omitempty" json:"idCategoria,omitempty"`
	Imagenes           []Imagen  `bson:"imagenes" json:"imagenes"`
	FechaCreacion      time.Time `bson:"fecha_creacion" json:"fechaCreacion"`
	FechaActualizacion time.Time `bson:"fecha_actualizacion" json:"fechaActualizacion"`
	Activo             bool      `bson:"activo" json:"activo"`
}

// Imagen is one uploaded photo of an Anuncio.
type Imagen struct {
	ID            int64     `bson:"id_imagen" json:"idImagen"`
	URL           string    `bson:"url_imagen" json:"urlImagen"`
	NombreArchivo string    `bson:"nombre_archivo" json:"nombreArchivo"`
	TipoArchivo   string    `bson:"tipo_archivo" json:"tipoArchivo"`
	TamanoArchivo int64     `bson:"tamano_archivo" json:"tamanoArchivo"`
	FechaSubida   time.Time `bson:"fecha_subida" json:"fechaSubida"`
	Orden         int       `bson:"orden" json:"orden"`
}

// DisplayTitle is the listing's title, or "modelo anio" for records
// stored without one.
func (a *Anuncio) DisplayTitle() string {
	if a.Titulo != "" {
		return a.Titulo
	}
	return a.Modelo + " " + strconv.Itoa(a.Anio)
}

// IsOwnedBy reports whether userID published the listing.
func (a *Anuncio) IsOwnedBy(userID string) bool {
	return a.UserID != "" && a.UserID == userID
}
