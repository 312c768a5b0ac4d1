package models

import "time"

// Conversacion links a buyer and the seller of one listing. The triple
// (AnuncioID, VendedorID, CompradorID) is unique.
type Conversacion struct {
	ID                 int64      `bson:"_id" json:"idConversacion"`
	AnuncioID          int64      `bson:"id_anuncio" json:"idAnuncio"`
	VendedorID         string     `bson:"id_vendedor" json:"idVendedor"`
	CompradorID        string     `bson:"id_comprador" json:"idComprador"`
	FechaCreacion      time.Time  `bson:"fecha_creacion" json:"fechaCreacion"`
	FechaUltimoMensaje *time.Time `bson:"fecha_ultimo_mensaje,omitempty" json:"fechaUltimoMensaje,omitempty"`
	Activa             bool       `bson:"activa" json:"activa"`
}

// IsParticipant reports whether userID is the seller or the buyer.
func (c *Conversacion) IsParticipant(userID string) bool {
	return userID != "" && (c.VendedorID == userID || c.CompradorID == userID)
}

// Mensaje is one message inside a Conversacion.
type Mensaje struct {
	ID             int64     `bson:"_id" json:"idMensaje"`
	ConversacionID int64     `bson:"id_conversacion" json:"idConversacion"`
	RemitenteID    string    `bson:"id_remitente" json:"idRemitente"`
	Mensaje        string    `bson:"mensaje" json:"mensaje"`
	Leido          bool      `bson:"leido" json:"leido"`
	FechaEnvio     time.Time `bson:"fecha_envio" json:"fechaEnvio"`
}
