package models

import "time"

// Notificacion tells a seller that a buyer is interested in a listing.
// Buyer name and e-mail are copied at creation time.
//
// The read state is stored twice: "leida" and the legacy "leido" column.
// Code must go through IsRead/MarkRead, which keep both in step; a
// notification counts as read only when both stored flags are true.
type Notificacion struct {
	ID              int64          `bson:"_id" json:"idNotificacion"`
	VendedorID      string         `bson:"id_vendedor" json:"idVendedor"`
	CompradorID     string         `bson:"id_comprador" json:"idComprador"`
	NombreComprador string         `bson:"nombre_comprador,omitempty" json:"nombreComprador,omitempty"`
	EmailComprador  string         `bson:"email_comprador,omitempty" json:"emailComprador,omitempty"`
	AnuncioID       int64          `bson:"id_anuncio" json:"idAnuncio"`
	Titulo          string         `bson:"titulo" json:"titulo"`
	Mensaje         string         `bson:"mensaje" json:"mensaje"`
	Leida           bool           `bson:"leida" json:"leida"`
	Leido           bool           `bson:"leido" json:"leido"`
	FechaCreacion   time.Time      `bson:"fecha_creacion" json:"fechaCreacion"`
	Metadata        map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// IsRead reports the canonical read state.
func (n *Notificacion) IsRead() bool {
	return n.Leida && n.Leido
}

// MarkRead sets the read state on both stored flags.
func (n *Notificacion) MarkRead() {
	n.Leida = true
	n.Leido = true
}

// MarkUnread clears the read state on both stored flags.
func (n *Notificacion) MarkUnread() {
	n.Leida = false
	n.Leido = false
}
