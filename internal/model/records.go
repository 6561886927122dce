package model

import "time"

// Wire field keys. The document schema predates this service and is shared
// with the landing-page integration, so the Portuguese keys are kept as-is.
const (
	FieldName         = "nome"
	FieldEmail        = "email"
	FieldPhone        = "telefone"
	FieldDefaultFee   = "valorPadrao"
	FieldFirstSession = "primeiraSessao"
	FieldCreatedAt    = "createdAt"
	FieldOrigin       = "origem"
	FieldTenantCNPJ   = "cnpj"
	FieldClientID     = "clientId"
	FieldDate         = "date"
	FieldValue        = "value"
)

// NewClientID is the placeholder identifier the presentation layer uses for
// the "new client" detail view before a record exists.
const NewClientID = "new"

// Client is a read-through mirror of a client document.
type Client struct {
	ID           string    `json:"id"`
	Name         string    `json:"nome"`
	Email        string    `json:"email"`
	Phone        string    `json:"telefone"`
	DefaultFee   float64   `json:"valorPadrao"`
	FirstSession time.Time `json:"primeiraSessao"`
	CreatedAt    time.Time `json:"createdAt"`
	Origin       string    `json:"origem"`
}

// ClientFromDocument decodes a client document.
func ClientFromDocument(doc Document) Client {
	return Client{
		ID:           doc.ID,
		Name:         doc.StringField(FieldName),
		Email:        doc.StringField(FieldEmail),
		Phone:        doc.StringField(FieldPhone),
		DefaultFee:   doc.FloatField(FieldDefaultFee),
		FirstSession: doc.TimeField(FieldFirstSession),
		CreatedAt:    doc.TimeField(FieldCreatedAt),
		Origin:       doc.StringField(FieldOrigin),
	}
}

// Consultation is a read-through mirror of a consultation document. Read-only
// in this service.
type Consultation struct {
	ID       string    `json:"id"`
	ClientID string    `json:"clientId"`
	Date     time.Time `json:"date"`
	Value    float64   `json:"value"`
}

// ConsultationFromDocument decodes a consultation document.
func ConsultationFromDocument(doc Document) Consultation {
	return Consultation{
		ID:       doc.ID,
		ClientID: doc.StringField(FieldClientID),
		Date:     doc.TimeField(FieldDate),
		Value:    doc.FloatField(FieldValue),
	}
}

// Lead is an inbound contact awaiting conversion into a client. Leads live
// in a shared collection and carry the owning tenant's CNPJ as a plain field.
type Lead struct {
	ID        string    `json:"id"`
	Name      string    `json:"nome"`
	Email     string    `json:"email"`
	Phone     string    `json:"telefone"`
	CNPJ      string    `json:"cnpj"`
	CreatedAt time.Time `json:"createdAt"`
}

// LeadFromDocument decodes a lead document.
func LeadFromDocument(doc Document) Lead {
	return Lead{
		ID:        doc.ID,
		Name:      doc.StringField(FieldName),
		Email:     doc.StringField(FieldEmail),
		Phone:     doc.StringField(FieldPhone),
		CNPJ:      doc.StringField(FieldTenantCNPJ),
		CreatedAt: doc.TimeField(FieldCreatedAt),
	}
}
