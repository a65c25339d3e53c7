package invoice

import "github.com/google/uuid"

// Payment lifecycle statuses tracked on the host side. The orchestrator only
// reports a terminal outcome; persistence of that outcome happens in handlers.
const (
	PaymentStatusPending    = "PENDING"
	PaymentStatusProcessing = "PROCESSING"
	PaymentStatusFailed     = "FAILED"
)

// Customer is the invoice owner, read-only input to the charge flow.
type Customer struct {
	ID          uuid.UUID
	GivenName   string
	FamilyName  string
	CompanyName string
	Email       string
}

// Address is the billing address attached to an invoice.
type Address struct {
	Line1       string
	City        string
	PostalCode  string
	CountryCode string
}

// Invoice is immutable from the charge flow's perspective.
type Invoice struct {
	ID       uuid.UUID
	Ref      string
	Customer Customer
	Billing  Address
}

// MetadataEntry is an ordered key/value pair attached to a payment. Order
// matters: metadata sent to the gateway is truncated first-wins.
type MetadataEntry struct {
	Key   string `json:"k"`
	Value string `json:"v"`
}

// Payment is created by the host system before the charge flow runs; the
// orchestrator reads it and the handler records the terminal outcome.
type Payment struct {
	ID            uuid.UUID
	InvoiceID     uuid.UUID
	Amount        int64
	Currency      string
	Description   string
	Metadata      []MetadataEntry
	Status        string
	TransactionID string
	Fee           int64
	FailureCode   string
}
