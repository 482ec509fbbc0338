// Package pushevents is the per-invoice publish/subscribe channel used to
// notify observers of server-side changes. Events are best-effort: payloads
// may be partial and delivery order across event names is not guaranteed.
package pushevents

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
)

// Event names delivered on invoice streams.
const (
	EventInvoiceUpdated = "invoice_updated"
	EventPaymentAdded   = "payment_added"
	EventPaymentUpdated = "payment_updated"
	EventPaymentDeleted = "payment_deleted"
	EventStatusChanged  = "status_changed"
)

// Event is one named notification scoped to an invoice. ID is a ULID so
// consumers can deduplicate at-least-once delivery.
type Event struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	InvoiceID  snowflake.ID    `json:"invoice_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Origin     string          `json:"origin,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewEvent builds an event with a fresh ULID.
func NewEvent(name string, invoiceID snowflake.ID, payload any) (Event, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		raw = data
	}
	return Event{
		ID:         ulid.Make().String(),
		Name:       name,
		InvoiceID:  invoiceID,
		Payload:    raw,
		OccurredAt: time.Now().UTC(),
	}, nil
}
