// Package pdf renders payment receipts for paid invoices.
package pdf

import (
	"context"
	"io"

	"go.uber.org/fx"
)

// ReceiptData carries everything a rendered receipt shows.
type ReceiptData struct {
	InvoiceNumber string
	DatePaid      string
	DueDate       string

	BillToName string

	Currency string
	Lines    []ReceiptLine

	TotalPaid string
	Total     string
	Balance   string
}

// ReceiptLine is one payment on the receipt.
type ReceiptLine struct {
	Description string
	Method      string
	PaidAt      string
	Amount      string
}

type Provider interface {
	GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error)
}

var Module = fx.Module("pdf",
	fx.Provide(New),
)
