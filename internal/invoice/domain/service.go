package domain

import (
	"context"
	"errors"
	"time"
)

type CreateInvoiceRequest struct {
	CustomerID  string     `json:"customer_id"`
	Number      string     `json:"number"`
	TotalAmount int64      `json:"total_amount"`
	Currency    string     `json:"currency"`
	DueAt       *time.Time `json:"due_at"`
}

type ListInvoiceRequest struct {
	Status     string `form:"status"`
	CustomerID string `form:"customer_id"`
}

type ListInvoiceResponse struct {
	Invoices []Invoice `json:"invoices"`
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	UpdateStatus(ctx context.Context, id string, status InvoiceStatus) (Invoice, error)
}

var (
	ErrNotFound        = errors.New("invoice_not_found")
	ErrInvalidID       = errors.New("invalid_invoice_id")
	ErrInvalidAmount   = errors.New("invalid_total_amount")
	ErrInvalidNumber   = errors.New("invalid_invoice_number")
	ErrInvalidStatus   = errors.New("invalid_invoice_status")
	ErrDuplicateNumber = errors.New("duplicate_invoice_number")
	ErrInvalidDueDate  = errors.New("invalid_due_date")
)
