package domain

import (
	"context"
	"errors"
	"time"
)

type CreatePaymentRequest struct {
	Amount int64      `json:"amount"`
	Method string     `json:"method"`
	PaidAt *time.Time `json:"paid_at"`
}

type UpdatePaymentRequest struct {
	Amount *int64     `json:"amount"`
	Method *string    `json:"method"`
	PaidAt *time.Time `json:"paid_at"`
}

type Service interface {
	Create(ctx context.Context, invoiceID string, req CreatePaymentRequest) (Payment, error)
	Update(ctx context.Context, id string, req UpdatePaymentRequest) (Payment, error)
	Delete(ctx context.Context, id string) error
	ListByInvoice(ctx context.Context, invoiceID string) ([]Payment, error)
}

var (
	ErrNotFound      = errors.New("payment_not_found")
	ErrInvalidID     = errors.New("invalid_payment_id")
	ErrInvalidAmount = errors.New("invalid_payment_amount")
)
