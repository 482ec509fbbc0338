package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paylens/internal/clock"
	"github.com/smallbiznis/paylens/internal/fetchcache"
	invoicedomain "github.com/smallbiznis/paylens/internal/invoice/domain"
	"github.com/smallbiznis/paylens/internal/payment/domain"
	"github.com/smallbiznis/paylens/internal/pushevents"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	InvoiceRepo invoicedomain.Repository
	Cache       fetchcache.Store
	Publisher   pushevents.Publisher
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	invoiceRepo invoicedomain.Repository
	cache       fetchcache.Store
	publisher   pushevents.Publisher
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		cache:       p.Cache,
		publisher:   p.Publisher,
	}
}

func (s *Service) Create(ctx context.Context, invoiceID string, req domain.CreatePaymentRequest) (domain.Payment, error) {
	invID, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil {
		return domain.Payment{}, invoicedomain.ErrInvalidID
	}
	if req.Amount <= 0 {
		return domain.Payment{}, domain.ErrInvalidAmount
	}

	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, invID)
	if err != nil {
		return domain.Payment{}, err
	}
	if invoice == nil {
		return domain.Payment{}, invoicedomain.ErrNotFound
	}

	now := s.clock.Now()
	paidAt := now
	if req.PaidAt != nil {
		paidAt = req.PaidAt.UTC()
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		method = domain.MethodOther
	}

	payment := domain.Payment{
		ID:        s.genID.Generate(),
		InvoiceID: invID,
		Amount:    req.Amount,
		Currency:  invoice.Currency,
		Method:    method,
		PaidAt:    paidAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, s.db, &payment); err != nil {
		return domain.Payment{}, err
	}

	s.afterWrite(ctx, invoice)
	s.publish(pushevents.EventPaymentAdded, invID, map[string]any{
		"payment_id": payment.ID,
		"amount":     payment.Amount,
	})

	return payment, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdatePaymentRequest) (domain.Payment, error) {
	paymentID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return domain.Payment{}, domain.ErrInvalidID
	}

	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment == nil {
		return domain.Payment{}, domain.ErrNotFound
	}

	if req.Amount != nil {
		if *req.Amount <= 0 {
			return domain.Payment{}, domain.ErrInvalidAmount
		}
		payment.Amount = *req.Amount
	}
	if req.Method != nil {
		method := strings.TrimSpace(*req.Method)
		if method != "" {
			payment.Method = method
		}
	}
	if req.PaidAt != nil {
		payment.PaidAt = req.PaidAt.UTC()
	}
	payment.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, payment); err != nil {
		return domain.Payment{}, err
	}

	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, payment.InvoiceID)
	if err != nil {
		return domain.Payment{}, err
	}
	if invoice != nil {
		s.afterWrite(ctx, invoice)
	}
	s.publish(pushevents.EventPaymentUpdated, payment.InvoiceID, map[string]any{
		"payment_id": payment.ID,
		"amount":     payment.Amount,
		"method":     payment.Method,
	})

	return *payment, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	paymentID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return domain.ErrInvalidID
	}

	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		return domain.ErrNotFound
	}

	if err := s.repo.Delete(ctx, s.db, paymentID); err != nil {
		return err
	}

	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, payment.InvoiceID)
	if err != nil {
		return err
	}
	if invoice != nil {
		s.afterWrite(ctx, invoice)
	}
	s.publish(pushevents.EventPaymentDeleted, payment.InvoiceID, map[string]any{
		"payment_id": payment.ID,
	})

	return nil
}

func (s *Service) ListByInvoice(ctx context.Context, invoiceID string) ([]domain.Payment, error) {
	invID, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}
	return s.repo.ListByInvoice(ctx, s.db, invID)
}

// afterWrite reconciles the invoice's paid state against the stored
// payment total and invalidates the fetch-cache keys for the invoice.
// It is the server-side source of truth the view model converges to.
func (s *Service) afterWrite(ctx context.Context, invoice *invoicedomain.Invoice) {
	total, err := s.repo.SumByInvoice(ctx, s.db, invoice.ID)
	if err != nil {
		s.log.Error("sum payments", zap.Error(err), zap.Int64("invoice_id", int64(invoice.ID)))
		return
	}

	var next invoicedomain.InvoiceStatus
	switch {
	case total >= invoice.TotalAmount && invoice.Status == invoicedomain.InvoiceStatusOpen:
		next = invoicedomain.InvoiceStatusPaid
	case total < invoice.TotalAmount && invoice.Status == invoicedomain.InvoiceStatusPaid:
		next = invoicedomain.InvoiceStatusOpen
	}

	if next != "" {
		now := s.clock.Now()
		invoice.Status = next
		invoice.UpdatedAt = now
		if next == invoicedomain.InvoiceStatusPaid {
			paidAt := now
			invoice.PaidAt = &paidAt
		} else {
			invoice.PaidAt = nil
		}
		if err := s.invoiceRepo.UpdateStatus(ctx, s.db, invoice); err != nil {
			s.log.Error("update invoice status", zap.Error(err), zap.Int64("invoice_id", int64(invoice.ID)))
		} else {
			s.publish(pushevents.EventStatusChanged, invoice.ID, map[string]any{
				"status": invoice.Status,
			})
		}
	}

	s.cache.Invalidate(
		fetchcache.InvoiceKey(invoice.ID),
		fetchcache.PaymentsKey(invoice.ID),
	)
}

func (s *Service) publish(name string, invoiceID snowflake.ID, payload map[string]any) {
	payload["occurred_at"] = s.clock.Now().Format(time.RFC3339)
	event, err := pushevents.NewEvent(name, invoiceID, payload)
	if err != nil {
		s.log.Error("build push event", zap.Error(err), zap.String("event", name))
		return
	}
	s.publisher.Publish(event)
}
