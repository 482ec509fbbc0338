package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paylens/internal/clock"
	"github.com/smallbiznis/paylens/internal/fetchcache"
	"github.com/smallbiznis/paylens/internal/invoice/domain"
	"github.com/smallbiznis/paylens/internal/pushevents"
	"github.com/smallbiznis/paylens/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Cache     fetchcache.Store
	Publisher pushevents.Publisher
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	cache     fetchcache.Store
	publisher pushevents.Publisher
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("invoice.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		cache:     p.Cache,
		publisher: p.Publisher,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateInvoiceRequest) (domain.Invoice, error) {
	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil {
		return domain.Invoice{}, domain.ErrInvalidID
	}
	if req.TotalAmount < 0 {
		return domain.Invoice{}, domain.ErrInvalidAmount
	}
	number := strings.TrimSpace(req.Number)
	if number == "" {
		return domain.Invoice{}, domain.ErrInvalidNumber
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	now := s.clock.Now()
	invoice := domain.Invoice{
		ID:          s.genID.Generate(),
		CustomerID:  customerID,
		Number:      number,
		Status:      domain.InvoiceStatusOpen,
		TotalAmount: req.TotalAmount,
		Currency:    currency,
		IssuedAt:    &now,
		DueAt:       req.DueAt,
		Metadata:    datatypes.JSONMap{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, s.db, &invoice); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Invoice{}, domain.ErrDuplicateNumber
		}
		return domain.Invoice{}, err
	}

	return invoice, nil
}

func (s *Service) List(ctx context.Context, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	filter := domain.ListInvoiceFilter{}
	if status := strings.TrimSpace(req.Status); status != "" {
		filter.Status = domain.InvoiceStatus(strings.ToUpper(status))
	}
	if raw := strings.TrimSpace(req.CustomerID); raw != "" {
		customerID, err := snowflake.ParseString(raw)
		if err != nil {
			return domain.ListInvoiceResponse{}, domain.ErrInvalidID
		}
		filter.CustomerID = customerID
	}

	invoices, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListInvoiceResponse{}, err
	}
	return domain.ListInvoiceResponse{Invoices: invoices}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Invoice, error) {
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return domain.Invoice{}, domain.ErrInvalidID
	}

	invoice, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice == nil {
		return domain.Invoice{}, domain.ErrNotFound
	}
	return *invoice, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id string, status domain.InvoiceStatus) (domain.Invoice, error) {
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return domain.Invoice{}, domain.ErrInvalidID
	}
	switch status {
	case domain.InvoiceStatusDraft,
		domain.InvoiceStatusOpen,
		domain.InvoiceStatusPaid,
		domain.InvoiceStatusVoid,
		domain.InvoiceStatusUncollectible:
	default:
		return domain.Invoice{}, domain.ErrInvalidStatus
	}

	invoice, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice == nil {
		return domain.Invoice{}, domain.ErrNotFound
	}

	now := s.clock.Now()
	invoice.Status = status
	invoice.UpdatedAt = now
	if status == domain.InvoiceStatusPaid {
		paidAt := now
		invoice.PaidAt = &paidAt
	} else {
		invoice.PaidAt = nil
	}

	if err := s.repo.UpdateStatus(ctx, s.db, invoice); err != nil {
		return domain.Invoice{}, err
	}

	s.cache.Invalidate(fetchcache.InvoiceKey(invoice.ID))
	s.publishStatusChanged(invoice)

	return *invoice, nil
}

func (s *Service) publishStatusChanged(invoice *domain.Invoice) {
	event, err := pushevents.NewEvent(pushevents.EventStatusChanged, invoice.ID, map[string]any{
		"status": invoice.Status,
	})
	if err != nil {
		s.log.Error("build push event", zap.Error(err))
		return
	}
	s.publisher.Publish(event)
}
