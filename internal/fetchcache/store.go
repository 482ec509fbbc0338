package fetchcache

import (
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paylens/internal/config"
	invoicedomain "github.com/smallbiznis/paylens/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/paylens/internal/payment/domain"
	"go.uber.org/fx"
)

const (
	defaultInvoiceTTL  = 30 * time.Second
	defaultPaymentsTTL = 30 * time.Second
)

// Store is the fetch-cache port: read-through get/set plus
// invalidation by key. Keys are one per (resource, invoice) pair.
type Store interface {
	GetInvoice(key string) (invoicedomain.Invoice, bool)
	SetInvoice(key string, invoice invoicedomain.Invoice)
	GetPayments(key string) ([]paymentdomain.Payment, bool)
	SetPayments(key string, payments []paymentdomain.Payment)
	Invalidate(keys ...string)
}

// InvoiceKey returns the cache key of one invoice snapshot.
func InvoiceKey(id snowflake.ID) string {
	return "invoice|" + strconv.FormatInt(int64(id), 10)
}

// PaymentsKey returns the cache key of one invoice's payment list.
func PaymentsKey(invoiceID snowflake.ID) string {
	return "payments|" + strconv.FormatInt(int64(invoiceID), 10)
}

type store struct {
	invoices    *TTLCache[string, invoicedomain.Invoice]
	payments    *TTLCache[string, []paymentdomain.Payment]
	invoiceTTL  time.Duration
	paymentsTTL time.Duration
}

// NewStore builds the in-memory fetch cache.
func NewStore(cfg config.Config) Store {
	invoiceTTL := defaultInvoiceTTL
	if cfg.CacheInvoiceTTLSeconds > 0 {
		invoiceTTL = time.Duration(cfg.CacheInvoiceTTLSeconds) * time.Second
	}
	paymentsTTL := defaultPaymentsTTL
	if cfg.CachePaymentsTTLSeconds > 0 {
		paymentsTTL = time.Duration(cfg.CachePaymentsTTLSeconds) * time.Second
	}
	return &store{
		invoices:    NewTTLCache[string, invoicedomain.Invoice](),
		payments:    NewTTLCache[string, []paymentdomain.Payment](),
		invoiceTTL:  invoiceTTL,
		paymentsTTL: paymentsTTL,
	}
}

func (s *store) GetInvoice(key string) (invoicedomain.Invoice, bool) {
	return s.invoices.Get(key)
}

func (s *store) SetInvoice(key string, invoice invoicedomain.Invoice) {
	if invoice.ID == 0 {
		return
	}
	s.invoices.Set(key, invoice, s.invoiceTTL)
}

func (s *store) GetPayments(key string) ([]paymentdomain.Payment, bool) {
	payments, ok := s.payments.Get(key)
	if !ok {
		return nil, false
	}
	return append([]paymentdomain.Payment(nil), payments...), true
}

func (s *store) SetPayments(key string, payments []paymentdomain.Payment) {
	s.payments.Set(key, append([]paymentdomain.Payment(nil), payments...), s.paymentsTTL)
}

func (s *store) Invalidate(keys ...string) {
	s.invoices.Invalidate(keys...)
	s.payments.Invalidate(keys...)
}

var Module = fx.Module("fetchcache",
	fx.Provide(NewStore),
)
