package reconcile

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paylens/internal/fetchcache"
	invoicedomain "github.com/smallbiznis/paylens/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/paylens/internal/payment/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// CachedFetcher reads invoice and payment snapshots through the fetch
// cache, falling back to the database on miss. The view model never
// writes to the shared cache; invalidation happens on the write path.
type CachedFetcher struct {
	db          *gorm.DB
	invoiceRepo invoicedomain.Repository
	paymentRepo paymentdomain.Repository
	cache       fetchcache.Store
}

type FetcherParams struct {
	fx.In

	DB          *gorm.DB
	InvoiceRepo invoicedomain.Repository
	PaymentRepo paymentdomain.Repository
	Cache       fetchcache.Store
}

func NewCachedFetcher(p FetcherParams) Fetcher {
	return &CachedFetcher{
		db:          p.DB,
		invoiceRepo: p.InvoiceRepo,
		paymentRepo: p.PaymentRepo,
		cache:       p.Cache,
	}
}

func (f *CachedFetcher) FetchInvoice(ctx context.Context, id snowflake.ID) (invoicedomain.Invoice, error) {
	key := fetchcache.InvoiceKey(id)
	if invoice, ok := f.cache.GetInvoice(key); ok {
		return invoice, nil
	}

	invoice, err := f.invoiceRepo.FindByID(ctx, f.db, id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if invoice == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrNotFound
	}
	f.cache.SetInvoice(key, *invoice)
	return *invoice, nil
}

func (f *CachedFetcher) FetchPayments(ctx context.Context, invoiceID snowflake.ID) ([]paymentdomain.Payment, error) {
	key := fetchcache.PaymentsKey(invoiceID)
	if payments, ok := f.cache.GetPayments(key); ok {
		return payments, nil
	}

	payments, err := f.paymentRepo.ListByInvoice(ctx, f.db, invoiceID)
	if err != nil {
		return nil, err
	}
	f.cache.SetPayments(key, payments)
	return payments, nil
}
