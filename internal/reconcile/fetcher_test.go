package reconcile

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/paylens/internal/config"
	"github.com/smallbiznis/paylens/internal/fetchcache"
	invoicedomain "github.com/smallbiznis/paylens/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/paylens/internal/invoice/repository"
	paymentdomain "github.com/smallbiznis/paylens/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/paylens/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestFetcher(t *testing.T) (Fetcher, *gorm.DB, fetchcache.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&invoicedomain.Invoice{}, &paymentdomain.Payment{}))

	cache := fetchcache.NewStore(config.Config{CacheInvoiceTTLSeconds: 60, CachePaymentsTTLSeconds: 60})
	fetcher := NewCachedFetcher(FetcherParams{
		DB:          db,
		InvoiceRepo: invoicerepo.Provide(),
		PaymentRepo: paymentrepo.Provide(),
		Cache:       cache,
	})
	return fetcher, db, cache
}

func TestFetchInvoicePopulatesCacheOnMiss(t *testing.T) {
	fetcher, db, cache := newTestFetcher(t)
	invoice := testInvoice(100_00, nil)
	require.NoError(t, db.Create(&invoice).Error)

	got, err := fetcher.FetchInvoice(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.ID, got.ID)

	cached, ok := cache.GetInvoice(fetchcache.InvoiceKey(invoice.ID))
	require.True(t, ok)
	assert.Equal(t, invoice.TotalAmount, cached.TotalAmount)
}

func TestFetchInvoicePrefersCachedSnapshot(t *testing.T) {
	fetcher, db, cache := newTestFetcher(t)
	invoice := testInvoice(100_00, nil)
	require.NoError(t, db.Create(&invoice).Error)

	stale := invoice
	stale.TotalAmount = 999_00
	cache.SetInvoice(fetchcache.InvoiceKey(invoice.ID), stale)

	got, err := fetcher.FetchInvoice(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(999_00), got.TotalAmount)
}

func TestFetchInvoiceNotFound(t *testing.T) {
	fetcher, _, _ := newTestFetcher(t)
	_, err := fetcher.FetchInvoice(context.Background(), snowflake.ID(404))
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)
}

func TestFetchPaymentsRoundTripsThroughCache(t *testing.T) {
	fetcher, db, cache := newTestFetcher(t)
	invoice := testInvoice(100_00, nil)
	require.NoError(t, db.Create(&invoice).Error)
	payment := testPayment(snowflake.ID(1), 40_00)
	require.NoError(t, db.Create(&payment).Error)

	got, err := fetcher.FetchPayments(context.Background(), invoice.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)

	cache.Invalidate(fetchcache.PaymentsKey(invoice.ID))
	cache.SetPayments(fetchcache.PaymentsKey(invoice.ID), nil)
	got, err = fetcher.FetchPayments(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}
