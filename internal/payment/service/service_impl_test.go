package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/paylens/internal/clock"
	"github.com/smallbiznis/paylens/internal/config"
	"github.com/smallbiznis/paylens/internal/fetchcache"
	invoicedomain "github.com/smallbiznis/paylens/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/paylens/internal/invoice/repository"
	"github.com/smallbiznis/paylens/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/paylens/internal/payment/repository"
	"github.com/smallbiznis/paylens/internal/pushevents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	svc   domain.Service
	hub   *pushevents.Hub
	cache fetchcache.Store
	clk   *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&invoicedomain.Invoice{}, &domain.Payment{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	hub := pushevents.NewHub()
	cache := fetchcache.NewStore(config.Config{CacheInvoiceTTLSeconds: 60, CachePaymentsTTLSeconds: 60})
	clk := clock.NewFakeClock(time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Repo:        paymentrepo.Provide(),
		InvoiceRepo: invoicerepo.Provide(),
		Cache:       cache,
		Publisher:   pushevents.NewPublisher(hub, nil, zap.NewNop()),
	})

	return &fixture{db: db, svc: svc, hub: hub, cache: cache, clk: clk}
}

func (f *fixture) seedInvoice(t *testing.T, total int64) *invoicedomain.Invoice {
	t.Helper()
	invoice := &invoicedomain.Invoice{
		ID:          snowflake.ID(5001),
		CustomerID:  snowflake.ID(42),
		Number:      "INV-2026-0001",
		Status:      invoicedomain.InvoiceStatusOpen,
		TotalAmount: total,
		Currency:    "USD",
		CreatedAt:   f.clk.Now(),
		UpdatedAt:   f.clk.Now(),
	}
	require.NoError(t, f.db.Create(invoice).Error)
	return invoice
}

func (f *fixture) loadInvoice(t *testing.T, id snowflake.ID) invoicedomain.Invoice {
	t.Helper()
	var invoice invoicedomain.Invoice
	require.NoError(t, f.db.Where("id = ?", id).Take(&invoice).Error)
	return invoice
}

func collectEventNames(t *testing.T, sub *pushevents.Subscription, n int) []string {
	t.Helper()
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		select {
		case event := <-sub.Events():
			names = append(names, event.Name)
		case <-time.After(time.Second):
			t.Fatalf("expected %d events, got %d", n, len(names))
		}
	}
	return names
}

func TestCreatePaymentSettlesInvoice(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedInvoice(t, 100_00)

	sub, _, err := f.hub.Subscribe(invoice.ID)
	require.NoError(t, err)
	defer sub.Close()

	payment, err := f.svc.Create(context.Background(), invoice.ID.String(), domain.CreatePaymentRequest{
		Amount: 100_00,
		Method: domain.MethodBankTransfer,
	})
	require.NoError(t, err)
	assert.Equal(t, invoice.ID, payment.InvoiceID)
	assert.Equal(t, "USD", payment.Currency)

	stored := f.loadInvoice(t, invoice.ID)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)

	names := collectEventNames(t, sub, 2)
	assert.Contains(t, names, pushevents.EventStatusChanged)
	assert.Contains(t, names, pushevents.EventPaymentAdded)
}

func TestCreatePartialPaymentKeepsInvoiceOpen(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedInvoice(t, 100_00)

	sub, _, err := f.hub.Subscribe(invoice.ID)
	require.NoError(t, err)
	defer sub.Close()

	_, err = f.svc.Create(context.Background(), invoice.ID.String(), domain.CreatePaymentRequest{Amount: 30_00})
	require.NoError(t, err)

	stored := f.loadInvoice(t, invoice.ID)
	assert.Equal(t, invoicedomain.InvoiceStatusOpen, stored.Status)
	assert.Nil(t, stored.PaidAt)

	names := collectEventNames(t, sub, 1)
	assert.Equal(t, []string{pushevents.EventPaymentAdded}, names)
}

func TestCreatePaymentValidation(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedInvoice(t, 100_00)

	_, err := f.svc.Create(context.Background(), invoice.ID.String(), domain.CreatePaymentRequest{Amount: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.Create(context.Background(), "not-a-number", domain.CreatePaymentRequest{Amount: 10_00})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidID)

	_, err = f.svc.Create(context.Background(), snowflake.ID(404).String(), domain.CreatePaymentRequest{Amount: 10_00})
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)
}

func TestDeletePaymentReopensInvoice(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedInvoice(t, 50_00)

	payment, err := f.svc.Create(context.Background(), invoice.ID.String(), domain.CreatePaymentRequest{Amount: 50_00})
	require.NoError(t, err)
	require.Equal(t, invoicedomain.InvoiceStatusPaid, f.loadInvoice(t, invoice.ID).Status)

	sub, _, err := f.hub.Subscribe(invoice.ID)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, f.svc.Delete(context.Background(), payment.ID.String()))

	stored := f.loadInvoice(t, invoice.ID)
	assert.Equal(t, invoicedomain.InvoiceStatusOpen, stored.Status)
	assert.Nil(t, stored.PaidAt)

	names := collectEventNames(t, sub, 2)
	assert.Contains(t, names, pushevents.EventStatusChanged)
	assert.Contains(t, names, pushevents.EventPaymentDeleted)

	assert.ErrorIs(t, f.svc.Delete(context.Background(), payment.ID.String()), domain.ErrNotFound)
}

func TestUpdatePaymentAmountReconciles(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedInvoice(t, 100_00)

	payment, err := f.svc.Create(context.Background(), invoice.ID.String(), domain.CreatePaymentRequest{Amount: 40_00})
	require.NoError(t, err)

	amount := int64(100_00)
	updated, err := f.svc.Update(context.Background(), payment.ID.String(), domain.UpdatePaymentRequest{Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, amount, updated.Amount)

	assert.Equal(t, invoicedomain.InvoiceStatusPaid, f.loadInvoice(t, invoice.ID).Status)

	bad := int64(-5)
	_, err = f.svc.Update(context.Background(), payment.ID.String(), domain.UpdatePaymentRequest{Amount: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestWritesInvalidateFetchCache(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedInvoice(t, 100_00)

	f.cache.SetInvoice(fetchcache.InvoiceKey(invoice.ID), *invoice)
	f.cache.SetPayments(fetchcache.PaymentsKey(invoice.ID), nil)

	_, err := f.svc.Create(context.Background(), invoice.ID.String(), domain.CreatePaymentRequest{Amount: 10_00})
	require.NoError(t, err)

	_, ok := f.cache.GetInvoice(fetchcache.InvoiceKey(invoice.ID))
	assert.False(t, ok)
	_, ok = f.cache.GetPayments(fetchcache.PaymentsKey(invoice.ID))
	assert.False(t, ok)
}

func TestListByInvoiceOrdersByPaidAt(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedInvoice(t, 300_00)

	later := f.clk.Now().Add(time.Hour)
	_, err := f.svc.Create(context.Background(), invoice.ID.String(), domain.CreatePaymentRequest{Amount: 10_00, PaidAt: &later})
	require.NoError(t, err)
	earlier := f.clk.Now().Add(-time.Hour)
	_, err = f.svc.Create(context.Background(), invoice.ID.String(), domain.CreatePaymentRequest{Amount: 20_00, PaidAt: &earlier})
	require.NoError(t, err)

	payments, err := f.svc.ListByInvoice(context.Background(), invoice.ID.String())
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, int64(20_00), payments[0].Amount)
	assert.Equal(t, int64(10_00), payments[1].Amount)
}
