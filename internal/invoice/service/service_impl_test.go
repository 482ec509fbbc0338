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
	"github.com/smallbiznis/paylens/internal/invoice/domain"
	"github.com/smallbiznis/paylens/internal/invoice/repository"
	"github.com/smallbiznis/paylens/internal/pushevents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T) (domain.Service, *pushevents.Hub, *clock.FakeClock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Invoice{}))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	hub := pushevents.NewHub()
	clk := clock.NewFakeClock(time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Repo:      repository.Provide(),
		Cache:     fetchcache.NewStore(config.Config{}),
		Publisher: pushevents.NewPublisher(hub, nil, zap.NewNop()),
	})
	return svc, hub, clk
}

func TestCreateInvoiceDefaults(t *testing.T) {
	svc, _, clk := newService(t)

	invoice, err := svc.Create(context.Background(), domain.CreateInvoiceRequest{
		CustomerID:  snowflake.ID(42).String(),
		Number:      "INV-2026-0100",
		TotalAmount: 250_00,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusOpen, invoice.Status)
	assert.Equal(t, "USD", invoice.Currency)
	require.NotNil(t, invoice.IssuedAt)
	assert.Equal(t, clk.Now(), *invoice.IssuedAt)

	got, err := svc.GetByID(context.Background(), invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoice.Number, got.Number)
}

func TestCreateInvoiceValidation(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Create(context.Background(), domain.CreateInvoiceRequest{
		CustomerID: "nope",
		Number:     "INV-1",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = svc.Create(context.Background(), domain.CreateInvoiceRequest{
		CustomerID:  snowflake.ID(42).String(),
		Number:      "INV-1",
		TotalAmount: -1,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Create(context.Background(), domain.CreateInvoiceRequest{
		CustomerID: snowflake.ID(42).String(),
		Number:     "   ",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidNumber)
}

func TestCreateInvoiceRejectsDuplicateNumber(t *testing.T) {
	svc, _, _ := newService(t)

	req := domain.CreateInvoiceRequest{
		CustomerID:  snowflake.ID(42).String(),
		Number:      "INV-2026-0300",
		TotalAmount: 10_00,
	}
	_, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrDuplicateNumber)
}

func TestUpdateStatusPublishesEvent(t *testing.T) {
	svc, hub, clk := newService(t)

	invoice, err := svc.Create(context.Background(), domain.CreateInvoiceRequest{
		CustomerID:  snowflake.ID(42).String(),
		Number:      "INV-2026-0200",
		TotalAmount: 100_00,
	})
	require.NoError(t, err)

	sub, _, err := hub.Subscribe(invoice.ID)
	require.NoError(t, err)
	defer sub.Close()

	updated, err := svc.UpdateStatus(context.Background(), invoice.ID.String(), domain.InvoiceStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, updated.Status)
	require.NotNil(t, updated.PaidAt)
	assert.Equal(t, clk.Now(), *updated.PaidAt)

	select {
	case event := <-sub.Events():
		assert.Equal(t, pushevents.EventStatusChanged, event.Name)
		assert.Equal(t, invoice.ID, event.InvoiceID)
	case <-time.After(time.Second):
		t.Fatal("status_changed event never published")
	}

	reopened, err := svc.UpdateStatus(context.Background(), invoice.ID.String(), domain.InvoiceStatusOpen)
	require.NoError(t, err)
	assert.Nil(t, reopened.PaidAt)

	_, err = svc.UpdateStatus(context.Background(), invoice.ID.String(), domain.InvoiceStatus("BOGUS"))
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestListFiltersByStatus(t *testing.T) {
	svc, _, _ := newService(t)

	for i, number := range []string{"INV-A", "INV-B"} {
		invoice, err := svc.Create(context.Background(), domain.CreateInvoiceRequest{
			CustomerID:  snowflake.ID(42).String(),
			Number:      number,
			TotalAmount: int64(100_00 * (i + 1)),
		})
		require.NoError(t, err)
		if i == 0 {
			_, err = svc.UpdateStatus(context.Background(), invoice.ID.String(), domain.InvoiceStatusVoid)
			require.NoError(t, err)
		}
	}

	resp, err := svc.List(context.Background(), domain.ListInvoiceRequest{Status: "void"})
	require.NoError(t, err)
	require.Len(t, resp.Invoices, 1)
	assert.Equal(t, "INV-A", resp.Invoices[0].Number)

	resp, err = svc.List(context.Background(), domain.ListInvoiceRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.Invoices, 2)
}
