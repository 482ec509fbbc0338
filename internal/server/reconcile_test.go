package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/paylens/internal/clock"
	"github.com/smallbiznis/paylens/internal/config"
	"github.com/smallbiznis/paylens/internal/fetchcache"
	invoicedomain "github.com/smallbiznis/paylens/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/paylens/internal/invoice/repository"
	invoicesvc "github.com/smallbiznis/paylens/internal/invoice/service"
	paymentdomain "github.com/smallbiznis/paylens/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/paylens/internal/payment/repository"
	paymentsvc "github.com/smallbiznis/paylens/internal/payment/service"
	"github.com/smallbiznis/paylens/internal/providers/pdf"
	"github.com/smallbiznis/paylens/internal/pushevents"
	"github.com/smallbiznis/paylens/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type serverFixture struct {
	engine *gin.Engine
	db     *gorm.DB
	clk    *clock.FakeClock
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&invoicedomain.Invoice{}, &paymentdomain.Payment{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	log := zap.NewNop()
	cfg := config.Config{CacheInvoiceTTLSeconds: 60, CachePaymentsTTLSeconds: 60}
	clk := clock.NewFakeClock(time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC))
	hub := pushevents.NewHub()
	publisher := pushevents.NewPublisher(hub, nil, log)
	cache := fetchcache.NewStore(cfg)
	invoiceRepo := invoicerepo.Provide()
	paymentRepo := paymentrepo.Provide()

	invoiceService := invoicesvc.New(invoicesvc.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo: invoiceRepo, Cache: cache, Publisher: publisher,
	})
	paymentService := paymentsvc.New(paymentsvc.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo: paymentRepo, InvoiceRepo: invoiceRepo, Cache: cache, Publisher: publisher,
	})

	fetcher := reconcile.NewCachedFetcher(reconcile.FetcherParams{
		DB: db, InvoiceRepo: invoiceRepo, PaymentRepo: paymentRepo, Cache: cache,
	})
	registry := reconcile.NewRegistry(fetcher, hub, clk, log, reconcile.RegistryOptions{})
	t.Cleanup(registry.Close)

	srv := NewServer(Params{
		Config:     cfg,
		Log:        log,
		Clock:      clk,
		InvoiceSvc: invoiceService,
		PaymentSvc: paymentService,
		Hub:        hub,
		Registry:   registry,
		PDF:        pdf.New(),
		Gatherer:   prometheus.NewRegistry(),
	})

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	registerRoutes(engine, srv)

	return &serverFixture{engine: engine, db: db, clk: clk}
}

func (f *serverFixture) seed(t *testing.T, total int64, payments ...int64) *invoicedomain.Invoice {
	t.Helper()
	invoice := &invoicedomain.Invoice{
		ID:          snowflake.ID(7001),
		CustomerID:  snowflake.ID(42),
		Number:      "INV-7001",
		Status:      invoicedomain.InvoiceStatusOpen,
		TotalAmount: total,
		Currency:    "USD",
		CreatedAt:   f.clk.Now(),
		UpdatedAt:   f.clk.Now(),
	}
	require.NoError(t, f.db.Create(invoice).Error)
	for i, amount := range payments {
		payment := &paymentdomain.Payment{
			ID:        snowflake.ID(8000 + i),
			InvoiceID: invoice.ID,
			Amount:    amount,
			Currency:  "USD",
			Method:    paymentdomain.MethodCard,
			PaidAt:    f.clk.Now(),
			CreatedAt: f.clk.Now(),
			UpdatedAt: f.clk.Now(),
		}
		require.NoError(t, f.db.Create(payment).Error)
	}
	return invoice
}

func (f *serverFixture) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	f.engine.ServeHTTP(rec, req)
	return rec
}

func TestGetReconciliationDerivesView(t *testing.T) {
	f := newServerFixture(t)
	invoice := f.seed(t, 100_00, 25_00, 15_00)

	rec := f.get("/v1/invoices/" + invoice.ID.String() + "/reconciliation")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp reconciliationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Invoice)
	assert.Equal(t, int64(40_00), resp.TotalPaid)
	assert.Equal(t, int64(60_00), resp.Balance)
	assert.False(t, resp.Paid)
	assert.False(t, resp.Loading)
}

func TestGetReconciliationUnknownInvoice(t *testing.T) {
	f := newServerFixture(t)

	rec := f.get("/v1/invoices/" + snowflake.ID(404).String() + "/reconciliation")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetReconciliationRejectsBadID(t *testing.T) {
	f := newServerFixture(t)

	rec := f.get("/v1/invoices/not-an-id/reconciliation")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	f := newServerFixture(t)
	rec := f.get("/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}
