package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/paylens/internal/clock"
	"github.com/smallbiznis/paylens/internal/config"
	"github.com/smallbiznis/paylens/internal/fetchcache"
	"github.com/smallbiznis/paylens/internal/invoice"
	invoicedomain "github.com/smallbiznis/paylens/internal/invoice/domain"
	"github.com/smallbiznis/paylens/internal/observability"
	obslogger "github.com/smallbiznis/paylens/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/paylens/internal/observability/metrics"
	obstracing "github.com/smallbiznis/paylens/internal/observability/tracing"
	"github.com/smallbiznis/paylens/internal/payment"
	paymentdomain "github.com/smallbiznis/paylens/internal/payment/domain"
	"github.com/smallbiznis/paylens/internal/providers/pdf"
	"github.com/smallbiznis/paylens/internal/pushevents"
	"github.com/smallbiznis/paylens/internal/reconcile"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	observability.Module,
	fetchcache.Module,
	pushevents.Module,
	invoice.Module,
	payment.Module,
	reconcile.Module,
	pdf.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

// NewEngine builds the gin engine with the shared middleware chain.
func NewEngine(cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !cfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{Debug: cfg.Debug()}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())
	return r
}

type Params struct {
	fx.In

	Config     config.Config
	Log        *zap.Logger
	Clock      clock.Clock
	InvoiceSvc invoicedomain.Service
	PaymentSvc paymentdomain.Service
	Hub        *pushevents.Hub
	Registry   *reconcile.Registry
	PDF        pdf.Provider
	Gatherer   prometheus.Gatherer
}

type Server struct {
	cfg        config.Config
	log        *zap.Logger
	clock      clock.Clock
	invoiceSvc invoicedomain.Service
	paymentSvc paymentdomain.Service
	hub        *pushevents.Hub
	registry   *reconcile.Registry
	pdf        pdf.Provider
	gatherer   prometheus.Gatherer
}

func NewServer(p Params) *Server {
	return &Server{
		cfg:        p.Config,
		log:        p.Log.Named("http.server"),
		clock:      p.Clock,
		invoiceSvc: p.InvoiceSvc,
		paymentSvc: p.PaymentSvc,
		hub:        p.Hub,
		registry:   p.Registry,
		pdf:        p.PDF,
		gatherer:   p.Gatherer,
	}
}

func registerRoutes(r *gin.Engine, s *Server) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/v1")
	{
		v1.POST("/invoices", s.CreateInvoice)
		v1.GET("/invoices", s.ListInvoices)
		v1.GET("/invoices/:id", s.GetInvoice)
		v1.PATCH("/invoices/:id/status", s.UpdateInvoiceStatus)

		v1.GET("/invoices/:id/payments", s.ListPayments)
		v1.POST("/invoices/:id/payments", s.CreatePayment)
		v1.PATCH("/payments/:id", s.UpdatePayment)
		v1.DELETE("/payments/:id", s.DeletePayment)

		v1.GET("/invoices/:id/reconciliation", s.GetReconciliation)
		v1.GET("/invoices/:id/events", s.StreamInvoiceEvents)
		v1.GET("/invoices/:id/receipt", s.DownloadReceipt)
	}
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_ = ctx
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("http server shutting down")
			return srv.Shutdown(ctx)
		},
	})
}
