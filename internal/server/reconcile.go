package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/paylens/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/paylens/internal/payment/domain"
	"github.com/smallbiznis/paylens/internal/pushevents"
)

type reconciliationResponse struct {
	Invoice   *invoiceView            `json:"invoice,omitempty"`
	Payments  []paymentdomain.Payment `json:"payments"`
	TotalPaid int64                   `json:"total_paid"`
	Balance   int64                   `json:"balance"`
	Paid      bool                    `json:"paid"`
	Overdue   bool                    `json:"overdue"`
	Loading   bool                    `json:"loading"`
	Error     string                  `json:"error,omitempty"`
}

type invoiceView struct {
	ID          snowflake.ID                `json:"id"`
	Number      string                      `json:"number"`
	Status      invoicedomain.InvoiceStatus `json:"status"`
	TotalAmount int64                       `json:"total_amount"`
	Currency    string                      `json:"currency"`
	DueAt       *time.Time                  `json:"due_at,omitempty"`
}

// GetReconciliation materializes the invoice's reconciliation snapshot.
// The first call for an invoice spins up its view model and waits for
// the initial fetches to settle.
func (s *Server) GetReconciliation(c *gin.Context) {
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, invoicedomain.ErrInvalidID)
		return
	}

	vm := s.registry.Acquire(invoiceID)

	ctx := c.Request.Context()
	select {
	case <-ctx.Done():
		AbortWithError(c, ErrServiceUnavailable)
		return
	case <-vm.Ready():
	}

	snap := vm.Snapshot()
	resp := reconciliationResponse{
		Payments:  snap.Payments,
		TotalPaid: snap.TotalPaid,
		Balance:   snap.Balance,
		Paid:      snap.Paid,
		Overdue:   snap.Overdue,
		Loading:   snap.Loading,
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	if snap.Invoice != nil {
		resp.Invoice = &invoiceView{
			ID:          snap.Invoice.ID,
			Number:      snap.Invoice.Number,
			Status:      snap.Invoice.Status,
			TotalAmount: snap.Invoice.TotalAmount,
			Currency:    snap.Invoice.Currency,
			DueAt:       snap.Invoice.DueAt,
		}
	}
	if snap.Invoice == nil && resp.Error != "" {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// StreamInvoiceEvents replays the invoice's buffered push events and then
// streams live ones as server-sent events.
func (s *Server) StreamInvoiceEvents(c *gin.Context) {
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, invoicedomain.ErrInvalidID)
		return
	}

	if _, err := s.invoiceSvc.GetByID(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	subscription, backlog, err := s.hub.Subscribe(invoiceID)
	if err != nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	defer subscription.Close()

	writer := c.Writer
	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}

	for _, event := range backlog {
		if err := writeInvoiceEvent(writer, event); err != nil {
			return
		}
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-subscription.Events():
			if err := writeInvoiceEvent(writer, event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeInvoiceEvent(w io.Writer, event pushevents.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Name, data)
	return err
}
