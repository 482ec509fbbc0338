package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/paylens/internal/invoice/domain"
	"github.com/smallbiznis/paylens/internal/providers/pdf"
	"go.uber.org/zap"
)

// DownloadReceipt renders a receipt PDF once the invoice is paid.
func (s *Server) DownloadReceipt(c *gin.Context) {
	ctx := c.Request.Context()

	invoice, err := s.invoiceSvc.GetByID(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if invoice.Status != invoicedomain.InvoiceStatusPaid {
		AbortWithError(c, ErrConflict)
		return
	}

	payments, err := s.paymentSvc.ListByInvoice(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var totalPaid int64
	lines := make([]pdf.ReceiptLine, 0, len(payments))
	for _, p := range payments {
		totalPaid += p.Amount
		lines = append(lines, pdf.ReceiptLine{
			Description: "Payment " + p.ID.String(),
			Method:      p.Method,
			PaidAt:      p.PaidAt.Format("2006-01-02"),
			Amount:      formatMinorUnits(p.Amount),
		})
	}

	data := pdf.ReceiptData{
		InvoiceNumber: invoice.Number,
		DatePaid:      formatDate(invoice.PaidAt),
		DueDate:       formatDate(invoice.DueAt),
		BillToName:    invoice.CustomerID.String(),
		Currency:      invoice.Currency,
		Lines:         lines,
		TotalPaid:     formatMinorUnits(totalPaid),
		Total:         formatMinorUnits(invoice.TotalAmount),
		Balance:       formatMinorUnits(invoice.TotalAmount - totalPaid),
	}

	reader, err := s.pdf.GenerateReceipt(ctx, data)
	if err != nil {
		s.log.Error("render receipt", zap.Error(err))
		AbortWithError(c, ErrInternal)
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=receipt-%s.pdf", invoice.Number))
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, reader)
}

func formatMinorUnits(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
