// Package reconcile keeps one invoice's displayed state (balance, paid,
// overdue, payment list) consistent while fetch results and push events
// arrive unordered from multiple sources.
package reconcile

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paylens/internal/clock"
	invoicedomain "github.com/smallbiznis/paylens/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/paylens/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/paylens/internal/payment/domain"
	"github.com/smallbiznis/paylens/internal/pushevents"
	"go.uber.org/zap"
)

const (
	fetchTimeout  = 10 * time.Second
	maxSeenEvents = 512
)

// Fetcher is the read port into the fetch/cache layer.
type Fetcher interface {
	FetchInvoice(ctx context.Context, id snowflake.ID) (invoicedomain.Invoice, error)
	FetchPayments(ctx context.Context, invoiceID snowflake.ID) ([]paymentdomain.Payment, error)
}

// Subscriber is the push-transport port. *pushevents.Hub satisfies it.
type Subscriber interface {
	Subscribe(invoiceID snowflake.ID) (*pushevents.Subscription, []pushevents.Event, error)
}

// Snapshot is a point-in-time view of the reconciliation state. Derived
// fields are computed at snapshot time, never cached: Overdue must flip
// once the due date passes even if no event has arrived since the fetch.
type Snapshot struct {
	Invoice   *invoicedomain.Invoice   `json:"invoice,omitempty"`
	Payments  []paymentdomain.Payment  `json:"payments"`
	TotalPaid int64                    `json:"total_paid"`
	Balance   int64                    `json:"balance"`
	Paid      bool                     `json:"paid"`
	Overdue   bool                     `json:"overdue"`
	Loading   bool                     `json:"loading"`
	Err       error                    `json:"-"`
}

// ViewModel owns the reconciliation state for one invoice. All state
// transitions run under one mutex; callers may be any goroutine.
type ViewModel struct {
	invoiceID snowflake.ID
	fetcher   Fetcher
	clk       clock.Clock
	log       *zap.Logger
	metrics   *obsmetrics.ReconcileMetrics

	mu              sync.Mutex
	alive           bool
	invoice         *invoicedomain.Invoice
	payments        []paymentdomain.Payment
	err             error
	invoiceLoading  bool
	paymentsLoading bool

	// Issue-order fetch guards: a response older than the last applied
	// one is discarded, so overlapping refreshes never interleave.
	invoiceIssued   uint64
	invoiceApplied  uint64
	paymentsIssued  uint64
	paymentsApplied uint64

	invoiceResolved  bool
	paymentsResolved bool

	seen      map[string]struct{}
	seenOrder []string

	sub       *pushevents.Subscription
	done      chan struct{}
	ready     chan struct{}
	closeOnce sync.Once
}

// Options carries the optional collaborators.
type Options struct {
	Metrics *obsmetrics.ReconcileMetrics
}

// New builds a view model bound to invoiceID, issues the initial invoice
// and payment fetches, and subscribes to the invoice's push stream.
//
// A zero invoiceID yields an inert view model: no fetch, no subscription,
// derived fields report defaults.
func New(invoiceID snowflake.ID, fetcher Fetcher, subscriber Subscriber, clk clock.Clock, log *zap.Logger, opts Options) *ViewModel {
	vm := &ViewModel{
		invoiceID: invoiceID,
		fetcher:   fetcher,
		clk:       clk,
		log:       log.Named("reconcile"),
		metrics:   opts.Metrics,
		seen:      make(map[string]struct{}),
		done:      make(chan struct{}),
		ready:     make(chan struct{}),
	}

	if invoiceID == 0 {
		close(vm.ready)
		return vm
	}

	sub, backlog, err := subscriber.Subscribe(invoiceID)
	if err != nil {
		// No push stream: the view model still works, it just won't see
		// live updates until the next refresh.
		vm.log.Warn("push subscribe failed", zap.Error(err), zap.Int64("invoice_id", int64(invoiceID)))
	} else {
		vm.sub = sub
	}
	vm.alive = true

	if vm.metrics != nil {
		vm.metrics.ActiveViews.Inc()
	}

	vm.Refresh()
	if vm.sub != nil {
		go vm.consume(backlog)
	}
	return vm
}

// Refresh re-issues both fetches. Safe to call concurrently; overlapping
// calls resolve last-issued-wins.
func (vm *ViewModel) Refresh() {
	vm.refetchInvoice()
	vm.refetchPayments()
}

// Ready is closed once both initial fetches have resolved (with data or
// an error). An inert view model is ready immediately.
func (vm *ViewModel) Ready() <-chan struct{} {
	return vm.ready
}

// Close tears the view model down: the push subscription is closed and
// any in-flight fetch resolution or queued event becomes a no-op.
// Idempotent.
func (vm *ViewModel) Close() {
	vm.closeOnce.Do(func() {
		vm.mu.Lock()
		wasAlive := vm.alive
		vm.alive = false
		vm.mu.Unlock()

		if vm.sub != nil {
			vm.sub.Close()
		}
		close(vm.done)

		if wasAlive && vm.metrics != nil {
			vm.metrics.ActiveViews.Dec()
		}
	})
}

// Snapshot derives the current view. TotalPaid is re-summed on every
// call rather than maintained incrementally, so replaced entries can
// never leave a drifted counter behind. Balance is not clamped: a
// negative balance is a displayable overpayment.
func (vm *ViewModel) Snapshot() Snapshot {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	snap := Snapshot{
		Loading:  vm.invoiceLoading || vm.paymentsLoading,
		Err:      vm.err,
		Payments: append([]paymentdomain.Payment(nil), vm.payments...),
	}
	for _, p := range snap.Payments {
		snap.TotalPaid += p.Amount
	}
	if vm.invoice != nil {
		inv := *vm.invoice
		snap.Invoice = &inv
		snap.Balance = inv.TotalAmount - snap.TotalPaid
		snap.Paid = snap.Balance <= 0
		if !snap.Paid && inv.DueAt != nil && inv.DueAt.Before(vm.clk.Now()) {
			snap.Overdue = true
		}
	}
	return snap
}

func (vm *ViewModel) refetchInvoice() {
	vm.mu.Lock()
	if !vm.alive {
		vm.mu.Unlock()
		return
	}
	vm.invoiceIssued++
	seq := vm.invoiceIssued
	vm.invoiceLoading = true
	vm.mu.Unlock()

	if vm.metrics != nil {
		vm.metrics.Refetches.WithLabelValues("invoice").Inc()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		invoice, err := vm.fetcher.FetchInvoice(ctx, vm.invoiceID)
		vm.onInvoiceResolved(seq, invoice, err)
	}()
}

func (vm *ViewModel) refetchPayments() {
	vm.mu.Lock()
	if !vm.alive {
		vm.mu.Unlock()
		return
	}
	vm.paymentsIssued++
	seq := vm.paymentsIssued
	vm.paymentsLoading = true
	vm.mu.Unlock()

	if vm.metrics != nil {
		vm.metrics.Refetches.WithLabelValues("payments").Inc()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		payments, err := vm.fetcher.FetchPayments(ctx, vm.invoiceID)
		vm.onPaymentsResolved(seq, payments, err)
	}()
}

func (vm *ViewModel) onInvoiceResolved(seq uint64, invoice invoicedomain.Invoice, err error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if !vm.alive {
		return
	}
	vm.invoiceResolved = true
	vm.signalReadyLocked()

	// Last write wins by issue order, not resolve order.
	if seq <= vm.invoiceApplied {
		return
	}
	vm.invoiceApplied = seq
	if seq == vm.invoiceIssued {
		vm.invoiceLoading = false
	}

	if err != nil {
		// Stale-but-present beats a blanked view: keep the last good
		// snapshot and only record the error.
		vm.err = err
		return
	}
	vm.invoice = &invoice
	vm.err = nil
}

func (vm *ViewModel) onPaymentsResolved(seq uint64, payments []paymentdomain.Payment, err error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if !vm.alive {
		return
	}
	vm.paymentsResolved = true
	vm.signalReadyLocked()

	if seq <= vm.paymentsApplied {
		return
	}
	vm.paymentsApplied = seq
	if seq == vm.paymentsIssued {
		vm.paymentsLoading = false
	}

	if err != nil {
		vm.err = err
		return
	}
	vm.payments = payments
	vm.err = nil
}

func (vm *ViewModel) signalReadyLocked() {
	if vm.invoiceResolved && vm.paymentsResolved {
		select {
		case <-vm.ready:
		default:
			close(vm.ready)
		}
	}
}

func (vm *ViewModel) consume(backlog []pushevents.Event) {
	for _, event := range backlog {
		vm.applyEvent(event)
	}
	for {
		select {
		case <-vm.done:
			return
		case event := <-vm.sub.Events():
			vm.applyEvent(event)
		}
	}
}

type invoicePatch struct {
	TotalAmount *int64                       `json:"total_amount"`
	Currency    *string                      `json:"currency"`
	Status      *invoicedomain.InvoiceStatus `json:"status"`
	DueAt       *time.Time                   `json:"due_at"`
}

type paymentPatch struct {
	PaymentID snowflake.ID `json:"payment_id"`
	Amount    *int64       `json:"amount"`
	Method    *string      `json:"method"`
	PaidAt    *time.Time   `json:"paid_at"`
}

// applyEvent merges what the payload safely allows and then refetches
// whatever the event may have invalidated. Payloads are best-effort and
// possibly partial, so the patch gives immediate feedback while the
// refetch guarantees eventual correctness.
func (vm *ViewModel) applyEvent(event pushevents.Event) {
	vm.mu.Lock()
	if !vm.alive {
		vm.mu.Unlock()
		vm.discarded("dead_view")
		return
	}
	if event.ID != "" {
		if _, dup := vm.seen[event.ID]; dup {
			vm.mu.Unlock()
			vm.discarded("duplicate")
			return
		}
		vm.rememberLocked(event.ID)
	}

	refetchInvoice := false
	refetchPayments := false

	switch event.Name {
	case pushevents.EventInvoiceUpdated:
		var patch invoicePatch
		if err := json.Unmarshal(event.Payload, &patch); err == nil && vm.invoice != nil {
			vm.mergeInvoiceLocked(patch)
		}
		// The payload is advisory, not authoritative.
		refetchInvoice = true

	case pushevents.EventPaymentAdded:
		// Never reconstruct a Payment from the event payload: it may
		// carry only the amount. The list refetch is the only safe path.
		var patch paymentPatch
		if err := json.Unmarshal(event.Payload, &patch); err == nil && patch.Amount != nil {
			vm.log.Debug("payment added", zap.Int64("amount", *patch.Amount))
		}
		refetchPayments = true

	case pushevents.EventPaymentUpdated:
		var patch paymentPatch
		if err := json.Unmarshal(event.Payload, &patch); err == nil {
			vm.patchPaymentLocked(patch)
		}
		refetchInvoice = true
		refetchPayments = true

	case pushevents.EventPaymentDeleted:
		var patch paymentPatch
		if err := json.Unmarshal(event.Payload, &patch); err == nil {
			vm.removePaymentLocked(patch.PaymentID)
		}
		refetchInvoice = true
		refetchPayments = true

	case pushevents.EventStatusChanged:
		var patch invoicePatch
		if err := json.Unmarshal(event.Payload, &patch); err == nil && patch.Status != nil && vm.invoice != nil {
			vm.invoice.Status = *patch.Status
		}
		refetchInvoice = true

	default:
		vm.mu.Unlock()
		vm.discarded("unknown_event")
		return
	}
	vm.mu.Unlock()

	if vm.metrics != nil {
		vm.metrics.EventsApplied.WithLabelValues(event.Name).Inc()
	}
	if refetchInvoice {
		vm.refetchInvoice()
	}
	if refetchPayments {
		vm.refetchPayments()
	}
}

func (vm *ViewModel) mergeInvoiceLocked(patch invoicePatch) {
	if patch.TotalAmount != nil {
		vm.invoice.TotalAmount = *patch.TotalAmount
	}
	if patch.Currency != nil {
		vm.invoice.Currency = *patch.Currency
	}
	if patch.Status != nil {
		vm.invoice.Status = *patch.Status
	}
	if patch.DueAt != nil {
		due := patch.DueAt.UTC()
		vm.invoice.DueAt = &due
	}
}

func (vm *ViewModel) patchPaymentLocked(patch paymentPatch) {
	if patch.PaymentID == 0 {
		return
	}
	for i := range vm.payments {
		if vm.payments[i].ID != patch.PaymentID {
			continue
		}
		if patch.Amount != nil {
			vm.payments[i].Amount = *patch.Amount
		}
		if patch.Method != nil {
			vm.payments[i].Method = *patch.Method
		}
		if patch.PaidAt != nil {
			vm.payments[i].PaidAt = patch.PaidAt.UTC()
		}
		return
	}
}

func (vm *ViewModel) removePaymentLocked(id snowflake.ID) {
	if id == 0 {
		return
	}
	for i := range vm.payments {
		if vm.payments[i].ID == id {
			vm.payments = append(vm.payments[:i], vm.payments[i+1:]...)
			return
		}
	}
}

func (vm *ViewModel) rememberLocked(eventID string) {
	vm.seen[eventID] = struct{}{}
	vm.seenOrder = append(vm.seenOrder, eventID)
	if len(vm.seenOrder) > maxSeenEvents {
		oldest := vm.seenOrder[0]
		vm.seenOrder = vm.seenOrder[1:]
		delete(vm.seen, oldest)
	}
}

func (vm *ViewModel) discarded(reason string) {
	if vm.metrics != nil {
		vm.metrics.EventsDiscarded.WithLabelValues(reason).Inc()
	}
}
