package reconcile

import (
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paylens/internal/clock"
	obsmetrics "github.com/smallbiznis/paylens/internal/observability/metrics"
	"go.uber.org/zap"
)

const defaultIdleTTL = 5 * time.Minute

// Registry hands out one live view model per observed invoice. A view
// model stays alive while it is being read and is torn down after the
// idle TTL, mirroring a UI session unmounting the view.
type Registry struct {
	fetcher    Fetcher
	subscriber Subscriber
	clk        clock.Clock
	log        *zap.Logger
	metrics    *obsmetrics.ReconcileMetrics
	idleTTL    time.Duration

	mu      sync.Mutex
	entries map[snowflake.ID]*registryEntry
	stop    chan struct{}
	stopped sync.Once
}

type registryEntry struct {
	vm         *ViewModel
	lastAccess time.Time
}

type RegistryOptions struct {
	IdleTTL time.Duration
	Metrics *obsmetrics.ReconcileMetrics
}

func NewRegistry(fetcher Fetcher, subscriber Subscriber, clk clock.Clock, log *zap.Logger, opts RegistryOptions) *Registry {
	idleTTL := opts.IdleTTL
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	r := &Registry{
		fetcher:    fetcher,
		subscriber: subscriber,
		clk:        clk,
		log:        log.Named("reconcile.registry"),
		metrics:    opts.Metrics,
		idleTTL:    idleTTL,
		entries:    make(map[snowflake.ID]*registryEntry),
		stop:       make(chan struct{}),
	}
	go r.janitor()
	return r
}

// Acquire returns the live view model for the invoice, creating one on
// first access.
func (r *Registry) Acquire(invoiceID snowflake.ID) *ViewModel {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[invoiceID]; ok {
		entry.lastAccess = time.Now().UTC()
		return entry.vm
	}

	vm := New(invoiceID, r.fetcher, r.subscriber, r.clk, r.log, Options{Metrics: r.metrics})
	r.entries[invoiceID] = &registryEntry{
		vm:         vm,
		lastAccess: time.Now().UTC(),
	}
	return vm
}

// Release drops and closes the invoice's view model, if present.
func (r *Registry) Release(invoiceID snowflake.ID) {
	r.mu.Lock()
	entry, ok := r.entries[invoiceID]
	if ok {
		delete(r.entries, invoiceID)
	}
	r.mu.Unlock()
	if ok {
		entry.vm.Close()
	}
}

// Close tears down every view model and the janitor.
func (r *Registry) Close() {
	r.stopped.Do(func() { close(r.stop) })

	r.mu.Lock()
	entries := make([]*registryEntry, 0, len(r.entries))
	for id, entry := range r.entries {
		entries = append(entries, entry)
		delete(r.entries, id)
	}
	r.mu.Unlock()

	for _, entry := range entries {
		entry.vm.Close()
	}
}

func (r *Registry) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	cutoff := time.Now().UTC().Add(-r.idleTTL)

	r.mu.Lock()
	var expired []*registryEntry
	for id, entry := range r.entries {
		if entry.lastAccess.Before(cutoff) {
			expired = append(expired, entry)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, entry := range expired {
		entry.vm.Close()
	}
	if len(expired) > 0 {
		r.log.Debug("swept idle view models", zap.Int("count", len(expired)))
	}
}
