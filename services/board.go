package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dentalflow/dentalflow-api/events"
	"github.com/dentalflow/dentalflow-api/metrics"
	"github.com/dentalflow/dentalflow-api/models"
	"github.com/dentalflow/dentalflow-api/workflow"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// BoardSnapshot is the last-known board of a laboratory
type BoardSnapshot struct {
	workflow.Board
	RefreshedAt time.Time `json:"refreshed_at"`
	LastError   string    `json:"last_error,omitempty"`
}

// boardData is what a refresh fetches. SLA states are derived from it on
// every read so they follow the clock between refreshes.
type boardData struct {
	orders  []models.Order
	catalog *workflow.Catalog
}

// Board keeps the workflow board of one laboratory fresh and serializes
// transitions per order.
type Board struct {
	laboratoryID string
	orders       *OrderService
	steps        *StepCatalog
	hub          *events.Hub
	interval     time.Duration

	gen      atomic.Uint64
	snapshot latest[boardData]

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewBoard creates the board of one laboratory
func NewBoard(laboratoryID string, orders *OrderService, steps *StepCatalog, hub *events.Hub, interval time.Duration) *Board {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Board{
		laboratoryID: laboratoryID,
		orders:       orders,
		steps:        steps,
		hub:          hub,
		interval:     interval,
		inFlight:     make(map[string]bool),
	}
}

// Refresh re-fetches active orders and the catalog concurrently and stores
// the partition unless a newer refresh already landed. On failure the
// previous board stays in place and the error is recorded.
func (b *Board) Refresh(ctx context.Context) error {
	gen := b.gen.Add(1)
	start := time.Now()

	var (
		orders  []models.Order
		catalog *workflow.Catalog
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, err = b.orders.ListActive(gctx, b.laboratoryID)
		return err
	})
	g.Go(func() error {
		var err error
		catalog, err = b.steps.Load(gctx, b.laboratoryID)
		return err
	})
	err := g.Wait()
	metrics.BoardRefreshDuration.WithLabelValues(metrics.Result(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		if b.snapshot.fail(gen, err) {
			log.Error().Err(err).Str("laboratory_id", b.laboratoryID).Msg("Board refresh failed, keeping last snapshot")
		}
		return err
	}

	now := Now()
	board := workflow.BuildBoard(orders, catalog, now)
	if !b.snapshot.apply(gen, boardData{orders: orders, catalog: catalog}, now) {
		log.Debug().Str("laboratory_id", b.laboratoryID).Uint64("generation", gen).Msg("Discarding stale board refresh")
		return nil
	}

	for _, col := range board.Columns {
		metrics.BoardOverdueOrders.WithLabelValues(b.laboratoryID, col.StepKey).Set(float64(col.OverdueCount))
	}
	if n := len(board.Unknown.Cards); n > 0 {
		log.Warn().Str("laboratory_id", b.laboratoryID).Int("orders", n).Msg("Orders in statuses without an active workflow step")
	}
	return nil
}

// Snapshot renders the last-fetched orders against the current time,
// refreshing first if nothing has been fetched yet
func (b *Board) Snapshot(ctx context.Context) (*BoardSnapshot, error) {
	data, ok, at, lastErr := b.snapshot.get()
	if !ok {
		if err := b.Refresh(ctx); err != nil {
			return nil, err
		}
		data, _, at, lastErr = b.snapshot.get()
	}

	board := workflow.BuildBoard(data.orders, data.catalog, Now())
	snap := &BoardSnapshot{Board: board, RefreshedAt: at}
	if lastErr != nil {
		snap.LastError = lastErr.Error()
	}
	return snap, nil
}

// Transition applies a status change unless another one for the same order
// is still in flight from this process.
func (b *Board) Transition(ctx context.Context, actor Actor, req TransitionRequest) (*models.Order, error) {
	b.mu.Lock()
	if b.inFlight[req.OrderID] {
		b.mu.Unlock()
		return nil, &workflow.ConcurrencyError{
			Code:    workflow.CodeInFlight,
			Message: "a status change for this order is already in progress",
		}
	}
	b.inFlight[req.OrderID] = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.inFlight, req.OrderID)
		b.mu.Unlock()
	}()

	return b.orders.Transition(ctx, actor, req)
}

// Run refreshes on every order or catalog change and on a ticker, until ctx ends
func (b *Board) Run(ctx context.Context) {
	sub := b.hub.Subscribe(b.laboratoryID, 32, events.TableOrders, events.TableWorkflowSteps)
	defer b.hub.Unsubscribe(sub.ID)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Events:
			if !ok {
				return
			}
			// coalesce a burst of changes into one refetch
			drain(sub.Events)
			b.Refresh(ctx)
		case <-ticker.C:
			b.Refresh(ctx)
		}
	}
}

func drain(ch <-chan events.Change) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// BoardRegistry holds one Board per laboratory, created on first use
type BoardRegistry struct {
	orders   *OrderService
	steps    *StepCatalog
	hub      *events.Hub
	interval time.Duration

	mu     sync.Mutex
	boards map[string]*Board
	ctx    context.Context
	wg     sync.WaitGroup
}

// NewBoardRegistry creates an empty registry
func NewBoardRegistry(orders *OrderService, steps *StepCatalog, hub *events.Hub, interval time.Duration) *BoardRegistry {
	return &BoardRegistry{
		orders:   orders,
		steps:    steps,
		hub:      hub,
		interval: interval,
		boards:   make(map[string]*Board),
	}
}

// Start makes boards created from now on (and existing ones) follow change
// notifications until ctx ends.
func (r *BoardRegistry) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctx = ctx
	for _, b := range r.boards {
		r.run(b)
	}
}

// For returns the board of laboratoryID
func (r *BoardRegistry) For(laboratoryID string) *Board {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.boards[laboratoryID]; ok {
		return b
	}
	b := NewBoard(laboratoryID, r.orders, r.steps, r.hub, r.interval)
	r.boards[laboratoryID] = b
	if r.ctx != nil {
		r.run(b)
	}
	return b
}

// Wait blocks until every running board has stopped
func (r *BoardRegistry) Wait() {
	r.wg.Wait()
}

func (r *BoardRegistry) run(b *Board) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		b.Run(r.ctx)
	}()
}
