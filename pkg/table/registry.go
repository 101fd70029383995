package table

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/decred/slog"
	"golang.org/x/sync/errgroup"

	"github.com/holdencore/pokercore/pkg/ledger"
	"github.com/holdencore/pokercore/pkg/pokererr"
)

// Registry owns every live table actor, keyed by table_id, and their
// goroutines' lifecycle via an errgroup so a single Shutdown can wait for
// every actor to drain and exit.
type Registry struct {
	mu      sync.RWMutex
	actors  map[string]*Actor
	cancels map[string]context.CancelFunc

	ledger *ledger.Ledger
	log    slog.Logger
	clock  func() time.Time

	group  *errgroup.Group
	gctx   context.Context
	ingress *IngressLimiter
}

// NewRegistry constructs an empty registry. ctx governs the lifetime of
// every actor spawned through it; canceling it (or calling Shutdown)
// stops all tables.
func NewRegistry(ctx context.Context, store *ledger.Ledger, log slog.Logger, clock func() time.Time) *Registry {
	group, gctx := errgroup.WithContext(ctx)
	return &Registry{
		actors:  make(map[string]*Actor),
		cancels: make(map[string]context.CancelFunc),
		ledger:  store,
		log:     log,
		clock:   clock,
		group:   group,
		gctx:    gctx,
		ingress: NewIngressLimiter(),
	}
}

// Open starts a new table actor under cfg and registers it. It is an
// error to Open a table_id that is already running.
func (r *Registry) Open(cfg Config, seed int64) (*Actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actors[cfg.TableID]; exists {
		return nil, pokererr.Conflictf("table %s is already open", cfg.TableID)
	}
	actorCtx, cancel := context.WithCancel(r.gctx)
	actor := NewActor(cfg, r.ledger, r.log, rand.New(rand.NewSource(seed)), r.clock)
	r.actors[cfg.TableID] = actor
	r.cancels[cfg.TableID] = cancel
	r.group.Go(func() error {
		actor.Run(actorCtx)
		return nil
	})
	return actor, nil
}

// Get returns the running actor for tableID, if any.
func (r *Registry) Get(tableID string) (*Actor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actors[tableID]
	return a, ok
}

// Close stops one table's actor and forgets it.
func (r *Registry) Close(tableID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.cancels[tableID]
	if !ok {
		return pokererr.NotFoundf("table %s is not open", tableID)
	}
	cancel()
	delete(r.actors, tableID)
	delete(r.cancels, tableID)
	return nil
}

// Shutdown cancels every table actor and waits for them to exit.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	for _, cancel := range r.cancels {
		cancel()
	}
	r.mu.Unlock()
	return r.group.Wait()
}

// TickAll fans a Tick out to every running table; the table registry's
// owner calls this on a periodic clock.
func (r *Registry) TickAll(now time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.actors {
		a.Send(Tick{Now: now})
	}
}

// Allow applies the ingress policy (connection-rate and concurrency caps)
// for an IP attempting a new table operation. Callers should check this
// before translating a transport-level request into a Message.
func (r *Registry) Allow(ip string) (func(), bool) {
	return r.ingress.Allow(ip)
}
