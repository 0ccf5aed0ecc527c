// Package wishlist mirrors a shopper's remote favorites in memory, applying
// adds and removes optimistically and reverting them when the API refuses.
package wishlist

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"tophome-storefront/internal/domain"
	"tophome-storefront/internal/observability"
)

// FavoritesClient is the remote favorites store
type FavoritesClient interface {
	CreateFavorite(ctx context.Context, id domain.ProductID) error
	ListFavorites(ctx context.Context) ([]domain.Product, error)
	DeleteFavorite(ctx context.Context, id domain.ProductID) error
}

// SessionSource gates the wishlist on authentication
type SessionSource interface {
	IsAuthenticated() bool
	Subscribe(fn func(authenticated bool)) (unsubscribe func())
}

type Option func(*Syncer)

// WithNotifier adds n to the notifiers told about settled changes
func WithNotifier(n Notifier) Option {
	return func(s *Syncer) {
		if n != nil {
			s.notifiers = append(s.notifiers, n)
		}
	}
}

type Syncer struct {
	shopperID string
	client    FavoritesClient
	session   SessionSource
	notifiers []Notifier
	locks     *idLocks

	mu      sync.RWMutex
	items   []domain.Product
	pending map[domain.ProductID]Op
	// settled holds changes committed since the latest refresh started,
	// which its fetched list may predate
	settled map[domain.ProductID]change
	// gen identifies the latest refresh; older fetches are discarded
	gen    uint64
	closed bool

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()
}

// NewSyncer creates a wishlist for one shopper and subscribes it to session
// changes: becoming authenticated triggers a background refresh, losing
// authentication clears the list.
func NewSyncer(shopperID string, client FavoritesClient, session SessionSource, opts ...Option) *Syncer {
	ctx, cancel := context.WithCancel(observability.WithShopperID(context.Background(), shopperID))

	s := &Syncer{
		shopperID: shopperID,
		client:    client,
		session:   session,
		locks:     newIDLocks(),
		pending:   make(map[domain.ProductID]Op),
		settled:   make(map[domain.ProductID]change),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.unsubscribe = session.Subscribe(s.onAuthChange)
	return s
}

func (s *Syncer) onAuthChange(authenticated bool) {
	if !authenticated {
		s.clear()
		s.notify(s.ctx, Event{Op: OpRefresh, Outcome: OutcomeCommitted})
		return
	}

	s.background(true)
}

// Resync refreshes the list in the background without telling notifiers.
// It follows changes another instance has already announced.
func (s *Syncer) Resync() {
	s.background(false)
}

func (s *Syncer) background(announce bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := s.refresh(s.ctx, announce); err != nil && s.ctx.Err() == nil {
			observability.FromContext(s.ctx).Warn("background wishlist refresh failed",
				slog.Bool("announce", announce),
				slog.String("error", err.Error()))
		}
	}()
}

// Close stops automatic synchronization and waits for background refreshes
func (s *Syncer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.unsubscribe()
	s.cancel()
	s.wg.Wait()
}

// Add puts product on the wishlist immediately and then asks the API to
// store it. If the API fails the entry is removed again.
func (s *Syncer) Add(ctx context.Context, product domain.Product) Result {
	unlock := s.locks.Lock(product.ID)
	defer unlock()
	return s.add(ctx, product)
}

// Remove takes the product off the wishlist immediately and then asks the
// API to delete it. If the API fails the entry is restored.
func (s *Syncer) Remove(ctx context.Context, id domain.ProductID) Result {
	unlock := s.locks.Lock(id)
	defer unlock()
	return s.remove(ctx, id)
}

// Toggle adds or removes product depending on its membership once any
// earlier operation on the same id has settled.
func (s *Syncer) Toggle(ctx context.Context, product domain.Product) Result {
	unlock := s.locks.Lock(product.ID)
	defer unlock()

	if s.Contains(product.ID) {
		return s.remove(ctx, product.ID)
	}
	return s.add(ctx, product)
}

func (s *Syncer) add(ctx context.Context, product domain.Product) Result {
	res := Result{ProductID: product.ID, Op: OpAdd, Outcome: OutcomeSkipped}
	if !s.session.IsAuthenticated() {
		return s.settle(ctx, res)
	}

	s.mu.Lock()
	if indexOf(s.items, product.ID) >= 0 {
		s.mu.Unlock()
		return s.settle(ctx, res)
	}
	s.items = append(s.items, product)
	s.pending[product.ID] = OpAdd
	s.mu.Unlock()

	err := s.client.CreateFavorite(ctx, product.ID)

	s.mu.Lock()
	delete(s.pending, product.ID)
	if err != nil {
		s.items = without(s.items, product.ID)
	} else {
		s.settled[product.ID] = change{op: OpAdd, product: product}
	}
	s.mu.Unlock()

	if err != nil {
		res.Outcome, res.Err = OutcomeRolledBack, err
	} else {
		res.Outcome = OutcomeCommitted
	}
	return s.settle(ctx, res)
}

func (s *Syncer) remove(ctx context.Context, id domain.ProductID) Result {
	res := Result{ProductID: id, Op: OpRemove, Outcome: OutcomeSkipped}
	if !s.session.IsAuthenticated() {
		return s.settle(ctx, res)
	}

	s.mu.Lock()
	idx := indexOf(s.items, id)
	if idx < 0 {
		s.mu.Unlock()
		return s.settle(ctx, res)
	}
	captured := s.items[idx]
	s.items = without(s.items, id)
	s.pending[id] = OpRemove
	s.mu.Unlock()

	err := s.client.DeleteFavorite(ctx, id)

	s.mu.Lock()
	delete(s.pending, id)
	if err != nil && indexOf(s.items, id) < 0 {
		s.items = append(s.items, captured)
	}
	if err == nil {
		s.settled[id] = change{op: OpRemove}
	}
	s.mu.Unlock()

	if err != nil {
		res.Outcome, res.Err = OutcomeRolledBack, err
	} else {
		res.Outcome = OutcomeCommitted
	}
	return s.settle(ctx, res)
}

func (s *Syncer) settle(ctx context.Context, res Result) Result {
	observability.WishlistOperationsTotal.WithLabelValues(string(res.Op), string(res.Outcome)).Inc()

	switch res.Outcome {
	case OutcomeSkipped:
		return res
	case OutcomeRolledBack:
		observability.FromContext(ctx).Warn("wishlist change rolled back",
			slog.String("op", string(res.Op)),
			slog.String("product_id", res.ProductID.String()),
			slog.String("error", res.Err.Error()))
	}

	s.notify(ctx, Event{Op: res.Op, ProductID: res.ProductID, Outcome: res.Outcome})
	return res
}

// Refresh replaces the wishlist with the remote favorites. When the session
// is not authenticated the list is cleared without a request. If another
// refresh starts before this one returns, this one's result is dropped.
func (s *Syncer) Refresh(ctx context.Context) error {
	return s.refresh(ctx, true)
}

func (s *Syncer) refresh(ctx context.Context, announce bool) error {
	if !s.session.IsAuthenticated() {
		s.clear()
		observability.WishlistOperationsTotal.WithLabelValues(string(OpRefresh), string(OutcomeSkipped)).Inc()
		return nil
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	clear(s.settled)
	s.mu.Unlock()

	items, err := s.client.ListFavorites(ctx)
	if err != nil {
		observability.WishlistOperationsTotal.WithLabelValues(string(OpRefresh), "failed").Inc()
		return err
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		observability.WishlistOperationsTotal.WithLabelValues(string(OpRefresh), "superseded").Inc()
		return nil
	}
	s.items = s.mergePending(items)
	s.mu.Unlock()

	observability.WishlistOperationsTotal.WithLabelValues(string(OpRefresh), string(OutcomeCommitted)).Inc()
	if announce {
		s.notify(ctx, Event{Op: OpRefresh, Outcome: OutcomeCommitted})
	}
	return nil
}

// mergePending lays changes committed during the fetch and in-flight
// optimistic changes on top of a fetched list. Must be called with mu held.
func (s *Syncer) mergePending(fetched []domain.Product) []domain.Product {
	items := make([]domain.Product, 0, len(fetched))
	for _, p := range fetched {
		if s.pending[p.ID] == OpRemove || s.settled[p.ID].op == OpRemove || indexOf(items, p.ID) >= 0 {
			continue
		}
		items = append(items, p)
	}
	for id, c := range s.settled {
		if c.op == OpAdd && s.pending[id] != OpRemove && indexOf(items, id) < 0 {
			items = append(items, c.product)
		}
	}
	for _, p := range s.items {
		if s.pending[p.ID] == OpAdd && indexOf(items, p.ID) < 0 {
			items = append(items, p)
		}
	}
	clear(s.settled)
	return items
}

func (s *Syncer) clear() {
	s.mu.Lock()
	s.items = nil
	s.gen++
	clear(s.settled)
	s.mu.Unlock()
}

// Contains reports whether id is on the wishlist, including optimistic adds
func (s *Syncer) Contains(id domain.ProductID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return indexOf(s.items, id) >= 0
}

// Pending reports the in-flight operation for id, if any
func (s *Syncer) Pending(id domain.ProductID) (Op, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.pending[id]
	return op, ok
}

// PendingIDs lists the ids with an operation in flight, sorted
func (s *Syncer) PendingIDs() []domain.ProductID {
	s.mu.RLock()
	ids := make([]domain.ProductID, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Items returns a copy of the wishlist in insertion order
func (s *Syncer) Items() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]domain.Product, len(s.items))
	copy(items, s.items)
	return items
}

func (s *Syncer) notify(ctx context.Context, event Event) {
	if len(s.notifiers) == 0 {
		return
	}
	event.ShopperID = s.shopperID
	event.Items = s.Items()
	event.Pending = s.PendingIDs()
	for _, n := range s.notifiers {
		n.Notify(ctx, event)
	}
}

// change is a committed add or remove
type change struct {
	op      Op
	product domain.Product
}

func indexOf(items []domain.Product, id domain.ProductID) int {
	for i, p := range items {
		if p.ID.String() == id.String() {
			return i
		}
	}
	return -1
}

func without(items []domain.Product, id domain.ProductID) []domain.Product {
	out := items[:0:0]
	for _, p := range items {
		if p.ID.String() != id.String() {
			out = append(out, p)
		}
	}
	return out
}
