// Package shopper keeps the per-visitor state of the storefront: session
// store, authenticated API client, wishlist and token watcher.
package shopper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tophome-storefront/internal/api"
	"tophome-storefront/internal/auth"
	"tophome-storefront/internal/domain"
	"tophome-storefront/internal/observability"
	"tophome-storefront/internal/session"
	"tophome-storefront/internal/wishlist"

	"github.com/google/uuid"
)

var ErrRegistryClosed = errors.New("shopper registry closed")

// Shopper bundles everything that belongs to one visitor
type Shopper struct {
	ID       string
	Session  *session.Store
	API      *api.Client
	Wishlist *wishlist.Syncer

	watcher  *auth.TokenWatcher
	lastSeen atomic.Int64
}

// Auth returns a facade whose navigation goes to nav
func (s *Shopper) Auth(nav auth.Navigator) *auth.Facade {
	return auth.NewFacade(s.API, s.Session, nav)
}

func (s *Shopper) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Shopper) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

func (s *Shopper) close() {
	s.watcher.Unmount()
	s.Wishlist.Close()
}

type Config struct {
	TokenCheckInterval time.Duration
	IdleTTL            time.Duration
	// StorageTimeout bounds hydration and resyncs, which outlive the
	// request that started them
	StorageTimeout time.Duration
}

type entry struct {
	ready   chan struct{}
	shopper *Shopper
	err     error
}

// Registry creates shoppers on first use and evicts idle ones. Evicted
// shoppers lose nothing durable: their session is re-read from storage.
type Registry struct {
	repo      domain.StateRepository
	client    *api.Client
	notifiers []wishlist.Notifier
	cfg       Config
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

func NewRegistry(repo domain.StateRepository, client *api.Client, cfg Config, notifiers ...wishlist.Notifier) *Registry {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		repo:      repo,
		client:    client,
		notifiers: notifiers,
		cfg:       cfg,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		entries:   make(map[string]*entry),
	}
}

// Get returns the shopper with the given id, creating it and hydrating its
// session from storage on first use. Concurrent first requests share one
// hydration, which does not depend on any one caller staying connected.
// A shopper already held is resynced with storage so that logins and
// logouts made on other instances apply. Get returns only once the session
// is current.
func (r *Registry) Get(ctx context.Context, id string) (*Shopper, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	e, ok := r.entries[id]
	if !ok {
		e = &entry{ready: make(chan struct{})}
		r.entries[id] = e
	}
	r.mu.Unlock()

	if !ok {
		go r.load(context.WithoutCancel(ctx), id, e)
	}

	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}

	if ok {
		if err := e.shopper.Session.Sync(ctx); err != nil {
			return nil, fmt.Errorf("failed to resync shopper: %w", err)
		}
	}

	e.shopper.touch(r.now())
	return e.shopper, nil
}

func (r *Registry) load(ctx context.Context, id string, e *entry) {
	defer close(e.ready)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.StorageTimeout)
	defer cancel()

	sh := r.build(id)
	if err := sh.Session.Hydrate(ctx); err != nil {
		sh.close()
		e.err = fmt.Errorf("failed to hydrate shopper: %w", err)

		r.mu.Lock()
		delete(r.entries, id)
		r.mu.Unlock()
		return
	}

	e.shopper = sh
	observability.ActiveShoppers.Inc()
}

// build wires a shopper. The wishlist and watcher subscribe before
// hydration so a restored login starts both.
func (r *Registry) build(id string) *Shopper {
	store := session.NewStore(r.repo, id)
	client := r.client.WithTokenSource(store)

	opts := make([]wishlist.Option, 0, len(r.notifiers))
	for _, n := range r.notifiers {
		opts = append(opts, wishlist.WithNotifier(n))
	}

	sh := &Shopper{
		ID:       id,
		Session:  store,
		API:      client,
		Wishlist: wishlist.NewSyncer(id, client, store, opts...),
		watcher:  auth.NewTokenWatcher(store, r.cfg.TokenCheckInterval),
	}
	sh.watcher.Mount(observability.WithShopperID(r.ctx, id))
	return sh
}

// Notify resyncs a shopper held here after another instance changed its
// session or wishlist. Shoppers not held here are skipped; they hydrate
// fresh on first use.
func (r *Registry) Notify(ctx context.Context, event wishlist.Event) {
	sh := r.held(event.ShopperID)
	if sh == nil {
		return
	}

	syncCtx, cancel := context.WithTimeout(ctx, r.cfg.StorageTimeout)
	defer cancel()
	if err := sh.Session.Sync(syncCtx); err != nil {
		observability.FromContext(ctx).Warn("failed to resync shopper session",
			slog.String("shopper_id", sh.ID),
			slog.String("error", err.Error()))
	}
	sh.Wishlist.Resync()
}

// held returns the hydrated shopper for id, or nil
func (r *Registry) held(id string) *Shopper {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-e.ready:
		return e.shopper
	default:
		return nil
	}
}

// Rotate moves the shopper's session to a fresh id and drops the old one,
// so an id handed out before a login or logout no longer reaches the
// session. The caller must issue the returned shopper's id to the client.
func (r *Registry) Rotate(ctx context.Context, id string) (*Shopper, error) {
	fresh := uuid.NewString()
	oldKey, newKey := session.KeyFor(id), session.KeyFor(fresh)

	data, err := r.repo.Get(ctx, oldKey)
	switch {
	case errors.Is(err, domain.ErrStateNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to read session for rotation: %w", err)
	default:
		if err := r.repo.Set(ctx, newKey, data); err != nil {
			return nil, fmt.Errorf("failed to move session: %w", err)
		}
	}
	if err := r.repo.Delete(ctx, oldKey); err != nil {
		return nil, fmt.Errorf("failed to drop rotated session: %w", err)
	}

	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if ok {
		<-e.ready
		if e.shopper != nil {
			e.shopper.close()
			observability.ActiveShoppers.Dec()
		}
	}

	return r.Get(ctx, fresh)
}

// Len returns the number of shoppers held in memory
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Run evicts idle shoppers until ctx is cancelled
func (r *Registry) Run(ctx context.Context) {
	interval := r.cfg.IdleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping shopper eviction")
			return
		case <-ticker.C:
			if n := r.EvictIdle(); n > 0 {
				slog.Debug("evicted idle shoppers", slog.Int("count", n))
			}
		}
	}
}

// EvictIdle drops shoppers unseen for longer than the idle TTL
func (r *Registry) EvictIdle() int {
	now := r.now()

	r.mu.Lock()
	var idle []*Shopper
	for id, e := range r.entries {
		select {
		case <-e.ready:
		default:
			continue
		}
		if e.shopper != nil && e.shopper.idleSince(now) > r.cfg.IdleTTL {
			idle = append(idle, e.shopper)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, sh := range idle {
		sh.close()
		observability.ActiveShoppers.Dec()
	}
	return len(idle)
}

// Close stops every shopper. Later calls to Get fail.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	r.cancel()
	for _, e := range entries {
		<-e.ready
		if e.shopper != nil {
			e.shopper.close()
			observability.ActiveShoppers.Dec()
		}
	}
}
