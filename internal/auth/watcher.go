package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tophome-storefront/internal/observability"
)

const DefaultCheckInterval = 60 * time.Second

// TokenStore is what the watcher needs from the session store
type TokenStore interface {
	IsAuthenticated() bool
	Subscribe(fn func(authenticated bool)) (unsubscribe func())
	CheckTokenValidity(ctx context.Context) error
}

// TokenWatcher checks the session token periodically while the shopper is
// authenticated. Polling starts on login and stops on logout.
type TokenWatcher struct {
	store    TokenStore
	interval time.Duration

	mu          sync.Mutex
	base        context.Context
	cancel      context.CancelFunc
	mounted     bool
	unsubscribe func()
	wg          sync.WaitGroup
}

func NewTokenWatcher(store TokenStore, interval time.Duration) *TokenWatcher {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &TokenWatcher{
		store:    store,
		interval: interval,
	}
}

// Mount starts watching. ctx bounds every poll; cancelling it stops the
// watcher just like Unmount, except that Unmount also waits.
func (w *TokenWatcher) Mount(ctx context.Context) {
	w.mu.Lock()
	if w.mounted {
		w.mu.Unlock()
		return
	}
	w.mounted = true
	w.base = ctx
	w.mu.Unlock()

	unsubscribe := w.store.Subscribe(w.onAuthChange)

	w.mu.Lock()
	w.unsubscribe = unsubscribe
	w.mu.Unlock()

	if w.store.IsAuthenticated() {
		w.start()
	}
}

// Unmount stops polling and waits for the polling goroutine to exit
func (w *TokenWatcher) Unmount() {
	w.mu.Lock()
	if !w.mounted {
		w.mu.Unlock()
		return
	}
	w.mounted = false
	unsubscribe := w.unsubscribe
	w.unsubscribe = nil
	w.stopLocked()
	w.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	w.wg.Wait()
}

// Polling reports whether a polling loop is active
func (w *TokenWatcher) Polling() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

// onAuthChange runs inside the store's mutation, possibly on the polling
// goroutine itself, so it only starts or cancels and never waits.
func (w *TokenWatcher) onAuthChange(authenticated bool) {
	if authenticated {
		w.start()
		return
	}
	w.mu.Lock()
	w.stopLocked()
	w.mu.Unlock()
}

func (w *TokenWatcher) start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.mounted || w.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(w.base)
	w.cancel = cancel
	w.wg.Add(1)
	go w.poll(ctx)
}

func (w *TokenWatcher) stopLocked() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

func (w *TokenWatcher) poll(ctx context.Context) {
	defer w.wg.Done()

	w.check(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

func (w *TokenWatcher) check(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := w.store.CheckTokenValidity(ctx); err != nil {
		observability.FromContext(ctx).Error("token validity check failed",
			slog.String("error", err.Error()))
	}
}
