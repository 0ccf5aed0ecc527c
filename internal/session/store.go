// Package session holds the authenticated identity of one shopper and keeps
// it durable across restarts through a domain.StateRepository.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tophome-storefront/internal/domain"
	"tophome-storefront/internal/observability"
)

// StorageNamespace prefixes the key of every persisted session record.
const StorageNamespace = "auth-storage"

// persistedState mirrors the record layout used by the browser storefront,
// where absent values are written as null.
type persistedState struct {
	Token           *string `json:"token"`
	UserName        *string `json:"userName"`
	Email           *string `json:"email"`
	IsAuthenticated bool    `json:"isAuthenticated"`
}

type persistedRecord struct {
	State   persistedState `json:"state"`
	Version int            `json:"version"`
}

// Store is the single source of truth for who is logged in on one shopper.
//
// Mutations are serialized and persisted before they return. Reads never
// block on storage.
type Store struct {
	repo domain.StateRepository
	key  string
	now  func() time.Time

	// writeMu orders hydrate and mutations so storage and memory agree
	writeMu  sync.Mutex
	hydrated bool

	mu      sync.RWMutex
	session domain.Session

	listenersMu sync.Mutex
	listeners   map[int]func(authenticated bool)
	nextID      int
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the clock used for token expiry checks
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store for shopperID. Call Hydrate before use.
func NewStore(repo domain.StateRepository, shopperID string, opts ...Option) *Store {
	s := &Store{
		repo:      repo,
		key:       KeyFor(shopperID),
		now:       time.Now,
		listeners: make(map[int]func(bool)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// KeyFor returns the storage key of a shopper's session record
func KeyFor(shopperID string) string {
	return StorageNamespace + ":" + shopperID
}

// Key returns the storage key of the persisted record
func (s *Store) Key() string {
	return s.key
}

// Hydrate loads the persisted record. It is safe to call more than once;
// only the first successful call reads storage. A corrupt record is
// discarded and the session starts empty.
func (s *Store) Hydrate(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.hydrated {
		return nil
	}

	restored, err := s.read(ctx)
	if err != nil {
		return err
	}

	s.swap(restored)
	s.hydrated = true

	if restored.IsAuthenticated {
		s.notify(true)
	}
	return nil
}

// Sync re-reads the persisted record and adopts it when it differs from
// memory, which happens when another instance logged the shopper in or out.
// Listeners are told when the auth state flips.
func (s *Store) Sync(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stored, err := s.read(ctx)
	if err != nil {
		return err
	}
	s.hydrated = true

	if stored == s.Snapshot() {
		return nil
	}

	was := s.swap(stored)
	switch {
	case was && !stored.IsAuthenticated:
		observability.SessionLogoutsTotal.WithLabelValues("elsewhere").Inc()
		s.notify(false)
	case !was && stored.IsAuthenticated:
		s.notify(true)
	}
	return nil
}

// read loads the persisted session. A missing or corrupt record is an
// empty session.
func (s *Store) read(ctx context.Context) (domain.Session, error) {
	data, err := s.repo.Get(ctx, s.key)
	switch {
	case errors.Is(err, domain.ErrStateNotFound):
		return domain.Session{}, nil
	case err != nil:
		return domain.Session{}, fmt.Errorf("failed to load session: %w", err)
	}

	var record persistedRecord
	if err := json.Unmarshal(data, &record); err != nil {
		observability.FromContext(ctx).Warn("discarding corrupt session record",
			slog.String("key", s.key),
			slog.String("error", err.Error()))
		return domain.Session{}, nil
	}
	return fromRecord(record), nil
}

// Hydrated reports whether Hydrate has completed
func (s *Store) Hydrated() bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.hydrated
}

// SetAuth overwrites the session with a freshly issued token. The record is
// persisted first; if that fails the in-memory session is left unchanged.
func (s *Store) SetAuth(ctx context.Context, token, userName, email string) error {
	if token == "" {
		return domain.ErrMissingToken
	}

	next := domain.Session{
		Token:           token,
		UserName:        userName,
		Email:           email,
		IsAuthenticated: true,
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.persist(ctx, next); err != nil {
		return err
	}

	was := s.swap(next)
	if !was {
		s.notify(true)
	}
	return nil
}

// Logout clears the session. It is idempotent. Memory is cleared even when
// the empty record cannot be persisted; the persistence error is returned.
func (s *Store) Logout(ctx context.Context) error {
	return s.logout(ctx, "explicit")
}

func (s *Store) logout(ctx context.Context, reason string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	was := s.swap(domain.Session{})
	err := s.persist(ctx, domain.Session{})

	if was {
		observability.SessionLogoutsTotal.WithLabelValues(reason).Inc()
		s.notify(false)
	}
	return err
}

// CheckTokenValidity logs the shopper out when the token cannot be decoded
// or its exp claim lies in the past. Tokens without exp are kept.
func (s *Store) CheckTokenValidity(ctx context.Context) error {
	token := s.Token()
	if token == "" {
		return nil
	}

	exp, err := TokenExpiry(token)
	if err != nil {
		observability.FromContext(ctx).Warn("invalid session token, logging out",
			slog.String("error", err.Error()))
		return s.logout(ctx, "invalid_token")
	}

	if exp != nil && exp.Before(s.now()) {
		observability.FromContext(ctx).Info("session token expired, logging out",
			slog.Time("expired_at", *exp))
		return s.logout(ctx, "expired")
	}

	return nil
}

// Snapshot returns a copy of the current session
func (s *Store) Snapshot() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Token returns the current bearer token, or "" when logged out
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Token
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.IsAuthenticated
}

// Subscribe registers fn to be called whenever IsAuthenticated changes.
// fn runs on the goroutine that caused the change, in mutation order. It must
// not block or call back into the store's mutators.
func (s *Store) Subscribe(fn func(authenticated bool)) (unsubscribe func()) {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

func (s *Store) notify(authenticated bool) {
	s.listenersMu.Lock()
	fns := make([]func(bool), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(authenticated)
	}
}

// swap replaces the in-memory session and reports the previous auth state
func (s *Store) swap(next domain.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.session.IsAuthenticated
	s.session = next
	return was
}

func (s *Store) persist(ctx context.Context, sess domain.Session) error {
	data, err := json.Marshal(toRecord(sess))
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.repo.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

func toRecord(sess domain.Session) persistedRecord {
	return persistedRecord{
		State: persistedState{
			Token:           nullable(sess.Token),
			UserName:        nullable(sess.UserName),
			Email:           nullable(sess.Email),
			IsAuthenticated: sess.Token != "",
		},
	}
}

// fromRecord re-derives IsAuthenticated from the token; the stored flag is not trusted
func fromRecord(record persistedRecord) domain.Session {
	sess := domain.Session{
		Token:    deref(record.State.Token),
		UserName: deref(record.State.UserName),
		Email:    deref(record.State.Email),
	}
	sess.IsAuthenticated = sess.Token != ""
	if !sess.IsAuthenticated {
		return domain.Session{}
	}
	return sess
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
