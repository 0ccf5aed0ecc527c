// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the storefront.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"

	"tophome-storefront/internal/domain"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
	ErrMockUpstream       = errors.New("mock: upstream failure")
)

// MockStateRepository implements domain.StateRepository for testing
type MockStateRepository struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	GetFunc    func(ctx context.Context, key string) ([]byte, error)
	SetFunc    func(ctx context.Context, key string, value []byte) error
	DeleteFunc func(ctx context.Context, key string) error
	PingFunc   func(ctx context.Context) error

	// In-memory storage for simple tests
	Values map[string][]byte
}

// NewMockStateRepository creates a new MockStateRepository with initialized maps
func NewMockStateRepository() *MockStateRepository {
	return &MockStateRepository{
		Values: make(map[string][]byte),
	}
}

func (m *MockStateRepository) Get(ctx context.Context, key string) ([]byte, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if value, ok := m.Values[key]; ok {
		return value, nil
	}
	return nil, domain.ErrStateNotFound
}

func (m *MockStateRepository) Set(ctx context.Context, key string, value []byte) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Values == nil {
		m.Values = make(map[string][]byte)
	}
	m.Values[key] = append([]byte(nil), value...)
	return nil
}

func (m *MockStateRepository) Delete(ctx context.Context, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.Values, key)
	return nil
}

func (m *MockStateRepository) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// Stored returns the raw value persisted under key
func (m *MockStateRepository) Stored(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.Values[key]
	return value, ok
}

// MockFavoritesAPI implements the remote favorites endpoints for testing.
// Without overrides it behaves like a well-behaved remote set.
type MockFavoritesAPI struct {
	mu sync.Mutex

	// Function overrides
	CreateFunc func(ctx context.Context, id domain.ProductID) error
	ListFunc   func(ctx context.Context) ([]domain.Product, error)
	DeleteFunc func(ctx context.Context, id domain.ProductID) error

	// Remote favorites
	Remote map[domain.ProductID]domain.Product
	// Catalog used to materialize products created by id
	Catalog map[domain.ProductID]domain.Product

	CreateCalls int
	ListCalls   int
	DeleteCalls int
}

// NewMockFavoritesAPI creates a MockFavoritesAPI holding the given remote favorites
func NewMockFavoritesAPI(remote ...domain.Product) *MockFavoritesAPI {
	m := &MockFavoritesAPI{
		Remote:  make(map[domain.ProductID]domain.Product),
		Catalog: make(map[domain.ProductID]domain.Product),
	}
	for _, p := range remote {
		m.Remote[p.ID] = p
		m.Catalog[p.ID] = p
	}
	return m
}

func (m *MockFavoritesAPI) CreateFavorite(ctx context.Context, id domain.ProductID) error {
	m.mu.Lock()
	m.CreateCalls++
	m.mu.Unlock()

	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Catalog[id]
	if !ok {
		p = domain.Product{ID: id}
	}
	m.Remote[id] = p
	return nil
}

func (m *MockFavoritesAPI) ListFavorites(ctx context.Context) ([]domain.Product, error) {
	m.mu.Lock()
	m.ListCalls++
	m.mu.Unlock()

	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]domain.Product, 0, len(m.Remote))
	for _, p := range m.Remote {
		items = append(items, p)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *MockFavoritesAPI) DeleteFavorite(ctx context.Context, id domain.ProductID) error {
	m.mu.Lock()
	m.DeleteCalls++
	m.mu.Unlock()

	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Remote, id)
	return nil
}

// HasRemote reports whether id is in the remote favorites set
func (m *MockFavoritesAPI) HasRemote(id domain.ProductID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Remote[id]
	return ok
}

// TotalCalls returns the number of calls made against any endpoint
func (m *MockFavoritesAPI) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CreateCalls + m.ListCalls + m.DeleteCalls
}

// MockAccountsAPI implements the remote account endpoints for testing
type MockAccountsAPI struct {
	mu sync.Mutex

	LoginFunc          func(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error)
	RegisterFunc       func(ctx context.Context, reg domain.Registration) (*domain.AuthResult, error)
	ForgotPasswordFunc func(ctx context.Context, email string) error
	VerifyOTPFunc      func(ctx context.Context, v domain.OTPVerification) error
	ResetPasswordFunc  func(ctx context.Context, r domain.PasswordReset) error
	ResendOTPFunc      func(ctx context.Context, email string) error

	Calls []string
}

func (m *MockAccountsAPI) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, name)
}

// CallCount returns how many times the named endpoint was called
func (m *MockAccountsAPI) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == name {
			n++
		}
	}
	return n
}

func (m *MockAccountsAPI) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error) {
	m.record("Login")
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, creds)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockAccountsAPI) Register(ctx context.Context, reg domain.Registration) (*domain.AuthResult, error) {
	m.record("Register")
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, reg)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockAccountsAPI) ForgotPassword(ctx context.Context, email string) error {
	m.record("ForgotPassword")
	if m.ForgotPasswordFunc != nil {
		return m.ForgotPasswordFunc(ctx, email)
	}
	return nil
}

func (m *MockAccountsAPI) VerifyOTP(ctx context.Context, v domain.OTPVerification) error {
	m.record("VerifyOTP")
	if m.VerifyOTPFunc != nil {
		return m.VerifyOTPFunc(ctx, v)
	}
	return nil
}

func (m *MockAccountsAPI) ResetPassword(ctx context.Context, r domain.PasswordReset) error {
	m.record("ResetPassword")
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, r)
	}
	return nil
}

func (m *MockAccountsAPI) ResendOTP(ctx context.Context, email string) error {
	m.record("ResendOTP")
	if m.ResendOTPFunc != nil {
		return m.ResendOTPFunc(ctx, email)
	}
	return nil
}

// RecordingNavigator records every navigation request
type RecordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *RecordingNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

// Paths returns the navigations requested so far
func (n *RecordingNavigator) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}
