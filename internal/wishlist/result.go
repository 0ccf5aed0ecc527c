package wishlist

import (
	"context"

	"tophome-storefront/internal/domain"
)

type Op string

const (
	OpAdd     Op = "add"
	OpRemove  Op = "remove"
	OpRefresh Op = "refresh"
)

type Outcome string

const (
	// OutcomeSkipped means nothing was changed and no request was sent
	OutcomeSkipped    Outcome = "skipped"
	OutcomeCommitted  Outcome = "committed"
	OutcomeRolledBack Outcome = "rolled_back"
)

// Result reports how a wishlist operation settled. Err is set only when the
// remote call failed and the local change was reverted.
type Result struct {
	ProductID domain.ProductID `json:"productId"`
	Op        Op               `json:"op"`
	Outcome   Outcome          `json:"outcome"`
	Err       error            `json:"-"`
}

func (r Result) Committed() bool {
	return r.Outcome == OutcomeCommitted
}

// Event describes a settled change of a shopper's wishlist.
type Event struct {
	ShopperID string           `json:"shopperId"`
	Op        Op               `json:"op"`
	ProductID domain.ProductID `json:"productId,omitempty"`
	Outcome   Outcome          `json:"outcome"`
	Items     []domain.Product `json:"items"`
	// Pending lists ids with an operation still in flight
	Pending []domain.ProductID `json:"pending,omitempty"`
}

// Notifier is told about every settled operation and refresh.
// Implementations must not block for long; they run on the caller's goroutine.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// NotifierFunc adapts a plain function to Notifier
type NotifierFunc func(ctx context.Context, event Event)

func (f NotifierFunc) Notify(ctx context.Context, event Event) {
	f(ctx, event)
}
