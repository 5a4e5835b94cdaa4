package cart

import (
	"context"
	"time"

	"shopcart-backend/internal/domain"
)

type CreateCartInput struct {
	UserID         *string
	AnonymousToken *string
	UserNote       string
}

// Repository is the durable Cart Store. Every mutating call runs as a single
// transaction: the cart row is locked, the expected version (where the
// operation carries one) is validated, line rows are written, and the cart
// total is recomputed over ACTIVE lines with the version bumped by one.
// A stale expected version fails with *domain.VersionConflictError.
type Repository interface {
	Create(ctx context.Context, in CreateCartInput) (*domain.Cart, error)
	GetByID(ctx context.Context, id string) (*domain.Cart, error)
	GetByUser(ctx context.Context, userID string) (*domain.Cart, error)
	GetByToken(ctx context.Context, token string) (*domain.Cart, error)

	AddItem(ctx context.Context, cartID string, product domain.Product, quantity int) (*domain.Cart, error)
	UpdateLine(ctx context.Context, cartID, detailID string, quantity int, expectedVersion int64) (*domain.Cart, error)
	SetLineStatus(ctx context.Context, cartID, detailID string, status domain.Status, expectedVersion int64) (*domain.Cart, error)
	SetUserNote(ctx context.Context, cartID, note string, expectedVersion int64) (*domain.Cart, error)
	DeleteLine(ctx context.Context, cartID, detailID string, expectedVersion int64) (*domain.Cart, error)
	DeleteCart(ctx context.Context, cartID string, expectedVersion int64) error

	Claim(ctx context.Context, cartID, userID string, expectedVersion int64) (*domain.Cart, error)
	Consolidate(ctx context.Context, plan domain.ConsolidationPlan) (*domain.Cart, error)

	DeleteOrphaned(ctx context.Context, olderThan time.Time) (int64, error)
}
