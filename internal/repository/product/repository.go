package product

import (
	"context"

	"shopcart-backend/internal/domain"
)

// Repository is the catalog lookup surface the cart engine consumes.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
}
