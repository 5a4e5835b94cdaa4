package user

import (
	"context"

	"shopcart-backend/internal/domain"
)

type CreateUserInput struct {
	LoginID      string
	Name         string
	PasswordHash string
}

type Repository interface {
	Create(ctx context.Context, in CreateUserInput) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByLoginID(ctx context.Context, loginID string) (*domain.User, error)
}
