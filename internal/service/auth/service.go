package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shopcart-backend/internal/domain"
	userrepo "shopcart-backend/internal/repository/user"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrValidation wraps rejected signup input.
	ErrValidation = errors.New("invalid input")
)

// Service resolves caller credentials to user identities: signup/login on
// one side, bearer-token resolution on the other.
type Service struct {
	users  userStore
	secret []byte
	ttl    time.Duration
}

type userStore interface {
	Create(ctx context.Context, in userrepo.CreateUserInput) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByLoginID(ctx context.Context, loginID string) (*domain.User, error)
}

func New(users userrepo.Repository, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 3 * time.Hour
	}
	return &Service{users: users, secret: []byte(secret), ttl: ttl}
}

type LoginResult struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
	UserID    string `json:"userId"`
}

func (s *Service) Signup(ctx context.Context, loginID, password, name string) (*domain.User, error) {
	loginID = strings.TrimSpace(loginID)
	if loginID == "" {
		return nil, fmt.Errorf("%w: loginId required", ErrValidation)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.users.Create(ctx, userrepo.CreateUserInput{
		LoginID:      loginID,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
	})
}

func (s *Service) Login(ctx context.Context, loginID, password string) (*LoginResult, error) {
	u, err := s.users.GetByLoginID(ctx, strings.TrimSpace(loginID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   u.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Token:     token,
		ExpiresIn: int(s.ttl.Seconds()),
		UserID:    u.ID,
	}, nil
}

// Resolve maps a bearer token back to a user id. Any parse, signature or
// expiry failure resolves to anonymous via ErrInvalidCredentials.
func (s *Service) Resolve(ctx context.Context, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidCredentials
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidCredentials
	}
	if _, err := s.users.GetByID(ctx, claims.Subject); err != nil {
		return "", ErrInvalidCredentials
	}
	return claims.Subject, nil
}
