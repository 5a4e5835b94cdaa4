package cart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"shopcart-backend/internal/domain"
	cartrepo "shopcart-backend/internal/repository/cart"

	"github.com/google/uuid"
)

// Service is the cart consolidation engine. Every operation takes an
// explicit OwnerContext; there is no ambient current-user state.
type Service struct {
	store    cartStore
	products catalog
	logger   *log.Logger
}

type cartStore interface {
	Create(ctx context.Context, in cartrepo.CreateCartInput) (*domain.Cart, error)
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
}

type catalog interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

func New(store cartrepo.Repository, products catalog, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{store: store, products: products, logger: logger}
}

// OwnerContext identifies the caller: an authenticated user id, an anonymous
// cart token, or both during the login-transition window. The user identity
// wins when both are present.
type OwnerContext struct {
	UserID         *string
	AnonymousToken *string
}

func (o OwnerContext) empty() bool {
	return o.UserID == nil && (o.AnonymousToken == nil || *o.AnonymousToken == "")
}

type LineView struct {
	DetailID        string `json:"detailId"`
	ProductID       string `json:"productId"`
	ProductName     string `json:"productName,omitempty"`
	Quantity        int    `json:"quantity"`
	UnitPriceCents  int64  `json:"unitPriceCents"`
	TotalPriceCents int64  `json:"totalPriceCents"`
	Status          string `json:"status"`
}

type CartSnapshot struct {
	CartID          string     `json:"cartId"`
	TotalPriceCents int64      `json:"totalPriceCents"`
	VersionNo       int64      `json:"versionNo"`
	UserNote        string     `json:"userNote,omitempty"`
	Lines           []LineView `json:"lines"`
}

type AddItemResult struct {
	AnonymousToken  *string `json:"token,omitempty"`
	CartID          string  `json:"cartId"`
	TotalPriceCents int64   `json:"totalPriceCents"`
	VersionNo       int64   `json:"versionNo"`
}

type ConsolidationResult struct {
	Cart     *CartSnapshot `json:"cart,omitempty"`
	Claimed  bool          `json:"claimed"`
	Merged   bool          `json:"merged"`
	Warnings []string      `json:"warnings,omitempty"`
}

type UpdateResult struct {
	CartID          string `json:"cartId"`
	Quantity        int    `json:"quantity"`
	TotalQuantity   int    `json:"totalQuantity"`
	TotalPriceCents int64  `json:"totalPriceCents"`
	VersionNo       int64  `json:"versionNo"`
}

type QuantityResult struct {
	TotalQuantity int   `json:"totalQuantity"`
	VersionNo     int64 `json:"versionNo"`
}

// AddItem resolves or lazily creates the caller's cart and adds the product,
// merging into an existing ACTIVE line for the same product. The returned
// token lets an anonymous caller re-address the cart on later requests.
func (s *Service) AddItem(ctx context.Context, owner OwnerContext, productID string, quantity int) (*AddItemResult, error) {
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
		}
		return nil, err
	}

	cart, err := s.resolveCart(ctx, owner)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		cart, err = s.createCart(ctx, owner)
		if err != nil {
			return nil, err
		}
	}

	updated, err := s.store.AddItem(ctx, cart.ID, *product, quantity)
	if err != nil {
		return nil, err
	}
	return &AddItemResult{
		AnonymousToken:  updated.AnonymousToken,
		CartID:          updated.ID,
		TotalPriceCents: updated.TotalPriceCents,
		VersionNo:       updated.VersionNo,
	}, nil
}

// Consolidate merges the anonymous cart behind token into the user's cart at
// login time. Calling it again with an already-discarded token is a no-op:
// the anonymous cart simply no longer resolves.
func (s *Service) Consolidate(ctx context.Context, userID, token string) (*ConsolidationResult, error) {
	userCart, err := s.loadOptional(ctx, func() (*domain.Cart, error) { return s.store.GetByUser(ctx, userID) })
	if err != nil {
		return nil, err
	}
	var anonCart *domain.Cart
	if token != "" {
		anonCart, err = s.loadOptional(ctx, func() (*domain.Cart, error) { return s.store.GetByToken(ctx, token) })
		if err != nil {
			return nil, err
		}
	}

	switch {
	case userCart == nil && anonCart == nil:
		return &ConsolidationResult{}, nil
	case anonCart != nil && userCart == nil:
		claimed, err := s.store.Claim(ctx, anonCart.ID, userID, anonCart.VersionNo)
		if err != nil {
			return nil, err
		}
		s.logger.Printf("cart engine: user id=%s claimed cart id=%s", userID, claimed.ID)
		return &ConsolidationResult{Cart: snapshot(claimed), Claimed: true}, nil
	case anonCart == nil:
		return &ConsolidationResult{Cart: snapshot(userCart)}, nil
	}

	plan := domain.PlanConsolidation(userCart, anonCart)
	for _, w := range plan.Warnings {
		s.logger.Printf("cart engine: %s: %v", w, domain.ErrIntegrityViolation)
	}
	merged, err := s.store.Consolidate(ctx, plan)
	if err != nil {
		return nil, err
	}
	s.logger.Printf("cart engine: merged cart id=%s into user cart id=%s", anonCart.ID, merged.ID)
	return &ConsolidationResult{Cart: snapshot(merged), Merged: true, Warnings: plan.Warnings}, nil
}

// Display returns the caller's cart snapshot.
func (s *Service) Display(ctx context.Context, owner OwnerContext) (*CartSnapshot, error) {
	cart, err := s.resolveCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	return snapshot(cart), nil
}

// TotalQuantity returns the ACTIVE quantity sum and the cart version.
func (s *Service) TotalQuantity(ctx context.Context, owner OwnerContext) (*QuantityResult, error) {
	cart, err := s.resolveCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	return &QuantityResult{TotalQuantity: cart.TotalQuantity(), VersionNo: cart.VersionNo}, nil
}

// UpdateLine sets the quantity of one line. A zero or negative quantity is
// rejected; removal goes through DeleteLine, never through a zeroed line.
// A stale expectedVersion fails with a *domain.VersionConflictError carrying
// the stored version and total.
func (s *Service) UpdateLine(ctx context.Context, owner OwnerContext, detailID string, quantity int, expectedVersion int64) (*UpdateResult, error) {
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	cart, err := s.resolveCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateLine(ctx, cart.ID, detailID, quantity, expectedVersion)
	if err != nil {
		return nil, err
	}
	return &UpdateResult{
		CartID:          updated.ID,
		Quantity:        quantity,
		TotalQuantity:   updated.TotalQuantity(),
		TotalPriceCents: updated.TotalPriceCents,
		VersionNo:       updated.VersionNo,
	}, nil
}

// SetLineStatus moves a line between ACTIVE and SAVED (save-for-later).
// SAVED lines drop out of the total; reactivated lines rejoin it.
func (s *Service) SetLineStatus(ctx context.Context, owner OwnerContext, detailID string, status domain.Status, expectedVersion int64) (*CartSnapshot, error) {
	if status != domain.StatusActive && status != domain.StatusSaved {
		return nil, errors.New("unsupported status transition: " + string(status))
	}
	cart, err := s.resolveCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.SetLineStatus(ctx, cart.ID, detailID, status, expectedVersion)
	if err != nil {
		return nil, err
	}
	return snapshot(updated), nil
}

// SetUserNote stores the owner-supplied free-text note carried into any
// order later created from this cart.
func (s *Service) SetUserNote(ctx context.Context, owner OwnerContext, note string, expectedVersion int64) (*CartSnapshot, error) {
	cart, err := s.resolveCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.SetUserNote(ctx, cart.ID, note, expectedVersion)
	if err != nil {
		return nil, err
	}
	return snapshot(updated), nil
}

// Delete removes one line, or the whole cart when wholeCart is set.
func (s *Service) Delete(ctx context.Context, owner OwnerContext, detailID string, wholeCart bool, expectedVersion int64) (*CartSnapshot, error) {
	cart, err := s.resolveCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	if wholeCart {
		if err := s.store.DeleteCart(ctx, cart.ID, expectedVersion); err != nil {
			return nil, err
		}
		return nil, nil
	}
	updated, err := s.store.DeleteLine(ctx, cart.ID, detailID, expectedVersion)
	if err != nil {
		return nil, err
	}
	return snapshot(updated), nil
}

func (s *Service) resolveCart(ctx context.Context, owner OwnerContext) (*domain.Cart, error) {
	if owner.UserID != nil {
		cart, err := s.store.GetByUser(ctx, *owner.UserID)
		if err == nil || !errors.Is(err, domain.ErrNotFound) {
			return cart, err
		}
	}
	if owner.AnonymousToken != nil && *owner.AnonymousToken != "" {
		return s.store.GetByToken(ctx, *owner.AnonymousToken)
	}
	return nil, domain.ErrNotFound
}

func (s *Service) createCart(ctx context.Context, owner OwnerContext) (*domain.Cart, error) {
	in := cartrepo.CreateCartInput{UserID: owner.UserID}
	if owner.UserID == nil {
		token := uuid.NewString()
		in.AnonymousToken = &token
	}
	cart, err := s.store.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.Printf("cart engine: created cart id=%s", cart.ID)
	return cart, nil
}

func (s *Service) loadOptional(ctx context.Context, load func() (*domain.Cart, error)) (*domain.Cart, error) {
	cart, err := load()
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return cart, nil
}

func snapshot(cart *domain.Cart) *CartSnapshot {
	lines := make([]LineView, 0, len(cart.Details))
	for _, d := range cart.Details {
		lines = append(lines, LineView{
			DetailID:        d.ID,
			ProductID:       d.ProductID,
			ProductName:     d.ProductName,
			Quantity:        d.Quantity,
			UnitPriceCents:  d.UnitPriceCents,
			TotalPriceCents: d.TotalPriceCents,
			Status:          string(d.Status),
		})
	}
	return &CartSnapshot{
		CartID:          cart.ID,
		TotalPriceCents: cart.TotalPriceCents,
		VersionNo:       cart.VersionNo,
		UserNote:        cart.UserNote,
		Lines:           lines,
	}
}
