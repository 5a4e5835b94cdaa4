package cart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"shopcart-backend/internal/domain"
	cartrepo "shopcart-backend/internal/repository/cart"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore mimics the Postgres store: one ACTIVE line per product, totals
// recomputed over ACTIVE lines, version bumped by one per accepted write,
// stale versions rejected with *domain.VersionConflictError.
type memStore struct {
	carts map[string]*domain.Cart
	seq   int
}

func newMemStore() *memStore {
	return &memStore{carts: make(map[string]*domain.Cart)}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func copyCart(c *domain.Cart) *domain.Cart {
	out := *c
	out.Details = append([]domain.CartDetail(nil), c.Details...)
	return &out
}

func finalize(c *domain.Cart) {
	c.TotalPriceCents = c.ActiveTotalCents()
	c.VersionNo++
}

func (m *memStore) Create(_ context.Context, in cartrepo.CreateCartInput) (*domain.Cart, error) {
	cart := &domain.Cart{
		ID:             m.nextID("cart"),
		UserID:         in.UserID,
		AnonymousToken: in.AnonymousToken,
		VersionNo:      1,
		UserNote:       in.UserNote,
		CreatedAt:      time.Now(),
	}
	m.carts[cart.ID] = cart
	return copyCart(cart), nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*domain.Cart, error) {
	if c, ok := m.carts[id]; ok {
		return copyCart(c), nil
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) GetByUser(_ context.Context, userID string) (*domain.Cart, error) {
	for _, c := range m.carts {
		if c.UserID != nil && *c.UserID == userID {
			return copyCart(c), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) GetByToken(_ context.Context, token string) (*domain.Cart, error) {
	for _, c := range m.carts {
		if c.AnonymousToken != nil && *c.AnonymousToken == token {
			return copyCart(c), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) AddItem(_ context.Context, cartID string, product domain.Product, quantity int) (*domain.Cart, error) {
	cart, ok := m.carts[cartID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	merged := false
	for i := range cart.Details {
		d := &cart.Details[i]
		if d.ProductID == product.ID && d.Status == domain.StatusActive {
			d.Quantity += quantity
			d.TotalPriceCents = d.UnitPriceCents * int64(d.Quantity)
			merged = true
			break
		}
	}
	if !merged {
		cart.Details = append(cart.Details, domain.CartDetail{
			ID:              m.nextID("detail"),
			CartID:          cartID,
			ProductID:       product.ID,
			ProductName:     product.Name,
			Quantity:        quantity,
			UnitPriceCents:  product.PriceCents,
			TotalPriceCents: product.PriceCents * int64(quantity),
			Status:          domain.StatusActive,
			CreatedAt:       time.Now(),
		})
	}
	finalize(cart)
	return copyCart(cart), nil
}

func (m *memStore) checkVersion(cart *domain.Cart, expected int64) error {
	if cart.VersionNo != expected {
		return &domain.VersionConflictError{
			CartID:          cart.ID,
			ExpectedVersion: expected,
			CurrentVersion:  cart.VersionNo,
			TotalPriceCents: cart.TotalPriceCents,
		}
	}
	return nil
}

func (m *memStore) UpdateLine(_ context.Context, cartID, detailID string, quantity int, expectedVersion int64) (*domain.Cart, error) {
	cart, ok := m.carts[cartID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := m.checkVersion(cart, expectedVersion); err != nil {
		return nil, err
	}
	d := cart.Detail(detailID)
	if d == nil {
		return nil, domain.ErrNotFound
	}
	d.Quantity = quantity
	d.TotalPriceCents = d.UnitPriceCents * int64(quantity)
	finalize(cart)
	return copyCart(cart), nil
}

func (m *memStore) SetLineStatus(_ context.Context, cartID, detailID string, status domain.Status, expectedVersion int64) (*domain.Cart, error) {
	cart, ok := m.carts[cartID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := m.checkVersion(cart, expectedVersion); err != nil {
		return nil, err
	}
	d := cart.Detail(detailID)
	if d == nil {
		return nil, domain.ErrNotFound
	}
	d.Status = status
	finalize(cart)
	return copyCart(cart), nil
}

func (m *memStore) SetUserNote(_ context.Context, cartID, note string, expectedVersion int64) (*domain.Cart, error) {
	cart, ok := m.carts[cartID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := m.checkVersion(cart, expectedVersion); err != nil {
		return nil, err
	}
	cart.UserNote = note
	finalize(cart)
	return copyCart(cart), nil
}

func (m *memStore) DeleteLine(_ context.Context, cartID, detailID string, expectedVersion int64) (*domain.Cart, error) {
	cart, ok := m.carts[cartID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := m.checkVersion(cart, expectedVersion); err != nil {
		return nil, err
	}
	found := false
	details := cart.Details[:0]
	for _, d := range cart.Details {
		if d.ID == detailID {
			found = true
			continue
		}
		details = append(details, d)
	}
	if !found {
		return nil, domain.ErrNotFound
	}
	cart.Details = details
	finalize(cart)
	return copyCart(cart), nil
}

func (m *memStore) DeleteCart(_ context.Context, cartID string, expectedVersion int64) error {
	cart, ok := m.carts[cartID]
	if !ok {
		return domain.ErrNotFound
	}
	if err := m.checkVersion(cart, expectedVersion); err != nil {
		return err
	}
	delete(m.carts, cartID)
	return nil
}

func (m *memStore) Claim(_ context.Context, cartID, userID string, expectedVersion int64) (*domain.Cart, error) {
	cart, ok := m.carts[cartID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := m.checkVersion(cart, expectedVersion); err != nil {
		return nil, err
	}
	cart.UserID = &userID
	cart.AnonymousToken = nil
	cart.VersionNo++
	return copyCart(cart), nil
}

func (m *memStore) Consolidate(_ context.Context, plan domain.ConsolidationPlan) (*domain.Cart, error) {
	userCart, ok := m.carts[plan.UserCartID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	anonCart, ok := m.carts[plan.AnonCartID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := m.checkVersion(userCart, plan.UserVersion); err != nil {
		return nil, err
	}
	if err := m.checkVersion(anonCart, plan.AnonVersion); err != nil {
		return nil, err
	}
	for _, bump := range plan.Bumps {
		d := userCart.Detail(bump.DetailID)
		if d == nil {
			return nil, domain.ErrNotFound
		}
		d.Quantity = bump.NewQuantity
		d.TotalPriceCents = bump.TotalPriceCents
	}
	for _, detailID := range plan.Reparents {
		d := anonCart.Detail(detailID)
		if d == nil {
			return nil, domain.ErrNotFound
		}
		moved := *d
		moved.CartID = userCart.ID
		userCart.Details = append(userCart.Details, moved)
	}
	delete(m.carts, plan.AnonCartID)
	finalize(userCart)
	return copyCart(userCart), nil
}

type stubCatalog struct {
	products map[string]domain.Product
}

func (s *stubCatalog) GetByID(_ context.Context, id string) (*domain.Product, error) {
	if p, ok := s.products[id]; ok {
		return &p, nil
	}
	return nil, domain.ErrNotFound
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newEngine() (*Service, *memStore) {
	store := newMemStore()
	catalog := &stubCatalog{products: map[string]domain.Product{
		"p1": {ID: "p1", Name: "Shirt", PriceCents: 1000},
		"p2": {ID: "p2", Name: "Mug", PriceCents: 500},
		"p3": {ID: "p3", Name: "Poster", PriceCents: 250},
	}}
	return &Service{store: store, products: catalog, logger: discardLogger()}, store
}

func userCtx(userID string) OwnerContext {
	return OwnerContext{UserID: &userID}
}

func tokenCtx(token string) OwnerContext {
	return OwnerContext{AnonymousToken: &token}
}

func TestAddItemCreatesAnonymousCart(t *testing.T) {
	svc, store := newEngine()

	res, err := svc.AddItem(context.Background(), OwnerContext{}, "p1", 2)
	require.NoError(t, err)
	require.NotNil(t, res.AnonymousToken, "anonymous caller must get a token back")
	assert.Equal(t, int64(2000), res.TotalPriceCents)
	assert.Equal(t, int64(2), res.VersionNo, "create is version 1, first add bumps to 2")

	stored, err := store.GetByToken(context.Background(), *res.AnonymousToken)
	require.NoError(t, err)
	assert.Equal(t, res.CartID, stored.ID)
}

func TestAddItemMergesSameProduct(t *testing.T) {
	svc, _ := newEngine()
	ctx := context.Background()

	first, err := svc.AddItem(ctx, userCtx("u1"), "p1", 2)
	require.NoError(t, err)
	assert.Nil(t, first.AnonymousToken, "user-owned cart has no token")

	second, err := svc.AddItem(ctx, userCtx("u1"), "p1", 3)
	require.NoError(t, err)

	snap, err := svc.Display(ctx, userCtx("u1"))
	require.NoError(t, err)
	require.Len(t, snap.Lines, 1, "same product must merge, never append")
	assert.Equal(t, 5, snap.Lines[0].Quantity)
	assert.Equal(t, int64(5000), second.TotalPriceCents)
}

func TestAddItemInvalidQuantity(t *testing.T) {
	svc, _ := newEngine()
	_, err := svc.AddItem(context.Background(), userCtx("u1"), "p1", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestAddItemUnknownProduct(t *testing.T) {
	svc, _ := newEngine()
	_, err := svc.AddItem(context.Background(), userCtx("u1"), "missing", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTotalInvariantAcrossOperations(t *testing.T) {
	svc, _ := newEngine()
	ctx := context.Background()
	owner := userCtx("u1")

	checkInvariant := func() *CartSnapshot {
		t.Helper()
		snap, err := svc.Display(ctx, owner)
		require.NoError(t, err)
		var active int64
		for _, l := range snap.Lines {
			if l.Status == string(domain.StatusActive) {
				active += l.TotalPriceCents
			}
		}
		require.Equal(t, active, snap.TotalPriceCents, "total must equal sum of ACTIVE line totals")
		return snap
	}

	_, err := svc.AddItem(ctx, owner, "p1", 2)
	require.NoError(t, err)
	snap := checkInvariant()

	_, err = svc.AddItem(ctx, owner, "p2", 1)
	require.NoError(t, err)
	snap = checkInvariant()

	_, err = svc.UpdateLine(ctx, owner, snap.Lines[0].DetailID, 4, snap.VersionNo)
	require.NoError(t, err)
	snap = checkInvariant()

	_, err = svc.Delete(ctx, owner, snap.Lines[1].DetailID, false, snap.VersionNo)
	require.NoError(t, err)
	checkInvariant()
}

func TestConsolidateNeitherCartExists(t *testing.T) {
	svc, _ := newEngine()
	res, err := svc.Consolidate(context.Background(), "u1", "no-such-token")
	require.NoError(t, err)
	assert.Nil(t, res.Cart)
	assert.False(t, res.Claimed)
	assert.False(t, res.Merged)
}

func TestConsolidateClaimsAnonymousCart(t *testing.T) {
	svc, store := newEngine()
	ctx := context.Background()

	added, err := svc.AddItem(ctx, OwnerContext{}, "p1", 2)
	require.NoError(t, err)

	res, err := svc.Consolidate(ctx, "u1", *added.AnonymousToken)
	require.NoError(t, err)
	assert.True(t, res.Claimed)
	require.NotNil(t, res.Cart)
	assert.Equal(t, added.CartID, res.Cart.CartID)

	claimed, err := store.GetByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, claimed.AnonymousToken, "token must be cleared on claim")
	assert.Equal(t, added.VersionNo+1, claimed.VersionNo)

	_, err = store.GetByToken(ctx, *added.AnonymousToken)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConsolidateUserCartOnly(t *testing.T) {
	svc, _ := newEngine()
	ctx := context.Background()

	_, err := svc.AddItem(ctx, userCtx("u1"), "p1", 1)
	require.NoError(t, err)

	res, err := svc.Consolidate(ctx, "u1", "stale-token")
	require.NoError(t, err)
	assert.False(t, res.Merged)
	require.NotNil(t, res.Cart)
	assert.Equal(t, int64(1000), res.Cart.TotalPriceCents)
}

func TestConsolidateMergesBothCarts(t *testing.T) {
	svc, store := newEngine()
	ctx := context.Background()

	// userCart = {p1: qty 2}, anonymousCart = {p1: qty 3, p2: qty 1}
	_, err := svc.AddItem(ctx, userCtx("u1"), "p1", 2)
	require.NoError(t, err)
	anon, err := svc.AddItem(ctx, OwnerContext{}, "p1", 3)
	require.NoError(t, err)
	token := *anon.AnonymousToken
	_, err = svc.AddItem(ctx, tokenCtx(token), "p2", 1)
	require.NoError(t, err)

	res, err := svc.Consolidate(ctx, "u1", token)
	require.NoError(t, err)
	assert.True(t, res.Merged)
	require.NotNil(t, res.Cart)

	byProduct := map[string]int{}
	for _, l := range res.Cart.Lines {
		byProduct[l.ProductID] = l.Quantity
	}
	assert.Equal(t, map[string]int{"p1": 5, "p2": 1}, byProduct)
	assert.Equal(t, int64(5*1000+500), res.Cart.TotalPriceCents)

	_, err = store.GetByToken(ctx, token)
	assert.ErrorIs(t, err, domain.ErrNotFound, "anonymous cart must be discarded")
}

func TestConsolidateIdempotent(t *testing.T) {
	svc, _ := newEngine()
	ctx := context.Background()

	anon, err := svc.AddItem(ctx, OwnerContext{}, "p2", 2)
	require.NoError(t, err)
	token := *anon.AnonymousToken

	first, err := svc.Consolidate(ctx, "u1", token)
	require.NoError(t, err)

	// Second call with the discarded token must be a no-op, not an error.
	second, err := svc.Consolidate(ctx, "u1", token)
	require.NoError(t, err)
	assert.False(t, second.Merged)
	assert.False(t, second.Claimed)
	require.NotNil(t, second.Cart)
	assert.Equal(t, first.Cart.TotalPriceCents, second.Cart.TotalPriceCents)
	assert.Equal(t, first.Cart.VersionNo, second.Cart.VersionNo)
}

func TestUpdateLineVersionConflict(t *testing.T) {
	svc, _ := newEngine()
	ctx := context.Background()
	owner := userCtx("u1")

	_, err := svc.AddItem(ctx, owner, "p1", 2)
	require.NoError(t, err)
	snap, err := svc.Display(ctx, owner)
	require.NoError(t, err)

	_, err = svc.UpdateLine(ctx, owner, snap.Lines[0].DetailID, 7, snap.VersionNo+5)
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	var conflict *domain.VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, snap.VersionNo, conflict.CurrentVersion)
	assert.Equal(t, snap.TotalPriceCents, conflict.TotalPriceCents)

	after, err := svc.Display(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, snap.VersionNo, after.VersionNo, "rejected write must leave state unchanged")
	assert.Equal(t, 2, after.Lines[0].Quantity)
}

func TestUpdateLineZeroQuantityRejected(t *testing.T) {
	svc, _ := newEngine()
	ctx := context.Background()
	owner := userCtx("u1")

	_, err := svc.AddItem(ctx, owner, "p1", 2)
	require.NoError(t, err)
	snap, err := svc.Display(ctx, owner)
	require.NoError(t, err)

	_, err = svc.UpdateLine(ctx, owner, snap.Lines[0].DetailID, 0, snap.VersionNo)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestUpdateLineCrossCartDetailRejected(t *testing.T) {
	svc, _ := newEngine()
	ctx := context.Background()

	_, err := svc.AddItem(ctx, userCtx("u1"), "p1", 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, userCtx("u2"), "p2", 1)
	require.NoError(t, err)

	otherSnap, err := svc.Display(ctx, userCtx("u2"))
	require.NoError(t, err)
	mySnap, err := svc.Display(ctx, userCtx("u1"))
	require.NoError(t, err)

	_, err = svc.UpdateLine(ctx, userCtx("u1"), otherSnap.Lines[0].DetailID, 5, mySnap.VersionNo)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteLineRecomputesTotal(t *testing.T) {
	svc, _ := newEngine()
	ctx := context.Background()
	owner := userCtx("u1")

	// {p1: $10 x 2, p2: $5 x 1} = $25
	_, err := svc.AddItem(ctx, owner, "p1", 2)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, owner, "p2", 1)
	require.NoError(t, err)
	snap, err := svc.Display(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, int64(2500), snap.TotalPriceCents)

	var p2Detail string
	for _, l := range snap.Lines {
		if l.ProductID == "p2" {
			p2Detail = l.DetailID
		}
	}
	after, err := svc.Delete(ctx, owner, p2Detail, false, snap.VersionNo)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), after.TotalPriceCents)
	assert.Equal(t, snap.VersionNo+1, after.VersionNo, "version bumps by exactly one")
}

func TestDeleteWholeCart(t *testing.T) {
	svc, _ := newEngine()
	ctx := context.Background()
	owner := userCtx("u1")

	_, err := svc.AddItem(ctx, owner, "p1", 1)
	require.NoError(t, err)
	snap, err := svc.Display(ctx, owner)
	require.NoError(t, err)

	res, err := svc.Delete(ctx, owner, "", true, snap.VersionNo)
	require.NoError(t, err)
	assert.Nil(t, res)

	_, err = svc.Display(ctx, owner)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteWithoutCart(t *testing.T) {
	svc, _ := newEngine()
	_, err := svc.Delete(context.Background(), userCtx("u1"), "d1", false, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSaveForLaterExcludedFromTotal(t *testing.T) {
	svc, _ := newEngine()
	ctx := context.Background()
	owner := userCtx("u1")

	_, err := svc.AddItem(ctx, owner, "p1", 2)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, owner, "p2", 1)
	require.NoError(t, err)
	snap, err := svc.Display(ctx, owner)
	require.NoError(t, err)

	saved, err := svc.SetLineStatus(ctx, owner, snap.Lines[0].DetailID, domain.StatusSaved, snap.VersionNo)
	require.NoError(t, err)
	assert.Equal(t, int64(500), saved.TotalPriceCents, "SAVED line drops out of the total")

	qty, err := svc.TotalQuantity(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, qty.TotalQuantity)

	back, err := svc.SetLineStatus(ctx, owner, snap.Lines[0].DetailID, domain.StatusActive, saved.VersionNo)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), back.TotalPriceCents)
}

func TestSetUserNote(t *testing.T) {
	svc, _ := newEngine()
	ctx := context.Background()
	owner := userCtx("u1")

	_, err := svc.AddItem(ctx, owner, "p1", 1)
	require.NoError(t, err)
	snap, err := svc.Display(ctx, owner)
	require.NoError(t, err)

	updated, err := svc.SetUserNote(ctx, owner, "ring the bell twice", snap.VersionNo)
	require.NoError(t, err)
	assert.Equal(t, "ring the bell twice", updated.UserNote)
	assert.Equal(t, snap.VersionNo+1, updated.VersionNo)
}

func TestErrorTaxonomy(t *testing.T) {
	var err error = &domain.VersionConflictError{CartID: "c", ExpectedVersion: 1, CurrentVersion: 2}
	assert.True(t, errors.Is(err, domain.ErrVersionConflict))
}
