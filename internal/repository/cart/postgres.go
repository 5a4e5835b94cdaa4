package cart

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"shopcart-backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

const cartColumns = `id::text, user_id::text, anonymous_token, total_price_cents, version_no, user_note, created_at`

func (r *postgresRepo) Create(ctx context.Context, in CreateCartInput) (*domain.Cart, error) {
	const q = `
INSERT INTO carts (user_id, anonymous_token, total_price_cents, version_no, user_note)
VALUES ($1, $2, 0, 1, $3)
RETURNING ` + cartColumns
	row := r.pool.QueryRow(ctx, q, in.UserID, in.AnonymousToken, in.UserNote)
	cart, err := scanCart(row)
	if err != nil {
		return nil, err
	}
	r.logger.Printf("cart repo: created cart id=%s", cart.ID)
	return cart, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Cart, error) {
	return r.fetchCart(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, id)
}

func (r *postgresRepo) GetByUser(ctx context.Context, userID string) (*domain.Cart, error) {
	return r.fetchCart(ctx, `SELECT `+cartColumns+` FROM carts WHERE user_id = $1`, userID)
}

func (r *postgresRepo) GetByToken(ctx context.Context, token string) (*domain.Cart, error) {
	return r.fetchCart(ctx, `SELECT `+cartColumns+` FROM carts WHERE anonymous_token = $1`, token)
}

func (r *postgresRepo) AddItem(ctx context.Context, cartID string, product domain.Product, quantity int) (*domain.Cart, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, _, err := lockCart(ctx, tx, cartID); err != nil {
		return nil, err
	}

	var detailID string
	var existingQty int
	var unitPrice int64
	err = tx.QueryRow(ctx, `
SELECT id::text, quantity, unit_price_cents
FROM cart_details
WHERE cart_id = $1 AND product_id = $2 AND status = 'ACTIVE'
`, cartID, product.ID).Scan(&detailID, &existingQty, &unitPrice)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	if err == nil {
		// Merge-on-add: one ACTIVE line per product, quantities summed,
		// total re-derived from the existing price snapshot.
		newQty := existingQty + quantity
		if _, err := tx.Exec(ctx, `
UPDATE cart_details
SET quantity = $1, total_price_cents = $2
WHERE id = $3
`, newQty, unitPrice*int64(newQty), detailID); err != nil {
			return nil, err
		}
	} else {
		if _, err := tx.Exec(ctx, `
INSERT INTO cart_details (cart_id, product_id, quantity, unit_price_cents, total_price_cents, status)
VALUES ($1, $2, $3, $4, $5, 'ACTIVE')
`, cartID, product.ID, quantity, product.PriceCents, product.PriceCents*int64(quantity)); err != nil {
			return nil, err
		}
	}

	if err := finalizeCart(ctx, tx, cartID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, cartID)
}

func (r *postgresRepo) UpdateLine(ctx context.Context, cartID, detailID string, quantity int, expectedVersion int64) (*domain.Cart, error) {
	return r.mutateLine(ctx, cartID, expectedVersion, func(tx pgx.Tx) error {
		var unitPrice int64
		err := tx.QueryRow(ctx, `
SELECT unit_price_cents
FROM cart_details
WHERE id = $1 AND cart_id = $2
`, detailID, cartID).Scan(&unitPrice)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return err
		}
		_, err = tx.Exec(ctx, `
UPDATE cart_details
SET quantity = $1, total_price_cents = $2
WHERE id = $3 AND cart_id = $4
`, quantity, unitPrice*int64(quantity), detailID, cartID)
		return err
	})
}

func (r *postgresRepo) SetLineStatus(ctx context.Context, cartID, detailID string, status domain.Status, expectedVersion int64) (*domain.Cart, error) {
	return r.mutateLine(ctx, cartID, expectedVersion, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `
UPDATE cart_details
SET status = $1
WHERE id = $2 AND cart_id = $3
`, string(status), detailID, cartID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *postgresRepo) SetUserNote(ctx context.Context, cartID, note string, expectedVersion int64) (*domain.Cart, error) {
	return r.mutateLine(ctx, cartID, expectedVersion, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE carts SET user_note = $1 WHERE id = $2`, note, cartID)
		return err
	})
}

func (r *postgresRepo) DeleteLine(ctx context.Context, cartID, detailID string, expectedVersion int64) (*domain.Cart, error) {
	return r.mutateLine(ctx, cartID, expectedVersion, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `
DELETE FROM cart_details
WHERE id = $1 AND cart_id = $2
`, detailID, cartID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *postgresRepo) DeleteCart(ctx context.Context, cartID string, expectedVersion int64) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := lockAndCheck(ctx, tx, cartID, expectedVersion); err != nil {
		return err
	}
	// Details go with the cart via ON DELETE CASCADE.
	if _, err := tx.Exec(ctx, `DELETE FROM carts WHERE id = $1`, cartID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	r.logger.Printf("cart repo: deleted cart id=%s", cartID)
	return nil
}

func (r *postgresRepo) Claim(ctx context.Context, cartID, userID string, expectedVersion int64) (*domain.Cart, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := lockAndCheck(ctx, tx, cartID, expectedVersion); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
UPDATE carts
SET user_id = $1,
    anonymous_token = NULL,
    version_no = version_no + 1,
    updated_at = now()
WHERE id = $2
`, userID, cartID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	r.logger.Printf("cart repo: cart id=%s claimed by user id=%s", cartID, userID)
	return r.GetByID(ctx, cartID)
}

// Consolidate applies a merge plan in one transaction. Both cart rows are
// locked in id order and their versions re-validated against the plan, so a
// line added concurrently to either cart forces the caller to re-plan.
func (r *postgresRepo) Consolidate(ctx context.Context, plan domain.ConsolidationPlan) (*domain.Cart, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	first, second := plan.UserCartID, plan.AnonCartID
	if second < first {
		first, second = second, first
	}
	for _, id := range []string{first, second} {
		expected := plan.UserVersion
		if id == plan.AnonCartID {
			expected = plan.AnonVersion
		}
		if err := lockAndCheck(ctx, tx, id, expected); err != nil {
			return nil, err
		}
	}

	for _, bump := range plan.Bumps {
		cmd, err := tx.Exec(ctx, `
UPDATE cart_details
SET quantity = $1, total_price_cents = $2
WHERE id = $3 AND cart_id = $4
`, bump.NewQuantity, bump.TotalPriceCents, bump.DetailID, plan.UserCartID)
		if err != nil {
			return nil, err
		}
		if cmd.RowsAffected() == 0 {
			return nil, domain.ErrNotFound
		}
	}

	for _, detailID := range plan.Reparents {
		cmd, err := tx.Exec(ctx, `
UPDATE cart_details
SET cart_id = $1
WHERE id = $2 AND cart_id = $3
`, plan.UserCartID, detailID, plan.AnonCartID)
		if err != nil {
			return nil, err
		}
		if cmd.RowsAffected() == 0 {
			return nil, domain.ErrNotFound
		}
	}

	// The anonymous cart must not stay reachable once merged; unmoved lines
	// cascade away with it.
	if _, err := tx.Exec(ctx, `DELETE FROM carts WHERE id = $1`, plan.AnonCartID); err != nil {
		return nil, err
	}

	if err := finalizeCart(ctx, tx, plan.UserCartID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	r.logger.Printf("cart repo: consolidated cart id=%s into cart id=%s (bumps=%d reparents=%d)",
		plan.AnonCartID, plan.UserCartID, len(plan.Bumps), len(plan.Reparents))
	return r.GetByID(ctx, plan.UserCartID)
}

func (r *postgresRepo) DeleteOrphaned(ctx context.Context, olderThan time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `
DELETE FROM carts
WHERE user_id IS NULL AND anonymous_token IS NULL AND updated_at < $1
`, olderThan)
	if err != nil {
		return 0, err
	}
	if n := cmd.RowsAffected(); n > 0 {
		r.logger.Printf("cart repo: removed %d orphaned carts", n)
		return n, nil
	}
	return 0, nil
}

// mutateLine wraps the lock / version-check / mutate / recompute cycle shared
// by the single-cart write operations.
func (r *postgresRepo) mutateLine(ctx context.Context, cartID string, expectedVersion int64, mutate func(tx pgx.Tx) error) (*domain.Cart, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := lockAndCheck(ctx, tx, cartID, expectedVersion); err != nil {
		return nil, err
	}
	if err := mutate(tx); err != nil {
		return nil, err
	}
	if err := finalizeCart(ctx, tx, cartID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, cartID)
}

func lockCart(ctx context.Context, tx pgx.Tx, cartID string) (version, totalCents int64, err error) {
	err = tx.QueryRow(ctx, `
SELECT version_no, total_price_cents
FROM carts
WHERE id = $1
FOR UPDATE
`, cartID).Scan(&version, &totalCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, domain.ErrNotFound
		}
		return 0, 0, err
	}
	return version, totalCents, nil
}

func lockAndCheck(ctx context.Context, tx pgx.Tx, cartID string, expectedVersion int64) error {
	version, totalCents, err := lockCart(ctx, tx, cartID)
	if err != nil {
		return err
	}
	if version != expectedVersion {
		return &domain.VersionConflictError{
			CartID:          cartID,
			ExpectedVersion: expectedVersion,
			CurrentVersion:  version,
			TotalPriceCents: totalCents,
		}
	}
	return nil
}

// finalizeCart recomputes the derived total over ACTIVE lines and bumps the
// version by exactly one. Every accepted mutation funnels through here.
func finalizeCart(ctx context.Context, tx pgx.Tx, cartID string) error {
	_, err := tx.Exec(ctx, `
UPDATE carts
SET total_price_cents = COALESCE((
	SELECT SUM(total_price_cents)
	FROM cart_details
	WHERE cart_id = $1 AND status = 'ACTIVE'
), 0),
    version_no = version_no + 1,
    updated_at = now()
WHERE id = $1
`, cartID)
	return err
}

func (r *postgresRepo) fetchCart(ctx context.Context, cartQuery string, args ...interface{}) (*domain.Cart, error) {
	row := r.pool.QueryRow(ctx, cartQuery, args...)
	cart, err := scanCart(row)
	if err != nil {
		return nil, err
	}

	const detailsQuery = `
SELECT d.id::text, d.cart_id::text, d.product_id::text, p.name, d.quantity, d.unit_price_cents, d.total_price_cents, d.status, d.created_at
FROM cart_details d
JOIN products p ON p.id = d.product_id
WHERE d.cart_id = $1 AND d.status <> 'DELETED'
ORDER BY d.created_at ASC, d.id ASC
`
	rows, err := r.pool.Query(ctx, detailsQuery, cart.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var d domain.CartDetail
		var status string
		if err := rows.Scan(
			&d.ID,
			&d.CartID,
			&d.ProductID,
			&d.ProductName,
			&d.Quantity,
			&d.UnitPriceCents,
			&d.TotalPriceCents,
			&status,
			&d.CreatedAt,
		); err != nil {
			return nil, err
		}
		d.Status = domain.Status(status)
		cart.Details = append(cart.Details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cart, nil
}

func scanCart(row pgx.Row) (*domain.Cart, error) {
	var cart domain.Cart
	var userID *string
	var token *string
	err := row.Scan(
		&cart.ID,
		&userID,
		&token,
		&cart.TotalPriceCents,
		&cart.VersionNo,
		&cart.UserNote,
		&cart.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	cart.UserID = userID
	cart.AnonymousToken = token
	return &cart, nil
}
