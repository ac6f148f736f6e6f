package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"marketplace-svc/models"

	"github.com/google/uuid"
)

const cartColumns = `id, user_id, items, tax_price, shipping_price, total_price, total_price_after_discount,
	coupon, pending_expiry_job_id, pending_checkout_session_id, created_at, updated_at`

func scanCart(row interface{ Scan(dest ...any) error }) (*models.Cart, error) {
	var (
		cart          models.Cart
		items         []byte
		coupon        []byte
		afterDiscount sql.NullFloat64
	)
	err := row.Scan(&cart.ID, &cart.UserID, &items, &cart.Pricing.TaxPrice, &cart.Pricing.ShippingPrice,
		&cart.Pricing.TotalPrice, &afterDiscount, &coupon, &cart.PendingExpiryJobID,
		&cart.PendingCheckoutSessionID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}

	if err := json.Unmarshal(items, &cart.CartItems); err != nil {
		return nil, fmt.Errorf("failed to decode items of cart %s: %w", cart.ID, err)
	}
	if cart.CartItems == nil {
		cart.CartItems = []models.CartItem{}
	}
	if afterDiscount.Valid {
		v := afterDiscount.Float64
		cart.Pricing.TotalPriceAfterDiscount = &v
	}
	if len(coupon) > 0 {
		if err := json.Unmarshal(coupon, &cart.Coupon); err != nil {
			return nil, fmt.Errorf("failed to decode coupon of cart %s: %w", cart.ID, err)
		}
	}
	return &cart, nil
}

// FindOrCreateCart returns the user's cart, inserting an empty one when
// none exists. The returned row is locked.
func (r *repo) FindOrCreateCart(ctx context.Context, userID string) (*models.Cart, error) {
	row := r.q.QueryRowContext(ctx,
		`INSERT INTO carts (id, user_id) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING `+cartColumns,
		uuid.NewString(), userID,
	)
	return scanCart(row)
}

func (r *repo) GetCartByUser(ctx context.Context, userID string) (*models.Cart, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+cartColumns+" FROM carts WHERE user_id = $1 FOR UPDATE", userID)
	return scanCart(row)
}

func (r *repo) GetCartByID(ctx context.Context, cartID string) (*models.Cart, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+cartColumns+" FROM carts WHERE id = $1 FOR UPDATE", cartID)
	return scanCart(row)
}

func (r *repo) SaveCart(ctx context.Context, cart *models.Cart) error {
	items, err := json.Marshal(cart.CartItems)
	if err != nil {
		return fmt.Errorf("failed to encode cart items: %w", err)
	}
	var coupon any
	if cart.Coupon != nil {
		b, err := json.Marshal(cart.Coupon)
		if err != nil {
			return fmt.Errorf("failed to encode coupon: %w", err)
		}
		coupon = string(b)
	}
	var afterDiscount any
	if cart.Pricing.TotalPriceAfterDiscount != nil {
		afterDiscount = *cart.Pricing.TotalPriceAfterDiscount
	}

	err = r.q.QueryRowContext(ctx,
		`UPDATE carts SET items = $2, tax_price = $3, shipping_price = $4, total_price = $5,
		total_price_after_discount = $6, coupon = $7, pending_expiry_job_id = $8,
		pending_checkout_session_id = $9, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`,
		cart.ID, string(items), cart.Pricing.TaxPrice, cart.Pricing.ShippingPrice, cart.Pricing.TotalPrice,
		afterDiscount, coupon, cart.PendingExpiryJobID, cart.PendingCheckoutSessionID,
	).Scan(&cart.UpdatedAt)
	if err != nil {
		return notFound(err)
	}
	return nil
}
