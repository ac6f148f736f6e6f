package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"marketplace-svc/models"
)

const orderColumns = `id, user_id, items, tax_price, shipping_price, total_price, total_price_after_discount,
	coupon, payment_method, payment_status, order_status, phone, shipping_address, checkout_session_id,
	paid_at, delivered_at, created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (*models.Order, error) {
	var (
		o             models.Order
		items         []byte
		coupon        []byte
		address       []byte
		afterDiscount sql.NullFloat64
		sessionID     sql.NullString
		paidAt        sql.NullTime
		deliveredAt   sql.NullTime
	)
	err := row.Scan(&o.ID, &o.UserID, &items, &o.Pricing.TaxPrice, &o.Pricing.ShippingPrice, &o.Pricing.TotalPrice,
		&afterDiscount, &coupon, &o.PaymentMethod, &o.PaymentStatus, &o.OrderStatus, &o.Phone, &address,
		&sessionID, &paidAt, &deliveredAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}

	if err := json.Unmarshal(items, &o.OrderItems); err != nil {
		return nil, fmt.Errorf("failed to decode items of order %s: %w", o.ID, err)
	}
	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to decode address of order %s: %w", o.ID, err)
	}
	if len(coupon) > 0 {
		if err := json.Unmarshal(coupon, &o.Coupon); err != nil {
			return nil, fmt.Errorf("failed to decode coupon of order %s: %w", o.ID, err)
		}
	}
	if afterDiscount.Valid {
		v := afterDiscount.Float64
		o.Pricing.TotalPriceAfterDiscount = &v
	}
	o.CheckoutSessionID = sessionID.String
	if paidAt.Valid {
		t := paidAt.Time
		o.PaidAt = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		o.DeliveredAt = &t
	}
	return &o, nil
}

// InsertOrder stores a new order. A second order for the same checkout
// session fails with ErrDuplicate.
func (r *repo) InsertOrder(ctx context.Context, o *models.Order) error {
	items, err := json.Marshal(o.OrderItems)
	if err != nil {
		return fmt.Errorf("failed to encode order items: %w", err)
	}
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to encode shipping address: %w", err)
	}
	var coupon any
	if o.Coupon != nil {
		b, err := json.Marshal(o.Coupon)
		if err != nil {
			return fmt.Errorf("failed to encode coupon: %w", err)
		}
		coupon = string(b)
	}
	var sessionID any
	if o.CheckoutSessionID != "" {
		sessionID = o.CheckoutSessionID
	}

	err = r.q.QueryRowContext(ctx,
		`INSERT INTO orders (id, user_id, items, tax_price, shipping_price, total_price, total_price_after_discount,
		coupon, payment_method, payment_status, order_status, phone, shipping_address, checkout_session_id, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at`,
		o.ID, o.UserID, string(items), o.Pricing.TaxPrice, o.Pricing.ShippingPrice, o.Pricing.TotalPrice,
		nullFloat(o.Pricing.TotalPriceAfterDiscount), coupon, o.PaymentMethod, o.PaymentStatus, o.OrderStatus,
		o.Phone, string(address), sessionID, o.PaidAt,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *repo) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	return scanOrder(row)
}

func (r *repo) FindOrderBySession(ctx context.Context, sessionID string) (*models.Order, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE checkout_session_id = $1", sessionID)
	return scanOrder(row)
}

func (r *repo) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// UpdateOrderStatus writes the status fields of o. Items and pricing are
// never rewritten.
func (r *repo) UpdateOrderStatus(ctx context.Context, o *models.Order) error {
	err := r.q.QueryRowContext(ctx,
		`UPDATE orders SET payment_status = $2, order_status = $3, paid_at = $4, delivered_at = $5, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`,
		o.ID, o.PaymentStatus, o.OrderStatus, o.PaidAt, o.DeliveredAt,
	).Scan(&o.UpdatedAt)
	return notFound(err)
}
