package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"marketplace-svc/models"

	"github.com/lib/pq"
)

const productColumns = `id, title, color, image_cover, price, price_before_discount, discount_percent,
	quantity, sold, sizes, updated_at`

func scanProduct(row interface{ Scan(dest ...any) error }) (*models.Product, error) {
	var (
		p               models.Product
		beforeDiscount  sql.NullFloat64
		discountPercent sql.NullFloat64
		sizes           []byte
	)
	err := row.Scan(&p.ID, &p.Title, &p.Color, &p.ImageCover, &p.Price, &beforeDiscount, &discountPercent,
		&p.Quantity, &p.Sold, &sizes, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if beforeDiscount.Valid {
		v := beforeDiscount.Float64
		p.PriceBeforeDiscount = &v
	}
	if discountPercent.Valid {
		v := discountPercent.Float64
		p.DiscountPercent = &v
	}

	var entries []models.SizeEntry
	if len(sizes) > 0 {
		if err := json.Unmarshal(sizes, &entries); err != nil {
			return nil, fmt.Errorf("failed to decode sizes of product %s: %w", p.ID, err)
		}
	}
	if len(entries) > 0 {
		p.Stock = models.SizedStock{Entries: entries}
	} else {
		p.Stock = models.FlatStock{Quantity: p.Quantity}
	}
	return &p, nil
}

// GetProducts loads the products with the given ids without locking them.
// Unknown ids are absent from the result.
func (r *repo) GetProducts(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	products := make(map[string]*models.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	rows, err := r.q.QueryContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products[p.ID] = p
	}
	return products, rows.Err()
}

func (r *repo) GetProductForUpdate(ctx context.Context, id string) (*models.Product, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1 FOR UPDATE", id)
	return scanProduct(row)
}

// SaveProductStock writes the stock model and the display fields derived
// from it.
func (r *repo) SaveProductStock(ctx context.Context, p *models.Product) error {
	sizes := "[]"
	if entries := p.Sizes(); len(entries) > 0 {
		b, err := json.Marshal(entries)
		if err != nil {
			return fmt.Errorf("failed to encode sizes: %w", err)
		}
		sizes = string(b)
	}

	res, err := r.q.ExecContext(ctx,
		`UPDATE products SET quantity = $2, sizes = $3, price = $4, price_before_discount = $5,
		discount_percent = $6, updated_at = NOW() WHERE id = $1`,
		p.ID, p.Quantity, sizes, p.Price, nullFloat(p.PriceBeforeDiscount), nullFloat(p.DiscountPercent),
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *repo) IncrementSold(ctx context.Context, productID string, qty int) error {
	_, err := r.q.ExecContext(ctx, "UPDATE products SET sold = sold + $2 WHERE id = $1", productID, qty)
	return err
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
