package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"marketplace-svc/models"
)

// GetSettings returns the global tax and shipping charges, zero when they
// were never configured.
func (r *repo) GetSettings(ctx context.Context) (models.AppSettings, error) {
	var s models.AppSettings
	err := r.q.QueryRowContext(ctx, "SELECT tax_price, shipping_price FROM app_settings WHERE id = 1").
		Scan(&s.TaxPrice, &s.ShippingPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AppSettings{}, nil
	}
	if err != nil {
		return models.AppSettings{}, fmt.Errorf("failed to load app settings: %w", err)
	}
	return s, nil
}

// ListAddresses returns the user's saved addresses, oldest first.
func (r *repo) ListAddresses(ctx context.Context, userID string) ([]models.SavedAddress, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, user_id, country, state, city, street, postal_code, created_at
		FROM user_addresses WHERE user_id = $1 ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query addresses: %w", err)
	}
	defer rows.Close()

	var addrs []models.SavedAddress
	for rows.Next() {
		var a models.SavedAddress
		if err := rows.Scan(&a.ID, &a.UserID, &a.Country, &a.State, &a.City, &a.Street, &a.PostalCode, &a.CreatedAt); err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}

func (r *repo) InsertAddress(ctx context.Context, a *models.SavedAddress) error {
	return r.q.QueryRowContext(ctx,
		`INSERT INTO user_addresses (id, user_id, country, state, city, street, postal_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		a.ID, a.UserID, a.Country, a.State, a.City, a.Street, a.PostalCode,
	).Scan(&a.CreatedAt)
}

func (r *repo) DeleteAddress(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, "DELETE FROM user_addresses WHERE id = $1", id)
	return err
}
