package cart

import (
	"context"
	"fmt"

	"marketplace-svc/database"
	"marketplace-svc/models"
)

// Reconcile drops lines whose product, or product size, no longer exists
// and re-syncs price, color and size spelling of the rest. Stock held by a
// dropped line is not returned. It reports how many lines were dropped.
func Reconcile(c *models.Cart, products map[string]*models.Product) int {
	kept := c.CartItems[:0]
	for _, item := range c.CartItems {
		p, ok := products[item.ProductID]
		if !ok {
			continue
		}

		if p.HasSizes() {
			if item.Size == "" {
				continue
			}
			i, found := p.FindSize(item.Size)
			if !found {
				continue
			}
			entry := p.Sizes()[i]
			item.Size = entry.Size
			item.Price = entry.Price
		} else {
			if item.Size != "" {
				continue
			}
			item.Price = p.Price
		}
		item.Color = p.Color
		kept = append(kept, item)
	}

	dropped := len(c.CartItems) - len(kept)
	c.CartItems = kept
	return dropped
}

// Refresh reconciles c against the current catalog and recomputes its
// pricing with the current settings. It does not persist c.
func Refresh(ctx context.Context, tx database.Tx, c *models.Cart) error {
	products, err := tx.GetProducts(ctx, c.ProductIDs())
	if err != nil {
		return fmt.Errorf("failed to load cart products: %w", err)
	}
	Reconcile(c, products)

	settings, err := tx.GetSettings(ctx)
	if err != nil {
		return err
	}
	Recompute(c, settings)
	return nil
}
