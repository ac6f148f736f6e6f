package orders

import (
	"context"

	"marketplace-svc/database"
	"marketplace-svc/models"

	"github.com/google/uuid"
)

// MaxSavedAddresses bounds each user's address book. The oldest entry is
// evicted to make room.
const MaxSavedAddresses = 8

// ListAddresses returns the user's saved shipping addresses, oldest first.
func (s *Service) ListAddresses(ctx context.Context, userID string) ([]models.SavedAddress, error) {
	addresses, err := s.store.Queries().ListAddresses(ctx, userID)
	if err != nil {
		return nil, err
	}
	if addresses == nil {
		addresses = []models.SavedAddress{}
	}
	return addresses, nil
}

func saveAddress(ctx context.Context, tx database.Tx, userID string, addr models.ShippingAddress) error {
	existing, err := tx.ListAddresses(ctx, userID)
	if err != nil {
		return err
	}
	for _, a := range existing {
		if a.ShippingAddress == addr {
			return nil
		}
	}

	for len(existing) >= MaxSavedAddresses {
		if err := tx.DeleteAddress(ctx, existing[0].ID); err != nil {
			return err
		}
		existing = existing[1:]
	}

	return tx.InsertAddress(ctx, &models.SavedAddress{
		ID:              uuid.NewString(),
		UserID:          userID,
		ShippingAddress: addr,
	})
}
