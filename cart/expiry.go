package cart

import (
	"context"
	"errors"

	"marketplace-svc/database"
	"marketplace-svc/inventory"
	"marketplace-svc/models"

	"go.uber.org/zap"
)

// ExpireCart empties an abandoned cart and returns its reservations to
// stock. jobID is the id of the running expiry job; a job that is no longer
// the cart's pending one does nothing. The cart's open checkout session is
// forgotten. It reports whether the cart was emptied.
func (s *Service) ExpireCart(ctx context.Context, cartID, jobID string) (bool, error) {
	expired := false
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		cart, err := tx.GetCartByID(ctx, cartID)
		if errors.Is(err, database.ErrNotFound) {
			s.logger.Info("Cart of expiry job no longer exists", zap.String("cart_id", cartID), zap.String("job_id", jobID))
			return nil
		}
		if err != nil {
			return err
		}

		if cart.PendingExpiryJobID != jobID {
			s.logger.Info("Skipping stale cart expiry job",
				zap.String("cart_id", cartID),
				zap.String("job_id", jobID),
				zap.String("pending_job_id", cart.PendingExpiryJobID),
			)
			return nil
		}

		if err := inventory.ReleaseBatch(ctx, tx, deltas(cart.CartItems)); err != nil {
			return err
		}
		expired = len(cart.CartItems) > 0
		cart.CartItems = nil
		cart.PendingCheckoutSessionID = ""
		Recompute(cart, models.AppSettings{})
		return tx.SaveCart(ctx, cart)
	})
	if err != nil {
		return false, err
	}

	if expired {
		s.logger.Info("Abandoned cart expired", zap.String("cart_id", cartID), zap.String("job_id", jobID))
	}
	return expired, nil
}
