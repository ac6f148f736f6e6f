package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"marketplace-svc/apperror"
	"marketplace-svc/database"
	"marketplace-svc/inventory"
	"marketplace-svc/middleware"
	"marketplace-svc/models"
	"marketplace-svc/payment"

	"go.uber.org/zap"
)

// Scheduler enqueues and cancels the delayed job that empties an abandoned
// cart.
type Scheduler interface {
	Schedule(ctx context.Context, cartID string) (string, error)
	Cancel(ctx context.Context, jobID string) error
}

type CouponLookup interface {
	LookupPromotion(ctx context.Context, code string) (payment.Promotion, error)
}

type Service struct {
	store     database.Store
	scheduler Scheduler
	coupons   CouponLookup
	logger    *zap.Logger
}

func NewService(store database.Store, scheduler Scheduler, coupons CouponLookup, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		scheduler: scheduler,
		coupons:   coupons,
		logger:    logger,
	}
}

// GetCart returns the user's cart, creating an empty one on first access.
func (s *Service) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	var (
		cart     *models.Cart
		orphaned string
	)
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		var err error
		cart, err = tx.FindOrCreateCart(ctx, userID)
		if err != nil {
			return err
		}
		pending := cart.PendingExpiryJobID
		if err := Refresh(ctx, tx, cart); err != nil {
			return err
		}
		if pending != "" && cart.PendingExpiryJobID == "" {
			orphaned = pending
		}
		return tx.SaveCart(ctx, cart)
	})
	if err != nil {
		return nil, s.fail("get", err)
	}

	s.cancelJob(ctx, orphaned)
	middleware.RecordCartOperation("get", "success")
	return cart, nil
}

// AddToCart reserves stock for the requested line and merges it into the
// cart. The first line of a cart schedules its expiry job.
func (s *Service) AddToCart(ctx context.Context, userID string, req models.AddToCartRequest) (*models.Cart, error) {
	var (
		cart      *models.Cart
		scheduled string
	)
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		var err error
		cart, err = tx.FindOrCreateCart(ctx, userID)
		if err != nil {
			return err
		}

		product, line, err := inventory.ReserveStock(ctx, tx, req.ProductID, req.Size, req.Quantity)
		if err != nil {
			return stockError(err, req.ProductID)
		}

		products, err := tx.GetProducts(ctx, cart.ProductIDs())
		if err != nil {
			return fmt.Errorf("failed to load cart products: %w", err)
		}
		products[product.ID] = product
		Reconcile(cart, products)

		if i := cart.FindItem(product.ID, line.Size); i >= 0 {
			item := &cart.CartItems[i]
			item.Quantity += req.Quantity
			item.Price = line.Price
			item.Color = line.Color
		} else {
			item := models.CartItem{
				ProductID: product.ID,
				Quantity:  req.Quantity,
				Size:      line.Size,
				Color:     line.Color,
				Price:     line.Price,
			}
			cart.CartItems = append([]models.CartItem{item}, cart.CartItems...)
		}

		if cart.PendingExpiryJobID == "" {
			jobID, err := s.scheduler.Schedule(ctx, cart.ID)
			if err != nil {
				return fmt.Errorf("failed to schedule cart expiry: %w", err)
			}
			scheduled = jobID
			cart.PendingExpiryJobID = jobID
		}

		settings, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		Recompute(cart, settings)
		return tx.SaveCart(ctx, cart)
	})
	if err != nil {
		s.cancelJob(ctx, scheduled)
		return nil, s.fail("add", err)
	}

	middleware.RecordCartOperation("add", "success")
	return cart, nil
}

// UpdateItemQuantity sets the quantity of an existing line. The units the
// line already holds count towards what is available.
func (s *Service) UpdateItemQuantity(ctx context.Context, userID string, req models.UpdateCartItemRequest) (*models.Cart, error) {
	var cart *models.Cart
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		var err error
		cart, err = tx.FindOrCreateCart(ctx, userID)
		if err != nil {
			return err
		}
		products, err := reconcileOnly(ctx, tx, cart)
		if err != nil {
			return err
		}

		i := cart.FindItem(req.ProductID, lineSize(products[req.ProductID], req.Size))
		if i < 0 {
			return apperror.NotFound("No item for this product in the cart.")
		}
		item := &cart.CartItems[i]
		if err := inventory.ResizeStock(ctx, tx, item.ProductID, item.Size, item.Quantity, req.Quantity); err != nil {
			return stockError(err, item.ProductID)
		}
		item.Quantity = req.Quantity

		settings, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		Recompute(cart, settings)
		return tx.SaveCart(ctx, cart)
	})
	if err != nil {
		return nil, s.fail("update", err)
	}

	middleware.RecordCartOperation("update", "success")
	return cart, nil
}

// RemoveItem drops one line and returns its units to stock.
func (s *Service) RemoveItem(ctx context.Context, userID string, req models.RemoveFromCartRequest) (*models.Cart, error) {
	var (
		cart     *models.Cart
		released string
	)
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		var err error
		cart, err = tx.FindOrCreateCart(ctx, userID)
		if err != nil {
			return err
		}
		products, err := reconcileOnly(ctx, tx, cart)
		if err != nil {
			return err
		}

		i := cart.FindItem(req.ProductID, lineSize(products[req.ProductID], req.Size))
		if i < 0 {
			return apperror.NotFound("No item for this product in the cart.")
		}
		item := cart.CartItems[i]
		err = inventory.ReleaseBatch(ctx, tx, []inventory.Delta{{
			ProductID: item.ProductID,
			Size:      item.Size,
			Quantity:  item.Quantity,
		}})
		if err != nil {
			return err
		}
		cart.CartItems = append(cart.CartItems[:i], cart.CartItems[i+1:]...)

		if len(cart.CartItems) == 0 {
			released = cart.PendingExpiryJobID
		}
		settings, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		Recompute(cart, settings)
		return tx.SaveCart(ctx, cart)
	})
	if err != nil {
		return nil, s.fail("remove", err)
	}

	s.cancelJob(ctx, released)
	middleware.RecordCartOperation("remove", "success")
	return cart, nil
}

// ClearCart empties the cart and returns every line to stock.
func (s *Service) ClearCart(ctx context.Context, userID string) (*models.Cart, error) {
	var (
		cart     *models.Cart
		released string
	)
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		var err error
		cart, err = tx.FindOrCreateCart(ctx, userID)
		if err != nil {
			return err
		}
		if err := inventory.ReleaseBatch(ctx, tx, deltas(cart.CartItems)); err != nil {
			return err
		}
		released = cart.PendingExpiryJobID
		cart.CartItems = nil
		Recompute(cart, models.AppSettings{})
		return tx.SaveCart(ctx, cart)
	})
	if err != nil {
		return nil, s.fail("clear", err)
	}

	s.cancelJob(ctx, released)
	middleware.RecordCartOperation("clear", "success")
	return cart, nil
}

// ApplyCoupon attaches an active promotion code to a non-empty cart.
func (s *Service) ApplyCoupon(ctx context.Context, userID string, req models.ApplyCouponRequest) (*models.Cart, error) {
	promo, err := s.coupons.LookupPromotion(ctx, req.CouponCode)
	if errors.Is(err, payment.ErrPromotionNotFound) {
		return nil, s.fail("apply_coupon", apperror.BadRequest("Invalid or expired coupon code."))
	}
	if err != nil {
		return nil, s.fail("apply_coupon", fmt.Errorf("failed to look up promotion code: %w", err))
	}

	var cart *models.Cart
	err = s.store.InTx(ctx, func(tx database.Tx) error {
		var err error
		cart, err = tx.FindOrCreateCart(ctx, userID)
		if err != nil {
			return err
		}
		if _, err := reconcileOnly(ctx, tx, cart); err != nil {
			return err
		}
		if len(cart.CartItems) > 0 {
			cart.Coupon = &models.Coupon{
				CouponID:       promo.ID,
				CouponCode:     promo.Code,
				CouponDiscount: promo.PercentOff,
			}
		}
		settings, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		Recompute(cart, settings)
		return tx.SaveCart(ctx, cart)
	})
	if err != nil {
		return nil, s.fail("apply_coupon", err)
	}

	middleware.RecordCartOperation("apply_coupon", "success")
	return cart, nil
}

func reconcileOnly(ctx context.Context, tx database.Tx, c *models.Cart) (map[string]*models.Product, error) {
	products, err := tx.GetProducts(ctx, c.ProductIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to load cart products: %w", err)
	}
	Reconcile(c, products)
	return products, nil
}

// lineSize resolves a requested size the way a reservation does: flat
// products ignore it.
func lineSize(p *models.Product, size string) string {
	if p != nil && !p.HasSizes() {
		return ""
	}
	return size
}

func deltas(items []models.CartItem) []inventory.Delta {
	out := make([]inventory.Delta, 0, len(items))
	for _, item := range items {
		out = append(out, inventory.Delta{ProductID: item.ProductID, Size: item.Size, Quantity: item.Quantity})
	}
	return out
}

// stockError maps reservation failures to caller-facing rejections.
func stockError(err error, productID string) error {
	var se *inventory.StockError
	if errors.As(err, &se) {
		middleware.RecordStockReservationFailure(string(se.Reason))
		return apperror.New(http.StatusBadRequest, se.Message)
	}
	if errors.Is(err, database.ErrNotFound) {
		return apperror.NotFound("No product for this ID: %s.", productID)
	}
	return err
}

func (s *Service) fail(op string, err error) error {
	if _, ok := apperror.As(err); ok {
		middleware.RecordCartOperation(op, "rejected")
	} else {
		middleware.RecordCartOperation(op, "error")
	}
	return err
}

// cancelJob removes a pending expiry job. Failures only leave a job that
// will find its id no longer on the cart and skip.
func (s *Service) cancelJob(ctx context.Context, jobID string) {
	if jobID == "" {
		return
	}
	if err := s.scheduler.Cancel(ctx, jobID); err != nil {
		s.logger.Warn("Failed to cancel cart expiry job", zap.String("job_id", jobID), zap.Error(err))
	}
}
