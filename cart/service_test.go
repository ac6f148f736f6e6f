package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"marketplace-svc/apperror"
	"marketplace-svc/database"
	"marketplace-svc/database/memstore"
	"marketplace-svc/models"
	"marketplace-svc/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type fakeScheduler struct {
	mu        sync.Mutex
	next      int
	scheduled []string
	cancelled []string
	err       error
}

func (f *fakeScheduler) Schedule(ctx context.Context, cartID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.next++
	id := fmt.Sprintf("job-%d", f.next)
	f.scheduled = append(f.scheduled, id)
	return id, nil
}

func (f *fakeScheduler) Cancel(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

type fakeCoupons map[string]payment.Promotion

func (f fakeCoupons) LookupPromotion(ctx context.Context, code string) (payment.Promotion, error) {
	if p, ok := f[code]; ok {
		return p, nil
	}
	return payment.Promotion{}, payment.ErrPromotionNotFound
}

// failSaveStore fails every SaveCart inside a transaction.
type failSaveStore struct{ database.Store }

type failSaveTx struct{ database.Tx }

func (s failSaveStore) InTx(ctx context.Context, fn func(tx database.Tx) error) error {
	return s.Store.InTx(ctx, func(tx database.Tx) error { return fn(failSaveTx{tx}) })
}

func (failSaveTx) SaveCart(context.Context, *models.Cart) error { return errors.New("disk full") }

type fixture struct {
	store     *memstore.Store
	scheduler *fakeScheduler
	svc       *Service
}

func setupCartTest(t *testing.T) *fixture {
	store := memstore.New()
	store.PutProduct(&models.Product{ID: "mug", Title: "Mug", Price: 10, Color: "white", Quantity: 5, Stock: models.FlatStock{Quantity: 5}})
	store.PutProduct(&models.Product{ID: "shirt", Title: "Shirt", Color: "black", Price: 20, Stock: models.SizedStock{Entries: []models.SizeEntry{
		{Size: "S", Quantity: 0, Price: 20},
		{Size: "M", Quantity: 3, Price: 25},
	}}})
	scheduler := &fakeScheduler{}
	coupons := fakeCoupons{"SAVE10": {ID: "promo_1", Code: "SAVE10", PercentOff: 10}}
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	return &fixture{
		store:     store,
		scheduler: scheduler,
		svc:       NewService(store, scheduler, coupons, logger),
	}
}

func (f *fixture) stock(id string) int {
	return f.store.Product(id).Quantity
}

func requireAppError(t *testing.T, err error, status int, message string) {
	t.Helper()
	appErr, ok := apperror.As(err)
	require.True(t, ok, "expected *apperror.Error, got %v", err)
	assert.Equal(t, status, appErr.Status)
	if message != "" {
		assert.Equal(t, message, appErr.Message)
	}
}

func add(productID, size string, qty int) models.AddToCartRequest {
	return models.AddToCartRequest{ProductID: productID, Size: size, Quantity: qty}
}

func TestGetCart_CreatesEmptyCart(t *testing.T) {
	f := setupCartTest(t)

	c, err := f.svc.GetCart(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, c.CartItems)
	assert.Equal(t, models.Pricing{}, c.Pricing)

	again, err := f.svc.GetCart(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)
}

func TestAddToCart_FlatScenario(t *testing.T) {
	f := setupCartTest(t)
	ctx := context.Background()

	c, err := f.svc.AddToCart(ctx, "u1", add("mug", "", 3))
	require.NoError(t, err)
	assert.Equal(t, 2, f.stock("mug"))
	assert.Equal(t, 30.0, c.Pricing.TotalPrice)

	_, err = f.svc.AddToCart(ctx, "u1", add("mug", "", 3))
	requireAppError(t, err, http.StatusBadRequest, "Only 2 item(s) are available in stock.")
	assert.Equal(t, 2, f.stock("mug"))

	c, err = f.svc.AddToCart(ctx, "u1", add("mug", "", 2))
	require.NoError(t, err)
	assert.Equal(t, 0, f.stock("mug"))
	require.Len(t, c.CartItems, 1)
	assert.Equal(t, 5, c.CartItems[0].Quantity)

	c, err = f.svc.RemoveItem(ctx, "u1", models.RemoveFromCartRequest{ProductID: "mug"})
	require.NoError(t, err)
	assert.Equal(t, 5, f.stock("mug"))
	assert.Empty(t, c.CartItems)
	assert.Equal(t, models.Pricing{}, c.Pricing)
	assert.Empty(t, c.PendingExpiryJobID)
	assert.Equal(t, []string{"job-1"}, f.scheduler.cancelled)
}

func TestAddToCart_SizedScenario(t *testing.T) {
	f := setupCartTest(t)
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "u1", add("shirt", "S", 1))
	requireAppError(t, err, http.StatusBadRequest, "Unfortunately, this product is currently out of stock.")

	_, err = f.svc.AddToCart(ctx, "u1", add("shirt", "", 1))
	requireAppError(t, err, http.StatusBadRequest, "Please select a product size.")

	_, err = f.svc.AddToCart(ctx, "u1", add("shirt", "XL", 1))
	requireAppError(t, err, http.StatusBadRequest, "The size you selected is not available.")

	c, err := f.svc.AddToCart(ctx, "u1", add("shirt", "m", 2))
	require.NoError(t, err)
	require.Len(t, c.CartItems, 1)
	assert.Equal(t, "M", c.CartItems[0].Size)
	assert.Equal(t, 25.0, c.CartItems[0].Price)
	assert.Equal(t, 1, f.store.Product("shirt").Sizes()[1].Quantity)

	// same line regardless of size spelling
	c, err = f.svc.AddToCart(ctx, "u1", add("shirt", "M", 1))
	require.NoError(t, err)
	require.Len(t, c.CartItems, 1)
	assert.Equal(t, 3, c.CartItems[0].Quantity)
}

func TestAddToCart_UnknownProduct(t *testing.T) {
	f := setupCartTest(t)

	_, err := f.svc.AddToCart(context.Background(), "u1", add("nope", "", 1))
	requireAppError(t, err, http.StatusNotFound, "No product for this ID: nope.")
	assert.Empty(t, f.scheduler.scheduled)
}

func TestAddToCart_SchedulesOneJobAndPrependsLines(t *testing.T) {
	f := setupCartTest(t)
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "u1", add("mug", "", 1))
	require.NoError(t, err)
	c, err := f.svc.AddToCart(ctx, "u1", add("shirt", "M", 1))
	require.NoError(t, err)

	assert.Equal(t, []string{"job-1"}, f.scheduler.scheduled)
	assert.Equal(t, "job-1", c.PendingExpiryJobID)
	require.Len(t, c.CartItems, 2)
	assert.Equal(t, "shirt", c.CartItems[0].ProductID)
	assert.Equal(t, "mug", c.CartItems[1].ProductID)
}

func TestAddToCart_FailureCancelsNewJob(t *testing.T) {
	f := setupCartTest(t)
	svc := NewService(failSaveStore{f.store}, f.scheduler, fakeCoupons{}, zaptest.NewLogger(t))

	_, err := svc.AddToCart(context.Background(), "u1", add("mug", "", 2))
	require.Error(t, err)
	_, isApp := apperror.As(err)
	assert.False(t, isApp)

	assert.Equal(t, 5, f.stock("mug"))
	assert.Equal(t, []string{"job-1"}, f.scheduler.cancelled)
}

func TestAddToCart_ScheduleFailureAborts(t *testing.T) {
	f := setupCartTest(t)
	f.scheduler.err = errors.New("redis down")

	_, err := f.svc.AddToCart(context.Background(), "u1", add("mug", "", 2))
	require.Error(t, err)
	assert.Equal(t, 5, f.stock("mug"))
}

func TestUpdateItemQuantity(t *testing.T) {
	f := setupCartTest(t)
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "u1", add("mug", "", 3))
	require.NoError(t, err)

	c, err := f.svc.UpdateItemQuantity(ctx, "u1", models.UpdateCartItemRequest{ProductID: "mug", Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, c.CartItems[0].Quantity)
	assert.Equal(t, 0, f.stock("mug"))

	_, err = f.svc.UpdateItemQuantity(ctx, "u1", models.UpdateCartItemRequest{ProductID: "mug", Quantity: 6})
	requireAppError(t, err, http.StatusBadRequest, "Only 5 item(s) are available in stock.")

	c, err = f.svc.UpdateItemQuantity(ctx, "u1", models.UpdateCartItemRequest{ProductID: "mug", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, c.CartItems[0].Quantity)
	assert.Equal(t, 10.0, c.Pricing.TotalPrice)
	assert.Equal(t, 4, f.stock("mug"))
}

func TestUpdateItemQuantity_MissingLine(t *testing.T) {
	f := setupCartTest(t)

	_, err := f.svc.UpdateItemQuantity(context.Background(), "u1", models.UpdateCartItemRequest{ProductID: "mug", Quantity: 1})
	requireAppError(t, err, http.StatusNotFound, "")
}

func TestUpdateAndRemove_FlatProductIgnoresSize(t *testing.T) {
	f := setupCartTest(t)
	ctx := context.Background()

	c, err := f.svc.AddToCart(ctx, "u1", add("mug", "XL", 2))
	require.NoError(t, err)
	require.Len(t, c.CartItems, 1)
	assert.Empty(t, c.CartItems[0].Size)

	c, err = f.svc.UpdateItemQuantity(ctx, "u1", models.UpdateCartItemRequest{ProductID: "mug", Size: "XL", Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, c.CartItems[0].Quantity)
	assert.Equal(t, 2, f.stock("mug"))

	_, err = f.svc.AddToCart(ctx, "u1", add("shirt", "M", 1))
	require.NoError(t, err)
	_, err = f.svc.RemoveItem(ctx, "u1", models.RemoveFromCartRequest{ProductID: "shirt", Size: "XL"})
	requireAppError(t, err, http.StatusNotFound, "")

	c, err = f.svc.RemoveItem(ctx, "u1", models.RemoveFromCartRequest{ProductID: "mug", Size: "XL"})
	require.NoError(t, err)
	require.Len(t, c.CartItems, 1)
	assert.Equal(t, "shirt", c.CartItems[0].ProductID)
	assert.Equal(t, 5, f.stock("mug"))
}

func TestRemoveItem_KeepsJobWhileItemsRemain(t *testing.T) {
	f := setupCartTest(t)
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "u1", add("mug", "", 1))
	require.NoError(t, err)
	_, err = f.svc.AddToCart(ctx, "u1", add("shirt", "M", 2))
	require.NoError(t, err)

	c, err := f.svc.RemoveItem(ctx, "u1", models.RemoveFromCartRequest{ProductID: "shirt", Size: "m"})
	require.NoError(t, err)
	assert.Len(t, c.CartItems, 1)
	assert.Equal(t, "job-1", c.PendingExpiryJobID)
	assert.Empty(t, f.scheduler.cancelled)
	assert.Equal(t, 3, f.store.Product("shirt").Sizes()[1].Quantity)
}

func TestClearCart(t *testing.T) {
	f := setupCartTest(t)
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "u1", add("mug", "", 4))
	require.NoError(t, err)
	_, err = f.svc.AddToCart(ctx, "u1", add("shirt", "M", 3))
	require.NoError(t, err)

	c, err := f.svc.ClearCart(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, c.CartItems)
	assert.Equal(t, models.Pricing{}, c.Pricing)
	assert.Equal(t, 5, f.stock("mug"))
	assert.Equal(t, 3, f.store.Product("shirt").Sizes()[1].Quantity)
	assert.Equal(t, []string{"job-1"}, f.scheduler.cancelled)
}

func TestApplyCoupon(t *testing.T) {
	f := setupCartTest(t)
	ctx := context.Background()

	_, err := f.svc.ApplyCoupon(ctx, "u1", models.ApplyCouponRequest{CouponCode: "BOGUS"})
	requireAppError(t, err, http.StatusBadRequest, "Invalid or expired coupon code.")

	c, err := f.svc.ApplyCoupon(ctx, "u1", models.ApplyCouponRequest{CouponCode: "SAVE10"})
	require.NoError(t, err)
	assert.Nil(t, c.Coupon, "empty cart must not carry a coupon")

	_, err = f.svc.AddToCart(ctx, "u1", add("mug", "", 2))
	require.NoError(t, err)
	c, err = f.svc.ApplyCoupon(ctx, "u1", models.ApplyCouponRequest{CouponCode: "SAVE10"})
	require.NoError(t, err)
	require.NotNil(t, c.Coupon)
	assert.Equal(t, "promo_1", c.Coupon.CouponID)
	assert.Equal(t, 2.0, c.Coupon.DiscountedAmount)
	require.NotNil(t, c.Pricing.TotalPriceAfterDiscount)
	assert.Equal(t, 18.0, *c.Pricing.TotalPriceAfterDiscount)

	// the discount follows later mutations
	c, err = f.svc.AddToCart(ctx, "u1", add("mug", "", 1))
	require.NoError(t, err)
	assert.Equal(t, 27.0, *c.Pricing.TotalPriceAfterDiscount)
}

func TestGetCart_ReconcilesDeletedProduct(t *testing.T) {
	f := setupCartTest(t)
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "u1", add("mug", "", 2))
	require.NoError(t, err)
	f.store.DeleteProduct("mug")

	c, err := f.svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, c.CartItems)
	assert.Empty(t, c.PendingExpiryJobID)
	assert.Equal(t, []string{"job-1"}, f.scheduler.cancelled)
}

func TestAddToCart_ConcurrentNoLostUpdate(t *testing.T) {
	f := setupCartTest(t)
	f.store.PutProduct(&models.Product{ID: "pen", Price: 1, Quantity: 10, Stock: models.FlatStock{Quantity: 10}})
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.AddToCart(ctx, fmt.Sprintf("user-%d", i%5), add("pen", "", 1))
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, accepted)
	assert.Equal(t, 0, f.stock("pen"))

	reserved := 0
	for i := 0; i < 5; i++ {
		c, err := f.svc.GetCart(ctx, fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
		for _, item := range c.CartItems {
			reserved += item.Quantity
		}
	}
	assert.Equal(t, 10, reserved)
}

func TestExpireCart(t *testing.T) {
	f := setupCartTest(t)
	ctx := context.Background()

	c, err := f.svc.AddToCart(ctx, "u1", add("mug", "", 3))
	require.NoError(t, err)
	_, err = f.svc.AddToCart(ctx, "u1", add("shirt", "M", 1))
	require.NoError(t, err)
	require.NoError(t, f.store.InTx(ctx, func(tx database.Tx) error {
		pending, err := tx.GetCartByID(ctx, c.ID)
		if err != nil {
			return err
		}
		pending.PendingCheckoutSessionID = "cs_test_1"
		return tx.SaveCart(ctx, pending)
	}))

	expired, err := f.svc.ExpireCart(ctx, c.ID, "job-stale")
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, 2, f.stock("mug"))

	expired, err = f.svc.ExpireCart(ctx, c.ID, "job-1")
	require.NoError(t, err)
	assert.True(t, expired)
	assert.Equal(t, 5, f.stock("mug"))
	assert.Equal(t, 3, f.store.Product("shirt").Sizes()[1].Quantity)

	after, err := f.store.Queries().GetCartByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, after.CartItems)
	assert.Empty(t, after.PendingExpiryJobID)
	assert.Empty(t, after.PendingCheckoutSessionID)
	assert.Equal(t, models.Pricing{}, after.Pricing)

	// a retry after success finds no pending job
	expired, err = f.svc.ExpireCart(ctx, c.ID, "job-1")
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, 5, f.stock("mug"))
}

func TestExpireCart_MissingCart(t *testing.T) {
	f := setupCartTest(t)

	expired, err := f.svc.ExpireCart(context.Background(), "gone", "job-1")
	require.NoError(t, err)
	assert.False(t, expired)
}
