package cart

import (
	"testing"

	"marketplace-svc/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecompute_EmptyCart(t *testing.T) {
	after := 9.0
	c := &models.Cart{
		Pricing:            models.Pricing{TaxPrice: 1, ShippingPrice: 2, TotalPrice: 10, TotalPriceAfterDiscount: &after},
		Coupon:             &models.Coupon{CouponCode: "SAVE10", CouponDiscount: 10},
		PendingExpiryJobID: "job-1",
	}

	Recompute(c, models.AppSettings{TaxPrice: 5, ShippingPrice: 5})

	assert.Equal(t, models.Pricing{}, c.Pricing)
	assert.Nil(t, c.Coupon)
	assert.Empty(t, c.PendingExpiryJobID)
	assert.NotNil(t, c.CartItems)
}

func TestRecompute_TotalsAndCoupon(t *testing.T) {
	c := &models.Cart{
		CartItems: []models.CartItem{
			{ProductID: "p1", Quantity: 2, Price: 19.99},
			{ProductID: "p2", Quantity: 1, Price: 5.5},
		},
		Coupon: &models.Coupon{CouponID: "promo_1", CouponCode: "SAVE10", CouponDiscount: 10},
	}

	Recompute(c, models.AppSettings{TaxPrice: 2, ShippingPrice: 3})

	assert.Equal(t, 39.98, c.CartItems[0].TotalPrice)
	assert.Equal(t, 5.5, c.CartItems[1].TotalPrice)
	assert.Equal(t, 2.0, c.Pricing.TaxPrice)
	assert.Equal(t, 3.0, c.Pricing.ShippingPrice)
	assert.Equal(t, 50.48, c.Pricing.TotalPrice)
	assert.Equal(t, 5.05, c.Coupon.DiscountedAmount)
	require.NotNil(t, c.Pricing.TotalPriceAfterDiscount)
	assert.Equal(t, 45.43, *c.Pricing.TotalPriceAfterDiscount)
}

func TestRecompute_NoCouponLeavesAfterDiscountUnset(t *testing.T) {
	stale := 1.0
	c := &models.Cart{
		CartItems: []models.CartItem{{ProductID: "p1", Quantity: 3, Price: 0.1}},
		Pricing:   models.Pricing{TotalPriceAfterDiscount: &stale},
	}

	Recompute(c, models.AppSettings{})

	assert.Equal(t, 0.3, c.Pricing.TotalPrice)
	assert.Nil(t, c.Pricing.TotalPriceAfterDiscount)
}

func TestReconcile(t *testing.T) {
	products := map[string]*models.Product{
		"flat": {ID: "flat", Price: 12, Color: "blue", Stock: models.FlatStock{Quantity: 3}},
		"sized": {ID: "sized", Color: "red", Stock: models.SizedStock{Entries: []models.SizeEntry{
			{Size: "M", Quantity: 1, Price: 30},
		}}},
	}
	c := &models.Cart{CartItems: []models.CartItem{
		{ProductID: "flat", Quantity: 1, Price: 10},
		{ProductID: "flat", Quantity: 1, Size: "L", Price: 10},
		{ProductID: "sized", Quantity: 2, Size: "m", Price: 25},
		{ProductID: "sized", Quantity: 1, Price: 25},
		{ProductID: "sized", Quantity: 1, Size: "XL", Price: 25},
		{ProductID: "deleted", Quantity: 4, Price: 1},
	}}

	dropped := Reconcile(c, products)

	assert.Equal(t, 4, dropped)
	require.Len(t, c.CartItems, 2)
	assert.Equal(t, models.CartItem{ProductID: "flat", Quantity: 1, Price: 12, Color: "blue"}, c.CartItems[0])
	assert.Equal(t, models.CartItem{ProductID: "sized", Quantity: 2, Size: "M", Price: 30, Color: "red"}, c.CartItems[1])

	before := append([]models.CartItem(nil), c.CartItems...)
	assert.Equal(t, 0, Reconcile(c, products))
	assert.Equal(t, before, c.CartItems)
}
