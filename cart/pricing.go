package cart

import (
	"marketplace-svc/models"
	"marketplace-svc/money"
)

// Recompute derives line totals, pricing and the coupon discount of c from
// its items. An empty cart loses its coupon and its pending expiry job.
func Recompute(c *models.Cart, settings models.AppSettings) {
	if len(c.CartItems) == 0 {
		c.CartItems = []models.CartItem{}
		c.Pricing = models.Pricing{}
		c.Coupon = nil
		c.PendingExpiryJobID = ""
		return
	}

	totals := make([]float64, 0, len(c.CartItems)+2)
	for i := range c.CartItems {
		item := &c.CartItems[i]
		item.TotalPrice = money.Mul(item.Price, item.Quantity)
		totals = append(totals, item.TotalPrice)
	}

	tax := money.Round2(settings.TaxPrice)
	shipping := money.Round2(settings.ShippingPrice)
	totals = append(totals, tax, shipping)

	c.Pricing = models.Pricing{
		TaxPrice:      tax,
		ShippingPrice: shipping,
		TotalPrice:    money.Sum(totals...),
	}

	if c.Coupon != nil {
		discount := money.Percent(c.Pricing.TotalPrice, c.Coupon.CouponDiscount)
		after := money.Sub(c.Pricing.TotalPrice, discount)
		c.Coupon.DiscountedAmount = discount
		c.Pricing.TotalPriceAfterDiscount = &after
	}
}
