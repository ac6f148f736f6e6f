package orders

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"marketplace-svc/models"
	"marketplace-svc/money"
)

// cartDigest fingerprints everything a checkout session charges for: the
// lines in order, the fees, the coupon and the payable total.
func cartDigest(c *models.Cart) string {
	h := sha256.New()
	for _, item := range c.CartItems {
		fmt.Fprintf(h, "%s|%s|%d|%d\n", item.ProductID, item.Size, item.Quantity, money.ToMinorUnits(item.Price))
	}
	total := c.Pricing.TotalPrice
	if c.Pricing.TotalPriceAfterDiscount != nil {
		total = *c.Pricing.TotalPriceAfterDiscount
	}
	coupon := ""
	if c.Coupon != nil {
		coupon = c.Coupon.CouponID
	}
	fmt.Fprintf(h, "%d|%d|%s|%d", money.ToMinorUnits(c.Pricing.TaxPrice), money.ToMinorUnits(c.Pricing.ShippingPrice), coupon, money.ToMinorUnits(total))
	return hex.EncodeToString(h.Sum(nil))[:32]
}
