package models

import (
	"strings"
	"time"
)

type CartItem struct {
	ProductID  string  `json:"product"`
	Quantity   int     `json:"quantity"`
	Size       string  `json:"size,omitempty"`
	Color      string  `json:"color,omitempty"`
	Price      float64 `json:"price"`
	TotalPrice float64 `json:"totalPrice"`
}

type Pricing struct {
	TaxPrice                float64  `json:"taxPrice"`
	ShippingPrice           float64  `json:"shippingPrice"`
	TotalPrice              float64  `json:"totalPrice"`
	TotalPriceAfterDiscount *float64 `json:"totalPriceAfterDiscount,omitempty"`
}

type Coupon struct {
	CouponID         string  `json:"couponId"`
	CouponCode       string  `json:"couponCode"`
	CouponDiscount   float64 `json:"couponDiscount"`
	DiscountedAmount float64 `json:"discountedAmount"`
}

type Cart struct {
	ID                       string     `json:"id"`
	UserID                   string     `json:"user"`
	CartItems                []CartItem `json:"cartItems"`
	Pricing                  Pricing    `json:"pricing"`
	Coupon                   *Coupon    `json:"coupon,omitempty"`
	PendingExpiryJobID       string     `json:"-"`
	PendingCheckoutSessionID string     `json:"-"`
	CreatedAt                time.Time  `json:"createdAt"`
	UpdatedAt                time.Time  `json:"updatedAt"`
}

// FindItem returns the index of the line for productID and size. Sizes are
// compared case-insensitively.
func (c *Cart) FindItem(productID, size string) int {
	for i, item := range c.CartItems {
		if item.ProductID == productID && strings.EqualFold(item.Size, size) {
			return i
		}
	}
	return -1
}

// ProductIDs returns the distinct product ids referenced by the cart.
func (c *Cart) ProductIDs() []string {
	seen := make(map[string]struct{}, len(c.CartItems))
	ids := make([]string, 0, len(c.CartItems))
	for _, item := range c.CartItems {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

// Clone returns a deep copy of c.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.CartItems = append([]CartItem(nil), c.CartItems...)
	if c.Pricing.TotalPriceAfterDiscount != nil {
		v := *c.Pricing.TotalPriceAfterDiscount
		cp.Pricing.TotalPriceAfterDiscount = &v
	}
	if c.Coupon != nil {
		coupon := *c.Coupon
		cp.Coupon = &coupon
	}
	return &cp
}

type AddToCartRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
	Size      string `json:"size"`
}

type UpdateCartItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
	Size      string `json:"size"`
}

type RemoveFromCartRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Size      string `json:"size"`
}

type ApplyCouponRequest struct {
	CouponCode string `json:"couponCode" binding:"required,min=3,max=32"`
}
