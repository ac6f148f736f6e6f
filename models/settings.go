package models

import "time"

// AppSettings holds the global tax and shipping charges applied to every
// non-empty cart.
type AppSettings struct {
	TaxPrice      float64 `json:"taxPrice"`
	ShippingPrice float64 `json:"shippingPrice"`
}

type SavedAddress struct {
	ID     string `json:"id"`
	UserID string `json:"-"`
	ShippingAddress
	CreatedAt time.Time `json:"createdAt"`
}
