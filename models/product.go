package models

import (
	"strings"
	"time"
)

// Stock is the stock model of a product. It is either FlatStock or SizedStock,
// never both.
type Stock interface {
	stockModel()
}

// FlatStock is a single quantity for products sold without sizes.
type FlatStock struct {
	Quantity int
}

// SizedStock keeps a separate quantity and price per size.
type SizedStock struct {
	Entries []SizeEntry
}

func (FlatStock) stockModel()  {}
func (SizedStock) stockModel() {}

type SizeEntry struct {
	Size                string   `json:"size"`
	Quantity            int      `json:"quantity"`
	Price               float64  `json:"price"`
	PriceBeforeDiscount *float64 `json:"priceBeforeDiscount,omitempty"`
	DiscountPercent     *float64 `json:"discountPercent,omitempty"`
}

// Product is the catalog record as seen by the cart pipeline. Price,
// PriceBeforeDiscount, DiscountPercent and Quantity are display fields; for
// sized products they mirror the cheapest size.
type Product struct {
	ID                  string    `json:"id"`
	Title               string    `json:"title"`
	Color               string    `json:"color,omitempty"`
	ImageCover          string    `json:"imageCover,omitempty"`
	Price               float64   `json:"price"`
	PriceBeforeDiscount *float64  `json:"priceBeforeDiscount,omitempty"`
	DiscountPercent     *float64  `json:"discountPercent,omitempty"`
	Quantity            int       `json:"quantity"`
	Sold                int       `json:"sold"`
	Stock               Stock     `json:"-"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Sizes returns the size entries of a sized product, or nil.
func (p *Product) Sizes() []SizeEntry {
	if s, ok := p.Stock.(SizedStock); ok {
		return s.Entries
	}
	return nil
}

// HasSizes reports whether the product uses the sized stock model.
func (p *Product) HasSizes() bool {
	return len(p.Sizes()) > 0
}

// FindSize returns the index of size in the product's size entries,
// compared case-insensitively.
func (p *Product) FindSize(size string) (int, bool) {
	for i, e := range p.Sizes() {
		if strings.EqualFold(e.Size, size) {
			return i, true
		}
	}
	return -1, false
}

// Clone returns a deep copy of p.
func (p *Product) Clone() *Product {
	c := *p
	if s, ok := p.Stock.(SizedStock); ok {
		entries := make([]SizeEntry, len(s.Entries))
		copy(entries, s.Entries)
		c.Stock = SizedStock{Entries: entries}
	}
	return &c
}
