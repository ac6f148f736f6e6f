// Package inventory reserves and releases product stock for cart lines.
//
// The functions operating on *models.Product are pure; ReserveStock,
// ResizeStock and ReleaseBatch load products through a ProductStore that is
// expected to hold a row lock for the duration of the surrounding
// transaction.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"marketplace-svc/database"
	"marketplace-svc/models"
)

type Reason string

const (
	ReasonOutOfStock        Reason = "out_of_stock"
	ReasonInsufficientStock Reason = "insufficient_stock"
	ReasonSizeRequired      Reason = "size_required"
	ReasonSizeNotFound      Reason = "size_not_found"
)

// StockError is returned when a reservation cannot be satisfied.
type StockError struct {
	Reason  Reason
	Message string
}

func (e *StockError) Error() string {
	return e.Message
}

func outOfStock() *StockError {
	return &StockError{Reason: ReasonOutOfStock, Message: "Unfortunately, this product is currently out of stock."}
}

func insufficient(available int, size string) *StockError {
	msg := fmt.Sprintf("Only %d item(s) are available in stock.", available)
	if size != "" {
		msg = fmt.Sprintf("Only %d item(s) are available for size %s.", available, strings.ToUpper(size))
	}
	return &StockError{Reason: ReasonInsufficientStock, Message: msg}
}

// Line describes what a reservation resolved to.
type Line struct {
	Size  string // canonical spelling from the catalog, empty for flat stock
	Price float64
	Color string
}

// Check validates that qty units of size can be reserved from p without
// mutating it.
func Check(p *models.Product, size string, qty int) (Line, error) {
	switch s := p.Stock.(type) {
	case models.FlatStock:
		if s.Quantity <= 0 {
			return Line{}, outOfStock()
		}
		if s.Quantity < qty {
			return Line{}, insufficient(s.Quantity, "")
		}
		return Line{Price: p.Price, Color: p.Color}, nil
	case models.SizedStock:
		if size == "" {
			return Line{}, &StockError{Reason: ReasonSizeRequired, Message: "Please select a product size."}
		}
		i, ok := p.FindSize(size)
		if !ok {
			return Line{}, &StockError{Reason: ReasonSizeNotFound, Message: "The size you selected is not available."}
		}
		entry := s.Entries[i]
		if entry.Quantity <= 0 {
			return Line{}, outOfStock()
		}
		if entry.Quantity < qty {
			return Line{}, insufficient(entry.Quantity, entry.Size)
		}
		return Line{Size: entry.Size, Price: entry.Price, Color: p.Color}, nil
	default:
		return Line{}, fmt.Errorf("product %s: unknown stock model %T", p.ID, p.Stock)
	}
}

// Reserve checks availability and decrements the matching counter.
func Reserve(p *models.Product, size string, qty int) (Line, error) {
	line, err := Check(p, size, qty)
	if err != nil {
		return Line{}, err
	}
	adjust(p, line.Size, -qty)
	return line, nil
}

// Release returns qty units to the counter they were reserved from. It
// reports false when the product no longer has a matching counter.
func Release(p *models.Product, size string, qty int) bool {
	return adjust(p, size, qty)
}

// Resize changes a line already holding reserved units to requested units.
// The units the line already holds count as available.
func Resize(p *models.Product, size string, reserved, requested int) error {
	var current int
	switch s := p.Stock.(type) {
	case models.FlatStock:
		current = s.Quantity
		size = ""
	case models.SizedStock:
		i, ok := p.FindSize(size)
		if !ok {
			return &StockError{Reason: ReasonSizeNotFound, Message: "The size you selected is not available."}
		}
		current = s.Entries[i].Quantity
		size = s.Entries[i].Size
	default:
		return fmt.Errorf("product %s: unknown stock model %T", p.ID, p.Stock)
	}

	available := current + reserved
	if requested > available {
		return insufficient(available, size)
	}
	adjust(p, size, reserved-requested)
	return nil
}

func adjust(p *models.Product, size string, delta int) bool {
	switch s := p.Stock.(type) {
	case models.FlatStock:
		if size != "" {
			return false
		}
		q := s.Quantity + delta
		p.Stock = models.FlatStock{Quantity: q}
		p.Quantity = q
		return true
	case models.SizedStock:
		i, ok := p.FindSize(size)
		if !ok {
			return false
		}
		s.Entries[i].Quantity += delta
		RefreshDisplayFields(p)
		return true
	}
	return false
}

// RefreshDisplayFields copies price and quantity of the cheapest size onto
// the product. The first entry wins a tie.
func RefreshDisplayFields(p *models.Product) {
	entries := p.Sizes()
	if len(entries) == 0 {
		return
	}
	cheapest := 0
	for i := 1; i < len(entries); i++ {
		if entries[i].Price < entries[cheapest].Price {
			cheapest = i
		}
	}
	e := entries[cheapest]
	p.Price = e.Price
	p.PriceBeforeDiscount = e.PriceBeforeDiscount
	p.DiscountPercent = e.DiscountPercent
	p.Quantity = e.Quantity
}

// ProductStore is satisfied by database.Tx.
type ProductStore interface {
	GetProductForUpdate(ctx context.Context, id string) (*models.Product, error)
	SaveProductStock(ctx context.Context, p *models.Product) error
}

// ReserveStock locks the product, reserves qty units and persists the new
// stock.
func ReserveStock(ctx context.Context, store ProductStore, productID, size string, qty int) (*models.Product, Line, error) {
	p, err := store.GetProductForUpdate(ctx, productID)
	if err != nil {
		return nil, Line{}, err
	}
	line, err := Reserve(p, size, qty)
	if err != nil {
		return p, Line{}, err
	}
	if err := store.SaveProductStock(ctx, p); err != nil {
		return nil, Line{}, fmt.Errorf("save stock of product %s: %w", productID, err)
	}
	return p, line, nil
}

// ResizeStock locks the product and moves a line from reserved to
// requested units.
func ResizeStock(ctx context.Context, store ProductStore, productID, size string, reserved, requested int) error {
	p, err := store.GetProductForUpdate(ctx, productID)
	if err != nil {
		return err
	}
	if err := Resize(p, size, reserved, requested); err != nil {
		return err
	}
	if err := store.SaveProductStock(ctx, p); err != nil {
		return fmt.Errorf("save stock of product %s: %w", productID, err)
	}
	return nil
}

// Delta is a quantity to give back to one (product, size) counter.
type Delta struct {
	ProductID string
	Size      string
	Quantity  int
}

// ReleaseBatch returns every delta to stock. Deltas for the same product are
// merged so each product is written once. Products that were deleted, or
// no longer carry the released size, are skipped.
func ReleaseBatch(ctx context.Context, store ProductStore, deltas []Delta) error {
	order := make([]string, 0, len(deltas))
	perProduct := make(map[string][]Delta)
	for _, d := range deltas {
		if d.Quantity == 0 {
			continue
		}
		if _, ok := perProduct[d.ProductID]; !ok {
			order = append(order, d.ProductID)
		}
		perProduct[d.ProductID] = mergeDelta(perProduct[d.ProductID], d)
	}

	// fixed lock order across concurrent batches
	sort.Strings(order)

	for _, id := range order {
		p, err := store.GetProductForUpdate(ctx, id)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		changed := false
		for _, d := range perProduct[id] {
			if Release(p, d.Size, d.Quantity) {
				changed = true
			}
		}
		if !changed {
			continue
		}
		if err := store.SaveProductStock(ctx, p); err != nil {
			return fmt.Errorf("save stock of product %s: %w", id, err)
		}
	}
	return nil
}

func mergeDelta(list []Delta, d Delta) []Delta {
	for i := range list {
		if strings.EqualFold(list[i].Size, d.Size) {
			list[i].Quantity += d.Quantity
			return list
		}
	}
	return append(list, d)
}
