// Package cart is the shopping cart store.
//
// Lines are keyed by product ID and kept in insertion order. Totals are
// never stored on their own: every mutation recomputes them from the lines
// inside the same critical section, so a reader can not observe totals
// that disagree with the lines.
package cart

import (
	"errors"
	"slices"
	"sync"
)

var (
	// ErrInvalidLine is returned for a line without a product ID, with a
	// non-positive quantity or a negative price.
	ErrInvalidLine = errors.New("cart: line needs a product ID, a positive quantity and a non-negative price")
	// ErrNotInCart is returned when setting a quantity for an absent product.
	ErrNotInCart = errors.New("cart: product not in cart")
	// ErrOverLimit is returned by the conditional mutations when the
	// resulting quantity would exceed the limit.
	ErrOverLimit = errors.New("cart: quantity over limit")
)

// Line is one product in the cart with its price snapshot.
type Line struct {
	ProductID  string  `json:"productId"`
	Name       string  `json:"name"`
	UnitPrice  float64 `json:"unitPrice"`
	Quantity   int     `json:"quantity"`
	StockLimit int     `json:"stockLimit,omitempty"` // 0 = unknown
	ImageRef   string  `json:"imageRef,omitempty"`
}

// Subtotal is UnitPrice × Quantity.
func (l Line) Subtotal() float64 {
	return l.UnitPrice * float64(l.Quantity)
}

func (l Line) valid() bool {
	return l.ProductID != "" && l.Quantity > 0 && l.UnitPrice >= 0
}

// WithinStock reports whether qty respects the line's stock limit. The cart
// itself never enforces limits; callers apply this as policy.
func WithinStock(l Line, qty int) bool {
	return l.StockLimit <= 0 || qty <= l.StockLimit
}

// Totals aggregate the cart.
type Totals struct {
	Quantity int     `json:"quantity"`
	Amount   float64 `json:"amount"`
}

// Snapshot is a consistent copy of the cart. Version increases with every
// mutation, so consumers of change notifications can drop stale snapshots.
type Snapshot struct {
	Lines   []Line `json:"lines"`
	Totals  Totals `json:"totals"`
	Version uint64 `json:"-"`
}

// Option configures a Cart.
type Option func(*Cart)

// WithListener registers fn as a change listener at construction.
func WithListener(fn func(Snapshot)) Option {
	return func(c *Cart) { c.listeners = append(c.listeners, fn) }
}

// Cart is safe for concurrent use.
type Cart struct {
	mu        sync.RWMutex
	lines     []Line
	totals    Totals
	version   uint64
	listeners []func(Snapshot)
}

// New returns an empty cart.
func New(opts ...Option) *Cart {
	c := &Cart{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddItem appends l, or adds its quantity to the existing line for the same
// product. Name, price and image of an existing line are kept.
func (c *Cart) AddItem(l Line) error {
	if !l.valid() {
		return ErrInvalidLine
	}

	c.mutate(func() bool {
		if i := c.find(l.ProductID); i >= 0 {
			c.lines[i].Quantity += l.Quantity
			if c.lines[i].StockLimit <= 0 {
				c.lines[i].StockLimit = l.StockLimit
			}
			return true
		}
		c.lines = append(c.lines, l)
		return true
	})
	return nil
}

// AddItemWithin is AddItem that fails with ErrOverLimit, leaving the cart
// unchanged, when the merged quantity would exceed limit. The check and
// the merge happen under one lock. A limit ≤ 0 means no limit.
func (c *Cart) AddItemWithin(l Line, limit int) error {
	if !l.valid() {
		return ErrInvalidLine
	}

	var err error
	c.mutate(func() bool {
		i := c.find(l.ProductID)
		merged := l.Quantity
		if i >= 0 {
			merged += c.lines[i].Quantity
		}
		if limit > 0 && merged > limit {
			err = ErrOverLimit
			return false
		}
		if i >= 0 {
			c.lines[i].Quantity = merged
			if c.lines[i].StockLimit <= 0 {
				c.lines[i].StockLimit = l.StockLimit
			}
			return true
		}
		c.lines = append(c.lines, l)
		return true
	})
	return err
}

// RemoveItem deletes the line for productID. Removing an absent product is a no-op.
func (c *Cart) RemoveItem(productID string) {
	c.mutate(func() bool {
		i := c.find(productID)
		if i < 0 {
			return false
		}
		c.lines = slices.Delete(c.lines, i, i+1)
		return true
	})
}

// SetQuantity sets the absolute quantity of a line. A quantity ≤ 0 removes
// it. Setting a positive quantity for a product not in the cart returns
// ErrNotInCart.
func (c *Cart) SetQuantity(productID string, qty int) error {
	var err error
	c.mutate(func() bool {
		i := c.find(productID)
		switch {
		case i < 0 && qty <= 0:
			return false
		case i < 0:
			err = ErrNotInCart
			return false
		case qty <= 0:
			c.lines = slices.Delete(c.lines, i, i+1)
		default:
			c.lines[i].Quantity = qty
		}
		return true
	})
	return err
}

// SetQuantityWithinStock is SetQuantity that fails with ErrOverLimit when
// qty exceeds the line's StockLimit.
func (c *Cart) SetQuantityWithinStock(productID string, qty int) error {
	var err error
	c.mutate(func() bool {
		i := c.find(productID)
		switch {
		case i < 0 && qty <= 0:
			return false
		case i < 0:
			err = ErrNotInCart
			return false
		case qty <= 0:
			c.lines = slices.Delete(c.lines, i, i+1)
		case !WithinStock(c.lines[i], qty):
			err = ErrOverLimit
			return false
		default:
			c.lines[i].Quantity = qty
		}
		return true
	})
	return err
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.mutate(func() bool {
		if len(c.lines) == 0 {
			return false
		}
		c.lines = nil
		return true
	})
}

// Restore replaces the cart content with s. Invalid lines are dropped and
// duplicate products merged; totals are recomputed rather than trusted.
func (c *Cart) Restore(s Snapshot) {
	c.mutate(func() bool {
		c.lines = nil
		for _, l := range s.Lines {
			if !l.valid() {
				continue
			}
			if i := c.find(l.ProductID); i >= 0 {
				c.lines[i].Quantity += l.Quantity
				continue
			}
			c.lines = append(c.lines, l)
		}
		return true
	})
}

// OnChange registers fn to receive a snapshot after every mutation.
// Listeners run outside the cart lock and may read the cart.
func (c *Cart) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Lines returns a copy of the lines in insertion order.
func (c *Cart) Lines() []Line {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.lines)
}

// Line returns the line for productID.
func (c *Cart) Line(productID string) (Line, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i := c.find(productID); i >= 0 {
		return c.lines[i], true
	}
	return Line{}, false
}

// Totals returns the current aggregate.
func (c *Cart) Totals() Totals {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totals
}

// Snapshot returns lines and totals read under one lock.
func (c *Cart) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot()
}

// mutate runs fn under the write lock, recomputes totals when fn reports a
// change and notifies listeners afterwards.
func (c *Cart) mutate(fn func() bool) {
	c.mu.Lock()
	if !fn() {
		c.mu.Unlock()
		return
	}
	c.totals = sum(c.lines)
	c.version++
	snap := c.snapshot()
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

func (c *Cart) snapshot() Snapshot {
	return Snapshot{Lines: slices.Clone(c.lines), Totals: c.totals, Version: c.version}
}

func (c *Cart) find(productID string) int {
	return slices.IndexFunc(c.lines, func(l Line) bool { return l.ProductID == productID })
}

func sum(lines []Line) Totals {
	var t Totals
	for _, l := range lines {
		t.Quantity += l.Quantity
		t.Amount += l.Subtotal()
	}
	return t
}
