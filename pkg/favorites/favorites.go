// Package favorites keeps the set of products a visitor liked.
package favorites

import (
	"errors"
	"slices"
	"sync"
)

// ErrInvalidEntry is returned for an entry without a product ID.
var ErrInvalidEntry = errors.New("favorites: entry needs a product ID")

// Entry is a liked product with the details needed to render it.
type Entry struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	ImageRef  string  `json:"imageRef,omitempty"`
}

// Snapshot is a consistent copy of the set. See cart.Snapshot for Version.
type Snapshot struct {
	Entries []Entry `json:"entries"`
	Version uint64  `json:"-"`
}

// Set holds favorites keyed by product ID in the order they were added.
// It is safe for concurrent use.
type Set struct {
	mu        sync.RWMutex
	entries   []Entry
	version   uint64
	listeners []func(Snapshot)
}

// New returns an empty set.
func New() *Set {
	return &Set{}
}

// Toggle adds e when its product is not a favorite and removes it otherwise.
// It reports whether the product is a favorite afterwards.
func (s *Set) Toggle(e Entry) (bool, error) {
	if e.ProductID == "" {
		return false, ErrInvalidEntry
	}

	var added bool
	s.mutate(func() bool {
		if i := s.find(e.ProductID); i >= 0 {
			s.entries = slices.Delete(s.entries, i, i+1)
			return true
		}
		s.entries = append(s.entries, e)
		added = true
		return true
	})
	return added, nil
}

// Remove drops productID from the set. Removing an absent product is a no-op.
func (s *Set) Remove(productID string) {
	s.mutate(func() bool {
		i := s.find(productID)
		if i < 0 {
			return false
		}
		s.entries = slices.Delete(s.entries, i, i+1)
		return true
	})
}

// Clear empties the set.
func (s *Set) Clear() {
	s.mutate(func() bool {
		if len(s.entries) == 0 {
			return false
		}
		s.entries = nil
		return true
	})
}

// Restore replaces the content with snap, dropping entries without an ID
// and duplicates.
func (s *Set) Restore(snap Snapshot) {
	s.mutate(func() bool {
		s.entries = nil
		for _, e := range snap.Entries {
			if e.ProductID == "" || s.find(e.ProductID) >= 0 {
				continue
			}
			s.entries = append(s.entries, e)
		}
		return true
	})
}

// OnChange registers fn to receive a snapshot after every mutation.
func (s *Set) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Has reports whether productID is a favorite.
func (s *Set) Has(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.find(productID) >= 0
}

// Entries returns a copy of the entries in insertion order.
func (s *Set) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries)
}

// Len returns the number of favorites.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns a consistent copy of the set.
func (s *Set) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Entries: slices.Clone(s.entries), Version: s.version}
}

func (s *Set) mutate(fn func() bool) {
	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return
	}
	s.version++
	snap := Snapshot{Entries: slices.Clone(s.entries), Version: s.version}
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

func (s *Set) find(productID string) int {
	return slices.IndexFunc(s.entries, func(e Entry) bool { return e.ProductID == productID })
}
