// Package memory implements an in-memory catalog source.
package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"cartflow/pkg/catalog"
)

// Source serves a fixed list of items.
type Source struct {
	mu    sync.RWMutex
	items []catalog.Item
}

// New creates a source serving items.
func New(items ...catalog.Item) *Source {
	return &Source{items: append([]catalog.Item(nil), items...)}
}

// Seeded returns a source with the demo catalog.
func Seeded() *Source {
	return New(
		catalog.Item{
			ID:          "207",
			Name:        "Floral Bouquet",
			Price:       decimal.RequireFromString("29.99"),
			Description: "A seasonal mix of fresh-cut flowers.",
			ImageURL:    "/images/bouquet.jpg",
			ImageAlt:    "Bouquet of flowers",
			ImageCredit: "Photo by Annie Spratt",
		},
		catalog.Item{
			ID:          "376",
			Name:        "Espresso Machine",
			Price:       decimal.RequireFromString("179.00"),
			Description: "Single-boiler machine with a steam wand.",
			ImageURL:    "/images/espresso.jpg",
			ImageAlt:    "Espresso machine pouring a shot",
			ImageCredit: "Photo by Nathan Dumlao",
		},
		catalog.Item{
			ID:          "512",
			Name:        "Hiking Backpack",
			Price:       decimal.RequireFromString("64.50"),
			Description: "35 litre pack with a rain cover.",
			ImageURL:    "/images/backpack.jpg",
			ImageAlt:    "Backpack on a mountain trail",
			ImageCredit: "Photo by Mathias Jensen",
		},
	)
}

// Fetch returns a copy of the configured items.
func (s *Source) Fetch(ctx context.Context) ([]catalog.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]catalog.Item(nil), s.items...), nil
}

// Put adds or replaces an item. It does not affect catalogs already loaded.
func (s *Source) Put(it catalog.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == it.ID {
			s.items[i] = it
			return
		}
	}
	s.items = append(s.items, it)
}
