// Package catalog holds the set of purchasable items.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound indicates the requested item does not exist in the catalog.
var ErrNotFound = errors.New("catalog item not found")

// Item is a purchasable product. Items are immutable once loaded.
type Item struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Price       decimal.Decimal `json:"price" yaml:"price"`
	Description string          `json:"description" yaml:"description"`
	ImageURL    string          `json:"imageURL" yaml:"imageURL"`
	ImageAlt    string          `json:"imageAlt" yaml:"imageAlt"`
	ImageCredit string          `json:"imageCredit" yaml:"imageCredit"`
}

// Products maps item IDs to items.
type Products map[string]Item

// Get returns the item with the given id.
func (p Products) Get(id string) (Item, error) {
	it, ok := p[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return it, nil
}

// List returns the items in no particular order.
func (p Products) List() []Item {
	out := make([]Item, 0, len(p))
	for _, it := range p {
		out = append(out, it)
	}
	return out
}

// State is the catalog slice of the application state.
type State struct {
	Products Products `json:"products"`
}

// InitialState returns an empty catalog.
func InitialState() State {
	return State{Products: Products{}}
}

// Source fetches the catalog from wherever it lives.
type Source interface {
	Fetch(ctx context.Context) ([]Item, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]Item, error)

// Fetch calls f.
func (f SourceFunc) Fetch(ctx context.Context) ([]Item, error) { return f(ctx) }

// Action is a catalog state transition.
type Action interface {
	Type() string
	catalogAction()
}

// ItemsReceived bulk-loads fetched items into the catalog.
type ItemsReceived struct {
	Items []Item
}

func (ItemsReceived) Type() string  { return "products/receivedProducts" }
func (ItemsReceived) catalogAction() {}

// Reduce applies a to s. The products map is copied before it is written so
// the previous State is never mutated.
func Reduce(s State, a Action) State {
	switch act := a.(type) {
	case ItemsReceived:
		next := make(Products, len(s.Products)+len(act.Items))
		for id, it := range s.Products {
			next[id] = it
		}
		for _, it := range act.Items {
			next[it.ID] = it
		}
		s.Products = next
	}
	return s
}
