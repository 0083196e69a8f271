// Package order records checked-out carts.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Line is one product of an order and how many of it were bought.
type Line struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Order is a checked-out cart.
type Order struct {
	ID        string    `json:"id"`
	Lines     []Line    `json:"lines"`
	CreatedAt time.Time `json:"createdAt"`
}

// ItemCount sums the quantities of all lines.
func (o Order) ItemCount() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

// Repository defines behavior for persisting orders.
type Repository interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	List(ctx context.Context) ([]Order, error)
}

// ErrNotFound indicates the requested order does not exist.
var ErrNotFound = errors.New("order not found")

// ErrExists indicates an order with the same ID was already recorded.
var ErrExists = errors.New("order already exists")
