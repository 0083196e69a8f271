// Package postgres persists orders in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"

	"github.com/go-faster/errors"
	"github.com/lib/pq"

	"cartflow/pkg/order"
)

// Schema creates the tables used by Repository.
const Schema = `CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS order_lines (
	order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	product_id TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	PRIMARY KEY (order_id, product_id)
)`

const (
	insertOrder = "INSERT INTO orders (id,created_at) VALUES ($1,$2)"
	insertLine  = "INSERT INTO order_lines (order_id,product_id,quantity) VALUES ($1,$2,$3)"
	selectOrder = "SELECT id,created_at FROM orders WHERE id=$1"
	selectLines = "SELECT order_id,product_id,quantity FROM order_lines WHERE order_id=$1 ORDER BY product_id"
	listOrders  = "SELECT id,created_at FROM orders ORDER BY created_at,id"
	listLines   = "SELECT order_id,product_id,quantity FROM order_lines ORDER BY order_id,product_id"
)

const uniqueViolation = "23505"

// Repository persists orders in PostgreSQL.
type Repository struct {
	db *sql.DB
}

// New creates a PostgreSQL repository.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts the order and its lines in one transaction.
func (r *Repository) Create(ctx context.Context, o order.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	if _, err := tx.ExecContext(ctx, insertOrder, o.ID, o.CreatedAt); err != nil {
		_ = tx.Rollback()
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return order.ErrExists
		}
		return errors.Wrap(err, "insert order")
	}
	for _, l := range o.Lines {
		if _, err := tx.ExecContext(ctx, insertLine, o.ID, l.ProductID, l.Quantity); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "insert line %s", l.ProductID)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

// Get retrieves an order by ID.
func (r *Repository) Get(ctx context.Context, id string) (order.Order, error) {
	var o order.Order
	err := r.db.QueryRowContext(ctx, selectOrder, id).Scan(&o.ID, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return order.Order{}, order.ErrNotFound
	}
	if err != nil {
		return order.Order{}, errors.Wrap(err, "select order")
	}

	rows, err := r.db.QueryContext(ctx, selectLines, id)
	if err != nil {
		return order.Order{}, errors.Wrap(err, "select lines")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID string
			l       order.Line
		)
		if err := rows.Scan(&orderID, &l.ProductID, &l.Quantity); err != nil {
			return order.Order{}, errors.Wrap(err, "scan line")
		}
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}

// List fetches all orders, oldest first.
func (r *Repository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.db.QueryContext(ctx, listOrders)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	defer rows.Close()

	var orders []order.Order
	index := make(map[string]int)
	for rows.Next() {
		var o order.Order
		if err := rows.Scan(&o.ID, &o.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lines, err := r.db.QueryContext(ctx, listLines)
	if err != nil {
		return nil, errors.Wrap(err, "list lines")
	}
	defer lines.Close()
	for lines.Next() {
		var (
			orderID string
			l       order.Line
		)
		if err := lines.Scan(&orderID, &l.ProductID, &l.Quantity); err != nil {
			return nil, errors.Wrap(err, "scan line")
		}
		if i, ok := index[orderID]; ok {
			orders[i].Lines = append(orders[i].Lines, l)
		}
	}
	return orders, lines.Err()
}
