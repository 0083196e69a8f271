// Package postgres reads the catalog from PostgreSQL.
package postgres

import (
	"context"
	"database/sql"

	"github.com/go-faster/errors"

	"cartflow/pkg/catalog"
)

// Schema creates the products table used by Source.
const Schema = `CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	price NUMERIC(12,2) NOT NULL CHECK (price >= 0),
	description TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	image_alt TEXT NOT NULL DEFAULT '',
	image_credit TEXT NOT NULL DEFAULT ''
)`

const listQuery = "SELECT id,name,price,description,image_url,image_alt,image_credit FROM products ORDER BY id"

// Source fetches products from a Postgres table.
type Source struct {
	db *sql.DB
}

// New creates a PostgreSQL catalog source.
func New(db *sql.DB) *Source {
	return &Source{db: db}
}

// Fetch returns every product row.
func (s *Source) Fetch(ctx context.Context) ([]catalog.Item, error) {
	rows, err := s.db.QueryContext(ctx, listQuery)
	if err != nil {
		return nil, errors.Wrap(err, "query products")
	}
	defer rows.Close()

	var items []catalog.Item
	for rows.Next() {
		var it catalog.Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Price, &it.Description, &it.ImageURL, &it.ImageAlt, &it.ImageCredit); err != nil {
			return nil, errors.Wrap(err, "scan product")
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate products")
	}
	return items, nil
}

// Upsert inserts or replaces items. It is used to seed the table.
func (s *Source) Upsert(ctx context.Context, items []catalog.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	for _, it := range items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO products (id,name,price,description,image_url,image_alt,image_credit)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)
			 ON CONFLICT (id) DO UPDATE SET name=$2, price=$3, description=$4, image_url=$5, image_alt=$6, image_credit=$7`,
			it.ID, it.Name, it.Price, it.Description, it.ImageURL, it.ImageAlt, it.ImageCredit)
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return errors.Wrapf(err, "upsert %s (rollback: %v)", it.ID, rbErr)
			}
			return errors.Wrapf(err, "upsert %s", it.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}
