// Package file loads the catalog from a YAML (or JSON) document.
package file

import (
	"context"
	"io"
	"os"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"cartflow/pkg/catalog"
)

// record is the on-disk shape of an item. Prices are kept as text so they
// are parsed exactly.
type record struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Price       string `yaml:"price"`
	Description string `yaml:"description"`
	ImageURL    string `yaml:"imageURL"`
	ImageAlt    string `yaml:"imageAlt"`
	ImageCredit string `yaml:"imageCredit"`
}

type document struct {
	Products []record `yaml:"products"`
}

// Source reads the catalog file on every Fetch.
type Source struct {
	path string
}

// New returns a source reading path.
func New(path string) *Source {
	return &Source{path: path}
}

// Fetch opens and decodes the catalog file.
func (s *Source) Fetch(ctx context.Context) ([]catalog.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog file")
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a catalog document of the form
//
//	products:
//	  - id: "207"
//	    name: Floral Bouquet
//	    price: "29.99"
func Decode(r io.Reader) ([]catalog.Item, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "decode catalog")
	}

	items := make([]catalog.Item, 0, len(doc.Products))
	for i, rec := range doc.Products {
		if rec.ID == "" {
			return nil, errors.Errorf("product %d: missing id", i)
		}
		price, err := decimal.NewFromString(rec.Price)
		if err != nil {
			return nil, errors.Wrapf(err, "product %s: price", rec.ID)
		}
		if price.IsNegative() {
			return nil, errors.Errorf("product %s: negative price %s", rec.ID, rec.Price)
		}
		items = append(items, catalog.Item{
			ID:          rec.ID,
			Name:        rec.Name,
			Price:       price,
			Description: rec.Description,
			ImageURL:    rec.ImageURL,
			ImageAlt:    rec.ImageAlt,
			ImageCredit: rec.ImageCredit,
		})
	}
	return items, nil
}
