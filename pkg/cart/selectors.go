package cart

import (
	"sort"

	"github.com/shopspring/decimal"

	"cartflow/pkg/catalog"
	"cartflow/pkg/selector"
)

// ItemCount sums the quantities in items. It is not memoized.
func ItemCount(items Items) int {
	n := 0
	for _, q := range items {
		n += q
	}
	return n
}

// Total sums quantity times unit price over items. Entries whose ID is not
// in products are skipped and contribute nothing.
func Total(items Items, products catalog.Products) decimal.Decimal {
	total := decimal.Zero
	for id, q := range items {
		it, ok := products[id]
		if !ok {
			continue
		}
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(q))))
	}
	return total
}

// MissingItems returns, sorted, the IDs in items that have no catalog entry.
func MissingItems(items Items, products catalog.Products) []string {
	var missing []string
	for id := range items {
		if _, ok := products[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}

// Selectors holds memoized derivations over cart and catalog state. A
// Selectors value caches the result for the last inputs it saw and is safe
// for concurrent use.
type Selectors struct {
	count *selector.Memo1[Items, int]
	price *selector.Memo2[Items, catalog.Products, string]
}

// NewSelectors returns selectors with empty caches. Each onCompute hook is
// called with the selector name on every recomputation.
func NewSelectors(onCompute ...func(name string)) *Selectors {
	notify := func(name string) {
		for _, fn := range onCompute {
			fn(name)
		}
	}
	return &Selectors{
		count: selector.New1(selector.MapIdentity[Items], func(items Items) int {
			notify("totalItemCount")
			return ItemCount(items)
		}),
		price: selector.New2(selector.MapIdentity[Items], selector.MapIdentity[catalog.Products],
			func(items Items, products catalog.Products) string {
				notify("totalPrice")
				return Total(items, products).StringFixed(2)
			}),
	}
}

// TotalItemCount returns the memoized sum of quantities.
func (s *Selectors) TotalItemCount(items Items) int {
	return s.count.Get(items)
}

// TotalPrice returns the memoized cart total formatted with two decimals.
func (s *Selectors) TotalPrice(items Items, products catalog.Products) string {
	return s.price.Get(items, products)
}
