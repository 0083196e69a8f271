package catalog

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduceItemsReceived(t *testing.T) {
	s0 := InitialState()
	s1 := Reduce(s0, ItemsReceived{Items: []Item{
		{ID: "a", Name: "Apple", Price: decimal.RequireFromString("3.00")},
		{ID: "b", Name: "Bread", Price: decimal.RequireFromString("5.50")},
	}})

	assert.Empty(t, s0.Products, "previous state must not change")
	require.Len(t, s1.Products, 2)
	assert.Equal(t, "Apple", s1.Products["a"].Name)

	s2 := Reduce(s1, ItemsReceived{Items: []Item{{ID: "a", Name: "Apricot"}}})
	assert.Len(t, s2.Products, 2)
	assert.Equal(t, "Apricot", s2.Products["a"].Name)
	assert.Equal(t, "Apple", s1.Products["a"].Name)
}

func TestProductsGet(t *testing.T) {
	p := Products{"a": {ID: "a"}}

	it, err := p.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", it.ID)

	_, err = p.Get("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}
