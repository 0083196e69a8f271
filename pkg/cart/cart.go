// Package cart implements the shopping-cart state machine: the items picked
// for purchase and the lifecycle of the checkout request.
package cart

import (
	"math"
	"strconv"
	"strings"
)

// CheckoutState is the lifecycle status of the checkout operation.
type CheckoutState string

// Checkout states.
const (
	Ready   CheckoutState = "READY"
	Loading CheckoutState = "LOADING"
	Error   CheckoutState = "ERROR"
)

// Items maps catalog item IDs to quantities. Presence of a key means the
// item is in the cart.
type Items map[string]int

func (it Items) clone() Items {
	out := make(Items, len(it))
	for id, q := range it {
		out[id] = q
	}
	return out
}

// State is the cart slice of the application state. A State is a value:
// reducers return a new one and never write to the Items of the old one.
type State struct {
	Items         Items         `json:"items"`
	CheckoutState CheckoutState `json:"checkoutState"`
	ErrorMessage  string        `json:"errorMessage"`
}

// InitialState returns an empty, ready cart.
func InitialState() State {
	return State{Items: Items{}, CheckoutState: Ready}
}

// Action is a cart state transition. The set of implementations is closed.
type Action interface {
	Type() string
	cartAction()
}

// AddToCart increments the quantity of ID, inserting it with 1 if absent.
type AddToCart struct{ ID string }

// RemoveFromCart deletes ID from the cart whatever its quantity.
type RemoveFromCart struct{ ID string }

// UpdateQuantity sets the quantity of ID.
type UpdateQuantity struct {
	ID       string
	Quantity int
}

// CheckoutRequested marks a checkout as in flight.
type CheckoutRequested struct{}

// CheckoutSucceeded carries the response of the checkout endpoint.
type CheckoutSucceeded struct{ Success bool }

// CheckoutFailed records a checkout call that returned an error.
type CheckoutFailed struct{ Message string }

func (AddToCart) Type() string         { return "cart/addToCart" }
func (RemoveFromCart) Type() string    { return "cart/removeFromCart" }
func (UpdateQuantity) Type() string    { return "cart/updateQuantity" }
func (CheckoutRequested) Type() string { return "cart/checkout/pending" }
func (CheckoutSucceeded) Type() string { return "cart/checkout/fulfilled" }
func (CheckoutFailed) Type() string    { return "cart/checkout/rejected" }

func (AddToCart) cartAction()         {}
func (RemoveFromCart) cartAction()    {}
func (UpdateQuantity) cartAction()    {}
func (CheckoutRequested) cartAction() {}
func (CheckoutSucceeded) cartAction() {}
func (CheckoutFailed) cartAction()    {}

// Reducer applies actions to a State.
//
// By default a quantity of zero or less set through UpdateQuantity stays in
// the cart as a degenerate line. With PruneNonPositive set, such an update
// removes the key the way RemoveFromCart does.
type Reducer struct {
	PruneNonPositive bool
}

// Reduce returns the state that follows s under a. Actions that change the
// items produce a fresh Items map; all others keep the map of s.
func (r Reducer) Reduce(s State, a Action) State {
	switch act := a.(type) {
	case AddToCart:
		items := s.Items.clone()
		if _, ok := items[act.ID]; ok {
			items[act.ID]++
		} else {
			items[act.ID] = 1
		}
		s.Items = items

	case RemoveFromCart:
		if _, ok := s.Items[act.ID]; !ok {
			return s
		}
		items := s.Items.clone()
		delete(items, act.ID)
		s.Items = items

	case UpdateQuantity:
		items := s.Items.clone()
		if r.PruneNonPositive && act.Quantity <= 0 {
			delete(items, act.ID)
		} else {
			items[act.ID] = act.Quantity
		}
		s.Items = items

	case CheckoutRequested:
		s.CheckoutState = Loading

	case CheckoutSucceeded:
		if act.Success {
			s.CheckoutState = Ready
			s.Items = Items{}
			s.ErrorMessage = ""
		} else {
			s.CheckoutState = Error
		}

	case CheckoutFailed:
		s.CheckoutState = Error
		s.ErrorMessage = act.Message
	}
	return s
}

// Reduce applies a with the default Reducer.
func Reduce(s State, a Action) State {
	return Reducer{}.Reduce(s, a)
}

// ParseQuantity coerces user-entered quantity text to an integer. Surrounding
// whitespace is ignored, decimal and exponent forms are truncated toward zero,
// values beyond the int32 range are clamped to it, and anything that is not a
// finite number yields 0.
func ParseQuantity(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	switch {
	case f > math.MaxInt32:
		return math.MaxInt32
	case f < math.MinInt32:
		return math.MinInt32
	}
	return int(f)
}
