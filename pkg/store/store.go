// Package store holds the application state tree and serialises every
// transition through the slice reducers.
package store

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"

	"cartflow/pkg/cart"
	"cartflow/pkg/catalog"
	"cartflow/pkg/logger"
	"cartflow/pkg/otel"
)

// ErrUnknownAction is returned when an action belongs to no slice.
var ErrUnknownAction = errors.New("unknown action")

// Action is any transition the store accepts: a cart.Action or a
// catalog.Action.
type Action interface {
	Type() string
}

// RootState is the full application state.
type RootState struct {
	Catalog catalog.State `json:"catalog"`
	Cart    cart.State    `json:"cart"`
}

// Listener observes committed transitions.
type Listener func(s RootState, a Action)

// Option configures a Store.
type Option func(*Store)

// WithReducer replaces the default cart reducer.
func WithReducer(r cart.Reducer) Option {
	return func(s *Store) { s.reducer = r }
}

// WithSelectors sets the memoized selectors used by TotalItemCount and
// TotalPrice.
func WithSelectors(sel *cart.Selectors) Option {
	return func(s *Store) { s.sel = sel }
}

// WithState seeds the store with an initial state.
func WithState(st RootState) Option {
	return func(s *Store) { s.state = st }
}

// Store applies actions to a RootState one at a time.
type Store struct {
	log     *logger.Logger
	reducer cart.Reducer
	sel     *cart.Selectors

	mu        sync.Mutex
	state     RootState
	listeners map[int]Listener
	nextID    int
	committed uint64

	// notified is the last commit whose listeners have run.
	notifyMu sync.Mutex
	turn     *sync.Cond
	notified uint64
}

// New returns a store in the initial state.
func New(log *logger.Logger, opts ...Option) *Store {
	s := &Store{
		log:       log,
		sel:       cart.NewSelectors(),
		state:     RootState{Catalog: catalog.InitialState(), Cart: cart.InitialState()},
		listeners: make(map[int]Listener),
	}
	s.turn = sync.NewCond(&s.notifyMu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state. The returned maps must not be written.
func (s *Store) State() RootState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies a and notifies subscribers.
func (s *Store) Dispatch(ctx context.Context, a Action) error {
	return s.DispatchFunc(ctx, func(RootState) (Action, error) { return a, nil })
}

// DispatchFunc derives an action from the current state and applies it
// without letting another dispatch interleave. If fn returns an error or a
// nil action nothing is applied.
func (s *Store) DispatchFunc(ctx context.Context, fn func(RootState) (Action, error)) error {
	s.mu.Lock()
	a, err := fn(s.state)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if a == nil {
		s.mu.Unlock()
		return nil
	}

	_, span := otel.AddSpan(ctx, "store.dispatch", attribute.String("action", a.Type()))
	defer span.End()

	next, err := s.reduce(s.state, a)
	if err != nil {
		s.mu.Unlock()
		span.RecordError(err)
		return err
	}
	s.state = next
	s.committed++
	seq := s.committed
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	s.log.Debug(ctx, "action dispatched", "action", a.Type(), "checkout_state", string(next.Cart.CheckoutState))
	s.notify(seq, listeners, next, a)
	return nil
}

// notify runs listeners for commit seq once every earlier commit has been
// delivered.
func (s *Store) notify(seq uint64, listeners []Listener, st RootState, a Action) {
	s.notifyMu.Lock()
	for s.notified != seq-1 {
		s.turn.Wait()
	}
	s.notifyMu.Unlock()

	defer func() {
		s.notifyMu.Lock()
		s.notified = seq
		s.turn.Broadcast()
		s.notifyMu.Unlock()
	}()
	for _, l := range listeners {
		l(st, a)
	}
}

func (s *Store) reduce(st RootState, a Action) (RootState, error) {
	switch act := a.(type) {
	case cart.Action:
		st.Cart = s.reducer.Reduce(st.Cart, act)
	case catalog.Action:
		st.Catalog = catalog.Reduce(st.Catalog, act)
	default:
		return st, errors.Wrapf(ErrUnknownAction, "%T", a)
	}
	return st, nil
}

// Subscribe registers l to be called after every committed transition, in
// commit order, with the state that transition produced. Listeners may call
// State but must not dispatch. The returned function removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// LoadCatalog fetches the catalog from src and bulk-loads it.
func (s *Store) LoadCatalog(ctx context.Context, src catalog.Source) error {
	ctx, span := otel.AddSpan(ctx, "store.load_catalog")
	defer span.End()

	items, err := src.Fetch(ctx)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "fetch catalog")
	}
	if err := s.Dispatch(ctx, catalog.ItemsReceived{Items: items}); err != nil {
		return err
	}
	s.log.Info(ctx, "catalog loaded", "items", len(items))
	return nil
}

// Selectors returns the memoized selectors the store derives totals with.
func (s *Store) Selectors() *cart.Selectors { return s.sel }

// TotalItemCount returns the memoized item count of the current cart.
func (s *Store) TotalItemCount() int {
	return s.sel.TotalItemCount(s.State().Cart.Items)
}

// TotalPrice returns the memoized total of the current cart.
func (s *Store) TotalPrice() string {
	st := s.State()
	return s.sel.TotalPrice(st.Cart.Items, st.Catalog.Products)
}
