// Package checkout submits the cart to a checkout endpoint and drives the
// cart through its checkout lifecycle.
package checkout

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"cartflow/pkg/cart"
	"cartflow/pkg/logger"
	"cartflow/pkg/otel"
	"cartflow/pkg/store"
)

var (
	// ErrInFlight is returned by Start while a checkout is already loading.
	ErrInFlight = errors.New("checkout already in flight")
	// ErrEmptyCart rejects a checkout of a cart with no items.
	ErrEmptyCart = errors.New("cart is empty")
)

// Result is the response of a checkout endpoint.
type Result struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId,omitempty"`
}

// Endpoint performs the checkout of a set of items. A returned error rejects
// the checkout; Result.Success reports whether an accepted call succeeded.
type Endpoint interface {
	Submit(ctx context.Context, items cart.Items) (Result, error)
}

// EndpointFunc adapts a function to Endpoint.
type EndpointFunc func(ctx context.Context, items cart.Items) (Result, error)

// Submit calls f.
func (f EndpointFunc) Submit(ctx context.Context, items cart.Items) (Result, error) {
	return f(ctx, items)
}

// Dispatcher is the part of store.Store the orchestrator drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, a store.Action) error
	DispatchFunc(ctx context.Context, fn func(store.RootState) (store.Action, error)) error
}

// Orchestrator runs checkouts against a store.
type Orchestrator struct {
	store    Dispatcher
	endpoint Endpoint
	log      *logger.Logger
	wg       sync.WaitGroup
}

// New returns an Orchestrator submitting carts of st to ep.
func New(st Dispatcher, ep Endpoint, log *logger.Logger) *Orchestrator {
	return &Orchestrator{store: st, endpoint: ep, log: log}
}

// Task is a checkout in progress.
type Task struct {
	done   chan struct{}
	result Result
	err    error
}

// Done is closed once the terminal action has been dispatched.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the checkout resolves and returns the endpoint outcome.
func (t *Task) Wait() (Result, error) {
	<-t.done
	return t.result, t.err
}

// Start moves the cart to Loading and submits its items in the background.
// The pending transition has been applied when Start returns. Exactly one
// of CheckoutSucceeded or CheckoutFailed follows. Start returns ErrInFlight,
// dispatching nothing, when a checkout is already loading.
//
// ctx is handed to the endpoint; cancelling it rejects the checkout.
func (o *Orchestrator) Start(ctx context.Context) (*Task, error) {
	var items cart.Items
	err := o.store.DispatchFunc(ctx, func(st store.RootState) (store.Action, error) {
		if st.Cart.CheckoutState == cart.Loading {
			return nil, ErrInFlight
		}
		items = st.Cart.Items
		return cart.CheckoutRequested{}, nil
	})
	if err != nil {
		return nil, err
	}

	t := &Task{done: make(chan struct{})}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(t.done)
		t.result, t.err = o.run(ctx, items)
	}()
	return t, nil
}

func (o *Orchestrator) run(ctx context.Context, items cart.Items) (Result, error) {
	ctx, span := otel.AddSpan(ctx, "checkout.submit", attribute.Int("checkout.lines", len(items)))
	defer span.End()

	res, err := o.endpoint.Submit(ctx, items)

	// The terminal transition must land even when ctx was cancelled.
	dctx := context.WithoutCancel(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		o.log.Warn(ctx, "checkout rejected", "error", err)
		if derr := o.store.Dispatch(dctx, cart.CheckoutFailed{Message: err.Error()}); derr != nil {
			o.log.Error(ctx, "dispatch checkout failure", "error", derr)
		}
		return Result{}, err
	}

	span.SetAttributes(attribute.Bool("checkout.success", res.Success))
	o.log.Info(ctx, "checkout resolved", "success", res.Success, "order_id", res.OrderID)
	if derr := o.store.Dispatch(dctx, cart.CheckoutSucceeded{Success: res.Success}); derr != nil {
		o.log.Error(ctx, "dispatch checkout result", "error", derr)
	}
	return res, nil
}

// Checkout runs a checkout and waits for it to resolve.
func (o *Orchestrator) Checkout(ctx context.Context) (Result, error) {
	t, err := o.Start(ctx)
	if err != nil {
		return Result{}, err
	}
	return t.Wait()
}

// Shutdown waits for outstanding checkouts or for ctx to end.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for checkouts")
	}
}
