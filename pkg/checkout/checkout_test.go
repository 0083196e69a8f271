package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"cartflow/pkg/cart"
	"cartflow/pkg/logger"
	"cartflow/pkg/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// gate is an endpoint that blocks until released.
type gate struct {
	release chan struct{}
	seen    chan cart.Items
	result  Result
	err     error
}

func newGate(res Result, err error) *gate {
	return &gate{release: make(chan struct{}), seen: make(chan cart.Items, 1), result: res, err: err}
}

func (g *gate) Submit(ctx context.Context, items cart.Items) (Result, error) {
	g.seen <- items
	select {
	case <-g.release:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	return g.result, g.err
}

func seeded(t *testing.T, ids ...string) *store.Store {
	t.Helper()
	st := store.New(logger.Nop())
	for _, id := range ids {
		require.NoError(t, st.Dispatch(context.Background(), cart.AddToCart{ID: id}))
	}
	return st
}

func TestCheckoutSuccess(t *testing.T) {
	st := seeded(t, "a", "a", "b")
	var actions []string
	st.Subscribe(func(_ store.RootState, a store.Action) { actions = append(actions, a.Type()) })

	ep := newGate(Result{Success: true, OrderID: "o1"}, nil)
	task, err := New(st, ep, logger.Nop()).Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cart.Loading, st.State().Cart.CheckoutState)
	assert.Equal(t, cart.Items{"a": 2, "b": 1}, <-ep.seen)

	close(ep.release)
	res, err := task.Wait()
	require.NoError(t, err)
	assert.Equal(t, "o1", res.OrderID)

	s := st.State().Cart
	assert.Equal(t, cart.Ready, s.CheckoutState)
	assert.Empty(t, s.Items)
	assert.Equal(t, []string{"cart/checkout/pending", "cart/checkout/fulfilled"}, actions)
}

func TestCheckoutDeclined(t *testing.T) {
	st := seeded(t, "a")
	ep := EndpointFunc(func(context.Context, cart.Items) (Result, error) { return Result{Success: false}, nil })

	res, err := New(st, ep, logger.Nop()).Checkout(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Success)

	s := st.State().Cart
	assert.Equal(t, cart.Error, s.CheckoutState)
	assert.Equal(t, cart.Items{"a": 1}, s.Items)
	assert.Empty(t, s.ErrorMessage)
}

func TestCheckoutRejected(t *testing.T) {
	st := seeded(t, "a")
	ep := EndpointFunc(func(context.Context, cart.Items) (Result, error) { return Result{}, errors.New("payment service down") })

	_, err := New(st, ep, logger.Nop()).Checkout(context.Background())
	require.Error(t, err)

	s := st.State().Cart
	assert.Equal(t, cart.Error, s.CheckoutState)
	assert.Equal(t, "payment service down", s.ErrorMessage)
	assert.Equal(t, cart.Items{"a": 1}, s.Items)
}

func TestStartWhileLoading(t *testing.T) {
	st := seeded(t, "a")
	ep := newGate(Result{Success: true}, nil)
	o := New(st, ep, logger.Nop())

	task, err := o.Start(context.Background())
	require.NoError(t, err)
	<-ep.seen

	var extra int
	st.Subscribe(func(store.RootState, store.Action) { extra++ })
	_, err = o.Start(context.Background())
	require.ErrorIs(t, err, ErrInFlight)
	assert.Zero(t, extra, "a refused checkout dispatches nothing")

	close(ep.release)
	_, err = task.Wait()
	require.NoError(t, err)
	require.NoError(t, o.Shutdown(context.Background()))
}

func TestEditsDuringCheckoutAreDiscardedOnSuccess(t *testing.T) {
	ctx := context.Background()
	st := seeded(t, "a")
	ep := newGate(Result{Success: true}, nil)

	task, err := New(st, ep, logger.Nop()).Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, cart.Items{"a": 1}, <-ep.seen)

	require.NoError(t, st.Dispatch(ctx, cart.AddToCart{ID: "b"}))
	assert.Equal(t, cart.Items{"a": 1, "b": 1}, st.State().Cart.Items)

	close(ep.release)
	_, err = task.Wait()
	require.NoError(t, err)
	assert.Empty(t, st.State().Cart.Items)
}

func TestCancelRejectsCheckout(t *testing.T) {
	st := seeded(t, "a")
	ep := newGate(Result{Success: true}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	task, err := New(st, ep, logger.Nop()).Start(ctx)
	require.NoError(t, err)
	<-ep.seen
	cancel()

	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("checkout did not resolve after cancel")
	}
	_, err = task.Wait()
	require.ErrorIs(t, err, context.Canceled)

	s := st.State().Cart
	assert.Equal(t, cart.Error, s.CheckoutState)
	assert.Equal(t, context.Canceled.Error(), s.ErrorMessage)
}

func TestErrorStateAllowsRetry(t *testing.T) {
	st := seeded(t, "a")
	calls := 0
	ep := EndpointFunc(func(context.Context, cart.Items) (Result, error) {
		calls++
		if calls == 1 {
			return Result{}, errors.New("flaky")
		}
		return Result{Success: true}, nil
	})
	o := New(st, ep, logger.Nop())

	_, err := o.Checkout(context.Background())
	require.Error(t, err)
	assert.Equal(t, "flaky", st.State().Cart.ErrorMessage)

	_, err = o.Checkout(context.Background())
	require.NoError(t, err)
	s := st.State().Cart
	assert.Equal(t, cart.Ready, s.CheckoutState)
	assert.Empty(t, s.ErrorMessage)
}

func TestShutdownTimesOut(t *testing.T) {
	st := seeded(t, "a")
	ep := newGate(Result{Success: true}, nil)
	o := New(st, ep, logger.Nop())

	task, err := o.Start(context.Background())
	require.NoError(t, err)
	<-ep.seen

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, o.Shutdown(ctx), context.DeadlineExceeded)

	close(ep.release)
	_, _ = task.Wait()
	require.NoError(t, o.Shutdown(context.Background()))
}
