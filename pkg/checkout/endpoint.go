package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"cartflow/pkg/cart"
	"cartflow/pkg/logger"
	"cartflow/pkg/order"
)

// Publisher announces recorded orders to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, o order.Order) error
}

// OrderEndpoint checks a cart out by recording it as an order.
type OrderEndpoint struct {
	repo order.Repository
	pub  Publisher
	log  *logger.Logger
	now  func() time.Time
}

// OrderOption configures an OrderEndpoint.
type OrderOption func(*OrderEndpoint)

// WithPublisher publishes every recorded order through p.
func WithPublisher(p Publisher) OrderOption {
	return func(e *OrderEndpoint) { e.pub = p }
}

// WithClock overrides the order timestamp source.
func WithClock(now func() time.Time) OrderOption {
	return func(e *OrderEndpoint) { e.now = now }
}

// NewOrderEndpoint returns an endpoint recording orders in repo.
func NewOrderEndpoint(repo order.Repository, log *logger.Logger, opts ...OrderOption) *OrderEndpoint {
	e := &OrderEndpoint{repo: repo, log: log, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit rejects an empty cart with ErrEmptyCart and declines, with
// Success false, a cart holding a line of zero or fewer units. Otherwise
// the order is stored and published. A publish failure is logged and does
// not undo the order.
func (e *OrderEndpoint) Submit(ctx context.Context, items cart.Items) (Result, error) {
	if len(items) == 0 {
		return Result{}, ErrEmptyCart
	}

	lines := make([]order.Line, 0, len(items))
	for id, q := range items {
		if q <= 0 {
			e.log.Info(ctx, "checkout declined", "product_id", id, "quantity", q)
			return Result{Success: false}, nil
		}
		lines = append(lines, order.Line{ProductID: id, Quantity: q})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	o := order.Order{ID: uuid.NewString(), Lines: lines, CreatedAt: e.now().UTC()}
	if err := e.repo.Create(ctx, o); err != nil {
		return Result{}, errors.Wrap(err, "record order")
	}
	if e.pub != nil {
		if err := e.pub.Publish(ctx, o); err != nil {
			e.log.Error(ctx, "publish order", "order_id", o.ID, "error", err)
		}
	}
	e.log.Info(ctx, "order recorded", "order_id", o.ID, "items", o.ItemCount())
	return Result{Success: true, OrderID: o.ID}, nil
}

// Remote submits the cart to an HTTP checkout service. The items are posted
// as a JSON object of product ID to quantity and the service answers with
// {"success": bool} or, on failure, {"error": "..."}.
type Remote struct {
	url    string
	client *http.Client
}

// NewRemote returns an endpoint posting to url. A nil client means
// http.DefaultClient.
func NewRemote(url string, client *http.Client) *Remote {
	if client == nil {
		client = http.DefaultClient
	}
	return &Remote{url: url, client: client}
}

type remoteResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId"`
	Error   string `json:"error"`
}

// Submit posts items and decodes the service response.
func (r *Remote) Submit(ctx context.Context, items cart.Items) (Result, error) {
	body, err := json.Marshal(items)
	if err != nil {
		return Result{}, errors.Wrap(err, "encode items")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, errors.Wrap(err, "contact checkout service")
	}
	defer resp.Body.Close()

	var out remoteResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)
	if out.Error != "" {
		return Result{}, errors.New(out.Error)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return Result{}, errors.Errorf("unexpected response from checkout service (status %d)", resp.StatusCode)
	}
	if decodeErr != nil {
		return Result{}, errors.Wrap(decodeErr, "decode response")
	}
	return Result{Success: out.Success, OrderID: out.OrderID}, nil
}

// WithLatency delays every call to ep by d. The delay honours ctx.
func WithLatency(ep Endpoint, d time.Duration) Endpoint {
	if d <= 0 {
		return ep
	}
	return EndpointFunc(func(ctx context.Context, items cart.Items) (Result, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
		return ep.Submit(ctx, items)
	})
}
