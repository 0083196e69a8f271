package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-faster/errors"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.opentelemetry.io/otel/trace"

	"cartflow/pkg/cart"
	"cartflow/pkg/catalog"
	"cartflow/pkg/checkout"
	"cartflow/pkg/logger"
	"cartflow/pkg/order"
	"cartflow/pkg/otel"
	"cartflow/pkg/store"
)

// server exposes the store over HTTP.
type server struct {
	store    *store.Store
	checkout *checkout.Orchestrator
	orders   order.Repository
	log      *logger.Logger
	tracer   trace.Tracer

	// base is the context background checkouts run under. It outlives the
	// request that started them.
	base context.Context
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.traceMiddleware)

	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/products", s.listProductsHandler).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}", s.getProductHandler).Methods(http.MethodGet)

	c := r.PathPrefix("/cart").Subrouter()
	c.HandleFunc("", s.getCartHandler).Methods(http.MethodGet)
	c.HandleFunc("/items/{id}", s.addItemHandler).Methods(http.MethodPost)
	c.HandleFunc("/items/{id}", s.updateItemHandler).Methods(http.MethodPut)
	c.HandleFunc("/items/{id}", s.removeItemHandler).Methods(http.MethodDelete)
	c.HandleFunc("/checkout", s.checkoutHandler).Methods(http.MethodPost)

	o := r.PathPrefix("/orders").Subrouter()
	o.HandleFunc("", s.listOrdersHandler).Methods(http.MethodGet)
	o.HandleFunc("/{id}", s.getOrderHandler).Methods(http.MethodGet)

	r.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)
	return r
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// cartLine is one cart entry joined with its catalog item.
type cartLine struct {
	ID       string          `json:"id"`
	Name     string          `json:"name,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Subtotal string          `json:"subtotal"`
	Known    bool            `json:"known"`
}

// cartView is the cart as the storefront renders it.
type cartView struct {
	Items         cart.Items         `json:"items"`
	CheckoutState cart.CheckoutState `json:"checkoutState"`
	ErrorMessage  string             `json:"errorMessage"`
	TotalItems    int                `json:"totalItems"`
	TotalPrice    string             `json:"totalPrice"`
	Lines         []cartLine         `json:"lines"`
	MissingItems  []string           `json:"missingItems,omitempty"`
}

// quantityRequest carries the quantity as typed by the user. Both JSON
// strings and numbers are accepted.
type quantityRequest struct {
	Quantity json.RawMessage `json:"quantity"`
}

// text returns the quantity as entered: the decoded string, or the number
// literal unchanged.
func (q quantityRequest) text() string {
	var s string
	if err := json.Unmarshal(q.Quantity, &s); err == nil {
		return s
	}
	return string(q.Quantity)
}

func (s *server) view() cartView {
	st := s.store.State()
	sel := s.store.Selectors()
	items := st.Cart.Items

	lines := make([]cartLine, 0, len(items))
	for id, q := range items {
		l := cartLine{ID: id, Quantity: q, Subtotal: "0.00"}
		if it, ok := st.Catalog.Products[id]; ok {
			l.Name = it.Name
			l.Price = it.Price
			l.Subtotal = it.Price.Mul(decimal.NewFromInt(int64(q))).StringFixed(2)
			l.Known = true
		}
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })

	return cartView{
		Items:         items,
		CheckoutState: st.Cart.CheckoutState,
		ErrorMessage:  st.Cart.ErrorMessage,
		TotalItems:    sel.TotalItemCount(items),
		TotalPrice:    sel.TotalPrice(items, st.Catalog.Products),
		Lines:         lines,
		MissingItems:  cart.MissingItems(items, st.Catalog.Products),
	}
}

// healthHandler reports liveness.
// @Summary Health check
// @Produce json
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (s *server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listProductsHandler lists the catalog.
// @Summary List products
// @Produce json
// @Success 200 {array} catalog.Item
// @Router /products [get]
func (s *server) listProductsHandler(w http.ResponseWriter, r *http.Request) {
	_, span := otel.AddSpan(r.Context(), "listProductsHandler")
	defer span.End()

	items := s.store.State().Catalog.Products.List()
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	writeJSON(w, http.StatusOK, items)
}

// getProductHandler returns one catalog item.
// @Summary Get product
// @Produce json
// @Param id path string true "Product ID"
// @Success 200 {object} catalog.Item
// @Failure 404 {object} errorResponse
// @Router /products/{id} [get]
func (s *server) getProductHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "getProductHandler")
	defer span.End()

	it, err := s.store.State().Catalog.Products.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// getCartHandler returns the cart with its derived totals.
// @Summary Get cart
// @Produce json
// @Success 200 {object} cartView
// @Router /cart [get]
func (s *server) getCartHandler(w http.ResponseWriter, r *http.Request) {
	_, span := otel.AddSpan(r.Context(), "getCartHandler")
	defer span.End()

	writeJSON(w, http.StatusOK, s.view())
}

// addItemHandler adds one unit of a catalog item to the cart.
// @Summary Add to cart
// @Produce json
// @Param id path string true "Product ID"
// @Success 200 {object} cartView
// @Failure 404 {object} errorResponse
// @Router /cart/items/{id} [post]
func (s *server) addItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "addItemHandler")
	defer span.End()

	id := mux.Vars(r)["id"]
	if _, err := s.store.State().Catalog.Products.Get(id); err != nil {
		s.writeError(ctx, w, err)
		return
	}
	s.dispatch(ctx, w, cart.AddToCart{ID: id})
}

// updateItemHandler sets the quantity of a cart line. Text that is not a
// number sets the quantity to 0.
// @Summary Update quantity
// @Accept json
// @Produce json
// @Param id path string true "Product ID"
// @Param body body quantityRequest true "Quantity"
// @Success 200 {object} cartView
// @Failure 400 {object} errorResponse
// @Router /cart/items/{id} [put]
func (s *server) updateItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "updateItemHandler")
	defer span.End()

	var req quantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "INVALID_BODY", Message: err.Error()})
		return
	}
	q := cart.ParseQuantity(req.text())
	s.dispatch(ctx, w, cart.UpdateQuantity{ID: mux.Vars(r)["id"], Quantity: q})
}

// removeItemHandler removes a line from the cart.
// @Summary Remove from cart
// @Produce json
// @Param id path string true "Product ID"
// @Success 200 {object} cartView
// @Router /cart/items/{id} [delete]
func (s *server) removeItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "removeItemHandler")
	defer span.End()

	s.dispatch(ctx, w, cart.RemoveFromCart{ID: mux.Vars(r)["id"]})
}

// checkoutHandler starts a checkout. With wait=true the response is sent
// once the checkout resolves.
// @Summary Checkout
// @Produce json
// @Param wait query bool false "Block until the checkout resolves"
// @Success 200 {object} cartView
// @Success 202 {object} cartView
// @Failure 409 {object} errorResponse
// @Router /cart/checkout [post]
func (s *server) checkoutHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "checkoutHandler")
	defer span.End()

	// The checkout keeps the request's span but not its cancellation.
	task, err := s.checkout.Start(trace.ContextWithSpan(s.base, span))
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	if r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, s.view())
		return
	}
	select {
	case <-task.Done():
		writeJSON(w, http.StatusOK, s.view())
	case <-ctx.Done():
	}
}

// listOrdersHandler lists recorded orders.
// @Summary List orders
// @Produce json
// @Success 200 {array} order.Order
// @Router /orders [get]
func (s *server) listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "listOrdersHandler")
	defer span.End()

	orders, err := s.orders.List(ctx)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// getOrderHandler retrieves an order by ID.
// @Summary Get order
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} order.Order
// @Failure 404 {object} errorResponse
// @Router /orders/{id} [get]
func (s *server) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "getOrderHandler")
	defer span.End()

	o, err := s.orders.Get(ctx, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *server) dispatch(ctx context.Context, w http.ResponseWriter, a store.Action) {
	if err := s.store.Dispatch(ctx, a); err != nil {
		s.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view())
}

func (s *server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.InjectTracing(r.Context(), s.tracer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "PRODUCT_NOT_FOUND", Message: err.Error()})
	case errors.Is(err, order.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "ORDER_NOT_FOUND", Message: err.Error()})
	case errors.Is(err, checkout.ErrInFlight):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "CHECKOUT_IN_FLIGHT", Message: err.Error()})
	case errors.Is(err, store.ErrUnknownAction):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "UNKNOWN_ACTION", Message: err.Error()})
	default:
		s.log.Error(ctx, "request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "INTERNAL_ERROR", Message: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
