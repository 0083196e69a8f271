package main

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/go-faster/errors"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"cartflow/pkg/catalog"
	"cartflow/pkg/catalog/cache"
	catfile "cartflow/pkg/catalog/file"
	catmem "cartflow/pkg/catalog/memory"
	catpg "cartflow/pkg/catalog/postgres"
	"cartflow/pkg/checkout"
	checkoutamqp "cartflow/pkg/checkout/amqp"
	"cartflow/pkg/config"
	"cartflow/pkg/logger"
	"cartflow/pkg/order"
	ordermem "cartflow/pkg/order/memory"
	orderpg "cartflow/pkg/order/postgres"
)

// deps are the adapters selected by the configuration.
type deps struct {
	catalog  catalog.Source
	orders   order.Repository
	endpoint checkout.Endpoint
	closers  []func() error
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, schema := range []string{catpg.Schema, orderpg.Schema} {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			return errors.Wrap(err, "apply schema")
		}
	}
	return nil
}

func build(ctx context.Context, cfg config.Config, log *logger.Logger) (*deps, error) {
	d := &deps{}
	ok := false
	defer func() {
		if !ok {
			d.close()
		}
	}()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		if db, err = openDB(ctx, cfg.DatabaseURL); err != nil {
			return nil, err
		}
		d.closers = append(d.closers, db.Close)
		if err := migrate(ctx, db); err != nil {
			return nil, err
		}
	}

	switch cfg.CatalogSource {
	case config.SourceFile:
		d.catalog = catfile.New(cfg.CatalogFile)
	case config.SourcePostgres:
		d.catalog = catpg.New(db)
	default:
		d.catalog = catmem.Seeded()
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		d.closers = append(d.closers, rdb.Close)
		d.catalog = cache.New(rdb, d.catalog, cfg.CatalogCacheTTL, log)
	}

	if db != nil {
		d.orders = orderpg.New(db)
	} else {
		d.orders = ordermem.New()
	}

	switch cfg.CheckoutEndpoint {
	case config.EndpointRemote:
		d.endpoint = checkout.NewRemote(cfg.CheckoutURL, http.DefaultClient)
	default:
		var opts []checkout.OrderOption
		if cfg.RabbitURI != "" {
			conn, err := checkoutamqp.Dial(cfg.RabbitURI, cfg.OrdersQueue)
			if err != nil {
				return nil, err
			}
			d.closers = append(d.closers, conn.Close)
			opts = append(opts, checkout.WithPublisher(checkoutamqp.New(conn.Channel(), cfg.OrdersQueue)))
		}
		d.endpoint = checkout.NewOrderEndpoint(d.orders, log, opts...)
	}
	d.endpoint = checkout.WithLatency(d.endpoint, cfg.CheckoutLatency)

	ok = true
	return d, nil
}
