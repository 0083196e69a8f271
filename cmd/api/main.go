package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	_ "cartflow/docs"
	"cartflow/pkg/cart"
	"cartflow/pkg/catalog/cache"
	catfile "cartflow/pkg/catalog/file"
	catpg "cartflow/pkg/catalog/postgres"
	"cartflow/pkg/checkout"
	"cartflow/pkg/config"
	"cartflow/pkg/logger"
	"cartflow/pkg/otel"
	"cartflow/pkg/shutdown"
	"cartflow/pkg/store"
)

const serviceName = "cartflow"

// @title CartFlow API
// @version 1.0
// @description Shopping cart, catalog and checkout API
// @host localhost:8080
// @BasePath /
func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cfg := config.Load()

	root := &cobra.Command{
		Use:          "cartflow",
		Short:        "Shopping cart service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	root.PersistentFlags().StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "postgres DSN")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
	for _, c := range []*cobra.Command{root, serveCmd} {
		c.Flags().StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "listen address")
		c.Flags().StringVar(&cfg.CatalogSource, "catalog", cfg.CatalogSource, "catalog source: memory, file or postgres")
		c.Flags().StringVar(&cfg.CatalogFile, "catalog-file", cfg.CatalogFile, "catalog YAML file")
		c.Flags().StringVar(&cfg.CheckoutEndpoint, "checkout", cfg.CheckoutEndpoint, "checkout endpoint: local or remote")
		c.Flags().DurationVar(&cfg.CheckoutLatency, "checkout-latency", cfg.CheckoutLatency, "simulated checkout delay")
		c.Flags().BoolVar(&cfg.PruneNonPositive, "prune", cfg.PruneNonPositive, "drop lines updated to zero or fewer units")
	}

	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the postgres catalog",
	}
	catalogCmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Upsert the products of a YAML file into postgres",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return importCatalog(cmd.Context(), cfg, args[0])
		},
	})

	root.AddCommand(serveCmd, catalogCmd)
	return root
}

func newLogger(cfg config.Config) *logger.Logger {
	return logger.New(os.Stdout, logger.ParseLevel(cfg.LogLevel), serviceName, otel.GetTraceID)
}

func serve(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := shutdown.WithSignals(parent)
	defer cancel()

	log := newLogger(cfg)
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid config", "error", err)
		return err
	}

	tp, shutdownTracing, err := otel.InitTracing(log, otel.Config{
		ServiceName: serviceName,
		Host:        cfg.OtelHost,
		Probability: cfg.OtelProbability,
	})
	if err != nil {
		log.Error(ctx, "init tracing", "error", err)
		return err
	}
	defer shutdownTracing(context.Background())

	d, err := build(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "build dependencies", "error", err)
		return err
	}
	defer d.close()

	st := store.New(log, store.WithReducer(cart.Reducer{PruneNonPositive: cfg.PruneNonPositive}))
	orch := checkout.New(st, d.endpoint, log)
	srv := &server{
		store:    st,
		checkout: orch,
		orders:   d.orders,
		log:      log,
		tracer:   tp.Tracer(serviceName),
		base:     context.WithoutCancel(ctx),
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return st.LoadCatalog(gctx, d.catalog)
	})
	g.Go(func() error {
		log.Info(gctx, "listening", "addr", cfg.HTTPAddr, "env", cfg.AppEnv)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer scancel()
		if err := httpSrv.Shutdown(sctx); err != nil {
			return errors.Wrap(err, "shutdown server")
		}
		return orch.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error(ctx, "server closed", "error", err)
		return err
	}
	log.Info(ctx, "server closed")
	return nil
}

func importCatalog(ctx context.Context, cfg config.Config, path string) error {
	log := newLogger(cfg)
	defer log.Sync()

	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	items, err := catfile.New(path).Fetch(ctx)
	if err != nil {
		return err
	}
	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := migrate(ctx, db); err != nil {
		return err
	}
	if err := catpg.New(db).Upsert(ctx, items); err != nil {
		return err
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := cache.New(rdb, nil, cfg.CatalogCacheTTL, log).Invalidate(ctx); err != nil {
			return err
		}
	}
	log.Info(ctx, "catalog imported", "file", path, "items", len(items))
	return nil
}
