// Package config reads service settings from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-faster/errors"
)

// Catalog sources.
const (
	SourceMemory   = "memory"
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// Checkout endpoints.
const (
	EndpointLocal  = "local"
	EndpointRemote = "remote"
)

type Config struct {
	AppEnv   string
	LogLevel string
	HTTPAddr string

	DatabaseURL string
	RedisAddr   string
	RabbitURI   string
	OrdersQueue string

	CatalogSource   string
	CatalogFile     string
	CatalogCacheTTL time.Duration

	CheckoutEndpoint string
	CheckoutURL      string
	CheckoutLatency  time.Duration
	PruneNonPositive bool

	OtelHost        string
	OtelProbability float64
}

func Load() Config {
	return Config{
		AppEnv:   getEnv("APP_ENV", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisAddr:   getEnv("REDIS_ADDR", ""),
		RabbitURI:   getEnv("RABBITMQ_URI", ""),
		OrdersQueue: getEnv("ORDERS_QUEUE", "orders"),

		CatalogSource:   getEnv("CATALOG_SOURCE", SourceMemory),
		CatalogFile:     getEnv("CATALOG_FILE", ""),
		CatalogCacheTTL: getEnvDuration("CATALOG_CACHE_TTL", 5*time.Minute),

		CheckoutEndpoint: getEnv("CHECKOUT_ENDPOINT", EndpointLocal),
		CheckoutURL:      getEnv("CHECKOUT_URL", ""),
		CheckoutLatency:  getEnvDuration("CHECKOUT_LATENCY", 0),
		PruneNonPositive: getEnvBool("PRUNE_NONPOSITIVE", false),

		OtelHost:        getEnv("OTEL_HOST", ""),
		OtelProbability: getEnvFloat("OTEL_PROBABILITY", 1),
	}
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	switch c.CatalogSource {
	case SourceMemory:
	case SourceFile:
		if c.CatalogFile == "" {
			return errors.New("CATALOG_FILE is required for the file catalog")
		}
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres catalog")
		}
	default:
		return errors.Errorf("unknown CATALOG_SOURCE %q", c.CatalogSource)
	}

	switch c.CheckoutEndpoint {
	case EndpointLocal:
	case EndpointRemote:
		if c.CheckoutURL == "" {
			return errors.New("CHECKOUT_URL is required for the remote checkout")
		}
	default:
		return errors.Errorf("unknown CHECKOUT_ENDPOINT %q", c.CheckoutEndpoint)
	}

	if c.OtelProbability < 0 || c.OtelProbability > 1 {
		return errors.Errorf("OTEL_PROBABILITY %v out of range [0,1]", c.OtelProbability)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return b
}

func getEnvFloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
