package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-storefront/internal/backend"
	"github.com/ariefcatur/go-storefront/internal/config"
	"github.com/ariefcatur/go-storefront/internal/httpx"
	"github.com/ariefcatur/go-storefront/internal/logging"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/ordertable"
	"github.com/ariefcatur/go-storefront/internal/pricing"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/ariefcatur/go-storefront/internal/watch"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pricingEngine, err := newPricing(cfg)
	if err != nil {
		log.Fatal("pricing config", zap.Error(err))
	}

	// Redis is the shared cart storage; this process is one origin on it.
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	origin := cfg.ServiceName + "-" + uuid.NewString()
	store := redisx.NewKV(rdb, origin)

	client := backend.New(cfg.BackendURL, nil)
	engineOpts := []orders.EngineOption{orders.WithLogger(log)}
	if cfg.StrictTransitions {
		engineOpts = append(engineOpts, orders.WithStrictTransitions())
	}
	admin := &httpx.Admin{
		Engine: orders.NewEngine(client.WithToken(cfg.AdminToken), engineOpts...),
		Table:  ordertable.New(),
		Cached: watch.StatsCache{Redis: rdb},
		Token:  cfg.AdminToken,
		Log:    log,
	}
	storefront := httpx.NewStorefront(ctx, httpx.StorefrontDeps{
		KV:            store,
		Products:      client,
		Pricing:       pricingEngine,
		Orders:        client,
		RedirectDelay: cfg.RedirectDelay,
		Log:           log,
	})

	router := httpx.NewRouter(log)
	storefront.Register(router)
	admin.Register(router)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("origin", origin))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		log.Error("storefront exited", zap.Error(err))
	}
}

func newPricing(cfg config.Config) (*pricing.Engine, error) {
	cat := pricing.DefaultCatalog()
	if cfg.DeliveryCatalog != "" {
		var err error
		if cat, err = pricing.LoadCatalog(cfg.DeliveryCatalog); err != nil {
			return nil, err
		}
	}
	rate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		return nil, fmt.Errorf("TAX_RATE: %w", err)
	}
	return pricing.NewEngine(cat,
		pricing.WithTaxRate(rate),
		pricing.WithRegion(cfg.DomesticCountry, cfg.MetroCities),
	), nil
}
