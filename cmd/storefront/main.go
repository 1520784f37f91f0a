package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/whalepay/storefront/internal/amount"
	"github.com/whalepay/storefront/internal/api"
	"github.com/whalepay/storefront/internal/cryptopay"
	"github.com/whalepay/storefront/internal/delivery"
	"github.com/whalepay/storefront/internal/pricefeed"
	"github.com/whalepay/storefront/internal/publisher"
	"github.com/whalepay/storefront/internal/rate"
	"github.com/whalepay/storefront/internal/rates"
	internalsecrets "github.com/whalepay/storefront/internal/secrets"
	"github.com/whalepay/storefront/internal/shop"
	"github.com/whalepay/storefront/internal/store"
	"github.com/whalepay/storefront/internal/support"
	"github.com/whalepay/storefront/pkg/config"
	"github.com/whalepay/storefront/pkg/logger"
	"github.com/whalepay/storefront/pkg/secrets"
	"github.com/whalepay/storefront/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [storefront]...")
	logg.Info("connecting to DSN: ", utils.MaskDSN(cfg.DatabaseURL))

	// --- Crypto Pay token resolution (env token wins, else AWS SM) ---
	var provider secrets.Provider
	if cfg.CryptoPayToken == "" {
		awsProvider, err := secrets.NewAWSProvider(cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}
		provider = awsProvider
	} else {
		logg.Info("using CRYPTO_PAY_TOKEN from environment")
	}

	tokenCache := secrets.NewCache[string](cfg.CacheTTL)
	stopCleaner := make(chan struct{})
	go tokenCache.StartCleaner(cfg.CleanupFreq, stopCleaner)

	tokens := internalsecrets.NewTokenResolver(
		logg.Desugar(),
		cfg.CryptoPayToken,
		cfg.CryptoPaySecretName,
		provider,
		tokenCache,
	)

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}

	// --- Publisher ---
	pub, err := publisher.New(nc, cfg.EventSubject, cfg.ServiceName)
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}
	if err := pub.EnsureStream(cfg.EventStream, []string{cfg.EventSubject, cfg.EventSubject + ".>"}); err != nil {
		logg.Warnw("failed to ensure event stream", "stream", cfg.EventStream, "error", err)
	}

	// --- Rate limiter for outbound provider/feed calls ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: 10,
		Burst:             20,
		Cooldown:          1 * time.Second,
	})

	// --- Store (Redis + Postgres hybrid) ---
	st, err := store.NewHybrid(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, cfg.DatabaseURL, store.PGPoolConfig{
		MaxConns:          int32(cfg.PGMaxConns),
		MinConns:          int32(cfg.PGMinConns),
		MaxConnLifetime:   cfg.PGMaxConnLifetime,
		MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
		HealthCheckPeriod: cfg.PGHealthCheckPeriod,
	}, logg.Desugar())
	if err != nil {
		logg.Fatalw("failed to init store", "error", err)
	}
	if err := st.InitSchema(ctx); err != nil {
		logg.Fatalw("failed to init schema", "error", err)
	}

	// --- Rate cache and refresher ---
	rateCache := rates.NewCache(rates.Defaults())
	feeds := pricefeed.NewClient(
		logg.Desugar(),
		rateMgr,
		&http.Client{Timeout: cfg.OutboundTimeout},
		cfg.OutboundRetries,
		cfg.FiatRateURL,
		cfg.CryptoPriceURL,
	)
	refresher := rates.NewRefresher(logg.Desugar(), feeds, rateCache, st, cfg.SupportedAssets, cfg.RefreshInterval)
	go refresher.Start(ctx)

	// --- Amount calculator ---
	calc := amount.NewCalculator(logg.Desugar(), rateCache, nil)

	// --- Crypto Pay client ---
	invoices := cryptopay.NewClient(
		logg.Desugar(),
		rateMgr,
		cfg.CryptoPayBaseURL,
		tokens,
		cfg.OutboundTimeout,
		cfg.OutboundRetries,
	)

	// --- Delivery dispatcher ---
	dispatcher := delivery.NewDispatcher(logg.Desugar(), st, pub, cfg.EventSubject, cfg.FilesDir)

	// --- Shop service ---
	shopSvc := shop.NewService(logg.Desugar(), st, rateCache, calc, invoices, dispatcher, pub, shop.Options{
		SupportedAssets: cfg.SupportedAssets,
		ReturnURL:       cfg.ReturnURL,
		InvoiceExpiry:   int(cfg.InvoiceExpiry.Seconds()),
		EventSubject:    cfg.EventSubject,
	})

	// --- Support service ---
	supportSvc := support.NewService(logg.Desugar(), st, pub, cfg.SupportSubject)

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})

	shopHandler := api.NewShopHandler(logg.Desugar(), shopSvc)
	productsHandler := api.NewProductsHandler(logg.Desugar(), shopSvc, st)
	ratesHandler := api.NewRatesHandler(logg.Desugar(), rateCache, refresher)
	supportHandler := api.NewSupportHandler(logg.Desugar(), supportSvc)

	api.RegisterRoutes(app, nc, st, shopHandler, productsHandler, ratesHandler, supportHandler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("[storefront] running",
		"nats", cfg.NATSURL,
		"env", cfg.Env,
		"provider", cfg.CryptoPayBaseURL,
		"refresh_interval", cfg.RefreshInterval,
		"fiat_currency", cfg.FiatCurrency,
		"supported_assets", cfg.SupportedAssets)

	<-ctx.Done()
	logg.Info("shutting down [storefront]...")

	close(stopCleaner)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if err := pub.Close(); err != nil {
		logg.Warnw("publisher.close_failed", "error", err)
	}
	if err := st.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
}
