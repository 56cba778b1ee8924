// Command tracker polls market data for every registered owner and
// persists transactions, orders, and profit state to PostgreSQL.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mwerner/evetrack/internal/backfill"
	"github.com/mwerner/evetrack/internal/cache"
	"github.com/mwerner/evetrack/internal/config"
	"github.com/mwerner/evetrack/internal/database"
	"github.com/mwerner/evetrack/internal/esi"
	"github.com/mwerner/evetrack/internal/events"
	"github.com/mwerner/evetrack/internal/ledger"
	"github.com/mwerner/evetrack/internal/metrics"
	"github.com/mwerner/evetrack/internal/names"
	"github.com/mwerner/evetrack/internal/poller"
	"github.com/mwerner/evetrack/internal/postgres"
	"github.com/mwerner/evetrack/internal/profit"
	"github.com/mwerner/evetrack/internal/token"
	"github.com/mwerner/evetrack/internal/undercut"
	"github.com/mwerner/evetrack/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/tracker.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(*configPath, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Info("starting tracker",
		"version", version.String(),
		"poll_interval", cfg.Poller.Interval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// Stores.
	cacheStore := postgres.NewCacheStore(pool)
	ownerStore := postgres.NewOwnerStore(pool)
	ledgerStore := postgres.NewLedgerStore(pool)
	journalStore := postgres.NewJournalStore(pool)
	profitStore := postgres.NewProfitStore(pool)
	orderStore := postgres.NewOrderStore(pool)
	undercutStore := postgres.NewUndercutStore(pool)
	locationStore := postgres.NewLocationStore(pool)
	nameStore := postgres.NewNameStore(pool)
	contractStore := postgres.NewContractStore(pool)

	// API plumbing.
	tokens := token.NewManager(cfg.SSO.ClientID, cfg.SSO.ClientSecret,
		token.WithTokenURL(cfg.SSO.TokenURL),
		token.WithLogger(logger))

	respCache := cache.New(cacheStore,
		cache.WithTTL(cfg.API.CacheTTL),
		cache.WithLogger(logger))

	client := esi.NewClient(respCache, tokens,
		esi.WithBaseURL(cfg.API.BaseURL),
		esi.WithUserAgent(cfg.API.UserAgent),
		esi.WithTimeout(cfg.API.Timeout),
		esi.WithMaxRetries(cfg.API.MaxRetries),
		esi.WithPageDelay(cfg.API.PageDelay),
		esi.WithLogger(logger))

	// Domain components.
	book := ledger.New(ledgerStore, logger)
	reporter := profit.NewReporter(profitStore, cfg.Fees.BuyPct, cfg.Fees.SellPct, logger)
	resolver := undercut.NewCachedResolver(client, locationStore)
	detector := undercut.NewDetector(client, resolver, logger)
	machine := backfill.New(client, ownerStore, book, logger)
	nameResolver := names.NewResolver(client, nameStore, logger)

	buffer := events.NewBuffer(cfg.Events.BufferSize)
	sink := events.NewLogSink(buffer, logger, time.Second)

	p := poller.New(poller.Config{
		API:           client,
		Owners:        ownerStore,
		Ledger:        book,
		Reporter:      reporter,
		Detector:      detector,
		Backfill:      machine,
		Names:         nameResolver,
		Journal:       journalStore,
		Orders:        orderStore,
		Undercuts:     undercutStore,
		Contracts:     contractStore,
		Buffer:        buffer,
		Logger:        logger,
		Interval:      cfg.Poller.Interval,
		MaxConcurrent: cfg.Poller.Concurrency,

		MaxRetries:        cfg.Poller.MaxRetries,
		RetryBackoff:      cfg.Poller.RetryBackoff,
		BackfillStepDelay: cfg.Backfill.StepDelay,
	})

	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: metricsMux(cfg.Metrics.Path),
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("metrics listening", "addr", metricsSrv.Addr, "path", cfg.Metrics.Path)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sink.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx)
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown", "error", err)
	}

	buffer.Close()
	wg.Wait()
	logger.Info("stopped")
	return nil
}

func metricsMux(path string) *http.ServeMux {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler())
	return mux
}
