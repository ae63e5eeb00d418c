// Command shortly runs the URL shortening service: short code issuance,
// cached redirects, the click analytics pipeline and the expiry sweeper in a
// single process.
//
//	@title			Shortly API
//	@version		1.0
//	@description	URL shortening service: short code issuance, redirects, click analytics.
//	@BasePath		/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shortly-systems/shortly/rest"
	"github.com/shortly-systems/shortly/services/analytics"
	analyticsstore "github.com/shortly-systems/shortly/services/analytics/store"
	"github.com/shortly-systems/shortly/services/expiry"
	"github.com/shortly-systems/shortly/services/idgen"
	"github.com/shortly-systems/shortly/services/ratelimit"
	redirectdomain "github.com/shortly-systems/shortly/services/redirect/domain"
	shortenerdomain "github.com/shortly-systems/shortly/services/shortener/domain"
	shortenerstore "github.com/shortly-systems/shortly/services/shortener/store"
	"github.com/shortly-systems/shortly/services/ws"
	"github.com/shortly-systems/shortly/utils/cache"
	"github.com/shortly-systems/shortly/utils/config"
	"github.com/shortly-systems/shortly/utils/database"
	"github.com/shortly-systems/shortly/utils/logger"
	"github.com/shortly-systems/shortly/utils/tracing"
)

const (
	counterName     = "url_codes"
	shutdownTimeout = 30 * time.Second
	warmupLimit     = 1000
)

func main() {
	configPath := flag.String("config", os.Getenv("SHORTLY_CONFIG"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("config load failed")
	}
	log := logger.New(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, "shortly", cfg.Tracing.Endpoint, cfg.Tracing.SampleRatio, cfg.Tracing.Enabled)
	if err != nil {
		log.WithError(err).Fatal("tracing init failed")
	}

	db, err := database.NewPostgres(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("postgres connect failed")
	}
	defer db.Close()

	chConn, err := database.NewClickHouse(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("clickhouse connect failed")
	}
	defer chConn.Close()

	redisCache, err := cache.NewRedis(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("redis connect failed")
	}
	defer redisCache.Close()

	urlStore := shortenerstore.NewURLStore(db, log)
	eventStore := analyticsstore.New(chConn, log)

	multiCache := cache.NewMultiLayer(redisCache, urlStore, log, cache.MultiLayerOptions{
		ExpiredTTL: cfg.ExpiredTombstoneTTL(),
	})

	allocator := idgen.NewCounterAllocator(urlStore, counterName, uint64(cfg.IDGenerator.CounterBatchSize), log)
	hashGen := idgen.NewHashGenerator(urlStore, cfg.IDGenerator.MaxRetries)
	generator := idgen.NewGenerator(allocator, hashGen, urlStore, cfg.IDGenerator.MinCodeLength, cfg.IDGenerator.MaxRetries, log)
	if err := allocator.PreAllocate(ctx); err != nil {
		// The hash fallback keeps issuance alive; don't refuse to start.
		log.WithError(err).Warn("counter pre-allocation failed, hash fallback active")
	}

	hub := ws.NewHub(log)
	enricher := analytics.NewEnricher()

	// Prefer the durable bus; fall back to writing the warehouse directly.
	var (
		publisher analytics.Publisher
		consumer  *analytics.Consumer
		bus       *analytics.Bus
	)
	if b, err := analytics.ConnectBus(cfg, log); err != nil {
		log.WithError(err).Warn("bus unreachable, using direct analytics writer")
		publisher = analytics.NewDirectWriter(eventStore, redisCache, hub, enricher,
			cfg.Analytics.BufferMax, cfg.AnalyticsFlushInterval(), log)
	} else {
		bus = b
		publisher = analytics.NewBusProducer(bus, hub, enricher,
			cfg.Analytics.BufferMax, cfg.AnalyticsFlushInterval(), log)
		consumer = analytics.NewConsumer(bus, eventStore, redisCache, log)
		if err := consumer.Start(ctx); err != nil {
			log.WithError(err).Fatal("analytics consumer start failed")
		}
	}

	shortenerSvc := shortenerdomain.NewService(urlStore, generator, multiCache,
		cfg.BaseURL, cfg.IDGenerator.MaxRetries, log)
	redirectSvc := redirectdomain.NewService(multiCache, urlStore, publisher,
		cfg.ExpiredTombstoneTTL(), log)

	// Prime the caches with the most-accessed mappings so the first requests
	// after a deploy don't all fall through to the store.
	if popular, err := urlStore.GetPopular(ctx, warmupLimit); err != nil {
		log.WithError(err).Warn("cache warm-up query failed")
	} else if err := shortenerSvc.WarmCache(ctx, popular); err != nil {
		log.WithError(err).Warn("cache warm-up failed")
	} else {
		log.WithField("mappings", len(popular)).Info("cache warmed")
	}
	limiter := ratelimit.New(redisCache, cfg, log)

	sweeper := expiry.NewSweeper(urlStore, multiCache, cfg.SweepInterval(),
		cfg.Expiry.SweepBatchSize, cfg.ExpiredTombstoneTTL(), log)
	sweeper.Start(ctx)

	summarizer := analytics.NewSummarizer(eventStore, redisCache, log)
	summarizer.Start(ctx)

	readyChecks := map[string]rest.ReadyCheck{
		"postgres": func(ctx context.Context) error { return db.PingContext(ctx) },
		"redis":    func(ctx context.Context) error { return redisCache.Ping(ctx) },
		"clickhouse": func(ctx context.Context) error {
			return chConn.Ping(ctx)
		},
	}

	server := rest.NewServer(shortenerSvc, redirectSvc, hub, generator, multiCache, publisher, readyChecks, log)
	router := rest.NewRouter(cfg, server, limiter, log)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithField("addr", httpServer.Addr).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	// Stop accepting traffic first, then drain the analytics pipeline so
	// buffered clicks reach the bus or the warehouse before connections close.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}

	sweeper.Stop()
	summarizer.Stop()
	hub.CloseAll()

	publisher.Close()
	if consumer != nil {
		consumer.Stop()
	}
	if bus != nil {
		bus.Close()
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.WithError(err).Warn("tracer shutdown failed")
	}
	log.Info("bye")
}
