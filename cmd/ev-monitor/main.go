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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/broker"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/cache"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/config"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/dedup"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/dispatcher"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/handlers"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/hub"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/logger"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/metrics"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/notifier"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/providers/betbck"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/providers/pinnacle"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/publisher"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/ratelimit"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/refresher"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/store"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/writer"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

func main() {
	// Missing .env is fine outside local development
	_ = godotenv.Load()

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.App.ServiceName, cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("ev-monitor exited with error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Optional Redis: rate limit, dedupe, stream relay and store dumps
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to parse redis url: %w", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		if cfg.Redis.DB != 0 {
			opts.DB = cfg.Redis.DB
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = redisClient.Ping(pctx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Info("connected to redis")
	}

	var limiter ratelimit.Limiter = ratelimit.NewMemory(cfg.Ingress.AlertsPerMinute)
	var checker dedup.Checker = dedup.NewMemory(cfg.Ingress.DedupeTTL, nil)
	if redisClient != nil {
		limiter = ratelimit.NewTokenBucket(redisClient, cfg.Ingress.AlertsPerMinute)
		checker = dedup.NewDeduplicator(redisClient, cfg.Ingress.DedupeTTL)
	}

	// Optional Postgres history
	var dispatchOpts []dispatcher.Option
	if cfg.Postgres.DSN != "" {
		db, err := writer.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer db.Close()

		history := writer.NewHistoryWriter(db)
		if err := history.EnsureSchema(ctx); err != nil {
			return err
		}
		dispatchOpts = append(dispatchOpts, dispatcher.WithRecorder(history))
		log.Info("connected to postgres")
	}

	// Collaborators
	reference := pinnacle.New(cfg.Pinnacle.BaseURL,
		pinnacle.WithHTTPClient(&http.Client{Timeout: cfg.Pinnacle.Timeout}),
		pinnacle.WithOrigin(cfg.Pinnacle.Origin),
	)
	target := betbck.New(betbck.Config{
		LoginPageURL:    cfg.BetBCK.LoginPageURL,
		LoginActionURL:  cfg.BetBCK.LoginActionURL,
		MainPageURL:     cfg.BetBCK.MainPageURL,
		SearchActionURL: cfg.BetBCK.SearchActionURL,
		Username:        cfg.BetBCK.Username,
		Password:        cfg.BetBCK.Password,
		Timeout:         cfg.BetBCK.Timeout,
	})

	// Core
	eventStore := store.New(cfg.Store.Capacity)
	h := hub.NewHub(log, m)

	b := broker.New(target, betbck.NewJSONParser(), broker.Config{
		PacingMin:      cfg.Broker.PacingMin,
		PacingMax:      cfg.Broker.PacingMax,
		SessionRefresh: cfg.Broker.SessionRefresh,
		Cooldown:       cfg.Broker.Cooldown,
		MaxAttempts:    cfg.Broker.MaxAttempts,
		RetryBackoff:   cfg.Broker.RetryBackoff,
		AlertDisplay:   cfg.Broker.AlertDisplay,
	}, log, broker.WithMetrics(m))

	if n := buildNotifier(cfg, log); n != nil {
		b.OnRateLimited(func(alert models.SystemAlert) {
			nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := n.Notify(nctx, alert); err != nil {
				log.Warn("failed to deliver system alert", zap.Error(err))
			}
		})
	}

	d := dispatcher.New(eventStore, reference, b, h, dispatcher.Config{
		ScrapeTimeout: cfg.Dispatcher.ScrapeTimeout,
		RecentRefresh: cfg.Dispatcher.RecentRefresh,
	}, log, append(dispatchOpts, dispatcher.WithMetrics(m))...)

	ref := refresher.New(eventStore, reference, h, d, refresher.Config{
		Interval:           cfg.Refresher.Interval,
		ExpiryNoEV:         cfg.Refresher.ExpiryNoEV,
		ExpiryPositiveEV:   cfg.Refresher.ExpiryPositiveEV,
		MaxAge:             cfg.Refresher.MaxAge,
		RescrapeAfter:      cfg.Refresher.RescrapeAfter,
		RebroadcastEvery:   cfg.Refresher.RebroadcastEvery,
		DismissedRetention: cfg.Refresher.DismissedRetention,
	}, log, refresher.WithMetrics(m))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return h.Run(gctx) })
	g.Go(func() error { return b.Run(gctx) })
	g.Go(func() error { return d.Run(gctx) })
	g.Go(func() error { return ref.Run(gctx) })

	// Snapshot relays subscribe to the hub like any websocket client
	for _, relay := range buildRelays(cfg, redisClient, log) {
		relay := relay
		h.Register(relay)
		g.Go(func() error { return relay.Run(gctx) })
	}

	if redisClient != nil {
		dumper := cache.NewDumper(redisClient, eventStore, cfg.Store.DumpInterval, cfg.Store.DumpTTL, log)
		g.Go(func() error { return dumper.Run(gctx) })
	}

	// HTTP
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = m.Handler()
	}
	handler := handlers.NewHandler(handlers.Deps{
		Store:      eventStore,
		Dispatcher: d,
		Broker:     b,
		Hub:        h,
		Limiter:    limiter,
		Dedup:      checker,
		Metrics:    m,
		Logger:     log,
		Context:    gctx,
	})

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: handlers.NewRouter(handler, handlers.RouterConfig{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: cfg.Server.RequestTimeout,
			Metrics:        metricsHandler,
		}),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g.Go(func() error {
		log.Info("ev-monitor listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn("graceful shutdown failed", zap.Error(err))
			return srv.Close()
		}
		return nil
	})

	return g.Wait()
}

// buildNotifier returns nil when no channel is configured
func buildNotifier(cfg *config.Config, log *zap.Logger) contracts.Notifier {
	var notifiers []contracts.Notifier

	if cfg.Notifier.SlackWebhookURL != "" {
		notifiers = append(notifiers, notifier.NewSlackNotifier(cfg.Notifier.SlackWebhookURL))
	}
	if cfg.Notifier.TelegramToken != "" {
		tg, err := notifier.NewTelegramNotifier(cfg.Notifier.TelegramToken, cfg.Notifier.TelegramChatID)
		if err != nil {
			log.Warn("telegram notifier disabled", zap.Error(err))
		} else {
			notifiers = append(notifiers, tg)
		}
	}

	if len(notifiers) == 0 {
		return nil
	}
	return notifier.NewMulti(log, notifiers...)
}

func buildRelays(cfg *config.Config, redisClient *redis.Client, log *zap.Logger) []*publisher.Relay {
	var relays []*publisher.Relay

	if redisClient != nil && cfg.Publisher.RedisStream != "" {
		stream := publisher.NewStreamPublisher(redisClient, cfg.Publisher.RedisStream, cfg.Publisher.RedisStreamLen)
		relays = append(relays, publisher.NewRelay("redis", stream, log))
	}
	if len(cfg.Publisher.KafkaBrokers) > 0 {
		kafka := publisher.NewKafkaPublisher(cfg.Publisher.KafkaBrokers, cfg.Publisher.KafkaTopic)
		relays = append(relays, publisher.NewRelay("kafka", kafka, log))
	}

	for _, r := range relays {
		log.Info("snapshot relay enabled", zap.String("relay", r.ID()))
	}
	return relays
}
