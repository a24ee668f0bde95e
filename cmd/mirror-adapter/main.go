package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/mirror-adapter/internal/api"
	"github.com/Checker-Finance/mirror-adapter/internal/consumer"
	"github.com/Checker-Finance/mirror-adapter/internal/feed"
	"github.com/Checker-Finance/mirror-adapter/internal/gateway"
	"github.com/Checker-Finance/mirror-adapter/internal/mirror"
	"github.com/Checker-Finance/mirror-adapter/internal/pricing"
	"github.com/Checker-Finance/mirror-adapter/internal/publisher"
	"github.com/Checker-Finance/mirror-adapter/internal/rate"
	internalsecrets "github.com/Checker-Finance/mirror-adapter/internal/secrets"
	"github.com/Checker-Finance/mirror-adapter/internal/store"
	"github.com/Checker-Finance/mirror-adapter/internal/venue"
	"github.com/Checker-Finance/mirror-adapter/pkg/config"
	"github.com/Checker-Finance/mirror-adapter/pkg/logger"
	"github.com/Checker-Finance/mirror-adapter/pkg/model"
	"github.com/Checker-Finance/mirror-adapter/pkg/secrets"
	"github.com/Checker-Finance/mirror-adapter/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [mirror-adapter]...")
	logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))

	// --- Secrets resolver (optional; env credentials remain the fallback) ---
	var resolver *internalsecrets.CredentialsResolver
	if awsProvider, err := secrets.NewAWSProvider(cfg.AWSRegion); err != nil {
		logg.Warnw("aws secrets manager unavailable, using env credentials", "error", err)
	} else {
		credsCache := secrets.NewCache[venue.Credentials](cfg.CacheTTL)
		stopCleaner := make(chan struct{})
		defer close(stopCleaner)
		go credsCache.StartCleaner(cfg.CleanupFreq, stopCleaner)

		resolver = internalsecrets.NewCredentialsResolver(
			logg.Desugar(),
			cfg.Env,
			cfg.Venue,
			awsProvider,
			credsCache,
		)
	}

	// FOLLOWER_ACCOUNT pins the deployment to one account. When unset, fall
	// back to secrets discovery; more than one configured follower is
	// ambiguous and must be pinned explicitly.
	if cfg.FollowerAccount == "" && resolver != nil {
		accounts, err := resolver.DiscoverFollowers(ctx)
		switch {
		case err != nil:
			logg.Warnw("follower discovery failed", "error", err)
		case len(accounts) == 1:
			cfg.FollowerAccount = accounts[0]
			logg.Infow("follower discovered from secrets", "follower", cfg.FollowerAccount)
		case len(accounts) > 1:
			logg.Fatalw("multiple followers have credentials, set FOLLOWER_ACCOUNT", "count", len(accounts))
		}
	}
	if cfg.FollowerAccount == "" {
		logg.Fatal("FOLLOWER_ACCOUNT is required")
	}
	follower := model.AccountID(cfg.FollowerAccount)

	// --- Venue credentials: per-follower secret, env fallback ---
	creds := venue.Credentials{
		RPCURL: cfg.VenueRPCURL,
		APIKey: cfg.VenueAPIKeyEnv,
	}
	if resolver != nil {
		if resolved, err := resolver.Resolve(ctx, cfg.FollowerAccount); err != nil {
			logg.Warnw("no per-follower secret, using env credentials", "error", err)
		} else {
			creds = resolved
		}
	}
	if creds.RPCURL == "" {
		logg.Fatal("no venue RPC URL configured (secret or VENUE_RPC_URL)")
	}

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}

	// --- Publisher ---
	pub, err := publisher.New(nc, cfg.OutboundSubject, "MIRROR_EVENTS")
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}

	// --- Rate limiter ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: 10,
		Burst:             20,
		Cooldown:          1 * time.Second,
	})

	// --- Store (Redis + Postgres hybrid) ---
	st, err := store.NewHybrid(cfg.RedisAddr, cfg.RedisDB, cfg.DatabaseURL, store.PGPoolConfig{
		MaxConns:          int32(cfg.PGMaxConns),
		MinConns:          int32(cfg.PGMinConns),
		MaxConnLifetime:   cfg.PGMaxConnLifetime,
		MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
		HealthCheckPeriod: cfg.PGHealthCheckPeriod,
	}, logg.Desugar())
	if err != nil {
		logg.Fatalw("failed to init store", "error", err)
	}

	// --- Venue execution client + gateway ---
	venueClient := venue.NewRPCClient(logg.Desugar(), rateMgr, creds, cfg.VenueTimeout)
	if err := venueClient.Connect(ctx); err != nil {
		logg.Fatalw("failed to connect to venue", "error", err)
	}
	gw := gateway.New(logg.Desugar(), venueClient, cfg.SubmitRetryBackoff)

	// --- Mark price feed ---
	priceFeed := pricing.NewFeed(logg.Desugar(), rateMgr, cfg.FeedBaseURL, cfg.FeedTimeout)

	// --- Webhook registrar (optional) ---
	var registrar mirror.SubscriptionRegistrar
	if cfg.NotifyProviderURL != "" && cfg.NotifyWebhookID != "" {
		registrar = mirror.NewWebhookRegistrar(
			logg.Desugar(),
			cfg.NotifyProviderURL,
			cfg.NotifyWebhookID,
			cfg.NotifyAPIKey,
			cfg.WebhookCallbackURL,
		)
	} else {
		logg.Warn("notify provider not configured; webhook re-pointing disabled")
	}

	// --- Mirror service ---
	registry := mirror.NewRegistry()
	svc := mirror.NewService(
		ctx,
		cfg,
		logg.Desugar(),
		registry,
		venueClient,
		venueClient,
		priceFeed,
		gw,
		pub,
		st,
		registrar,
	)

	// --- Pre-armed subscription ---
	if cfg.LeaderAccount != "" {
		if _, err := svc.Subscribe(ctx, follower, model.AccountID(cfg.LeaderAccount)); err != nil {
			logg.Warnw("initial subscription failed",
				"leader", cfg.LeaderAccount,
				"error", err)
		}
	}

	// --- Periodic reconcile poller ---
	poller := mirror.NewPoller(logg.Desugar(), svc, registry, cfg.ReconcileInterval)
	go poller.Run(ctx)

	// --- Trade stream (optional; webhook is the primary path) ---
	var stream *feed.StreamClient
	if cfg.TradeStreamURL != "" {
		stream = feed.NewStreamClient(cfg.TradeStreamURL, logg.Desugar())
		stream.AddHandler(func(event *model.TradeEvent) {
			if _, err := svc.ReplicateTrade(ctx, follower, event); err != nil {
				logg.Debugw("stream trade not replicated",
					"product", event.Product,
					"error", err)
			}
		})
		if err := stream.Connect(ctx); err != nil {
			logg.Warnw("trade stream connect failed", "error", err)
		}
	}

	// --- Command consumer (optional) ---
	var cmdConsumer *consumer.Consumer
	if cfg.AMQPURL != "" {
		cmdConsumer, err = consumer.NewConsumer(cfg.AMQPURL, svc, logg.Desugar())
		if err != nil {
			logg.Warnw("rabbitmq connect failed, command consumer disabled", "error", err)
		} else if err := cmdConsumer.Start(ctx); err != nil {
			logg.Warnw("command consumer start failed", "error", err)
		}
	}

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})

	handler := api.NewMirrorHandler(logg.Desugar(), svc, follower)
	api.RegisterRoutes(app, nc, st, handler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("[mirror-adapter] running",
		"nats", cfg.NATSURL,
		"env", cfg.Env,
		"follower", cfg.FollowerAccount,
		"reconcile_interval", cfg.ReconcileInterval)

	<-ctx.Done()
	logg.Info("shutting down [mirror-adapter]...")

	poller.Stop()
	if stream != nil {
		if err := stream.Close(); err != nil {
			logg.Warnw("feed.close_failed", "error", err)
		}
	}
	if cmdConsumer != nil {
		if err := cmdConsumer.Close(); err != nil {
			logg.Warnw("consumer.close_failed", "error", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if err := nc.Drain(); err != nil {
		logg.Warnw("nats.drain_failed", "error", err)
	}
	if err := st.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
}
