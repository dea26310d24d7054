package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/gigmarket-backend/api/controllers"
	"github.com/angelmondragon/gigmarket-backend/api/routes"
	"github.com/angelmondragon/gigmarket-backend/internal/checkout"
	"github.com/angelmondragon/gigmarket-backend/internal/delivery"
	"github.com/angelmondragon/gigmarket-backend/internal/gigs"
	"github.com/angelmondragon/gigmarket-backend/internal/orders"
	"github.com/angelmondragon/gigmarket-backend/internal/profiles"
	"github.com/angelmondragon/gigmarket-backend/internal/reviews"
	"github.com/angelmondragon/gigmarket-backend/internal/stats"
	stripewebhook "github.com/angelmondragon/gigmarket-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/db"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/metrics"
	"github.com/angelmondragon/gigmarket-backend/pkg/migrate"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/redis"
	"github.com/angelmondragon/gigmarket-backend/pkg/storage/gcs"
	pkgstripe "github.com/angelmondragon/gigmarket-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api exited with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return err
	}

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing gcs client", err)
		}
	}()

	conn := dbClient.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	rollup := stats.NewRollup(logg)
	gigRepo := gigs.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:    orderRepo,
		Tx:      dbClient,
		Outbox:  emitter,
		Rollup:  rollup,
		Metrics: metrics.NewOrderMetrics(prometheus.DefaultRegisterer),
		Logger:  logg,
	})
	if err != nil {
		return err
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Tx:             dbClient,
		Gigs:           gigRepo,
		Orders:         orderRepo,
		Discarder:      orderService,
		Outbox:         emitter,
		Gateway:        stripeClient,
		FeePercentage:  cfg.Stripe.PlatformFeePercentage,
		FrontendOrigin: cfg.App.FrontendOrigin,
		DirectCheckout: cfg.FeatureFlags.DirectCheckout,
		Logger:         logg,
	})
	if err != nil {
		return err
	}

	deliveryService, err := delivery.NewService(delivery.ServiceParams{
		Orders:        orderService,
		Blobs:         gcsClient,
		MaxFileBytes:  cfg.Delivery.MaxFileBytes(),
		MaxNoteLength: cfg.Delivery.MaxNoteLength,
		ObjectPrefix:  cfg.Delivery.ObjectPrefix,
		Logger:        logg,
	})
	if err != nil {
		return err
	}

	reviewService, err := reviews.NewService(reviews.ServiceParams{
		Repo:   reviews.NewRepository(conn),
		Orders: orderRepo,
		Gigs:   gigRepo,
		Tx:     dbClient,
		Rollup: rollup,
		Outbox: emitter,
		Logger: logg,
	})
	if err != nil {
		return err
	}

	profileService, err := profiles.NewService(profiles.NewRepository(conn), gigRepo)
	if err != nil {
		return err
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{Orders: orderService, Logger: logg})
	if err != nil {
		return err
	}
	webhookGuard, err := stripewebhook.NewEventGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "stripe-webhook")
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"stripe_env": stripeClient.Environment(),
		"bucket":     gcsClient.Bucket(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			Readiness: map[string]controllers.Pinger{
				"db":    dbClient,
				"redis": redisClient,
				"gcs":   gcsClient,
			},
			Idempotency:        redisClient,
			Gatherer:           prometheus.DefaultGatherer,
			Checkout:           checkoutService,
			Orders:             orderService,
			Delivery:           deliveryService,
			Reviews:            reviewService,
			Profiles:           profileService,
			StripeWebhooks:     webhookService,
			StripeSigner:       stripeClient,
			StripeWebhookGuard: webhookGuard,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(logCtx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
