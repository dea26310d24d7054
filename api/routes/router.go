package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/gigmarket-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/gigmarket-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/gigmarket-backend/api/controllers/webhooks"
	"github.com/angelmondragon/gigmarket-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/gigmarket-backend/internal/checkout"
	"github.com/angelmondragon/gigmarket-backend/internal/delivery"
	"github.com/angelmondragon/gigmarket-backend/internal/orders"
	"github.com/angelmondragon/gigmarket-backend/internal/profiles"
	"github.com/angelmondragon/gigmarket-backend/internal/reviews"
	stripewebhook "github.com/angelmondragon/gigmarket-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/redis"
)

// Dependencies carries everything the HTTP surface is built from. Nil
// services surface as 500s on their routes rather than panics.
type Dependencies struct {
	Readiness   map[string]controllers.Pinger
	Idempotency redis.IdempotencyStore
	Gatherer    prometheus.Gatherer

	Checkout checkoutsvc.Service
	Orders   orders.Service
	Delivery delivery.Service
	Reviews  reviews.Service
	Profiles profiles.Service

	StripeWebhooks     webhookcontrollers.StripeWebhookService
	StripeSigner       interface{ SigningSecret() string }
	StripeWebhookGuard *stripewebhook.EventGuard
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Readiness, logg))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Post("/api/v1/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhooks, deps.StripeSigner, guard(deps), logg))
	r.Get("/api/v1/gigs/{gigId}/reviews", controllers.GigReviews(deps.Reviews, logg))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1", func(r chi.Router) {
			r.Post("/checkout", controllers.Checkout(deps.Checkout, logg))
			r.Route("/orders", func(r chi.Router) {
				r.Post("/direct", controllers.DirectOrder(deps.Checkout, logg))
				r.Get("/", ordercontrollers.List(deps.Orders, logg))
				r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
				r.Patch("/{orderId}/status", ordercontrollers.UpdateStatus(deps.Orders, logg))
				r.Post("/{orderId}/delivery", ordercontrollers.SubmitDelivery(deps.Delivery, cfg.Delivery.MaxFileBytes(), logg))
				r.Post("/{orderId}/review", controllers.CreateReview(deps.Reviews, logg))
			})
			r.Get("/profiles/me/dashboard", controllers.Dashboard(deps.Profiles, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))
			r.Get("/ping", controllers.AdminPing())
			r.Patch("/v1/orders/{orderId}/status", controllers.AdminOrderStatus(deps.Orders, logg))
		})
	})

	return r
}

// A nil guard pointer must stay a nil interface for the controller's checks.
func guard(deps Dependencies) interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
} {
	if deps.StripeWebhookGuard == nil {
		return nil
	}
	return deps.StripeWebhookGuard
}
