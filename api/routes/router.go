package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/lensdist-backend/api/controllers"
	"github.com/angelmondragon/lensdist-backend/api/middleware"
	"github.com/angelmondragon/lensdist-backend/internal/catalog"
	"github.com/angelmondragon/lensdist-backend/internal/discounts"
	"github.com/angelmondragon/lensdist-backend/internal/ledger"
	"github.com/angelmondragon/lensdist-backend/internal/notifications"
	"github.com/angelmondragon/lensdist-backend/internal/orders"
	"github.com/angelmondragon/lensdist-backend/internal/pricing"
	"github.com/angelmondragon/lensdist-backend/internal/receivables"
	"github.com/angelmondragon/lensdist-backend/internal/stores"
	"github.com/angelmondragon/lensdist-backend/pkg/config"
	"github.com/angelmondragon/lensdist-backend/pkg/db"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
	"github.com/angelmondragon/lensdist-backend/pkg/redis"
)

// Services bundles the domain services the HTTP layer exposes.
type Services struct {
	Stores        stores.Service
	Catalog       catalog.Service
	Discounts     discounts.Service
	Pricing       pricing.Service
	Ledger        ledger.Service
	Receivables   receivables.Service
	Orders        orders.Service
	Notifications notifications.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP db.Pinger,
	idempotency redis.IdempotencyStore,
	gatherer prometheus.Gatherer,
	loc *time.Location,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Actor(),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins...),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]db.Pinger{"db": dbP, "redis": redisP}))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	idem := middleware.Idempotency(idempotency, logg, cfg.Eventing.IdempotencyTTL)
	idemOrders := middleware.Idempotency(idempotency, logg, cfg.Eventing.OrderIdempotencyTTL)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/store-groups", func(r chi.Router) {
			r.Post("/", controllers.CreateStoreGroup(svc.Stores, logg))
			r.Get("/", controllers.ListStoreGroups(svc.Stores, logg))
			r.Route("/{groupId}/discounts", func(r chi.Router) {
				r.Post("/", controllers.CreateGroupDiscount(svc.Discounts, logg))
				r.Get("/", controllers.ListGroupDiscounts(svc.Discounts, logg))
				r.Put("/{ruleId}", controllers.UpdateGroupDiscount(svc.Discounts, logg))
				r.Delete("/{ruleId}", controllers.RemoveGroupDiscount(svc.Discounts, logg))
			})
		})

		r.Route("/stores", func(r chi.Router) {
			r.Post("/", controllers.CreateStore(svc.Stores, logg))
			r.Get("/", controllers.ListStores(svc.Stores, logg))

			r.Route("/{storeId}", func(r chi.Router) {
				r.Use(middleware.StoreScope(logg))

				r.Get("/", controllers.GetStore(svc.Stores, logg))
				r.Delete("/", controllers.DeleteStore(svc.Stores, logg))
				r.Patch("/settings", controllers.UpdateStoreSettings(svc.Stores, logg))

				r.Get("/discounts", controllers.StoreDiscounts(svc.Discounts, logg))
				r.Put("/brand-discounts/{brandId}", controllers.SetBrandDiscount(svc.Discounts, logg))
				r.Delete("/brand-discounts/{brandId}", controllers.RemoveBrandDiscount(svc.Discounts, logg))
				r.Put("/product-discounts/{productId}", controllers.SetProductDiscount(svc.Discounts, logg))
				r.Delete("/product-discounts/{productId}", controllers.RemoveProductDiscount(svc.Discounts, logg))
				r.Put("/special-prices/{productId}", controllers.SetSpecialPrice(svc.Discounts, logg))
				r.Delete("/special-prices/{productId}", controllers.RemoveSpecialPrice(svc.Discounts, logg))

				r.With(idem).Post("/deposits", controllers.PostDeposit(svc.Ledger, logg))
				r.With(idem).Post("/adjustments", controllers.PostAdjustment(svc.Ledger, logg))
				r.Get("/balance", controllers.StoreBalance(svc.Ledger, logg))
				r.Get("/statement", controllers.StoreStatement(svc.Ledger, loc, logg))
				r.Get("/receivable", controllers.StoreReceivable(svc.Receivables, logg))
				r.Get("/orders", controllers.ListStoreOrders(svc.Orders, logg))
			})
		})

		r.Route("/brands", func(r chi.Router) {
			r.Post("/", controllers.CreateBrand(svc.Catalog, logg))
			r.Get("/", controllers.ListBrands(svc.Catalog, logg))
		})
		r.Route("/products", func(r chi.Router) {
			r.Post("/", controllers.CreateProduct(svc.Catalog, logg))
			r.Get("/", controllers.ListProducts(svc.Catalog, logg))
			r.Get("/{productId}", controllers.GetProduct(svc.Catalog, logg))
			r.Patch("/{productId}/list-price", controllers.UpdateListPrice(svc.Catalog, logg))
		})

		r.Post("/pricing/quote", controllers.PricingQuote(svc.Pricing, logg))
		r.Get("/ledger/transactions", controllers.ListLedgerTransactions(svc.Ledger, loc, logg))

		r.Route("/receivables", func(r chi.Router) {
			r.Get("/", controllers.ListReceivables(svc.Receivables, logg))
			r.Get("/summary", controllers.ReceivablesSummary(svc.Receivables, loc, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(idemOrders).Post("/", controllers.ConfirmOrder(svc.Orders, logg))
			r.Get("/{orderId}", controllers.GetOrder(svc.Orders, logg))
			r.With(idemOrders).Post("/{orderId}/returns", controllers.ReturnOrder(svc.Orders, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(svc.Notifications, logg))
			r.With(idem).Post("/{notificationId}/read", controllers.MarkNotificationRead(svc.Notifications, logg))
			r.With(idem).Post("/read-all", controllers.MarkAllNotificationsRead(svc.Notifications, logg))
		})
	})

	return r
}
