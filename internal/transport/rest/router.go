package rest

import (
	"log/slog"

	"github.com/frahmantamala/isp-billing/internal/auth"
	"github.com/frahmantamala/isp-billing/internal/notification"
	"github.com/frahmantamala/isp-billing/internal/payment"
	"github.com/frahmantamala/isp-billing/internal/sms"
	"github.com/frahmantamala/isp-billing/internal/transport"
	"github.com/frahmantamala/isp-billing/internal/transport/middleware"
	"github.com/frahmantamala/isp-billing/internal/transport/swagger"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/jmoiron/sqlx"
)

// Routes is everything the router mounts. Nil handlers leave their routes out.
type Routes struct {
	DB           *sqlx.DB
	Scheduler    PendingCounter
	Auth         *auth.Handler
	RBAC         *auth.RBACAuthorization
	ABAC         *auth.ABACPolicy
	Payment      *payment.Handler
	Notification *notification.Handler
	SMS          *sms.Handler
	ServiceKey   string
	OpenAPIPath  string
}

func RegisterAllRoutes(router *chi.Mux, routes Routes, logger *slog.Logger) {
	healthHandler := NewHealthHandler(routes.DB, routes.Scheduler)
	if routes.ABAC == nil {
		routes.ABAC = &auth.ABACPolicy{}
	}
	base := transport.NewBaseHandler(logger)

	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.TraceID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	if routes.OpenAPIPath != "" {
		router.Get(swagger.SpecURL, swagger.SpecHandler(routes.OpenAPIPath))
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if routes.SMS != nil {
			r.With(auth.RequireServiceKey(routes.ServiceKey, base)).Post("/sms/send", routes.SMS.Send)
		}

		if routes.Auth == nil {
			return
		}

		r.Route("/auth", func(ar chi.Router) {
			ar.Post("/login", routes.Auth.Login)
			ar.Post("/refresh", routes.Auth.RefreshToken)
			ar.Post("/logout", routes.Auth.Logout)
			ar.With(routes.Auth.AuthMiddleware).Get("/me", routes.Auth.Me)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(routes.Auth.AuthMiddleware)

			if routes.Payment != nil {
				pr.Route("/payments", func(pmr chi.Router) {
					pmr.Post("/", routes.Payment.InitiatePayment)
					pmr.Post("/initiate", routes.Payment.InitiatePayment)
					pmr.Get("/", routes.Payment.ListPayments)

					if routes.RBAC != nil {
						pmr.With(routes.RBAC.RequireViewReports()).Get("/stats", routes.Payment.Stats)
					}

					pmr.With(auth.RequireCanViewTransaction(routes.DB, routes.ABAC, base)).
						Get("/{reference}", routes.Payment.GetPayment)
				})
			}

			if routes.Notification != nil {
				pr.Get("/notifications", routes.Notification.List)
			}
		})
	})
}
