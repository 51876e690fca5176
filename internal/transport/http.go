package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenmart/grocery-backend/internal/auth"
	"github.com/greenmart/grocery-backend/internal/handler"
	"github.com/greenmart/grocery-backend/internal/notification"
	"github.com/greenmart/grocery-backend/internal/order"
)

func NewRouter(pool *pgxpool.Pool, verifier auth.TokenVerifier) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})

	notificationRepo := notification.NewRepository(pool)
	orderRepo := order.NewRepository(pool)

	orderSvc := order.NewService(orderRepo, notificationRepo)
	notificationSvc := notification.NewService(notificationRepo)

	orderHandler := handler.NewOrderHandler(orderSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)

	r.Route("/api", func(api chi.Router) {
		api.Use(auth.Middleware(verifier))
		orderHandler.RegisterRoutes(api)
		notificationHandler.RegisterRoutes(api)
	})

	return r
}
