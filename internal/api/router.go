package api

import (
	"net/http"

	"github.com/example/ec-stock-reservation/internal/api/middleware"
	"github.com/example/ec-stock-reservation/internal/auth"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Handlers   *Handlers
	JWTService *auth.JWTService
	// RequireAuth selects bearer tokens; when false member identity is read
	// from gateway headers.
	RequireAuth bool
	Logger      *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	h := cfg.Handlers

	identify := middleware.HeaderIdentityMiddleware
	if cfg.RequireAuth {
		identify = middleware.AuthMiddleware(cfg.JWTService)
	}
	member := func(fn http.HandlerFunc) http.Handler {
		return identify(fn)
	}
	admin := func(fn http.HandlerFunc) http.Handler {
		return identify(middleware.RequireRole(auth.RoleAdmin)(fn))
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.Handle("GET /auth/me", member(h.Me))

	// Products
	mux.HandleFunc("GET /products", h.GetProducts)
	mux.HandleFunc("GET /products/{id}", h.GetProduct)
	mux.Handle("POST /products", member(h.CreateProduct))
	mux.Handle("GET /products/{id}/stock", admin(h.GetStock))
	mux.Handle("POST /products/{id}/stock/reverse", admin(h.ReverseStock))

	// Orders
	mux.Handle("GET /orders", member(h.GetOrders))
	mux.Handle("POST /orders", member(h.PlaceOrder))
	mux.Handle("GET /orders/{id}", member(h.GetOrder))
	mux.Handle("POST /orders/{id}/cancel", member(h.CancelOrder))

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return middleware.WithRequestID(middleware.WithLogging(logger.Named("http"))(mux))
}
