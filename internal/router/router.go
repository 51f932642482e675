package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tabletap/api/internal/config"
	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/handler"
	mw "github.com/tabletap/api/internal/middleware"
	"github.com/tabletap/api/internal/policy"
	"github.com/tabletap/api/internal/service"
	"github.com/tabletap/api/internal/ws"
)

// Deps are the shared collaborators the routes are built from.
type Deps struct {
	Config  *config.Config
	Queries *database.Queries
	Pool    *pgxpool.Pool
	Policy  *policy.Policy
	Hub     *ws.Hub
	Emitter service.StatusEmitter
	Log     *slog.Logger
}

// New creates a Chi router with all application routes wired up.
// Applies authentication, restaurant scoping and permission middleware as needed.
func New(d Deps) chi.Router {
	cfg := d.Config
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// WebSocket routes (handle auth internally via query param)
	wsHandler := ws.NewHandler(d.Hub, cfg.JWTSecret, d.Policy, d.Queries, d.Log)
	wsHandler.RegisterRoutes(r)

	newOrderStore := func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}
	orderService := service.NewOrderService(d.Pool, newOrderStore, d.Log)
	statusService := service.NewStatusService(d.Queries, d.Policy, d.Emitter, d.Log)
	orderHandler := handler.NewOrderHandler(orderService, statusService, d.Queries, d.Policy, d.Log)

	userHandler := handler.NewUserHandler(
		d.Queries,
		d.Pool,
		func(db database.DBTX) handler.UserStore {
			return database.New(db)
		},
		d.Policy,
		d.Log,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes (public)
		authHandler := handler.NewAuthHandler(d.Queries, cfg.JWTSecret, d.Policy, d.Log)
		authHandler.RegisterRoutes(r)

		// Guest checkout: token optional
		r.Group(func(r chi.Router) {
			r.Use(mw.OptionalAuthenticate(cfg.JWTSecret))
			orderHandler.RegisterPublicRoutes(r)
		})

		// Protected routes (require authentication)
		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate(cfg.JWTSecret))
			orderHandler.RegisterRoutes(r)
			userHandler.RegisterRoutes(r)
		})
	})

	d.Log.Info("router initialized")
	return r
}
