package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	_ "keikkaduuni/docs"
	"keikkaduuni/internal/config"
	"keikkaduuni/internal/domain"
	"keikkaduuni/internal/service"
	"keikkaduuni/internal/ws"
)

// Services bundles what the HTTP layer calls into.
type Services struct {
	Auth          *service.AuthService
	Users         *service.UserService
	Conversations *service.ConversationService
	Messages      *service.MessageService
	Bookings      *service.BookingService
	Offers        *service.OfferService
	Notifications *service.NotificationService
}

// NewRouter constructs the main HTTP router and wires routes and middleware.
func NewRouter(cfg *config.Config, svc Services, hub *ws.Hub, metrics prometheus.Gatherer, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": cfg.AppName,
			"version": "1.0.0",
			"docs":    "/docs",
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Handle("/metrics", promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}))

	// Swagger documentation
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// Attachments are referenced from <img> tags, so they are public.
	r.Mount("/uploads", UploadRoutes(cfg))

	// The websocket lives outside the request timeout.
	r.Get("/ws", ws.MakeHandler(hub, svc.Auth, svc.Conversations, svc.Messages, cfg.CORSOrigins, log))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(svc.Auth))
			r.Post("/login", handleLogin(svc.Auth))
			r.With(AuthMiddleware(svc.Auth)).Get("/me", handleMe())
		})

		r.Mount("/uploads", UploadRoutes(cfg))

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(svc.Auth))

			r.Get("/users/{id}", handleGetUser(svc.Users))

			r.Post("/services", handleCreateListing(svc.Users, domain.ListingService))
			r.Get("/services/{id}", handleGetListing(svc.Users, domain.ListingService))
			r.Post("/tarpeet", handleCreateListing(svc.Users, domain.ListingTarve))
			r.Get("/tarpeet/{id}", handleGetListing(svc.Users, domain.ListingTarve))

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", handleListConversations(svc.Conversations))
				r.Post("/", handleCreateConversation(svc.Conversations))
				r.Get("/{id}", handleGetConversation(svc.Conversations))
				r.Patch("/{id}/read", handleMarkConversationRead(svc.Conversations))
				r.Delete("/{id}", handleDeleteConversation(svc.Conversations))
			})

			// GET and POST take a conversation id, DELETE a message id.
			r.Route("/messages", func(r chi.Router) {
				r.Get("/{id}", handleListMessages(svc.Messages))
				r.Post("/{id}", handleCreateMessage(svc.Messages, cfg))
				r.Delete("/{id}", handleDeleteMessage(svc.Messages))
			})

			r.Route("/bookings", func(r chi.Router) {
				r.Get("/", handleListBookings(svc.Bookings))
				r.Post("/", handleCreateBooking(svc.Bookings))
				r.Patch("/{id}/status", handleBookingStatus(svc.Bookings))
				r.Patch("/{id}/read", handleBookingRead(svc.Bookings))
				r.Post("/{id}/pay", handlePayBooking(svc.Bookings))
				r.Delete("/{id}", handleDeleteBooking(svc.Bookings))
			})

			r.Route("/offers", func(r chi.Router) {
				r.Get("/", handleListOffers(svc.Offers))
				r.Post("/", handleCreateOffer(svc.Offers))
				r.Patch("/{id}/status", handleOfferStatus(svc.Offers))
				r.Patch("/{id}/read", handleOfferRead(svc.Offers))
				r.Delete("/{id}", handleDeleteOffer(svc.Offers))
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", handleListNotifications(svc.Notifications))
				r.Patch("/{id}/read", handleNotificationRead(svc.Notifications))
			})
		})
	})

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
