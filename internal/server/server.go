package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/wandertours/apiserver/config"
	"github.com/wandertours/apiserver/internal/db"
	"github.com/wandertours/apiserver/internal/handlers"
	"github.com/wandertours/apiserver/internal/mq"
	"github.com/wandertours/apiserver/internal/services"
	"github.com/wandertours/apiserver/internal/store"
	"github.com/wandertours/apiserver/types"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	client     *mongo.Client
	broker     mq.Backend
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	client, database, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tours := store.NewCollection[types.Tour](database, "tours")
	users := store.NewCollection[types.User](database, "users")
	reviews := store.NewCollection[types.Review](database, "reviews")
	bookings := store.NewCollection[types.Booking](database, "bookings")

	mailer, broker, err := newMailer(ctx, cfg)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	userService := services.NewUserService(users)
	tourService := services.NewTourService(tours)
	reviewService := services.NewReviewService(reviews, tours)
	bookingService := services.NewBookingService(bookings, tours)

	auth := handlers.NewAuthHandler(userService, mailer, cfg)
	tourHandler := handlers.NewTourHandler(tours, tourService, auth)
	userHandler := handlers.NewUserHandler(users, userService, auth)
	reviewHandler := handlers.NewReviewHandler(reviews, reviewService, auth)
	bookingHandler := handlers.NewBookingHandler(bookings, bookingService, auth)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api/v1/tours", func(r chi.Router) {
		tourHandler.Register(r)
		r.Route("/{tourID}/reviews", reviewHandler.Register)
		r.Route("/{tourID}/bookings", bookingHandler.RegisterNested)
	})
	router.Route("/api/v1/users", userHandler.Register)
	router.Route("/api/v1/reviews", reviewHandler.Register)
	router.Route("/api/v1/bookings", bookingHandler.Register)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		client:     client,
		broker:     broker,
	}, nil
}

// newMailer selects the outbound mail transport. The broker return is nil
// for the log backend.
func newMailer(ctx context.Context, cfg config.Config) (services.Mailer, mq.Backend, error) {
	switch cfg.Mail.Backend {
	case "rabbitmq":
		backend, err := mq.NewRabbitBackend(cfg.RabbitMQ)
		if err != nil {
			return nil, nil, err
		}
		return services.NewQueueMailer(backend, cfg.Mail.Channel), backend, nil
	case "pubsub":
		backend, err := mq.NewPubSubBackend(ctx, cfg.PubSub)
		if err != nil {
			return nil, nil, err
		}
		return services.NewQueueMailer(backend, cfg.Mail.Channel), backend, nil
	case "log":
		return services.LogMailer{}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown mail backend %q", cfg.Mail.Backend)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if s.broker != nil {
		_ = s.broker.Close()
	}
	if s.client != nil {
		_ = s.client.Disconnect(ctx)
	}
	return err
}
