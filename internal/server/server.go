package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cliptube/accounts/config"
	"github.com/cliptube/accounts/internal/db"
	"github.com/cliptube/accounts/internal/handlers"
	"github.com/cliptube/accounts/internal/logger"
	"github.com/cliptube/accounts/internal/mq"
	"github.com/cliptube/accounts/internal/services"
	"github.com/cliptube/accounts/internal/storage"
	"github.com/cliptube/accounts/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Server wraps the HTTP server and its collaborators.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     *mq.MQ
	log        *zap.Logger
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Auth.AccessSecret) == "" || strings.TrimSpace(cfg.Auth.RefreshSecret) == "" {
		return nil, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET are required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	uploader, err := newUploader(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if err := uploader.EnsureBucket(ctx); err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	broker, err := newBroker(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	var emitter *services.Emitter
	if broker != nil {
		emitter = services.NewEmitter(broker, log)
	}

	userRepo := store.NewUserRepository(dbConn)
	tokenService := services.NewTokenService(userRepo, cfg.Auth)
	sessionService := services.NewSessionService(userRepo, uploader, tokenService, emitter, log)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/users", func(r chi.Router) {
		handlers.AuthRouter(r, sessionService, cfg.Auth)
	})

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

	log.Info("server configured",
		zap.Int("port", port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("mq_backend", cfg.MQ.Backend),
	)

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		broker:     broker,
		log:        log,
	}, nil
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
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.broker != nil {
		_ = s.broker.Close()
	}
	if s.log != nil {
		_ = s.log.Sync()
	}
	return s.httpServer.Close()
}

func newUploader(ctx context.Context, cfg config.StorageConfig) (*storage.Uploader, error) {
	switch cfg.Backend {
	case "minio", "":
		client, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		return storage.NewUploader(client, cfg.MediaBaseURL), nil
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		return storage.NewUploader(client, cfg.MediaBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func newBroker(ctx context.Context, cfg config.MQConfig) (*mq.MQ, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		client, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return mq.New(client), nil
	case "pubsub":
		client, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return mq.New(client), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}
