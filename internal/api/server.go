package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dhima/datman/internal/api/handlers"
	"github.com/dhima/datman/internal/api/middleware"
	"github.com/dhima/datman/internal/logging"
	"github.com/dhima/datman/pkg/config"
	"github.com/dhima/datman/pkg/dataerr"
	"github.com/dhima/datman/pkg/objectstore"
	"github.com/dhima/datman/pkg/sqldb"
	"github.com/dhima/datman/platform/events"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// Server is the HTTP gateway in front of the database and object storage clients.
type Server struct {
	config    config.App
	logger    logging.Logger
	router    *gin.Engine
	db        *sqldb.Client
	objects   *objectstore.Client
	publisher *events.Publisher
}

// NewServer builds the clients described by cfg and the router serving them.
// A backend that is configured but unreachable does not stop startup: its client
// keeps the parameters and reconnects on first use.
func NewServer(ctx context.Context, cfg config.App, logger logging.Logger) (*Server, error) {
	logger = logging.OrNoOp(logger)
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	zl := logging.Zap(logger)
	s := &Server{config: cfg, logger: logger}

	dbOpts := []sqldb.Option{sqldb.WithLogger(zl)}
	if len(cfg.KafkaBrokers) > 0 {
		s.publisher = events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, zl.Named("events"))
		dbOpts = append(dbOpts, sqldb.WithNotifier(s.publisher))
	}
	s.db = sqldb.New(dbOpts...)
	s.objects = objectstore.New(objectstore.WithLogger(zl))

	if cfg.DatabaseParams != "" {
		if err := s.connect("database", s.db.Connect(ctx, cfg.DatabaseParams)); err != nil {
			return nil, err
		}
	}
	if cfg.ObjectStorageParams != "" {
		if err := s.connect("object storage", s.objects.Connect(ctx, cfg.ObjectStorageParams)); err != nil {
			return nil, err
		}
	}

	s.setupRouter()
	return s, nil
}

// connect fails only for rejected parameters.
func (s *Server) connect(backend string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, dataerr.ErrInvalidArgument) {
		return fmt.Errorf("%s parameters: %w", backend, err)
	}
	s.logger.Warn(backend+" unavailable at startup", zap.Error(err))
	return nil
}

func (s *Server) setupRouter() {
	router := gin.New()
	zl := logging.Zap(s.logger)

	router.Use(ginzap.RecoveryWithZap(zl, true))
	router.Use(middleware.RequestID())
	router.Use(ginzap.Ginzap(zl, time.RFC3339, true))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  s.config.CORSOrigins,
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}))

	router.GET("/health", handlers.NewHealthHandler(s.logger).Health)
	router.GET("/metrics", handlers.NewMetricsHandler(s.logger, s.db).Metrics)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := router.Group("/api/v1")
	{
		tableHandler := handlers.NewTableHandler(s.logger, s.db, s.config.DefaultPageSize)
		tables := v1.Group("/tables/:table")
		{
			tables.POST("/rows", tableHandler.InsertRows)
			tables.PUT("/rows", tableHandler.UpdateRows)
			tables.DELETE("/rows", tableHandler.DeleteRows)
			tables.GET("/duplicates", tableHandler.FindDuplicates)
			tables.DELETE("/duplicates", tableHandler.DeleteDuplicates)
		}

		v1.POST("/query", handlers.NewQueryHandler(s.logger, s.db, s.config.AllowRawQuery).Execute)

		objectHandler := handlers.NewObjectHandler(s.logger, s.objects)
		v1.PUT("/objects/:bucket/*key", objectHandler.PutObject)
		v1.GET("/objects/:bucket/*key", objectHandler.GetObject)
	}

	s.router = router
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on the configured port until SIGINT or SIGTERM, then drains
// in-flight requests and closes the clients.
func (s *Server) Serve() error {
	addr := ":" + s.config.APIPort
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server",
			zap.String("address", addr),
			zap.String("environment", s.config.Environment),
			zap.Bool("raw_query", s.config.AllowRawQuery),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		s.Close()
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-quit:
	}
	s.logger.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Error("server forced to shutdown", zap.Error(err))
		s.Close()
		return err
	}

	s.Close()
	s.logger.Info("server stopped")
	return nil
}

// Close releases the database connection and the event publisher.
func (s *Server) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Error("failed to close database connection", zap.Error(err))
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Error("failed to close event publisher", zap.Error(err))
		}
	}
}
