package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"imgsquare/docs"
	"imgsquare/internal/config"
	"imgsquare/internal/database"
	"imgsquare/internal/database/migration"
	"imgsquare/internal/fetch"
	handlers "imgsquare/internal/http/handler"
	"imgsquare/internal/http/middleware"
	"imgsquare/internal/imageproc"
	"imgsquare/internal/logging"
	"imgsquare/internal/metrics"
	"imgsquare/internal/otel"
	"imgsquare/internal/repository"
	"imgsquare/internal/repository/postgres"
	"imgsquare/internal/service"
	"imgsquare/internal/storage"
)

// @title imgsquare API
// @version 1.0
// @description Crops images to 500x500 squares and hosts them.
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	logging.Setup(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracing")
	}

	objStore, err := newStorage(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("failed to initialize image storage")
	}

	// Upload history is optional; without a database only POST /upload is useful.
	var (
		imgRepo repository.ImageRepository
		pinger  handlers.Pinger
	)
	if cfg.Database.Enabled() {
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		if err := migration.EnsureMigrated(ctx, db, cfg.Database.Host); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		imgRepo = postgres.NewImagePostgres(db)
		pinger = db
	} else {
		log.Warn().Msg("DB_HOST not set, upload history disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pipelineMetrics, err := metrics.NewPipeline(reg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register pipeline metrics")
	}
	promMiddleware, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register http metrics")
	}

	imgSvc := service.NewImageService(service.Deps{
		Store:       objStore,
		Repo:        imgRepo,
		Transformer: imageproc.NewSquarer(cfg.Image.Size, cfg.Image.Quality),
		Fetcher:     fetch.NewHTTPFetcher(cfg.Image.FetchTimeout, cfg.Image.MaxUploadBytes),
		Metrics:     pipelineMetrics,
	}, service.Options{
		MaxFiles:     cfg.Image.MaxFiles,
		MaxFileBytes: cfg.Image.MaxUploadBytes,
	})

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		// Room for every file at its limit plus the rest of the form.
		BodyLimit: int(cfg.Image.MaxUploadBytes)*cfg.Image.MaxFiles + 1<<20,
	})

	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(otelfiber.Middleware(otelfiber.WithNext(func(c *fiber.Ctx) bool {
		return c.Path() == "/metrics"
	})))
	app.Use(middleware.Logger())
	app.Use(promMiddleware.Handler())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	handlers.RegisterRoutes(app, pinger, imgSvc)

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown")
		}
	}()

	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Str("storage", objStore.Name()).Msg("server listening")
	if err := app.Listen(addr); err != nil {
		log.Error().Err(err).Msg("failed to start server")
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}
}

func newStorage(cfg *config.AppConfig) (storage.Storage, error) {
	switch cfg.StorageDriver {
	case config.DriverMinIO:
		return storage.NewMinIO(cfg.MinIO)
	case config.DriverCloudinary, "":
		return storage.NewCloudinary(cfg.Cloudinary)
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", storage.ErrNotConfigured, cfg.StorageDriver)
	}
}
