package router

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/fieldsurvey/fieldsurvey/internal/config"
	"github.com/fieldsurvey/fieldsurvey/internal/counter"
	"github.com/fieldsurvey/fieldsurvey/internal/events"
	"github.com/fieldsurvey/fieldsurvey/internal/handlers"
	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/middleware"
	"github.com/fieldsurvey/fieldsurvey/internal/models"
	"github.com/fieldsurvey/fieldsurvey/internal/services"
	"github.com/fieldsurvey/fieldsurvey/internal/store"
	"github.com/fieldsurvey/fieldsurvey/internal/uploads"
	"github.com/fieldsurvey/fieldsurvey/internal/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Dependencies are the backends the HTTP layer works against
type Dependencies struct {
	Store   store.Store
	Counter counter.Counter
	Files   *uploads.Store
	Emitter *events.Emitter
}

// Setup configures all routes and middlewares
func Setup(app *fiber.App, logger *logging.Logger, deps Dependencies, cfg config.Config) *handlers.Handler {
	h := handlers.New(logger, deps.Store, deps.Counter, deps.Files, deps.Emitter, cfg.Cache.SurveyTTL)

	// Global middlewares
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-API-Key,X-Request-ID",
	}))
	app.Use(logging.FiberMiddleware(logger, logging.DefaultMiddlewareConfig()))

	// Health check (no auth required)
	app.Get("/health", h.Health)

	// Shared secret on mutating requests; reads stay open
	auth := middleware.SharedSecretAuth(logger, cfg.Auth.Secrets, cfg.Auth.Enabled)
	v1 := app.Group("/v1", auth)

	v1.Get("/health", h.Health)

	// Survey lifecycle
	v1.Get("/surveys", h.ListSurveys)
	v1.Post("/surveys/:status", h.ActivateSurvey)
	v1.Get("/surveys/:code", h.GetSurvey)
	v1.Post("/surveys/:code/close", h.CloseSurvey)
	v1.Get("/surveys/:code/responses", h.ListSurveyResponses)
	v1.Get("/surveys/:code/full", h.GetSurveyFull)
	v1.Get("/surveys/:code/readings", h.ListSurveyReadings)

	// Intake
	v1.Get("/responses", h.ListResponses)
	v1.Post("/responses", h.SubmitResponse)
	v1.Post("/responses/:id/answers/:input_id/file", h.AttachFile)
	v1.Post("/readings", h.SubmitReadings)

	// Installations
	v1.Post("/installations", registrationLimiter(cfg.Server.RegisterPerMinute), h.RegisterInstallation)

	// Stored attachments
	v1.Get("/uploads/:filename", h.ServeUpload)

	// 404 handler
	app.Use(h.NotFound)

	return h
}

// registrationLimiter caps registrations per client IP; perMinute <= 0 disables it
func registrationLimiter(perMinute int) fiber.Handler {
	if perMinute <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:        perMinute,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(
				models.Failure(int(services.CodeInvalidRequest), "too many registrations, retry later"))
		},
	})
}

// New creates a new Fiber app with configuration
func New(logger *logging.Logger, deps Dependencies, cfg config.Config) *fiber.App {
	// strings parsed from a request outlive it in the memory store, so
	// params and JSON strings must not alias fasthttp's buffers
	app := fiber.New(fiber.Config{
		AppName:               "fieldsurvey",
		DisableStartupMessage: true,
		Immutable:             true,
		BodyLimit:             cfg.Uploads.MaxBodyBytes(),
		ReadTimeout:           utils.DefaultRequestTimeout,
		WriteTimeout:          utils.DefaultRequestTimeout,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.ConfigStd.Unmarshal,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	h := Setup(app, logger, deps, cfg)
	app.Hooks().OnShutdown(func() error {
		h.Close()
		return nil
	})

	return app
}
