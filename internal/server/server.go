package server

import (
	"strings"
	"time"

	"github.com/castos/studio/internal/auth"
	"github.com/castos/studio/internal/client"
	"github.com/castos/studio/internal/handler"
	"github.com/castos/studio/internal/middleware"
	ws "github.com/castos/studio/internal/websocket"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

// Deps is everything the HTTP surface needs
type Deps struct {
	Projects    *handler.ProjectHandler
	Auth        *handler.AuthHandler
	Sessions    *ws.Sessions
	Credentials *middleware.CredentialsMiddleware
	RateLimiter *middleware.RateLimiter

	SubmitPerHour int
	ExportPerHour int
	LogLevel      string

	// Health reports which optional integrations are live
	Health func() fiber.Map
}

// New builds the Fiber app with every route registered
func New(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(d.LogLevel, "debug") {
		// headers and query params can carry bearer tokens and are never logged
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${body}\n"
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowMethods:  "GET,POST,DELETE,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,Authorization",
		ExposeHeaders: "X-Snapshot-Stale,Retry-After",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		services := fiber.Map{}
		if d.Health != nil {
			services = d.Health()
		}
		return c.JSON(fiber.Map{
			"status":   "ok",
			"services": services,
		})
	})

	extract := d.Credentials.Extract()

	// ForwardAuth verification endpoint
	app.Get("/auth/verify", extract, d.Auth.Verify)

	api := app.Group("/api", extract)
	api.Get("/me", middleware.RequireUser(), d.Auth.Me)

	projects := api.Group("/projects")
	projects.Post("/run", d.RateLimiter.SubmitLimit(d.SubmitPerHour), d.Projects.Run)
	projects.Get("/", d.Projects.List)
	projects.Get("/:id", d.Projects.Get)
	projects.Get("/:id/view", d.Projects.View)
	projects.Delete("/:id", d.Projects.Delete)
	projects.Post("/:id/export", d.RateLimiter.ExportLimit(d.ExportPerHour), d.Projects.Export)

	api.Get("/reports/:jobId", d.Projects.ReportStatus)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, extract)

	app.Get("/ws/projects", websocket.New(d.Sessions.Projects))
	app.Get("/ws/projects/:id", websocket.New(d.Sessions.Project))
	app.Get("/ws/reports/:jobId", websocket.New(d.Sessions.Report))

	return app
}

// NewVerifier picks the token verifier for the configured identity setup.
// Either argument may be nil or empty; nil means claims are never verified.
func NewVerifier(jwks auth.TokenVerifier, hmacSecret string) auth.TokenVerifier {
	var chain auth.Chain
	if jwks != nil {
		chain = append(chain, jwks)
	}
	if hmacSecret != "" {
		chain = append(chain, auth.NewHMACVerifier(hmacSecret))
	}
	if len(chain) == 0 {
		return nil
	}
	return chain
}

// HealthReport lists which integrations this instance runs with. Any
// argument may be nil.
func HealthReport(backend *client.CastOSClient, redisClient *redis.Client, storage client.ReportStorage, clerk auth.TokenVerifier, gatewayMode bool) func() fiber.Map {
	return func() fiber.Map {
		return fiber.Map{
			"castos":  backend != nil && backend.IsConfigured(),
			"redis":   redisClient != nil,
			"r2":      storage != nil,
			"clerk":   clerk != nil,
			"gateway": gatewayMode,
		}
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
