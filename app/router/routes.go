// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/dto"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/handlers"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/middleware"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/config"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/utils"
)

const healthPath = "/api/v1/health"

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app            *fiber.App
	cfg            *config.ProductionConfig
	logger         *zap.Logger
	topUpHandler   handlers.TopUpHandlerInterface
	webhookHandler handlers.WebhookHandlerInterface
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	cfg *config.ProductionConfig,
	logger *zap.Logger,
	topUpHandler handlers.TopUpHandlerInterface,
	webhookHandler handlers.WebhookHandlerInterface,
) *FiberRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &FiberRouter{
		cfg:            cfg,
		logger:         logger,
		topUpHandler:   topUpHandler,
		webhookHandler: webhookHandler,
	}

	r.app = fiber.New(fiber.Config{
		AppName:      "Sephora Billing API",
		ServerHeader: "Sephora",
		ErrorHandler: r.errorHandler,
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return r
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.setupMiddleware()

	if r.cfg.Metrics.Enabled {
		path := r.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.app.Get(path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")
	api.Get("/health", r.healthCheck)

	// Provider callbacks are not rate limited; providers retry on 429
	payments := api.Group("/payments")
	payments.Post("/webhooks/:provider", r.webhookHandler.Webhook)

	topUps := api.Group("/top-ups")
	if r.cfg.Server.GlobalRateLimit > 0 {
		topUps.Use(limiter.New(limiter.Config{
			Max:        r.cfg.Server.GlobalRateLimit,
			Expiration: 1 * time.Minute,
			KeyGenerator: func(c fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
					Success: false,
					Message: "Too many requests. Please try again later.",
					Error: dto.ErrorDetail{
						Code: "RATE_LIMIT_EXCEEDED",
					},
				})
			},
		}))
	}
	if auth := middleware.NewAuthMiddleware(r.cfg.Server.APITokens); auth.Enabled() {
		topUps.Use(auth.Authenticate())
	} else {
		r.logger.Warn("top-up API is not protected: API_TOKENS is empty")
	}
	topUps.Post("/", r.topUpHandler.CreateTopUp)
	topUps.Get("/:uuid", r.topUpHandler.GetTopUpStatus)

	r.app.Use(r.notFoundHandler)

	r.logger.Info("routes configured")
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return generateRequestID()
		},
	}))

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			r.logger.Error("panic",
				zap.String("request_id", c.GetRespHeader("X-Request-ID")),
				zap.Any("error", e),
				zap.String("path", c.Path()),
				zap.String("method", c.Method()),
				zap.String("ip", c.IP()),
			)
		},
	}))

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	if len(r.cfg.Server.AllowedOrigins) > 0 {
		r.app.Use(cors.New(cors.Config{
			AllowOrigins: r.cfg.Server.AllowedOrigins,
			AllowMethods: []string{"GET", "POST", "HEAD", "OPTIONS"},
			AllowHeaders: []string{
				"Origin",
				"Content-Type",
				"Accept",
				"X-Request-ID",
			},
			ExposeHeaders: []string{"X-Request-ID"},
			MaxAge:        utils.CORSMaxAge,
		}))
	}

	r.app.Use(middleware.Metrics())
	r.app.Use(middleware.AccessLog(r.logger.Named("http"), healthPath))
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	r.logger.Info("starting server", zap.String("address", address))
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

// Health check endpoint
func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":    "ok",
			"timestamp": utils.UTCNow().Unix(),
			"version":   r.cfg.Deployment.Version,
			"service":   "sephora-billing",
		},
	})
}

// Not found handler
func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": c.GetRespHeader("X-Request-ID"),
			},
		},
	})
}

// Global error handler
func (r *FiberRouter) errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	r.logger.Error("unhandled request error", zap.Int("status", code), zap.String("path", c.Path()), zap.Error(err))

	message := "An internal server error occurred"
	if code < fiber.StatusInternalServerError {
		message = strings.TrimSpace(fe.Message)
	}

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: "INTERNAL_ERROR",
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": c.GetRespHeader("X-Request-ID"),
			},
		},
	})
}

// generateRequestID creates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
