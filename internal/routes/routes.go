package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/flash_settlement/internal/accounts"
	"github.com/congo-pay/flash_settlement/internal/auth"
	"github.com/congo-pay/flash_settlement/internal/config"
	"github.com/congo-pay/flash_settlement/internal/funding"
	"github.com/congo-pay/flash_settlement/internal/identity"
	"github.com/congo-pay/flash_settlement/internal/middleware"
	"github.com/congo-pay/flash_settlement/internal/settlement"
)

const loginAttemptsPerMinute = 5

// Deps aggregates the services and backends required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	Identity     *identity.Service
	IdentityRepo identity.Repository
	Auth         *auth.Service
	Accounts     *accounts.Service
	Funding      *funding.Service
	Settlements  *settlement.Service
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if !d.Cfg.IsDevelopment() {
		app.Use(middleware.Audit(d.Logger))
	} else {
		// [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterIdentityRoutes(api, identity.NewHandler(d.Identity))
	loginLimiter := middleware.RateLimit(d.Cache, "login", loginAttemptsPerMinute/60.0, loginAttemptsPerMinute, middleware.LoginKey)
	authHandler := auth.NewHandler(d.Identity, d.Auth, d.Accounts)
	RegisterAuthRoutes(api, authHandler, loginLimiter)

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(d.Auth))
	protected.Post("/auth/logout", authHandler.Logout)
	RegisterProfileRoute(protected, d.IdentityRepo)
	RegisterAccountRoutes(protected, accounts.NewHandler(d.Accounts))

	idem := middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	RegisterFundingRoutes(protected, funding.NewHandler(d.Funding), idem)

	settlementLimiter := middleware.RateLimit(d.Cache, "settlement", d.Cfg.SettlementRate, d.Cfg.SettlementBurst, middleware.PrincipalKey)
	RegisterSettlementRoutes(protected, settlement.NewHandler(d.Settlements), settlementLimiter, idem)
}
