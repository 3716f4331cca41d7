package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/flash_settlement/internal/accounts"
	"github.com/congo-pay/flash_settlement/internal/auth"
	"github.com/congo-pay/flash_settlement/internal/authority"
	"github.com/congo-pay/flash_settlement/internal/config"
	"github.com/congo-pay/flash_settlement/internal/funding"
	"github.com/congo-pay/flash_settlement/internal/identity"
	"github.com/congo-pay/flash_settlement/internal/ledger"
	"github.com/congo-pay/flash_settlement/internal/notification"
	"github.com/congo-pay/flash_settlement/internal/reconcile"
	"github.com/congo-pay/flash_settlement/internal/routes"
	"github.com/congo-pay/flash_settlement/internal/settlement"
)

// Server wraps the Fiber application and the background reconciler.
type Server struct {
	app       *fiber.App
	cfg       config.Config
	reconcile *reconcile.Job
	logger    *slog.Logger
}

// New wires every component on top of the given backends. Nil db or cache selects
// the in-memory implementations.
func New(ctx context.Context, cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	if db != nil {
		if err := ledger.Migrate(ctx, db); err != nil {
			return nil, err
		}
	}

	var (
		ledgerBackend ledger.Ledger
		journal       settlement.Repository
		identityRepo  identity.Repository
		accountRepo   accounts.Repository
	)
	if db != nil {
		ledgerBackend = ledger.NewPostgresLedger(db)
		journal = settlement.NewPostgresRepository(db)
		identityRepo = identity.NewPostgresRepository(db)
		accountRepo = accounts.NewPostgresRepository(db)
	} else {
		ledgerBackend = ledger.NewInMemory()
		journal = settlement.NewMemoryRepository()
		identityRepo = identity.NewMemoryRepository()
		accountRepo = accounts.NewMemoryRepository()
	}

	program := authority.NewProgramAuthority(cfg.ProgramID, cfg.ReserveLabel)
	if err := funding.ProvisionReserves(ctx, ledgerBackend, program, cfg.Reserves, logger); err != nil {
		return nil, fmt.Errorf("provision reserves: %w", err)
	}

	engine, err := settlement.NewEngine(ledgerBackend, program, settlement.FixedFraction{Divisor: cfg.ProfitDivisor}, logger)
	if err != nil {
		return nil, err
	}
	notifier := notification.NewLoggerNotifier(logger)

	accountSvc := accounts.NewService(accountRepo, ledgerBackend)
	fundingSvc, err := funding.NewService(ledgerBackend, accountSvc, nil)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})
	routes.Setup(app, routes.Deps{
		Cfg:          cfg,
		DB:           db,
		Cache:        cache,
		Logger:       logger,
		Identity:     identity.NewService(identityRepo),
		IdentityRepo: identityRepo,
		Auth:         auth.NewService(cfg, identityRepo),
		Accounts:     accountSvc,
		Funding:      fundingSvc,
		Settlements:  settlement.NewService(engine, journal, notifier, logger),
	})

	logger.Info("settlement engine ready",
		slog.String("program_id", cfg.ProgramID),
		slog.String("reserve_authority", program.Identity().String()),
		slog.Int("reserves", len(cfg.Reserves)),
	)

	return &Server{
		app:       app,
		cfg:       cfg,
		reconcile: reconcile.NewJob(ledgerBackend, cfg.Reserves, journal, notifier, logger),
		logger:    logger,
	}, nil
}

// App exposes the underlying Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the reconciler and then the HTTP server.
func (s *Server) Listen() error {
	if s.cfg.ReconcileSpec != "" && len(s.cfg.Reserves) > 0 {
		if err := s.reconcile.Start(s.cfg.ReconcileSpec); err != nil {
			return err
		}
	}
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server and the reconciler.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	s.reconcile.Stop(ctx)
	return err
}
