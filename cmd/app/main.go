package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	jwtware "github.com/gofiber/jwt/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wichananm65/nfc-card-backend/internal/cache"
	"github.com/wichananm65/nfc-card-backend/internal/config"
	"github.com/wichananm65/nfc-card-backend/internal/finance"
	"github.com/wichananm65/nfc-card-backend/internal/logging"
	"github.com/wichananm65/nfc-card-backend/internal/order"
	"github.com/wichananm65/nfc-card-backend/internal/payment"
	"github.com/wichananm65/nfc-card-backend/internal/pricing"
	"github.com/wichananm65/nfc-card-backend/internal/user"
)

func main() {
	// config warnings go through the JSON logger; the level is applied once known
	logging.Init(os.Stderr, "info")
	cfg := config.Load()
	logger := logging.Init(os.Stderr, cfg.LogLevel)

	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		orders     order.Repository = order.NewInMemoryRepository()
		financeRep finance.Repository
		drafts     order.DraftStore = order.NewInMemoryDraftStore()
		readCache  cache.Cache      = cache.Noop{}
	)

	if cfg.DatabaseURL != "" {
		db := mustOpenDB(ctx, cfg.DatabaseURL)
		defer db.Close()

		mustExec(ctx, db, order.Schema)
		mustExec(ctx, db, finance.Schema)

		pg := finance.NewPostgresRepository(db)
		if err := pg.SeedIfEmpty(ctx, finance.DefaultSeed(time.Now())); err != nil {
			logger.Warn("finance seed failed", slog.Any("error", err))
		}
		financeRep = pg
		orders = order.NewPostgresRepository(db)
		logger.Info("using postgres storage")
	} else {
		financeRep = finance.NewInMemoryRepository(finance.DefaultSeed(time.Now()))
		logger.Info("DATABASE_URL not set, using in-memory storage")
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()

		rc := cache.NewRedisCache(rdb, cfg.CacheTTL)
		if err := rc.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, drafts stay in memory and reads are not cached", slog.Any("error", err))
		} else {
			readCache = rc
			drafts = order.NewRedisDraftStore(rdb, cfg.DraftTTL)
			logger.Info("using redis for drafts and cache", slog.String("addr", cfg.RedisAddr))
		}
	}

	financeService := finance.NewService(financeRep, readCache, finance.Options{
		Latency:     cfg.FinanceLatency,
		FailureRate: cfg.FinanceFailureRate,
	})
	gateway := payment.NewSimulatedGateway(cfg.GatewaySuccessRate, cfg.GatewayDelay, nil)
	orderService := order.NewService(drafts, orders, gateway, ledger(financeService), cfg.SubmitTimeout)

	app := fiber.New()
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logging.Middleware(logger))
	setupCORS(app, cfg.CORSOrigins)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	pricing.NewHandler().RegisterPublicRoutes(app)

	app.Use(jwtware.New(jwtware.Config{
		SigningKey: []byte(cfg.JWTSecret),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
		},
	}))

	order.NewHandler(orderService).RegisterProtectedRoutes(app)

	admin := app.Group("/api/v1/admin", user.RequireAdmin)
	finance.NewHandler(financeService).RegisterAdminRoutes(admin)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("shutdown failed", slog.Any("error", err))
		}
	}()

	logger.Info("listening", slog.String("addr", cfg.Addr))
	if err := app.Listen(cfg.Addr); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// ledger posts every paid order to the finance transaction list.
func ledger(fs *finance.Service) order.PurchaseRecorder {
	return order.PurchaseRecorderFunc(func(ctx context.Context, c order.Confirmation) error {
		_, err := fs.RecordPurchase(ctx, finance.Purchase{
			OrderID:       c.TransactionID,
			CustomerName:  c.ShipTo.Name,
			CustomerEmail: c.ShipTo.Email,
			Product:       string(c.CardType),
			Quantity:      c.Quantity,
			Amount:        c.Total,
			CardLast4:     c.CardLast4,
			At:            c.CreatedAt,
		})
		return err
	})
}

func setupCORS(app *fiber.App, origins string) {
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
}

func mustOpenDB(ctx context.Context, dbURL string) *sql.DB {
	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		panic(err)
	}

	if err := db.PingContext(ctx); err != nil {
		panic(err)
	}

	return db
}

func mustExec(ctx context.Context, db *sql.DB, stmts []string) {
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			panic(err)
		}
	}
}
