package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockroom/stockroom/cmd/stockroom/cli"
	"github.com/stockroom/stockroom/internal/app"
	"github.com/stockroom/stockroom/internal/audit"
	audithttp "github.com/stockroom/stockroom/internal/audit/http"
	"github.com/stockroom/stockroom/internal/auth"
	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/masterdata/products"
	"github.com/stockroom/stockroom/internal/observability"
	"github.com/stockroom/stockroom/internal/platform/cache"
	"github.com/stockroom/stockroom/internal/platform/db"
	"github.com/stockroom/stockroom/internal/rbac"
	"github.com/stockroom/stockroom/internal/reports"
	"github.com/stockroom/stockroom/internal/sales/customers"
	"github.com/stockroom/stockroom/internal/sales/orders"
	"github.com/stockroom/stockroom/internal/shared"
	"github.com/stockroom/stockroom/internal/users"
	"github.com/stockroom/stockroom/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	redisOpts, err := jobs.RedisOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("parse redis address", slog.Any("error", err))
		os.Exit(1)
	}

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		ops := cli.NewJobsCLI(redisOpts, cfg.IdempotencyRetention)
		code := ops.Run(ctx, os.Args[2:], os.Stdout, os.Stderr)
		if err := ops.Close(); err != nil {
			logger.Warn("close jobs cli", slog.Any("error", err))
		}
		os.Exit(code)
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	versioned := cache.NewVersioned(redisClient, cfg.CacheTTL)

	jobsClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("close jobs client", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("close inspector", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	notifier := jobs.NewNotifier(jobsClient, versioned, metrics.Orders())

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	authService := auth.NewService(auth.NewRepository(dbpool), tokens)
	authHandler := auth.NewHandler(logger, authService)

	rbacService := rbac.NewService(rbac.NewPGStore(dbpool))
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	productService := products.NewService(products.NewRepository(dbpool))
	customerService := customers.NewService(customers.NewRepository(dbpool))
	inventoryService := inventory.NewService(inventory.NewRepository(dbpool), auditLogger, inventory.ServiceConfig{}, notifier, logger)

	orderService := orders.NewService(
		orders.NewRepository(dbpool),
		rbacService,
		logger,
		orders.ServiceConfig{TxTimeout: cfg.OrderTxTimeout},
		orders.WithAudit(auditLogger),
		orders.WithIdempotency(idempotencyStore),
		orders.WithNotifier(notifier),
		orders.WithMetrics(metrics.Orders()),
	)

	reportService := reports.NewService(reports.NewRepository(dbpool), versioned)
	auditService := audit.NewService(audit.NewRepository(dbpool))
	memberService := users.NewService(users.NewRepository(dbpool))

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		Tokens:           tokens,
		AuthHandler:      authHandler,
		ProductsHandler:  products.NewHandler(logger, productService, rbacMiddleware),
		CustomersHandler: customers.NewHandler(customerService, rbacMiddleware, logger),
		InventoryHandler: inventory.NewHandler(logger, inventoryService, rbacMiddleware),
		OrdersHandler:    orders.NewHandler(orderService, logger),
		ReportsHandler:   reports.NewHandler(logger, reportService, rbacMiddleware),
		AuditHandler:     audithttp.NewHandler(logger, auditService, rbacMiddleware),
		MembersHandler:   users.NewHandler(logger, memberService, rbacMiddleware),
		JobHandler:       jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
