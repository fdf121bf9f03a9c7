package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/isp-billing/internal"
	"github.com/frahmantamala/isp-billing/internal/auth"
	authpg "github.com/frahmantamala/isp-billing/internal/auth/postgres"
	"github.com/frahmantamala/isp-billing/internal/core/events"
	"github.com/frahmantamala/isp-billing/internal/notification"
	notificationpg "github.com/frahmantamala/isp-billing/internal/notification/postgres"
	"github.com/frahmantamala/isp-billing/internal/payment"
	paymentpg "github.com/frahmantamala/isp-billing/internal/payment/postgres"
	"github.com/frahmantamala/isp-billing/internal/paymentgateway"
	"github.com/frahmantamala/isp-billing/internal/sms"
	smspg "github.com/frahmantamala/isp-billing/internal/sms/postgres"
	"github.com/frahmantamala/isp-billing/internal/transport/rest"
	"github.com/frahmantamala/isp-billing/internal/transport/swagger"
	"github.com/frahmantamala/isp-billing/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server together with the in-process settlement scheduler`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

// Dependencies is the wiring shared by the server and the worker commands.
type Dependencies struct {
	Config    *internal.Config
	DB        *sqlx.DB
	Gorm      *gorm.DB
	Logger    *slog.Logger
	EventBus  *events.EventBus
	Scheduler *paymentgateway.Scheduler
	Payments  *payment.Service
	SMS       *sms.Service
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	if _, err := swagger.LoadSpec(context.Background(), deps.Config.Server.OpenAPIPath); err != nil {
		deps.Logger.Warn("openapi document not served", "error", err)
		deps.Config.Server.OpenAPIPath = ""
	}

	router := chi.NewRouter()
	setupRoutes(router, deps)

	recoverPending(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("server failed to start", "error", err)
			deps.Close()
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func setupRoutes(router *chi.Mux, deps *Dependencies) {
	cfg := deps.Config

	tokens := auth.NewJWTTokenGenerator(
		cfg.Security.AccessTokenSecret,
		cfg.Security.RefreshTokenSecret,
		cfg.Security.AccessTokenDuration,
		cfg.Security.RefreshTokenDuration,
	)
	authService := auth.NewService(authpg.NewRepository(deps.Gorm), tokens, cfg.Security.BCryptCost, deps.Logger)
	notificationService := notification.NewService(notificationpg.NewNotificationRepository(deps.Gorm), deps.Logger)

	rest.RegisterAllRoutes(router, rest.Routes{
		DB:           deps.DB,
		Scheduler:    deps.Scheduler,
		Auth:         auth.NewHandler(authService, deps.Logger),
		RBAC:         auth.NewRBACAuthorization(auth.NewPermissionChecker(), deps.Logger),
		ABAC:         &auth.ABACPolicy{},
		Payment:      payment.NewHandler(deps.Payments, deps.Logger),
		Notification: notification.NewHandler(notificationService, deps.Logger),
		SMS:          sms.NewHandler(deps.SMS, deps.Logger),
		ServiceKey:   cfg.Security.ServiceKey,
		OpenAPIPath:  cfg.Server.OpenAPIPath,
	}, deps.Logger)
}

func initializeDependencies() (*Dependencies, error) {
	return initializeDependenciesWith(nil)
}

// initializeDependenciesWith lets a command adjust the payment settings before
// the scheduler is built.
func initializeDependenciesWith(override func(*internal.PaymentConfig)) (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if override != nil {
		override(&config.Payment)
	}

	lg := logger.Configure(os.Stdout, config.Observability.Logging.Level, config.Observability.Logging.Format)

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	config.Payment = config.Payment.WithDefaults()
	paymentCfg := config.Payment
	bus := events.NewEventBus(lg)
	paymentRepo := paymentpg.NewPaymentRepository(gormDB)

	outcomes := paymentgateway.NewRandomOutcome(paymentCfg.SuccessRate, paymentCfg.FailureReason, nil)
	settler := payment.NewSettler(paymentRepo, outcomes, bus, payment.SettlerConfig{
		MaxRetries:     paymentCfg.MaxRetries,
		RetryBaseDelay: paymentCfg.RetryBaseDelay,
	}, lg)

	scheduler := paymentgateway.NewScheduler(settler, paymentgateway.Config{
		SettlementDelay: paymentCfg.SettlementDelay,
		MaxWorkers:      paymentCfg.MaxWorkers,
		JobQueueSize:    paymentCfg.JobQueueSize,
		WorkerPoolSize:  paymentCfg.WorkerPoolSize,
	}, lg)

	payments := payment.NewService(paymentRepo, scheduler, bus, paymentCfg.Currency, lg)

	sender := sms.NewSimulatedSender(config.SMS.SendDelay, config.SMS.FailureRate, nil, lg)
	smsService := sms.NewService(smspg.NewRepository(gormDB), sender, lg)

	payment.NewEventHandler(lg).RegisterEventHandlers(bus)
	sms.NewEventHandler(smsService, lg).RegisterEventHandlers(bus)

	lg.Info("settlement scheduler started",
		"settlement_delay", paymentCfg.SettlementDelay,
		"success_rate", paymentCfg.SuccessRate,
		"max_workers", paymentCfg.MaxWorkers)

	return &Dependencies{
		Config:    config,
		DB:        db,
		Gorm:      gormDB,
		Logger:    lg,
		EventBus:  bus,
		Scheduler: scheduler,
		Payments:  payments,
		SMS:       smsService,
	}, nil
}

// Close stops settlement, drains in-flight events and closes the pool. Safe to
// call more than once.
func (d *Dependencies) Close() {
	d.Scheduler.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.EventBus.Wait(ctx); err != nil {
		d.Logger.Warn("event handlers still running at shutdown", "error", err)
	}

	if err := d.DB.Close(); err != nil {
		d.Logger.Debug("database close", "error", err)
	}
}

func recoverPending(deps *Dependencies) {
	ctx, cancel := internal.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := deps.Payments.RecoverPending(ctx)
	if err != nil {
		deps.Logger.Error("settlement recovery failed", "error", err)
		return
	}
	deps.Logger.Info("settlement recovery complete", "rescheduled", n)
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm shares the sqlx pool with gorm.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
}
