package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authlibservice "github.com/vibast-solutions/lib-go-auth/service"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/auth"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/controller"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/event"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/factory"
	paymentgrpc "github.com/vibast-solutions/ms-go-wallet-payments/app/grpc"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/provider"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/ratelimit"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/repository"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/service"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/types"
	"github.com/vibast-solutions/ms-go-wallet-payments/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const grpcHealthPrefix = "/grpc.health.v1.Health/"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  "Start both HTTP (Echo) and gRPC servers for the wallet payments service.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, paymentService, cleanup := mustCreatePaymentService()
	defer cleanup()

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logrus.Fatal("AUTH_JWT_SECRET is required to serve public payment routes")
	}

	paymentController := controller.NewPaymentController(paymentService)
	grpcPaymentServer := paymentgrpc.NewServer(paymentService)

	authGRPCClient, err := authclient.NewGRPCClientFromAddr(context.Background(), cfg.InternalEndpoints.AuthGRPCAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth gRPC client")
	}
	defer authGRPCClient.Close()

	internalAuthService := authlibservice.NewInternalAuthService(authGRPCClient)
	echoInternalAuthMiddleware := authmiddleware.NewEchoInternalAuthMiddleware(internalAuthService)
	grpcInternalAuthMiddleware := authmiddleware.NewGRPCInternalAuthMiddleware(internalAuthService)

	e := setupHTTPServer(cfg, paymentController, echoInternalAuthMiddleware)
	grpcSrv, healthSrv, lis := setupGRPCServer(cfg, grpcPaymentServer, grpcInternalAuthMiddleware)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	go func() {
		logrus.WithField("addr", lis.Addr().String()).Info("Starting gRPC server")
		if err := grpcSrv.Serve(lis); err != nil {
			logrus.WithError(err).Fatal("gRPC server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")
	healthSrv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}
	grpcSrv.GracefulStop()

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	cfg *config.Config,
	paymentController *controller.PaymentController,
	internalAuthMiddleware *authmiddleware.EchoInternalAuthMiddleware,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
				"request_id": v.RequestID,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/health", paymentController.Health)

	// Public routes authenticate the end user with a bearer token.
	public := e.Group("/v1/payments", echomiddleware.RequestID(), auth.JWTMiddleware(cfg.Auth.JWTSecret, factory.NewModuleLogger("jwt-auth")))
	public.POST("", paymentController.CreatePayment)
	public.GET("/:id", paymentController.GetMyTransaction)

	internal := e.Group("/payments", requireRequestID(), internalAuthMiddleware.RequireInternalAccess(cfg.App.ServiceName))
	internal.GET("", paymentController.ListTransactions)
	internal.GET("/:id", paymentController.GetTransaction)

	// Providers authenticate through payload signatures.
	webhooks := e.Group("/webhooks", webhookMiddleware()...)
	webhooks.POST("/stripe", paymentController.StripeWebhook)
	webhooks.POST("/yookassa", paymentController.YooKassaWebhook)

	return e
}

// webhookMiddleware bounds unauthenticated provider bodies before any handler reads them.
func webhookMiddleware() []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		echomiddleware.BodyLimit(types.WebhookBodyLimit),
		echomiddleware.RequestID(),
	}
}

func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "x-request-id header is required"})
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

func setupGRPCServer(
	cfg *config.Config,
	paymentServer *paymentgrpc.Server,
	internalAuthMiddleware *authmiddleware.GRPCInternalAuthMiddleware,
) (*grpc.Server, *health.Server, net.Listener) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			paymentgrpc.RecoveryInterceptor(),
			paymentgrpc.SkipMethodPrefix(grpcHealthPrefix, paymentgrpc.RequestIDInterceptor()),
			paymentgrpc.LoggingInterceptor(),
			paymentgrpc.SkipMethodPrefix(grpcHealthPrefix, internalAuthMiddleware.UnaryRequireInternalAccess(cfg.App.ServiceName)),
		),
	)
	types.RegisterPaymentsServiceServer(grpcSrv, paymentServer)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus(types.PaymentsServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	return grpcSrv, healthSrv, lis
}

func mustOpenDatabase(cfg *config.Config) (*sql.DB, repository.Dialect) {
	dialect := repository.Dialect(cfg.Database.Driver)
	db, err := sql.Open(dialect.DriverName(), cfg.Database.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	return db, dialect
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}
	return cfg
}

func mustCreatePaymentService() (*config.Config, *service.PaymentService, func()) {
	cfg := mustLoadConfig()
	db, dialect := mustOpenDatabase(cfg)

	transactionRepo := repository.NewTransactionRepository(db, dialect)
	walletRepo := repository.NewWalletRepository(db, dialect)
	repos := service.Repositories{
		Transactions:      transactionRepo,
		TransactionEvents: repository.NewTransactionEventRepository(db, dialect),
		WebhookEvents:     repository.NewWebhookEventRepository(db, dialect),
		Wallets:           walletRepo,
	}
	ledgerService := service.NewLedgerService(repository.NewLedgerRepository(db, dialect, walletRepo))
	commissionService := service.NewCommissionService(
		repository.NewCommissionPolicyRepository(db, dialect),
		cfg.Payments.DefaultCommissionPercent,
	)

	var redisClient *redis.Client
	var limiter ratelimit.Limiter
	if cfg.RateLimit.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	} else {
		limiter = ratelimit.NewSQLLimiter(transactionRepo, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	}

	var publisher event.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = event.NewKafkaPublisher(factory.NewModuleLogger("kafka-publisher"), cfg.Kafka.Brokers, cfg.Kafka.Topic)
	} else {
		publisher = event.NewLoggingPublisher(factory.NewModuleLogger("event-publisher"))
	}

	paymentService := service.NewPaymentService(
		repos,
		ledgerService,
		commissionService,
		limiter,
		publisher,
		buildProviderRegistry(cfg),
		cfg.Payments,
	)

	cleanup := func() {
		if err := publisher.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close event publisher")
		}
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close redis client")
			}
		}
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, paymentService, cleanup
}

func buildProviderRegistry(cfg *config.Config) *provider.Registry {
	providers := make([]provider.Provider, 0, 3)
	if cfg.Stripe.SecretKey != "" {
		providers = append(providers, provider.NewStripeProvider(provider.StripeConfig{
			SecretKey:                 cfg.Stripe.SecretKey,
			WebhookSecret:             cfg.Stripe.WebhookSecret,
			Currency:                  cfg.Stripe.Currency,
			SignatureToleranceSeconds: cfg.Stripe.SignatureToleranceSeconds,
			HTTPTimeout:               cfg.Stripe.HTTPTimeout,
			APIURL:                    cfg.Stripe.APIURL,
		}))
	}
	if cfg.YooKassa.ShopID != "" {
		providers = append(providers, provider.NewYooKassaProvider(provider.YooKassaConfig{
			ShopID:        cfg.YooKassa.ShopID,
			SecretKey:     cfg.YooKassa.SecretKey,
			WebhookSecret: cfg.YooKassa.WebhookSecret,
			ReturnURL:     cfg.YooKassa.ReturnURL,
			Currency:      cfg.YooKassa.Currency,
			APIURL:        cfg.YooKassa.APIURL,
			HTTPTimeout:   cfg.YooKassa.HTTPTimeout,
		}))
	}
	if cfg.Payments.MockEnabled {
		providers = append(providers, provider.NewMockProvider())
	}
	if len(providers) == 0 {
		logrus.Warn("No payment providers configured; payment creation will be rejected")
	}

	return provider.NewRegistry(cfg.Payments.DefaultProvider, providers...)
}
