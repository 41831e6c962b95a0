package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/factory"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/service"
	"github.com/vibast-solutions/ms-go-wallet-payments/config"
)

var (
	workerMode bool
	jobsLogger = factory.NewModuleLogger("jobs")
)

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Run expiration-related commands",
}

var expirePendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Cancel provider intents of pending transactions older than the pending timeout",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"expire_pending",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.ExpirePendingInterval },
			func(s *service.PaymentService, ctx context.Context) error {
				return s.RunExpirePendingBatch(ctx)
			},
		)
	},
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Run transaction notification commands",
}

var notificationsDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Publish pending terminal-status transaction events",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"notifications_dispatch",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.NotifyDispatchInterval },
			func(s *service.PaymentService, ctx context.Context) error {
				return s.RunDispatchNotificationsBatch(ctx)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(expireCmd)
	rootCmd.AddCommand(notificationsCmd)
	expireCmd.AddCommand(expirePendingCmd)
	notificationsCmd.AddCommand(notificationsDispatchCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(s *service.PaymentService, ctx context.Context) error,
) {
	cfg, paymentService, cleanup := mustCreatePaymentService()
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := jobsLogger.WithField("job", name)
	if !workerMode {
		if err := runJob(ctx, logger, paymentService, fn); err != nil {
			cleanup()
			os.Exit(1)
		}
		return
	}

	interval := intervalResolver(cfg)
	if interval <= 0 {
		logger.WithField("interval", interval.String()).Fatal("Invalid worker interval")
	}
	runWorker(ctx, logger, interval, paymentService, fn)
}

// runWorker runs the batch immediately and then once per interval until ctx is cancelled.
func runWorker(
	ctx context.Context,
	logger logrus.FieldLogger,
	interval time.Duration,
	paymentService *service.PaymentService,
	fn func(s *service.PaymentService, ctx context.Context) error,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.WithField("interval", interval.String()).Info("Worker started")
	_ = runJob(ctx, logger, paymentService, fn)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Worker shutdown requested")
			return
		case <-ticker.C:
			_ = runJob(ctx, logger, paymentService, fn)
		}
	}
}

func runJob(
	ctx context.Context,
	logger logrus.FieldLogger,
	paymentService *service.PaymentService,
	fn func(s *service.PaymentService, ctx context.Context) error,
) error {
	start := time.Now()
	err := fn(paymentService, ctx)
	entry := logger.WithField("latency", time.Since(start).String())
	if err != nil {
		entry.WithError(err).Error("job_failed")
		return err
	}
	entry.Info("job_completed")
	return nil
}
