package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/frahmantamala/isp-billing/internal"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers without the HTTP API.`,
}

var settlementWorkerCmd = &cobra.Command{
	Use:   "settlement",
	Short: "Settle processing transactions",
	Long:  `Reschedule every processing transaction and run the settlement worker pool until interrupted`,
	Run: func(cmd *cobra.Command, args []string) {
		startSettlementWorker()
	},
}

var (
	maxWorkers     int
	jobQueueSize   int
	workerPoolSize int
)

func startSettlementWorker() {
	deps, err := initializeDependenciesWith(func(cfg *internal.PaymentConfig) {
		cfg.MaxWorkers = getIntFlag(maxWorkers, cfg.MaxWorkers)
		cfg.JobQueueSize = getIntFlag(jobQueueSize, cfg.JobQueueSize)
		cfg.WorkerPoolSize = getIntFlag(workerPoolSize, cfg.WorkerPoolSize)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	deps.Logger.Info("starting settlement worker",
		"max_workers", deps.Config.Payment.MaxWorkers,
		"job_queue_size", deps.Config.Payment.JobQueueSize,
		"worker_pool_size", deps.Config.Payment.WorkerPoolSize)

	recoverPending(deps)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	deps.Logger.Info("settlement worker is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	deps.Logger.Info("received signal, shutting down settlement worker",
		"signal", sig,
		"pending", deps.Scheduler.Pending())
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	settlementWorkerCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of workers (overrides config)")
	settlementWorkerCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 0, "Job queue buffer size (overrides config)")
	settlementWorkerCmd.Flags().IntVar(&workerPoolSize, "worker-pool-size", 0, "Worker pool channel size (overrides config)")

	workerCmd.AddCommand(settlementWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
