package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nemanja-m/hivemind/internal/shared/config"
	"github.com/nemanja-m/hivemind/internal/shared/logging"
	"github.com/nemanja-m/hivemind/internal/worker/api/grpc"
	"github.com/nemanja-m/hivemind/internal/worker/service"

	_ "github.com/nemanja-m/hivemind/pkg/jobs/password"
	_ "github.com/nemanja-m/hivemind/pkg/jobs/substring"
)

var (
	cfgFile    string
	masterAddr string
	slots      int
)

var rootCmd = &cobra.Command{
	Use:   "hivemind-worker",
	Short: "Serve work slots to a hivemind master",
	Long:  `hivemind-worker starts an executor server, joins the master with a number
of work slots and exits once the master has released every slot.`,
	Example:      `  hivemind-worker --master 10.0.0.1:7877 --slots 8`,
	SilenceUsage: true,
	RunE:         runWorker,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "path to config file")
	rootCmd.Flags().StringVar(&masterAddr, "master", "", "master registry address")
	rootCmd.Flags().IntVar(&slots, "slots", 0, "number of work slots to offer")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWorker(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("master") {
		cfg.Master.Addr = masterAddr
	}
	if cmd.Flags().Changed("slots") {
		if slots <= 0 {
			return fmt.Errorf("slots must be greater than 0, got %d", slots)
		}
		cfg.Slots = slots
	}

	logger, err := logging.New(cfg.Logging.Options())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	server := grpc.NewServer(cfg.Server.Addr, service.NewRegistryExecutor(), logger)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()
	defer server.Stop()

	client, err := grpc.NewRegistryClient(cfg.Master)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerService := service.NewWorkerService(
		client,
		server.Slots(),
		cfg.Server.Advertise,
		cfg.Slots,
		cfg.Master.JoinTimeout,
		logger,
	)

	runErr := make(chan error, 1)
	go func() {
		runErr <- workerService.Run(ctx)
	}()

	logger.Info("Worker started", "address", cfg.Server.Advertise, "master", cfg.Master.Addr, "slots", cfg.Slots)

	select {
	case err := <-serveErr:
		return fmt.Errorf("executor server failed: %w", err)
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("Shutting down worker")
		return nil
	}
}
