package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	grpcapi "github.com/nemanja-m/hivemind/internal/coordinator/api/grpc"
	"github.com/nemanja-m/hivemind/internal/coordinator/api/rest"
	coord "github.com/nemanja-m/hivemind/internal/coordinator/core"
	"github.com/nemanja-m/hivemind/internal/coordinator/service"
	"github.com/nemanja-m/hivemind/internal/coordinator/storage"
	"github.com/nemanja-m/hivemind/internal/shared/config"
	"github.com/nemanja-m/hivemind/internal/shared/lifecycle"
	"github.com/nemanja-m/hivemind/internal/shared/logging"
	workersvc "github.com/nemanja-m/hivemind/internal/worker/service"
	"github.com/nemanja-m/hivemind/pkg/core"
	"github.com/nemanja-m/hivemind/pkg/local"
)

var (
	errAwaitTimeout = errors.New("timed out waiting for termination")
	errInterrupted  = errors.New("interrupted while waiting for termination")
)

var families = []core.Family{core.FamilyPassword, core.FamilySubstring}

func runMaster(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadMaster(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("input") {
		cfg.Input.Paths = inputs
	}
	if cmd.Flags().Changed("output") {
		cfg.Output.Path = outputPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Options())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	participants, err := local.LoadParticipants(cfg.Input.Paths)
	if err != nil {
		return fmt.Errorf("failed to load participants: %w", err)
	}
	logger.Info("Participants loaded", "count", len(participants), "inputs", cfg.Input.Paths)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reaper := lifecycle.NewReaper(ctx, logger)
	store := storage.NewInMemoryJobStore()

	producers := make([]string, 0, len(families))
	for _, family := range families {
		producers = append(producers, "master-"+string(family))
	}
	sink := service.NewResultCollector(participants, producers, cfg.Output.Path, reaper, logger)
	sink.Start()

	policy := coord.Policy{
		ChunkSize:   cfg.Scheduler.ChunkSize,
		RangeMin:    cfg.Scheduler.RangeMin,
		RangeMax:    cfg.Scheduler.RangeMax,
		MaxAttempts: cfg.Scheduler.MaxAttempts,
		StopOnHit:   cfg.Scheduler.StopOnHit,
	}

	masters := make([]*service.Master, 0, len(families))
	pools := make([]service.WorkerPool, 0, len(families))
	for _, family := range families {
		m := service.NewMaster(service.MasterOptions{
			Family: family,
			Policy: policy,
			Sink:   sink,
			Store:  store,
			Reaper: reaper,
			Logger: logger,
		})
		m.Start()
		masters = append(masters, m)
		pools = append(pools, m)
	}

	pool := local.NewPool()
	defer pool.Close()
	if err := startLocalWorkers(pool, masters, cfg.Workers.Local, logger); err != nil {
		return err
	}

	connector := grpcapi.NewConnector(cfg.GRPC, logger)
	healthCtx, stopHealth := context.WithCancel(ctx)
	healthDone := make(chan struct{})
	defer func() {
		stopHealth()
		<-healthDone
		_ = connector.Close()
	}()

	health := service.NewWorkerHealthChecker(cfg.Health.CheckInterval, cfg.Health.ProbeTimeout, connector, logger)
	go func() {
		defer close(healthDone)
		health.Start(healthCtx)
	}()

	registry := service.NewWorkerRegistry(connector, pools, health, logger)
	cluster := service.NewCluster(registry, sink, masters...)

	grpcServer := grpcapi.NewServer(cfg.GRPC, cluster, logger)
	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Error("Registry server failed", "error", err)
		}
	}()
	defer grpcServer.Stop()

	if cfg.REST.Enabled {
		httpServer := rest.NewServer(cfg.REST, cluster, store, logger)
		go func() {
			logger.Info("Operator API listening", "address", cfg.REST.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Operator API failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()
	}

	submitted := submitJobs(ctx, cluster, participants, logger)
	logger.Info("Jobs submitted", "count", submitted)

	if batch {
		cluster.Shutdown()
	}

	go runConsole(os.Stdin, cluster, logger)

	return awaitTermination(reaper.Done(), cluster, cfg.Shutdown.AwaitTimeout, logger)
}

func startLocalWorkers(pool *local.Pool, masters []*service.Master, perMaster int, logger logging.Logger) error {
	executor := workersvc.NewRegistryExecutor()
	for _, m := range masters {
		for range perMaster {
			w := workersvc.NewLocalWorker(executor, logger)
			if err := w.Start(pool); err != nil {
				return fmt.Errorf("failed to start local worker: %w", err)
			}
			if err := m.Attach(w); err != nil {
				return fmt.Errorf("failed to attach local worker: %w", err)
			}
		}
	}
	return nil
}

func submitJobs(ctx context.Context, cluster *service.Cluster, participants []core.Participant, logger logging.Logger) int {
	submitted := 0
	for _, job := range seedJobs(participants) {
		if _, err := cluster.Submit(ctx, job); err != nil {
			logger.Warn("Job rejected", "family", job.Family, "error", err)
			continue
		}
		submitted++
	}
	return submitted
}

// awaitTermination blocks until every component has stopped. The first
// signal drains the cluster; a second one, or the await timeout, gives up.
func awaitTermination(done <-chan struct{}, cluster *service.Cluster, timeout time.Duration, logger logging.Logger) error {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	interrupted := false
	for {
		select {
		case <-done:
			logger.Info("All components stopped")
			return nil
		case sig := <-signals:
			if interrupted {
				logger.Error("Second signal received, exiting", "signal", sig.String())
				return errInterrupted
			}
			interrupted = true
			logger.Info("Signal received, draining", "signal", sig.String())
			cluster.Shutdown()
		case <-expired:
			logger.Error("Termination timed out", "timeout", timeout)
			return errAwaitTimeout
		}
	}
}
