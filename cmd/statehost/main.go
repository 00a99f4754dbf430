// Command statehost hosts a volatile replicated state table: a gRPC
// health/reflection endpoint, an HTTP metrics/probe endpoint, gossip-based
// secondary discovery, and the catch-up streaming manager that responds
// to newly discovered secondaries falling behind.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/actorstate/internal/buildstream"
	"github.com/devrev/actorstate/internal/config"
	"github.com/devrev/actorstate/internal/health"
	"github.com/devrev/actorstate/internal/membership"
	"github.com/devrev/actorstate/internal/metrics"
	"github.com/devrev/actorstate/internal/server"
	"github.com/devrev/actorstate/internal/table"
	"github.com/devrev/actorstate/internal/validation"
)

func main() {
	logger, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.String("node_id", cfg.Server.NodeID),
		zap.Int("grpc_port", cfg.Server.GRPCPort),
		zap.Int("http_port", cfg.Server.HTTPPort))

	m := metrics.New(cfg.Server.NodeID)
	tbl := table.New(logger, m).WithValidator(validation.NewValidatorWithLimits(
		cfg.Validation.MaxTypeSize, cfg.Validation.MaxKeySize,
		cfg.Validation.MaxValueSize, cfg.Validation.MaxBatchEntries))

	checker := health.New(health.Config{
		NodeID:           cfg.Server.NodeID,
		MaxBacklog:       uint64(cfg.Health.MaxStagingDepth),
		MaxPendingGroups: cfg.Health.MaxPendingGroups,
	}, tbl, nil, logger)
	checkerCtx, stopChecker := context.WithCancel(context.Background())
	go checker.Run(checkerCtx, cfg.Health.Interval)

	var members *membership.Membership
	if cfg.Membership.Enabled {
		members, err = membership.New(membership.Config{
			NodeID:         cfg.Server.NodeID,
			BindPort:       cfg.Membership.BindPort,
			SeedNodes:      cfg.Membership.SeedNodes,
			GossipInterval: cfg.Membership.GossipInterval,
			ProbeTimeout:   cfg.Membership.ProbeTimeout,
			ProbeInterval:  cfg.Membership.ProbeInterval,
		}, tbl, logger)
		if err != nil {
			logger.Error("failed to start membership", zap.Error(err))
		} else {
			defer members.Shutdown()
			logger.Info("membership started")
		}
	}

	streamMgr := buildstream.New(buildstream.Config{
		Workers:       cfg.BuildStream.Workers,
		BatchSize:     cfg.BuildStream.BatchSize,
		ChecksumEvery: cfg.BuildStream.ChecksumEvery,
		StreamTimeout: cfg.BuildStream.StreamTimeout,
	}, tbl, &loggingSender{logger: logger}, nil, m, logger)
	defer streamMgr.Stop(10 * time.Second)

	if members != nil {
		go watchForLaggingSecondaries(context.Background(), members, streamMgr, tbl, m, logger)
	}

	httpSrv := server.NewHTTPServer(server.HTTPServerConfig{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.HTTPPort,
		MetricsPath: cfg.Metrics.Path,
	}, checker, logger)
	httpSrv.Start()

	grpcSrv := server.NewGRPCServer(server.GRPCServerConfig{
		Host: cfg.Server.Host,
		Port: cfg.Server.GRPCPort,
	}, checker, logger)
	go grpcSrv.WatchReadiness(checkerCtx, checker, cfg.Health.Interval)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down gracefully")
		checker.SetReadiness(false)
		grpcSrv.SetServingStatus(false)

		stopChecker()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Stop(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", zap.Error(err))
		}

		grpcSrv.GracefulStop()
	}()

	logger.Info("statehost service starting", zap.String("node_id", cfg.Server.NodeID))
	if err := grpcSrv.Serve(); err != nil {
		logger.Fatal("failed to serve", zap.Error(err))
	}
}

// watchForLaggingSecondaries periodically checks gossiped peer state,
// reports membership size to metrics, and kicks off a catch-up stream for
// any peer that has fallen far enough behind to need one.
func watchForLaggingSecondaries(ctx context.Context, members *membership.Membership, streamMgr *buildstream.Manager, tbl *table.StateTable, m *metrics.Metrics, logger *zap.Logger) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var mu sync.Mutex
	inFlight := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.UpdateMembership(len(members.Peers())+1, members.AliveCount())

		committed := tbl.HighestCommittedSeq()
		for _, peer := range members.LaggingPeers(committed, 1000) {
			mu.Lock()
			busy := inFlight[peer.NodeID]
			if !busy {
				inFlight[peer.NodeID] = true
			}
			mu.Unlock()
			if busy {
				continue
			}

			go func(nodeID string) {
				defer func() {
					mu.Lock()
					inFlight[nodeID] = false
					mu.Unlock()
				}()
				if err := streamMgr.StartCatchUp(ctx, nodeID); err != nil {
					logger.Warn("catch-up stream failed", zap.String("target", nodeID), zap.Error(err))
				}
			}(peer.NodeID)
		}
	}
}

// loggingSender is the default Sender until an embedder wires a real
// transport (a gRPC client to the target's ApplyMany, most naturally).
type loggingSender struct {
	logger *zap.Logger
}

func (s *loggingSender) SendBatch(ctx context.Context, targetID string, entries []table.Entry) error {
	s.logger.Debug("would send batch to target",
		zap.String("target", targetID), zap.Int("entries", len(entries)))
	return nil
}

func initLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	return cfg.Build()
}
