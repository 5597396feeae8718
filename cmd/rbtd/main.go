package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"rbtchain/config"
	"rbtchain/core"
	"rbtchain/core/events"
	"rbtchain/core/genesis"
	"rbtchain/core/state"
	"rbtchain/native/ringback"
	"rbtchain/observability/logging"
	"rbtchain/observability/metrics"
	rbtotel "rbtchain/observability/otel"
	"rbtchain/rpc"
	"rbtchain/services/indexer"
	"rbtchain/storage"
)

const (
	genesisPathEnv = "RBT_GENESIS"
	environmentEnv = "RBT_ENV"
	indexerOff     = "off"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides RBT_GENESIS and config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	env := cfg.Environment
	if value, ok := os.LookupEnv(environmentEnv); ok && strings.TrimSpace(value) != "" {
		env = strings.TrimSpace(value)
	}
	logger := logging.SetupWithOptions("rbtd", env, loggingOptions(cfg.Logging))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	genesisPath := resolveGenesisPath(*genesisFlag, cfg.GenesisFile, os.LookupEnv)
	if err := run(ctx, cfg, env, genesisPath, logger); err != nil {
		logger.Error("rbtd stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("rbtd stopped")
}

func loggingOptions(cfg config.Logging) logging.Options {
	opts := logging.Options{Level: cfg.Level}
	if strings.TrimSpace(cfg.File) != "" {
		opts.File = &logging.FileOptions{
			Path:       cfg.File,
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAgeDays: cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	}
	return opts
}

func telemetryConfig(cfg config.Telemetry, env string) rbtotel.Config {
	return rbtotel.Config{
		ServiceName: cfg.ServiceName,
		Environment: env,
		Endpoint:    cfg.Endpoint,
		Insecure:    cfg.Insecure,
		Headers:     rbtotel.ParseHeaders(cfg.Headers),
		Metrics:     cfg.Metrics,
		Traces:      cfg.Traces,
		SampleRatio: cfg.SampleRatio,
	}
}

// resolveGenesisPath picks the genesis file: flag first, then environment,
// then config.
func resolveGenesisPath(flagValue, configValue string, lookup func(string) (string, bool)) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return strings.TrimSpace(configValue)
}

// node bundles the long-lived components opened from configuration.
type node struct {
	db       storage.Database
	mgr      *state.Manager
	executor *core.Executor
	indexer  *indexer.Indexer
	closers  []func() error
}

func openNode(cfg *config.Config, genesisPath string, logger *slog.Logger) (n *node, err error) {
	n = &node{}
	defer func() {
		if err != nil {
			_ = n.Close()
		}
	}()

	if cfg.DBBackend != storage.BackendMemory {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("prepare data directory: %w", err)
		}
	}
	db, err := storage.Open(cfg.DBBackend, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	n.db = db
	n.closers = append(n.closers, db.Close)
	n.mgr = state.NewManager(db)

	program := ringback.DefaultProgramID
	if genesisPath != "" {
		spec, err := genesis.LoadSpec(genesisPath)
		if err != nil {
			return nil, fmt.Errorf("load genesis: %w", err)
		}
		applied, err := genesis.Apply(spec, n.mgr)
		if err != nil {
			return nil, fmt.Errorf("apply genesis: %w", err)
		}
		program = spec.ProgramID()
		logger.Info("genesis loaded",
			slog.String("chainId", spec.ChainID),
			slog.Bool("applied", applied))
	} else {
		stored, found, err := genesis.ReadMarker(n.mgr)
		if err != nil {
			return nil, err
		}
		if found {
			program = stored.Program
			logger.Info("genesis marker loaded", slog.String("chainId", stored.ChainID))
		}
	}

	n.executor = core.NewExecutor(n.mgr, program)
	n.executor.SetLogger(logger)
	n.executor.SetMetrics(metrics.Ringback())

	platform, ok, err := n.executor.View().Platform()
	if err != nil {
		return nil, fmt.Errorf("load platform: %w", err)
	}
	if ok {
		metrics.Ringback().SetToneCount(platform.ToneCount)
	}

	fanout := events.NewFanout()
	if !strings.EqualFold(strings.TrimSpace(cfg.IndexerDSN), indexerOff) {
		db, err := indexer.Open(cfg.IndexerPath())
		if err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			n.closers = append(n.closers, sqlDB.Close)
		}
		n.indexer = indexer.New(db, logger)
		fanout.Add(n.indexer)
	}
	n.executor.SetEmitter(fanout)
	return n, nil
}

// Close releases resources in reverse order of acquisition.
func (n *node) Close() error {
	var errs []error
	for i := len(n.closers) - 1; i >= 0; i-- {
		if err := n.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	n.closers = nil
	return errors.Join(errs...)
}

func run(ctx context.Context, cfg *config.Config, env, genesisPath string, logger *slog.Logger) error {
	shutdownTelemetry, err := rbtotel.Init(ctx, telemetryConfig(cfg.Telemetry, env))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	n, err := openNode(cfg, genesisPath, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := n.Close(); err != nil {
			logger.Warn("close node", slog.Any("error", err))
		}
	}()

	server := rpc.NewServer(n.executor, n.indexer, rpc.ServerConfig{
		RequestsPerMinute: cfg.RPCRequestsPerMinute,
		Burst:             cfg.RPCBurst,
		MaxBodyBytes:      cfg.RPCMaxBodyBytes,
		ReadHeaderTimeout: time.Duration(cfg.RPCReadHeaderTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.RPCWriteTimeout) * time.Second,
		Logger:            logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, cfg.RPCAddress)
	})
	if addr := strings.TrimSpace(cfg.MetricsAddress); addr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, addr, logger)
		})
	}
	return g.Wait()
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
