package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/paveg/joinbench"
	"github.com/paveg/joinbench/internal/config"
	"github.com/paveg/joinbench/internal/hashtable"
	jio "github.com/paveg/joinbench/internal/io"
	"github.com/paveg/joinbench/internal/logging"
	"github.com/paveg/joinbench/internal/monitoring"
	"github.com/paveg/joinbench/internal/version"
)

const shutdownTimeout = 5 * time.Second

func customUsage(fs *flag.FlagSet) func() {
	return func() {
		out := fs.Output()
		fmt.Fprintf(out, "joinbench: parallel in-memory equi-join study (version %s)\n\n", version.Version)
		fmt.Fprintf(out, "Usage: joinbench [options]\n\n")
		fmt.Fprintf(out, "Settings are read from --config, then JOINBENCH_* environment variables,\n")
		fmt.Fprintf(out, "then command-line flags, each overriding the previous.\n\n")
		fmt.Fprintf(out, "Options:\n")
		fs.PrintDefaults()
	}
}

// bindFlags registers every setting on fs with cfg's values as defaults.
func bindFlags(fs *flag.FlagSet, cfg *config.Config, configPath *string, showVersion *bool) {
	fs.StringVar(configPath, "config", "", "configuration file (.json, .yaml, .yml or .toml)")
	fs.BoolVar(showVersion, "version", false, "print version information and exit")

	fs.IntVar(&cfg.InnerTupleCount, "inner", cfg.InnerTupleCount, "tuples in the inner relation")
	fs.IntVar(&cfg.OuterRatio, "ratio", cfg.OuterRatio, "outer tuples per inner tuple")
	fs.IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "tuples per batch")
	fs.StringVar(&cfg.Distribution, "distribution", cfg.Distribution, "outer key distribution: uniform, low-skew or high-skew")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "workload seed (0 picks a random seed)")
	fs.IntVar(&cfg.PartitionCount, "partitions", cfg.PartitionCount, "partitions for the partitioned strategy (power of two)")
	fs.IntVar(&cfg.BucketCount, "buckets", cfg.BucketCount, "total hash buckets (power of two)")
	fs.StringVar(&cfg.HashFamily, "hash", cfg.HashFamily, "hash family: xxh3, xxhash or murmur3")
	fs.StringVar(&cfg.BucketKind, "bucket-kind", cfg.BucketKind, "bucket storage: slice or segmented")
	fs.IntVar(&cfg.Threads, "threads", cfg.Threads, "worker threads (power of two)")
	fs.StringVar(&cfg.Scheduling, "scheduling", cfg.Scheduling, "scheduling: static, dynamic or both")
	fs.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "strategy: sequential, shared, partitioned or all")
	fs.IntVar(&cfg.MinSplit, "min-split", cfg.MinSplit, "smallest range dynamic scheduling splits")
	fs.BoolVar(&cfg.UnsafeSharedProbe, "unsafe-shared-probe", cfg.UnsafeSharedProbe, "probe the shared table without locks instead of freezing it")
	fs.BoolVar(&cfg.VerboseLogging, "verbose", cfg.VerboseLogging, "development logging at debug level")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve metrics on this address after the run")
	fs.StringVar(&cfg.HistogramPath, "histogram", cfg.HistogramPath, "bucket occupancy export (.csv or .parquet)")
	fs.StringVar(&cfg.ReportPath, "report", cfg.ReportPath, "phase report export (.csv, .parquet or .json)")
}

// loadConfig applies the config file and environment, then the flags set
// on the command line.
func loadConfig(args []string, stderr io.Writer) (cfg config.Config, showVersion bool, err error) {
	var configPath string
	probe := config.NewConfig()
	fs := flag.NewFlagSet("joinbench", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = customUsage(fs)
	bindFlags(fs, &probe, &configPath, &showVersion)
	if err := fs.Parse(args); err != nil {
		return cfg, false, err
	}
	if showVersion {
		return probe, true, nil
	}

	cfg = config.NewConfig()
	if configPath != "" {
		if cfg, err = config.LoadFromFile(configPath); err != nil {
			return cfg, false, err
		}
	}
	cfg = config.LoadFromEnv(cfg)

	final := flag.NewFlagSet("joinbench", flag.ContinueOnError)
	final.SetOutput(io.Discard)
	bindFlags(final, &cfg, &configPath, &showVersion)
	if err := final.Parse(args); err != nil {
		return cfg, false, err
	}
	return cfg, false, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, showVersion, err := loadConfig(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "joinbench: %v\n", err)
		return 2
	}
	if showVersion {
		fmt.Fprint(stdout, version.Info().String())
		return 0
	}

	logger := logging.Must(cfg.VerboseLogging)
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return 1
	}
	warnings, err := config.NewConfigValidator().Validate(cfg)
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return 1
	}
	for _, w := range warnings {
		logger.Warn(w)
	}
	logger.Info("starting",
		zap.String("version", version.Version),
		zap.String("strategy", cfg.Strategy),
		zap.String("scheduling", cfg.Scheduling),
		zap.Int("threads", cfg.Threads),
		zap.Int("partitions", cfg.PartitionCount),
		zap.Int("buckets", cfg.BucketCount),
		zap.String("hash", cfg.HashFamily),
		zap.String("bucket_kind", cfg.BucketKind))

	collector := monitoring.NewMetricsCollector(true)
	opts := []joinbench.Option{joinbench.WithLogger(logger), joinbench.WithObserver(collector)}
	if cfg.HistogramPath != "" {
		opts = append(opts, joinbench.WithBucketSizes())
	}

	out, err := joinbench.Run(ctx, cfg, opts...)
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		return 1
	}
	printReports(stdout, out.Reports)

	if cfg.HistogramPath != "" {
		occ := hashtable.SummarizeOccupancy(out.BucketSizes)
		logger.Info("bucket occupancy",
			zap.Int("buckets", occ.Buckets),
			zap.Int("empty", occ.Empty),
			zap.Int("max", occ.Max),
			zap.Float64("mean", occ.Mean),
			zap.Float64("variance", occ.Variance))
		if err := jio.ExportHistogram(cfg.HistogramPath, out.BucketSizes); err != nil {
			logger.Error("histogram export failed", zap.Error(err))
			return 1
		}
		logger.Info("histogram written", zap.String("path", cfg.HistogramPath), zap.Int("buckets", len(out.BucketSizes)))
	}
	if cfg.ReportPath != "" {
		if err := jio.ExportReport(cfg.ReportPath, out.Reports); err != nil {
			logger.Error("report export failed", zap.Error(err))
			return 1
		}
		logger.Info("report written", zap.String("path", cfg.ReportPath))
	}

	if cfg.MetricsAddr != "" {
		return serveMetrics(ctx, logger, collector, cfg.MetricsAddr)
	}
	return 0
}

func printReports(w io.Writer, reports []joinbench.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "strategy\tpartition\tbuild\tprobe\ttotal\tmatches\t")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t\n", r.Strategy,
			r.Timings.Partition, r.Timings.Build, r.Timings.Probe, r.Timings.Total(), r.Result.Matches)
	}
	_ = tw.Flush()
}

// serveMetrics serves the collected metrics until ctx is cancelled.
func serveMetrics(ctx context.Context, logger *zap.Logger, collector *monitoring.MetricsCollector, addr string) int {
	server := monitoring.NewMonitoringServer(collector, addr)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	logger.Info("serving metrics", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
			return 1
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", zap.Error(err))
			return 1
		}
	}
	return 0
}
