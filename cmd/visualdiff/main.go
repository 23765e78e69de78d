package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/xyzbank/banking-e2e/internal/config"
	"github.com/xyzbank/banking-e2e/internal/metrics"
	"github.com/xyzbank/banking-e2e/internal/version"
	"github.com/xyzbank/banking-e2e/internal/visual"
)

// errFailed marks a run whose comparisons exceeded the configured limits.
// The details have already been printed.
var errFailed = errors.New("visual comparison failed")

var (
	configFlag   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "visualdiff",
	Short: "Screenshot baseline comparator for the XYZ Bank UI suite",
	Long: `visualdiff captures named regions of the banking app, compares them against
stored baselines and writes a diff image for every comparison.

A missing baseline is created from the first capture. Existing baselines only
change through "baselines approve" or "baselines reset".`,
	Version:       version.GetInfo().String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		info := version.GetInfo()
		fmt.Fprintf(cmd.OutOrStdout(), "visualdiff %s (%s)\n", info, info.GoVersion)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "./config", "Config directory (default.yaml, config.yaml) or a single YAML file")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override logging.level")

	rootCmd.AddCommand(versionCmd)
}

func loadConfig() error {
	var err error
	if info, statErr := os.Stat(configFlag); statErr == nil && !info.IsDir() {
		_, err = config.LoadFromFile(configFlag)
	} else {
		err = config.Load(configFlag)
	}
	if err != nil {
		return err
	}

	cfg := config.Get()
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	slog.SetDefault(cfg.Logging.NewLogger(os.Stderr))
	return nil
}

// runtime bundles everything a subcommand needs to talk to the store.
type runtime struct {
	cfg       *config.Config
	cmp       *visual.Comparator
	registry  *prometheus.Registry
	collector *metrics.Collector
	db        *sqlx.DB
	closers   []func() error
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg := config.Get()
	rt := &runtime{cfg: cfg, registry: prometheus.NewRegistry()}

	if cfg.Storage.UsesDatabase() {
		db, err := sqlx.Open(cfg.Storage.Database.Driver, cfg.Storage.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		rt.db = db
		rt.closers = append(rt.closers, db.Close)
	}

	store, err := cfg.StorageBackendConfig(rt.db).CreateBackend()
	if err != nil {
		rt.Close()
		return nil, err
	}
	if c, ok := store.(interface{ Close() error }); ok {
		rt.closers = append(rt.closers, c.Close)
	}
	if err := store.EnsureLayout(ctx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to prepare storage: %w", err)
	}

	rt.collector = metrics.NewCollector(rt.registry)
	rt.cmp = visual.New(store,
		visual.WithThreshold(cfg.Visual.Threshold),
		visual.WithCaptureOptions(visual.CaptureOptions{FullPage: cfg.Visual.FullPage}),
		visual.WithLogger(slog.Default()),
		visual.WithMetrics(rt.collector),
	)
	return rt, nil
}

// Close flushes the metrics textfile and releases connections.
func (rt *runtime) Close() {
	if rt.cfg.Metrics.Enabled && rt.cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(rt.cfg.Metrics.Textfile, rt.registry); err != nil {
			slog.Warn("failed to write metrics textfile", "path", rt.cfg.Metrics.Textfile, "error", err)
		}
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
