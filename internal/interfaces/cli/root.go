// Package cli implements the medlabel command-line interface: global flag
// registration, configuration loading, logger initialization, and the
// subcommand tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	appmedication "github.com/pillchecker/medlabel/internal/application/medication"
	"github.com/pillchecker/medlabel/internal/config"
	"github.com/pillchecker/medlabel/internal/infrastructure/cache"
	"github.com/pillchecker/medlabel/internal/infrastructure/monitoring/logging"
	"github.com/pillchecker/medlabel/internal/infrastructure/monitoring/prometheus"
	"github.com/pillchecker/medlabel/internal/infrastructure/nerservice"
	"github.com/pillchecker/medlabel/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Verbose      bool
	Timeout      time.Duration
	NERAddr      string
}

// CLIContext carries initialized dependencies through the command tree.
type CLIContext struct {
	Config       *config.Config
	Logger       logging.Logger
	Client       *nerservice.Client
	Service      appmedication.Service
	Metrics      *prometheus.PipelineMetrics
	OutputFormat string
	Timeout      time.Duration
}

// NewRootCommand creates the root cobra command with all global flags and
// subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "medlabel",
		Short:   "medlabel — structure medication-label OCR text into medication records",
		Long:    "medlabel turns raw OCR text from a medication package into a structured\nrecord: title, active ingredients, dosage, and prescription details, using an\nexternal medical NER service for entity recognition.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ./medlabel.yaml)")
	pf.StringVar(&opts.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "json", "output format (json, text)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose output")
	pf.DurationVar(&opts.Timeout, "timeout", 2*time.Minute, "global operation timeout")
	pf.StringVar(&opts.NERAddr, "ner-addr", "", "NER service base URL (overrides config)")

	cmd.AddCommand(
		NewProcessCmd(),
		NewHealthCmd(),
	)

	return cmd
}

// persistentPreRun initializes config, logger, NER client, cache, and the
// pipeline service, then stores CLIContext on the command.
func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	cfg, cfgPath, err := initConfig(opts)
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger, err := initLogger(opts)
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}

	metrics := prometheus.NewPipelineMetrics(cfg.Metrics.Namespace)
	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Addr, metrics, logger)
	}

	client, err := initClient(cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("NER client initialization failed: %w", err)
	}

	svcOpts := []appmedication.Option{appmedication.WithMetrics(metrics)}
	if c := initCache(cfg, logger); c != nil {
		svcOpts = append(svcOpts, appmedication.WithCache(c))
	}

	svc := appmedication.NewService(client, appmedication.Config{
		ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold,
		TitleMaxLength:      cfg.Pipeline.TitleMaxLength,
		CacheTTL:            cfg.Pipeline.CacheTTL,
	}, logger, svcOpts...)

	if cfgPath != "" {
		watchConfig(cfgPath, svc, logger)
	}

	cliCtx := &CLIContext{
		Config:       cfg,
		Logger:       logger,
		Client:       client,
		Service:      svc,
		Metrics:      metrics,
		OutputFormat: opts.OutputFormat,
		Timeout:      opts.Timeout,
	}

	ctx := context.WithValue(cmd.Context(), cliContextKey{}, cliCtx)
	cmd.SetContext(ctx)

	return nil
}

// watchConfig hot-reloads the safe subset of settings when the config file
// changes: the linking threshold and the log level. Everything else keeps the
// values the process started with.
func watchConfig(path string, svc appmedication.Service, logger logging.Logger) {
	config.Watch(path, func(newCfg *config.Config) {
		svc.SetConfidenceThreshold(newCfg.Pipeline.ConfidenceThreshold)
		if ls, ok := logger.(logging.LevelSetter); ok {
			ls.SetLevel(newCfg.Log.Level)
		}
		logger.Info("configuration reloaded",
			logging.String("path", path),
			logging.Float64("confidence_threshold", newCfg.Pipeline.ConfidenceThreshold),
			logging.String("log_level", newCfg.Log.Level),
		)
	})
}

// serveMetrics exposes the Prometheus registry on addr for the lifetime of
// the process.
func serveMetrics(addr string, metrics *prometheus.PipelineMetrics, logger logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics endpoint stopped", logging.Err(err))
	}
}

// initConfig loads configuration with priority: flags > env > file > defaults.
// The second return value is the config file actually read, empty when the
// config came from env vars and defaults alone.
func initConfig(opts *RootOptions) (*config.Config, string, error) {
	cfg, path, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, "", err
	}
	if opts.NERAddr != "" {
		cfg.NER.BaseURL = opts.NERAddr
		if err := cfg.Validate(); err != nil {
			return nil, "", err
		}
	}
	return cfg, path, nil
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}

	searchPaths := []string{"./medlabel.yaml"}
	if homeDir, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(homeDir, ".medlabel", "config.yaml"))
	}
	searchPaths = append(searchPaths, "/etc/medlabel/config.yaml")

	for _, p := range searchPaths {
		if _, statErr := os.Stat(p); statErr == nil {
			cfg, err := config.Load(p)
			return cfg, p, err
		}
	}

	// No config file found; env vars and defaults still apply.
	cfg, err := config.LoadFromEnv()
	return cfg, "", err
}

// initLogger creates a logger configured for CLI usage (output to stderr so
// stdout stays clean for command results).
func initLogger(opts *RootOptions) (logging.Logger, error) {
	level := opts.LogLevel
	if opts.Verbose {
		level = "debug"
	}

	return logging.NewLogger(logging.LogConfig{
		Level:            level,
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
}

// initClient creates the NER service client from configuration.
func initClient(cfg *config.Config, logger logging.Logger, metrics *prometheus.PipelineMetrics) (*nerservice.Client, error) {
	opts := []nerservice.Option{
		nerservice.WithLogger(logger),
		nerservice.WithMetrics(metrics),
		nerservice.WithMaxAttempts(cfg.NER.MaxAttempts),
		nerservice.WithAttemptTimeout(cfg.NER.AttemptTimeout),
		nerservice.WithBackoff(cfg.NER.BackoffBase, cfg.NER.BackoffCap),
	}
	if cfg.NER.UserAgent != "" {
		opts = append(opts, nerservice.WithUserAgent(cfg.NER.UserAgent))
	}
	return nerservice.NewClient(cfg.NER.BaseURL, opts...)
}

// initCache builds the configured cache backend, or nil when caching is off.
func initCache(cfg *config.Config, logger logging.Logger) cache.Cache {
	switch cfg.Cache.Backend {
	case config.CacheBackendMemory:
		return cache.NewMemoryCache(
			cache.WithMaxEntries(cfg.Cache.MaxEntries),
			cache.WithMemoryDefaultTTL(cfg.Pipeline.CacheTTL),
		)
	case config.CacheBackendRedis:
		rc := redis.NewClient(&redis.Options{
			Addr:         cfg.Cache.Redis.Addr,
			Password:     cfg.Cache.Redis.Password,
			DB:           cfg.Cache.Redis.DB,
			PoolSize:     cfg.Cache.Redis.PoolSize,
			DialTimeout:  cfg.Cache.Redis.DialTimeout,
			ReadTimeout:  cfg.Cache.Redis.ReadTimeout,
			WriteTimeout: cfg.Cache.Redis.WriteTimeout,
		})
		return cache.NewRedisCache(rc, logger,
			cache.WithPrefix(cfg.Cache.Redis.KeyPrefix),
			cache.WithRedisDefaultTTL(cfg.Pipeline.CacheTTL),
		)
	default:
		return nil
	}
}

// GetCLIContext extracts CLIContext from a cobra command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.Internal("command context is nil")
	}

	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.Internal("CLIContext not found in command context")
	}

	return cliCtx, nil
}

// Execute is the main entry point for the CLI application.
func Execute() error {
	rootCmd := NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		PrintError(rootCmd, err)
		return err
	}

	return nil
}

// PrintResult outputs data in the format selected by the --output flag.
func PrintResult(cmd *cobra.Command, data interface{}) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return printJSON(cmd, data)
	}

	switch strings.ToLower(cliCtx.OutputFormat) {
	case "text":
		return printText(cmd, data)
	default:
		return printJSON(cmd, data)
	}
}

// printJSON outputs data as indented JSON to stdout.
func printJSON(cmd *cobra.Command, data interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// printText outputs data as a simple string representation to stdout.
func printText(cmd *cobra.Command, data interface{}) error {
	switch v := data.(type) {
	case string:
		fmt.Fprintln(cmd.OutOrStdout(), v)
	case fmt.Stringer:
		fmt.Fprintln(cmd.OutOrStdout(), v.String())
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", v)
	}
	return nil
}

// PrintError writes a formatted error message to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
}
