package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jankotek/titan/pkg/common/log"
	"github.com/jankotek/titan/pkg/config"
	"github.com/jankotek/titan/pkg/store/badgerstore"
	"github.com/jankotek/titan/pkg/telemetry"
	"github.com/jankotek/titan/pkg/transaction"
)

var (
	configPath string
	dataDir    string
	inMemory   bool
	logLevel   string
)

// env is everything a command needs to run transactions
type env struct {
	cfg     *config.Config
	logger  *log.StandardLogger
	tel     telemetry.Telemetry
	metrics transaction.TransactionMetrics
	store   *badgerstore.Store
	mgr     *transaction.Manager
}

// loadConfig layers the config file, then the environment, then the flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewDefaultConfig("")
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.LoadFromEnv()

	flags := cmd.Flags()
	cfg.Update(func(c *config.Config) {
		if flags.Changed("data-dir") {
			c.DataDir = dataDir
		}
		if flags.Changed("in-memory") {
			c.InMemory = inMemory
		}
		if flags.Changed("log-level") {
			c.LogLevel = logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := log.NewStandardLogger(log.WithLevel(cfg.Level()), log.WithOutput(os.Stderr))
	log.SetDefaultLogger(logger)

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	metrics := transaction.NewTransactionMetrics(tel)

	st, err := badgerstore.Open(cfg, badgerstore.WithLogger(logger.WithField("component", "store")))
	if err != nil {
		tel.Shutdown(context.Background())
		return nil, err
	}

	mgr := transaction.NewManager(st,
		transaction.WithLogger(logger.WithField("component", telemetry.ComponentTransaction)),
		transaction.WithMetrics(metrics),
	)

	logger.Debug("Opened %s (in-memory: %v)", st, cfg.InMemory)
	return &env{cfg: cfg, logger: logger, tel: tel, metrics: metrics, store: st, mgr: mgr}, nil
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Error("Failed to close store: %v", err)
	}
	e.metrics.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.tel.Shutdown(ctx); err != nil {
		e.logger.Warn("Failed to shut down telemetry: %v", err)
	}
	e.logger.Sync()
}

// oneShot runs a single statement in its own transaction
func oneShot(fn func(s *session) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.close()

		if err := fn(newSession(e.mgr, cmd.OutOrStdout())); err != nil {
			return errors.New(describe(err))
		}
		return nil
	}
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get table key",
		Short: "Read a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(func(s *session) error { return s.get(args) })(cmd, args)
		},
	}
}

func newPutCommand() *cobra.Command {
	var noOverwrite bool
	m := &cobra.Command{
		Use:   "put table key value",
		Short: "Write a key",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(func(s *session) error { return s.put(args, !noOverwrite) })(cmd, args)
		},
	}
	m.Flags().BoolVar(&noOverwrite, "no-overwrite", false, "Fail if the key already exists")
	return m
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete table key",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(func(s *session) error { return s.del(args) })(cmd, args)
		},
	}
}

func newScanCommand() *cobra.Command {
	var limit int
	m := &cobra.Command{
		Use:   "scan table start end",
		Short: "List the keys in [start, end)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			scanArgs := args
			if limit >= 0 {
				scanArgs = append(append([]string{}, args...), fmt.Sprint(limit))
			}
			return oneShot(func(s *session) error { return s.scan(scanArgs) })(cmd, args)
		},
	}
	m.Flags().IntVar(&limit, "limit", transaction.NoLimit, "Maximum number of entries to return")
	return m
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "titan",
		Short:         "Transactional key-value store with write overlays",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to a TOML or JSON config file")
	pf.StringVar(&dataDir, "data-dir", "", "Data directory")
	pf.BoolVar(&inMemory, "in-memory", false, "Keep all data in memory")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error, fatal)")

	rootCmd.AddCommand(
		newShellCommand(),
		newGetCommand(),
		newPutCommand(),
		newDeleteCommand(),
		newScanCommand(),
	)
	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
