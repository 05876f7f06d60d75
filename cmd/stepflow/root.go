package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/rendis/stepflow/internal/logging"
)

// errSilent marks failures that were already reported to the user.
var errSilent = errors.New("silent failure")

var (
	cfg    Config
	logger = logging.NewNop()

	logLevelFlag string
	dbPathFlag   string
	noColorFlag  bool
)

var rootCmd = &cobra.Command{
	Use:           "stepflow",
	Short:         "Run and inspect action-chain workflows",
	Long:          `stepflow executes flows of PIECE, LOOP_ON_ITEMS, STORAGE, BRANCH and CODE actions and keeps a journal of every run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = loadConfig(settingsPath(), os.Getenv)
		applyFlags(cmd, &cfg)
		if noColorFlag {
			color.NoColor = true
		}
		logger = newLogger(cfg, os.Stderr)
	},
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	if !errors.Is(err, errSilent) {
		errorStyle.Fprintf(os.Stderr, "%s %v\n", xmark, err)
	}
	os.Exit(1)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "path of the run database")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "disable colored output")
}

// applyFlags gives explicitly set flags the last word over config.
func applyFlags(cmd *cobra.Command, c *Config) {
	if cmd.Flags().Changed("log-level") {
		c.LogLevel = logLevelFlag
	}
	if cmd.Flags().Changed("db") {
		c.DBPath = dbPathFlag
	}
}

func newLogger(c Config, f *os.File) *slog.Logger {
	tty := isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	console := c.LogFormat == "console" || (c.LogFormat != "json" && tty)
	return logging.New(f, logging.Options{
		Level:   logging.ParseLevel(c.LogLevel),
		Console: console,
		NoColor: color.NoColor || !tty,
	})
}

