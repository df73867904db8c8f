package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpcurve/internal/config"
	"github.com/rovshanmuradov/pumpcurve/internal/engine"
	"github.com/rovshanmuradov/pumpcurve/internal/logger"
)

var (
	configPath string
	jsonLogs   bool
	debug      bool

	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "curvectl",
	Short:         "Price and settle trades on Pump.fun style bonding curves",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(*cobra.Command, []string) (err error) {
		if cfg, err = config.LoadConfig(configPath); err != nil {
			return err
		}
		if debug {
			cfg.DebugLogging = true
		}
		if jsonLogs {
			log, err = logger.NewJSONLogger(cfg.DebugLogging)
		} else {
			log, err = logger.CreatePrettyLogger(cfg.DebugLogging)
		}
		return err
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	cobra.EnablePrefixMatching = true
	rootCmd.AddCommand(
		deriveCmd,
		quoteCmd,
		simulateCmd,
		inspectCmd,
		watchCmd,
		globalCmd,
	)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a JSON or YAML config file")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "log as JSON instead of coloured console output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// newEngine builds the engine and registers its shutdown with the command.
func newEngine(options ...engine.Option) (*engine.Engine, func(), error) {
	e, err := engine.New(cfg, log, options...)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Close(ctx); err != nil {
			log.Error("Shutdown completed with errors", zap.Error(err))
		}
	}
	return e, closeFn, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
