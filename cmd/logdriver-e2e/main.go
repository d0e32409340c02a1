package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jzelinskie/cobrautil/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kubev2v/logdriver-e2e/internal/config"
	"github.com/kubev2v/logdriver-e2e/internal/logging"
)

const envPrefix = "LOGDRIVER_E2E"

var (
	cfg        = config.NewConfigurationWithDefaults()
	configFile string
	envFile    string
)

func main() {
	root := &cobra.Command{
		Use:           "logdriver-e2e",
		Short:         "Drive a Docker log driver plugin end to end and verify delivery in Splunk",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: cobrautil.CommandStack(
			func(*cobra.Command, []string) error { return config.LoadDotEnv(envFile) },
			cobrautil.SyncViperPreRunE(envPrefix),
			func(cmd *cobra.Command, _ []string) error { return config.Load(configFile, cmd.Flags()) },
			setupLogging,
		),
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML, TOML or JSON configuration file")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded into the environment")
	config.RegisterFlags(root.PersistentFlags(), cfg)

	root.AddCommand(
		newProduceCommand(),
		newStartCommand(),
		newStopCommand(),
		newSearchCommand(),
		newRunCommand(),
		newKillCommand(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := root.ExecuteContext(ctx)
	_ = zap.L().Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setupLogging(*cobra.Command, []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)

	zap.S().Debugw("configuration", "config", cfg.DebugMap())
	return nil
}
