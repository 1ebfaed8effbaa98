package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"wa_message_composer/config"
)

var (
	configPath string
	verbose    bool

	logger   *zap.Logger
	logLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

var rootCmd = &cobra.Command{
	Use:   "wa-composer",
	Short: "Compose WhatsApp Business messages with AI",
	Long: `wa-composer turns a rough idea into three WhatsApp-formatted message
variations for a chosen category (marketing, authentication, utility,
service), tone and media type.

Run "wa-composer serve" for the HTTP API or use the one-shot commands.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			logLevel.SetLevel(zapcore.DebugLevel)
		}
		cfg.Level = logLevel
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "composer.yaml", "path to YAML config (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logs")
	rootCmd.AddCommand(serveCmd, generateCmd, regenerateCmd, normalizeCmd)
}

// loadConfig reads and validates the configuration and applies its log
// level unless --verbose was given.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if !verbose {
		if err := logLevel.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
			logger.Warn("ignoring log level", zap.String("level", cfg.Logging.Level), zap.Error(err))
		}
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
