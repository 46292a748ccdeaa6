package main

import (
	"fmt"
	"os"

	"ferry-booking-client/internal/app"
	"ferry-booking-client/internal/config"
	"ferry-booking-client/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
	timeout    int
)

var rootCmd = &cobra.Command{
	Use:   "ferry-client",
	Short: "Ferry booking API client - session and request tooling",
	Long: `Command line front end for the ferry booking API session layer.
It keeps a guest or user session for this device, refreshes expired
access tokens transparently and sends authenticated requests.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides log_level")
	rootCmd.PersistentFlags().IntVar(&timeout, "timeout", 60, "command timeout in seconds")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and sets up logging from it
func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger := logging.Initialize(level)

	if cfg.LogFile != "" {
		if err := logging.SetupFileLogging(logger, cfg.LogFile); err != nil {
			return nil, nil, fmt.Errorf("failed to set up file logging: %w", err)
		}
	}

	return cfg, logger, nil
}

// newApp builds the session components for one command run
func newApp() (*app.App, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize client: %w", err)
	}
	return a, nil
}
