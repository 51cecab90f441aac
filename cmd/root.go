package cmd

import (
	"github.com/spf13/cobra"

	"GroundLink/config"
	"GroundLink/internal/logger"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "groundlink",
	Short: "MAVLink ground-control link server",
	Long: `GroundLink keeps MAVLink links to vehicles open, decodes their telemetry and
drives commands and mission transfers on behalf of operator clients.

Links are configured in the YAML file given with --config:
  udpout:host:port      UDP peer
  tcpout:host:port      TCP client
  serial:device:baud    serial line`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "", "Log level: debug, info, warn, error (overrides config)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration and applies the logging settings.
func loadConfig() (*config.Config, error) {
	logger.Info("Loading configuration from %s", configFile)
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	// Set log level from command line or config
	if logLevel != "" {
		logger.SetLevelFromString(logLevel)
	} else {
		logger.SetLevelFromString(cfg.Log.Level)
	}
	if cfg.Log.TimestampFormat != "" {
		logger.SetTimestampFormat(cfg.Log.TimestampFormat)
	}

	logger.Info("Configuration loaded successfully (Log level: %s)", logger.GetLevelString())
	return cfg, nil
}
