package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"GroundLink/internal/bus"
	"GroundLink/internal/logger"
	"GroundLink/internal/metrics"
	"GroundLink/internal/mqttbridge"
	"GroundLink/internal/store"
	"GroundLink/internal/supervisor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the link supervisor until interrupted",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tables := store.NewTables(store.NewMemoryBackend())
	added, err := cfg.SeedLinks(ctx, tables)
	if err != nil {
		return err
	}
	logger.Info("%d link(s) seeded from configuration", added)

	server := bus.NewServerBus()
	client := bus.NewClientBus()
	defer server.Close()
	defer client.Close()

	var bridge *mqttbridge.Bridge
	if cfg.MQTT.Enabled {
		bridge = mqttbridge.New(cfg.BridgeConfig(), server, client)
		if err := bridge.Start(ctx); err != nil {
			return err
		}
		logger.Info("Exporting events to %s under %s/", cfg.MQTT.Broker, cfg.MQTT.TopicPrefix)
	}

	sup := supervisor.New(cfg.SupervisorSettings(), tables, server, client, supervisor.LinkDialer(cfg.ConnectionConfig()))
	if err := sup.Start(ctx); err != nil {
		if bridge != nil {
			bridge.Stop()
		}
		return err
	}
	logger.Info("GroundLink running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Received signal %v, shutting down...", sig)

	cancel()
	sup.Stop()
	if bridge != nil {
		bridge.Stop()
	}

	snapshot := metrics.Global.GetSnapshot()
	logger.Info("Uptime %v, links opened %v, faulted %v",
		snapshot["uptime"], snapshot["links_opened"], snapshot["links_faulted"])
	logger.Info("Shutdown complete")
	return nil
}
