package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pershinghar/go-host-datasource/pkg/config"
	"github.com/pershinghar/go-host-datasource/pkg/models"
	"github.com/pershinghar/go-host-datasource/pkg/piggyback"
	"github.com/pershinghar/go-host-datasource/pkg/util"
)

var rootCmd = &cobra.Command{
	Use:   "piggyback",
	Short: "Receive piggyback data published by collectors",
	Long: `Consume piggyback messages from RabbitMQ and store them below the
piggyback directory, one file per target and source host. Files older than
the piggyback max age are removed periodically.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		flags := cmd.Flags()
		configPath, _ := flags.GetString("config")
		rabbitPath, _ := flags.GetString("rabbitmq")
		level, _ := flags.GetString("log-level")
		format, _ := flags.GetString("log-format")
		interval, _ := flags.GetDuration("cleanup-interval")

		logger := util.NewLogger(os.Stderr, util.ParseLevel(level), format)

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		rabbitCfg, err := util.LoadRabbitMQConfig(rabbitPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client := util.NewRabbitMQClient(rabbitCfg, logger)
		defer client.Close()
		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("connecting to RabbitMQ: %w", err)
		}
		queue, err := client.CreateQueue(ctx)
		if err != nil {
			return err
		}

		store := piggyback.NewStore(cfg.Paths.PiggybackDir, logger)
		if err := client.Consume(ctx, queue, storeMessage(store, logger)); err != nil {
			return err
		}
		logger.Info("Piggyback receiver running", "queue", queue, "dir", cfg.Paths.PiggybackDir)

		maxAge := time.Duration(cfg.PiggybackMaxAge) * time.Second
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Info("Piggyback receiver stopped")
				return nil
			case <-ticker.C:
				removed, err := store.Cleanup(maxAge)
				if err != nil {
					logger.Warn("Cleanup failed", "error", err)
					continue
				}
				if removed > 0 {
					logger.Info("Removed outdated piggyback files", "count", removed)
				}
			}
		}
	},
}

// storeMessage returns the handler writing messages into store.
func storeMessage(store *piggyback.Store, logger *slog.Logger) func(*models.PiggybackMessage) error {
	return func(msg *models.PiggybackMessage) error {
		if err := store.Write(msg.TargetHost, msg.SourceHost, msg.Lines); err != nil {
			return err
		}
		logger.Debug("Stored piggyback data",
			"collection_id", msg.CollectionID,
			"source", msg.SourceHost,
			"target", msg.TargetHost,
			"lines", len(msg.Lines))
		return nil
	}
}

func init() {
	flags := rootCmd.Flags()
	flags.StringP("config", "c", "/etc/hostmon/hosts.yaml", "Host configuration file")
	flags.String("rabbitmq", "/etc/hostmon/rabbitmq.json", "RabbitMQ config file")
	flags.Duration("cleanup-interval", 5*time.Minute, "How often outdated piggyback files are removed")
	flags.String("log-level", "info", "Log level (debug, verbose, info, warn, error)")
	flags.String("log-format", "console", "Log format (console, text, json)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
