package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pershinghar/go-host-datasource/pkg/config"
	"github.com/pershinghar/go-host-datasource/pkg/util"
)

var rootCmd = &cobra.Command{
	Use:   "collector [host...]",
	Short: "Collect monitoring data from hosts",
	Long: `Run the data sources of the configured hosts once and print one check
result per source.

Each host with an ssh block is queried through its agent. Piggyback data
delivered by other hosts is processed for every host. Piggyback data found in
the agent output is stored locally, or published to RabbitMQ with --rabbitmq.

Examples:
  collector --config hosts.yaml               # All configured hosts
  collector --config hosts.yaml web1 web2     # Only web1 and web2
  collector --cache --use-outdated-persisted  # Prefer cached data`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		configPath, _ := flags.GetString("config")
		level, _ := flags.GetString("log-level")
		format, _ := flags.GetString("log-format")
		timeout, _ := flags.GetDuration("timeout")

		logger := util.NewLogger(os.Stderr, util.ParseLevel(level), format)

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		opts := buildOptions(cmd, cfg)
		policy := opts.Cache.Snapshot()
		logger.Debug("Cache policy",
			"disabled", policy.Disabled,
			"snmp_disabled", policy.SNMPDisabled,
			"agent_disabled", policy.AgentDisabled,
			"maybe", policy.Maybe,
			"use_outdated", policy.UseOutdated)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		c, err := newCollector(ctx, cmd, cfg, opts, logger)
		if err != nil {
			return err
		}
		defer c.Close()

		results, err := c.Run(ctx, args)
		if err != nil {
			return err
		}
		worst = printResults(os.Stdout, results)
		c.logCPU()
		return nil
	},
}

// worst is the highest state of the last run, used as exit code.
var worst int

func buildOptions(cmd *cobra.Command, cfg *config.File) *config.Options {
	flags := cmd.Flags()
	debug, _ := flags.GetBool("debug")
	simulation, _ := flags.GetBool("simulation")
	useCache, _ := flags.GetBool("cache")
	noCache, _ := flags.GetBool("no-cache")
	noSNMPCache, _ := flags.GetBool("no-snmp-cache")
	noAgentCache, _ := flags.GetBool("no-agent-cache")
	useOutdated, _ := flags.GetBool("use-outdated-persisted")

	opts := config.NewOptions()
	opts.Debug = debug
	opts.Simulation = simulation || cfg.Simulation
	opts.Paths = cfg.Paths

	opts.Cache.SetDisabled(noCache)
	opts.Cache.SetSNMPDisabled(noSNMPCache)
	opts.Cache.SetAgentDisabled(noAgentCache)
	if useCache {
		opts.Cache.SetCacheOpts(true)
	} else {
		opts.Cache.ResetMaybe()
	}
	if useOutdated {
		opts.UseOutdatedPersistedSections()
	}
	return opts
}

func addFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("config", "c", "/etc/hostmon/hosts.yaml", "Host configuration file")
	flags.String("rabbitmq", "", "RabbitMQ config file; publish piggyback data instead of storing it locally")
	flags.Int("parallel", 16, "Number of hosts processed at the same time")
	flags.Duration("timeout", time.Minute, "Time limit of the whole collection cycle")
	flags.Bool("cache", false, "Use cache files even if they are outdated")
	flags.Bool("no-cache", false, "Never use cache files")
	flags.Bool("no-snmp-cache", false, "Never use cache files of SNMP sources")
	flags.Bool("no-agent-cache", false, "Never use cache files of agent sources")
	flags.Bool("simulation", false, "Only read cache files, never contact hosts")
	flags.Bool("use-outdated-persisted", false, "Accept persisted sections past their validity")
	flags.Bool("debug", false, "Crash on parser and persistence failures instead of reporting them")
	flags.String("log-level", "info", "Log level (debug, verbose, info, warn, error)")
	flags.String("log-format", "console", "Log format (console, text, json)")
}

func init() {
	addFlags(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(3)
	}
	os.Exit(worst)
}
