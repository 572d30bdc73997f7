package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pershinghar/go-host-datasource/pkg/config"
	"github.com/pershinghar/go-host-datasource/pkg/cputrack"
	"github.com/pershinghar/go-host-datasource/pkg/models"
	"github.com/pershinghar/go-host-datasource/pkg/piggyback"
	"github.com/pershinghar/go-host-datasource/pkg/result"
	"github.com/pershinghar/go-host-datasource/pkg/sections"
	"github.com/pershinghar/go-host-datasource/pkg/source"
	"github.com/pershinghar/go-host-datasource/pkg/summary"
	"github.com/pershinghar/go-host-datasource/pkg/util"
)

// distributor hands piggyback data found on a host to its targets.
type distributor interface {
	Distribute(ctx context.Context, source string, data sections.PiggybackRawData) error
}

type sourceResult struct {
	Host   string
	Source string
	models.ServiceCheckResult
}

type collector struct {
	cfg      *config.File
	opts     *config.Options
	store    *piggyback.Store
	dist     distributor
	rabbit   *util.RabbitMQClient
	tracker  *cputrack.Tracker
	parallel int
	logger   *slog.Logger
}

func newCollector(ctx context.Context, cmd *cobra.Command, cfg *config.File, opts *config.Options, logger *slog.Logger) (*collector, error) {
	rabbitPath, _ := cmd.Flags().GetString("rabbitmq")
	parallel, _ := cmd.Flags().GetInt("parallel")

	c := &collector{
		cfg:      cfg,
		opts:     opts,
		store:    piggyback.NewStore(opts.Paths.PiggybackDir, logger),
		tracker:  cputrack.New(),
		parallel: parallel,
		logger:   logger,
	}
	c.dist = c.store

	if rabbitPath != "" {
		rabbitCfg, err := util.LoadRabbitMQConfig(rabbitPath)
		if err != nil {
			return nil, err
		}
		c.rabbit = util.NewRabbitMQClient(rabbitCfg, logger)
		if err := c.rabbit.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connecting to RabbitMQ: %w", err)
		}
		c.dist = c.rabbit
	}
	return c, nil
}

func (c *collector) Close() {
	if c.rabbit != nil {
		if err := c.rabbit.Close(); err != nil {
			c.logger.Warn("Failed to close RabbitMQ client", "error", err)
		}
	}
}

// Run processes the named hosts, or all configured hosts.
func (c *collector) Run(ctx context.Context, names []string) ([]sourceResult, error) {
	hosts, err := c.selectHosts(names)
	if err != nil {
		return nil, err
	}

	perHost := make([][]sourceResult, len(hosts))
	g, ctx := errgroup.WithContext(ctx)
	if c.parallel > 0 {
		g.SetLimit(c.parallel)
	}
	for i, name := range hosts {
		g.Go(func() error {
			perHost[i] = c.runHost(ctx, c.cfg.MakeHostConfig(name))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var results []sourceResult
	for _, r := range perHost {
		results = append(results, r...)
	}
	return results, nil
}

func (c *collector) selectHosts(names []string) ([]string, error) {
	if len(names) == 0 {
		for _, h := range c.cfg.Hosts {
			names = append(names, h.Name)
		}
		return names, nil
	}
	known := make(map[string]bool, len(c.cfg.Hosts))
	for _, h := range c.cfg.Hosts {
		known[h.Name] = true
	}
	for _, name := range names {
		if !known[name] {
			return nil, fmt.Errorf("unknown host %q", name)
		}
	}
	return names, nil
}

func (c *collector) runHost(ctx context.Context, host *config.HostConfig) []sourceResult {
	logger := c.logger.With("host", host.Name)
	var results []sourceResult

	if host.SSH != nil {
		agent, err := source.NewAgentSource(host, c.opts, c.tracker, c.logger)
		if err != nil {
			logger.Warn("Skipping agent source", "error", err)
		} else {
			hs, res := agent.Run(ctx)
			results = append(results, sourceResult{Host: host.Name, Source: agent.ID(), ServiceCheckResult: res})
			c.distribute(ctx, host.Name, hs, logger)
		}
	}

	maxAge := time.Duration(c.cfg.PiggybackMaxAge) * time.Second
	pb, err := source.NewPiggybackSource(host, c.opts, c.store, maxAge, c.tracker, c.logger)
	if err != nil {
		logger.Warn("Skipping piggyback source", "error", err)
		return results
	}
	_, res := pb.Run(ctx)
	results = append(results, sourceResult{Host: host.Name, Source: pb.ID(), ServiceCheckResult: res})
	return results
}

// distribute passes on piggyback data of a successful run. Failed runs keep
// what was delivered before.
func (c *collector) distribute(ctx context.Context, hostname string, hs result.Result[*sections.HostSections], logger *slog.Logger) {
	if hs.IsErr() || c.opts.Simulation {
		return
	}
	data := hs.Unwrap().PiggybackedRawData
	if err := c.dist.Distribute(ctx, hostname, data); err != nil {
		logger.Warn("Failed to distribute piggyback data", "error", err)
		return
	}
	if len(data) > 0 {
		logger.Debug("Distributed piggyback data", "targets", len(data))
	}
}

func (c *collector) logCPU() {
	for _, phase := range c.tracker.Phases() {
		t := c.tracker.Phase(phase)
		c.logger.Debug("CPU time", "phase", phase, "user", t.User, "system", t.System, "wall", t.Wall, "calls", t.Calls)
	}
}

var stateColors = map[int]func(format string, a ...interface{}) string{
	summary.StateOK:      color.GreenString,
	summary.StateWarn:    color.YellowString,
	summary.StateCrit:    color.RedString,
	summary.StateUnknown: color.MagentaString,
}

var stateNames = map[int]string{
	summary.StateOK:      "OK",
	summary.StateWarn:    "WARN",
	summary.StateCrit:    "CRIT",
	summary.StateUnknown: "UNKNOWN",
}

// printResults writes one line per result and returns the worst state.
func printResults(w io.Writer, results []sourceResult) int {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Host < results[j].Host })

	worst := summary.StateOK
	for _, r := range results {
		name, ok := stateNames[r.Status]
		if !ok {
			name = fmt.Sprint(r.Status)
		}
		paint, ok := stateColors[r.Status]
		if !ok {
			paint = fmt.Sprintf
		}

		line := fmt.Sprintf("%s [%s] %s - %s", r.Host, r.Source, paint("%s", name), r.Output)
		if len(r.Metrics) > 0 {
			perf := make([]string, len(r.Metrics))
			for i, m := range r.Metrics {
				perf[i] = fmt.Sprintf("%s=%g", m.Name, m.Value)
			}
			line += " | " + strings.Join(perf, " ")
		}
		fmt.Fprintln(w, line)

		if stateRank(r.Status) > stateRank(worst) {
			worst = r.Status
		}
	}
	return worst
}

// stateRank orders states by severity; unknown ranks between warn and crit.
func stateRank(state int) int {
	switch state {
	case summary.StateOK:
		return 0
	case summary.StateWarn:
		return 1
	case summary.StateUnknown:
		return 2
	default:
		return 3
	}
}
