package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/exploopio/findingscope/pkg/config"
	"github.com/exploopio/findingscope/pkg/explorer"
	"github.com/exploopio/findingscope/pkg/fetch"
	"github.com/exploopio/findingscope/pkg/kv"
	"github.com/exploopio/findingscope/pkg/logger"
	"github.com/exploopio/findingscope/pkg/metrics"
	"github.com/exploopio/findingscope/pkg/suggest"
)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	sourceURL  string
	sourceFile string
	json       bool
	noColor    bool
}

// app is the state shared by every subcommand once the configuration has
// been loaded.
type app struct {
	cfg      *config.Config
	log      *logger.ZerologLogger
	store    kv.Store
	history  *suggest.History
	metrics  *metrics.PrometheusCollector
	explorer *explorer.Explorer

	out  io.Writer
	json bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	a := &app{}

	root := &cobra.Command{
		Use:   "findingscope",
		Short: "Explore security findings from the terminal or over HTTP",
		Long: `findingscope loads a snapshot of security findings from an HTTP endpoint
or a local file and lets you search, filter and summarize it. With no
source configured it serves a built-in sample dataset.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd, opts)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	pf.StringVar(&opts.envFile, "env-file", ".env", "dotenv file with FINDINGSCOPE_* settings")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error, silent)")
	pf.StringVar(&opts.sourceURL, "url", "", "fetch findings from this URL")
	pf.StringVar(&opts.sourceFile, "file", "", "read findings from this file")
	pf.BoolVar(&opts.json, "json", false, "print JSON instead of tables")
	pf.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newServeCmd(a),
		newListCmd(a),
		newStatsCmd(a),
		newTimelineCmd(a),
		newResourcesCmd(a),
		newSearchCmd(a),
		newSuggestCmd(a),
		newHistoryCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := config.Load(opts.configPath, opts.envFile)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.sourceURL != "" || opts.sourceFile != "" {
		cfg.Source.URL, cfg.Source.File = opts.sourceURL, opts.sourceFile
		cfg.Source.Watch = cfg.Source.Watch && cfg.Source.File != ""
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if opts.noColor {
		color.NoColor = true
	}

	a.cfg = cfg
	a.out = cmd.OutOrStdout()
	a.json = opts.json
	a.log = logger.New(logger.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Component: "findingscope",
		Output:    cmd.ErrOrStderr(),
	})

	a.store, err = kv.Open(cfg.History.Backend, cfg.History.Path)
	if err != nil {
		return err
	}
	a.history, err = suggest.LoadHistory(cmd.Context(), a.store)
	if err != nil {
		a.log.Warn("recent searches ignored: %v", err)
	}

	a.metrics = metrics.NewPrometheusCollector(nil)
	a.explorer = explorer.New(a.fetcher(),
		explorer.WithHistory(a.history),
		explorer.WithLogger(a.log),
		explorer.WithMetrics(a.metrics),
		explorer.WithTimeout(cfg.Source.Timeout),
		explorer.WithRefreshLimit(cfg.Server.RefreshRate, cfg.Server.RefreshBurst),
		explorer.WithTimeline(cfg.TimelineOptions()...),
	)
	return nil
}

// fetcher returns nil when no source is configured, so the explorer falls
// back to the sample dataset.
func (a *app) fetcher() fetch.Fetcher {
	src := a.cfg.Source
	switch {
	case src.URL != "":
		return fetch.NewHTTPFetcher(src.URL,
			fetch.WithTimeout(src.Timeout),
			fetch.WithRetry(src.Retries, 500*time.Millisecond),
			fetch.WithHeader("User-Agent", "findingscope/"+Version),
			fetch.WithLogger(a.log),
		)
	case src.File != "":
		return fetch.NewFileFetcher(src.File, a.log)
	default:
		return nil
	}
}

// load runs the initial refresh and reports a fallback on stderr.
func (a *app) load(ctx context.Context) *explorer.RefreshResult {
	res := a.explorer.Refresh(ctx)
	if !res.OK && res.Fallback == explorer.FallbackSample && a.cfg.Source.URL == "" && a.cfg.Source.File == "" {
		// No source configured: the sample is expected.
		return res
	}
	if !res.OK {
		a.log.Warn("%s (%s); showing %s data", res.Message, res.Source, res.Fallback)
	}
	return res
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Skips configuration loading.
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "findingscope %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	}
}
