package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/exploopio/findingscope/pkg/finding"
	"github.com/exploopio/findingscope/pkg/severity"
	"github.com/exploopio/findingscope/pkg/view"
)

// filterFlags are the --severity and --query flags shared by the commands
// that print the filtered view.
type filterFlags struct {
	severity string
	query    string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.severity, "severity", "s", view.All, "severity facet (ALL, CRITICAL, HIGH, MEDIUM, LOW or a source label)")
	cmd.Flags().StringVarP(&f.query, "query", "q", "", "case-insensitive text filter")
}

// state returns the filter for the flags. Known severities are accepted in
// any case; other labels must match the source exactly.
func (f *filterFlags) state() view.FilterState {
	return view.FilterState{Severity: severityLabel(f.severity), Query: strings.TrimSpace(f.query)}
}

func severityLabel(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, view.All) {
		return view.All
	}
	if lvl := severity.Parse(s); lvl.IsKnown() {
		return lvl.Label()
	}
	return s
}

const (
	sortSource   = "source"
	sortSeverity = "severity"
)

// bySeverity returns a copy of list ordered from the most to the least
// severe level. Findings of equal severity keep their source order.
func bySeverity(list []finding.Finding) []finding.Finding {
	out := slices.Clone(list)
	slices.SortStableFunc(out, func(a, b finding.Finding) int {
		switch {
		case a.Severity.IsHigherThan(b.Severity):
			return -1
		case b.Severity.IsHigherThan(a.Severity):
			return 1
		default:
			return 0
		}
	})
	return out
}

func newListCmd(a *app) *cobra.Command {
	var (
		ff    filterFlags
		order string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List findings, optionally filtered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if order != sortSource && order != sortSeverity {
				return fmt.Errorf("invalid --sort %q (want %s or %s)", order, sortSource, sortSeverity)
			}
			a.load(cmd.Context())
			d := a.explorer.SetFilter(ff.state())
			list := d.View
			if order == sortSeverity {
				list = bySeverity(list)
			}
			if a.json {
				return a.printJSON(list)
			}
			a.printFindings(list, d.Stats.Total)
			return nil
		},
	}
	ff.register(cmd)
	cmd.Flags().StringVar(&order, "sort", sortSource, "row order: source or severity")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show severity counts over the whole snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.load(cmd.Context())
			d := a.explorer.Dashboard()
			if a.json {
				return a.printJSON(map[string]any{"stats": d.Stats, "shares": d.Shares, "facets": d.Facets})
			}
			a.printStats(d.Stats, d.Shares)
			return nil
		},
	}
}

func newTimelineCmd(a *app) *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Show findings per day for the last week of the snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.load(cmd.Context())
			d := a.explorer.SetFilter(ff.state())
			if a.json {
				return a.printJSON(d.Timeline)
			}
			a.printTimeline(d.Timeline)
			return nil
		},
	}
	ff.register(cmd)
	return cmd
}

func newResourcesCmd(a *app) *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "resources",
		Short: "Show the services with the most findings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.load(cmd.Context())
			d := a.explorer.SetFilter(ff.state())
			if a.json {
				return a.printJSON(d.Resources)
			}
			a.printResources(d.Resources)
			return nil
		},
	}
	ff.register(cmd)
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	var (
		limit int
		save  bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Fuzzy-search titles, descriptions, severities and resources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := strings.Join(args, " ")
			a.load(cmd.Context())
			if save {
				if _, err := a.explorer.Submit(cmd.Context(), q); err != nil {
					a.log.Warn("save recent search: %v", err)
				}
			}
			results := a.explorer.Search(q)
			if limit > 0 && len(results) > limit {
				results = results[:limit]
			}
			if a.json {
				return a.printJSON(results)
			}
			a.printResults(results)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum results (0 for all)")
	cmd.Flags().BoolVar(&save, "save", false, "record the query in the recent searches")
	return cmd
}

func newSuggestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest [query]",
		Short: "Show the search suggestions for a partial query",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.load(cmd.Context())
			list := a.explorer.Suggest(strings.Join(args, " "))
			if a.json {
				return a.printJSON(list)
			}
			a.printSuggestions(list)
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var wipe bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show or clear the recent searches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if wipe {
				return a.explorer.ClearHistory(cmd.Context())
			}
			recent := a.explorer.Recent()
			if a.json {
				return a.printJSON(recent)
			}
			a.printHistory(recent)
			return nil
		},
	}
	cmd.Flags().BoolVar(&wipe, "clear", false, "forget all recent searches")
	return cmd
}
