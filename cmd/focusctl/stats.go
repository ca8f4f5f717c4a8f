package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ownmi/focussync/internal/apiclient"
	"github.com/ownmi/focussync/internal/stats"
)

func newStatsCmd(g *globals) *cobra.Command {
	var tz string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show focus totals and per-day history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := g.api()
			if err != nil {
				return err
			}
			report, err := api.Stats(cmd.Context(), tz)
			if err != nil {
				return fmt.Errorf("failed to load stats: %w", err)
			}
			return render(cmd.OutOrStdout(), g.output, report, func(w io.Writer) error {
				return printStats(w, report)
			})
		},
	}
	cmd.Flags().StringVar(&tz, "tz", "", "IANA time zone used to split days (default UTC)")
	return cmd
}

func printStats(w io.Writer, r apiclient.StatsReport) error {
	s := r.Summary
	fmt.Fprintln(w, headerStyle.Render("Focus summary"))
	tw := newTable(w)
	fmt.Fprintf(tw, "Total sessions\t%d\n", s.TotalSessions)
	fmt.Fprintf(tw, "Total time\t%s\n", durationStyle.Render(stats.FormatDuration(s.TotalSeconds, false)))
	fmt.Fprintf(tw, "Manual sessions\t%d\n", s.ManualSessions)
	fmt.Fprintf(tw, "Average\t%s\n", stats.FormatDuration(s.AverageSeconds, false))
	if err := tw.Flush(); err != nil {
		return err
	}

	sections := []struct {
		title  string
		points []stats.Point
	}{
		{"Today", r.Buckets.Today},
		{"Last 7 days", r.Buckets.LastWeek},
		{"Last 30 days", r.Buckets.LastMonth},
		{"Last year", r.Buckets.LastYear},
	}
	for _, sec := range sections {
		if len(sec.points) == 0 {
			continue
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render(sec.title))
		tw := newTable(w)
		for _, p := range sec.points {
			fmt.Fprintf(tw, "%s\t%s\n", dimStyle.Render(p.Date), stats.FormatDuration(p.Duration, false))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
