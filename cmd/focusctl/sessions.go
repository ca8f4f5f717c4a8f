package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ownmi/focussync/internal/apiclient"
	"github.com/ownmi/focussync/internal/records"
	"github.com/ownmi/focussync/internal/stats"
)

func newSessionsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session", "s"},
		Short:   "List and manage recorded focus sessions",
	}
	cmd.AddCommand(newSessionsListCmd(g), newSessionsAddCmd(g), newSessionsEditCmd(g), newSessionsDeleteCmd(g))
	return cmd
}

func newSessionsListCmd(g *globals) *cobra.Command {
	var (
		from, to string
		opts     apiclient.ListOptions
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.From, err = parseOptionalTime(from); err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			if opts.To, err = parseOptionalTime(to); err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			if _, err := records.ParseManualFilter(opts.Manual); err != nil {
				return err
			}
			api, err := g.api()
			if err != nil {
				return err
			}
			recs, err := api.List(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			return render(cmd.OutOrStdout(), g.output, recs, func(w io.Writer) error {
				return printRecords(w, recs)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&from, "from", "", "Only sessions starting at or after this RFC3339 time")
	f.StringVar(&to, "to", "", "Only sessions starting before this RFC3339 time")
	f.StringVar(&opts.Manual, "manual", "all", "Filter by origin: all|manual|automatic")
	f.Float64Var(&opts.MinHours, "min-hours", 0, "Minimum duration in hours")
	f.Float64Var(&opts.MaxHours, "max-hours", 0, "Maximum duration in hours")
	return cmd
}

// rangeFlags are the --start/--end/--duration flags shared by add and edit.
type rangeFlags struct {
	start, end string
	duration   time.Duration
}

func (r *rangeFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&r.start, "start", "", "Start time (RFC3339)")
	f.StringVar(&r.end, "end", "", "End time (RFC3339)")
	f.DurationVar(&r.duration, "duration", 0, "Length of the session, instead of --end")
	_ = cmd.MarkFlagRequired("start")
	cmd.MarkFlagsMutuallyExclusive("end", "duration")
}

func (r *rangeFlags) resolve() (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, r.start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--start: %w", err)
	}
	if r.duration != 0 {
		return start, start.Add(r.duration), nil
	}
	if r.end == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("one of --end or --duration is required")
	}
	end, err := time.Parse(time.RFC3339, r.end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--end: %w", err)
	}
	return start, end, nil
}

func newSessionsAddCmd(g *globals) *cobra.Command {
	var rf rangeFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a session manually (up to 10 hours)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := rf.resolve()
			if err != nil {
				return err
			}
			api, err := g.api()
			if err != nil {
				return err
			}
			rec, err := api.Add(cmd.Context(), start, end)
			if err != nil {
				return fmt.Errorf("failed to add session: %w", err)
			}
			return render(cmd.OutOrStdout(), g.output, rec, func(w io.Writer) error {
				return printRecords(w, []records.Record{rec})
			})
		},
	}
	rf.register(cmd)
	return cmd
}

func newSessionsEditCmd(g *globals) *cobra.Command {
	var rf rangeFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change the times of a manually added session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := rf.resolve()
			if err != nil {
				return err
			}
			api, err := g.api()
			if err != nil {
				return err
			}
			rec, err := api.Edit(cmd.Context(), args[0], start, end)
			if err != nil {
				return fmt.Errorf("failed to edit session: %w", err)
			}
			return render(cmd.OutOrStdout(), g.output, rec, func(w io.Writer) error {
				return printRecords(w, []records.Record{rec})
			})
		},
	}
	rf.register(cmd)
	return cmd
}

func newSessionsDeleteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a recorded session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := g.api()
			if err != nil {
				return err
			}
			if err := api.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to delete session: %w", err)
			}
			result := map[string]string{"deleted": args[0]}
			return render(cmd.OutOrStdout(), g.output, result, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, okStyle.Render("deleted ")+idStyle.Render(args[0]))
				return err
			})
		},
	}
}

func printRecords(w io.Writer, recs []records.Record) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(w, headerStyle.Render("No sessions found"))
		return err
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d session(s)", len(recs))))
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tSTART\tEND\tDURATION\tORIGIN")
	for _, rec := range recs {
		origin := dimStyle.Render("tracked")
		if rec.ManuallyAdded {
			origin = manualStyle.Render("manual")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			idStyle.Render(rec.ID),
			rec.StartTime.Local().Format("2006-01-02 15:04"),
			rec.EndTime.Local().Format("15:04"),
			durationStyle.Render(stats.FormatDuration(rec.DurationSeconds, false)),
			origin,
		)
	}
	return tw.Flush()
}

func parseOptionalTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}
