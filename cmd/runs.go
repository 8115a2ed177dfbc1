package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/industrial-cli/internal/industrial"
	"github.com/sells-group/industrial-cli/internal/model"
	"github.com/sells-group/industrial-cli/internal/report"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect classification run history",
	Long:  "Commands for listing, viewing, and summarizing classification runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List classification runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := openMigratedStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, model.RunFilter{
			Status: model.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run and optionally export its buildings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := openMigratedStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		if err := report.WriteSummary(os.Stdout, *run); err != nil {
			return err
		}

		withBuildings, _ := cmd.Flags().GetBool("buildings")
		only, _ := cmd.Flags().GetStringSlice("building")
		if !withBuildings && len(only) == 0 {
			return nil
		}
		output, _ := cmd.Flags().GetString("output")
		format, err := report.ParseFormat(output)
		if err != nil {
			return err
		}
		buildings, err := st.ListBuildings(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		if buildings, err = filterBuildings(buildings, only); err != nil {
			return eris.Wrap(err, "runs show")
		}
		fmt.Fprintln(os.Stdout)
		return report.Write(os.Stdout, format, buildings)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := openMigratedStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		runs, err := st.ListRuns(ctx, model.RunFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		var cutoff time.Time
		if since > 0 {
			cutoff = time.Now().Add(-since)
		}
		formatRunStats(os.Stdout, computeRunStats(runs, cutoff))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsShowCmd.Flags().Bool("buildings", false, "also print the run's industrial buildings")
	runsShowCmd.Flags().StringSlice("building", nil, "only print these buildings (way/123, relation/45); implies --buildings")
	runsShowCmd.Flags().StringP("output", "o", "csv", "building format (csv, jsonl)")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// filterBuildings keeps the buildings named by ids. No ids keeps all.
func filterBuildings(buildings []model.IndustrialBuilding, ids []string) ([]model.IndustrialBuilding, error) {
	if len(ids) == 0 {
		return buildings, nil
	}
	want := make(map[industrial.ID]bool, len(ids))
	for _, s := range ids {
		id, err := industrial.ParseID(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		want[id] = true
	}

	var out []model.IndustrialBuilding
	for _, b := range buildings {
		kind, err := industrial.ParseKind(b.OSMType)
		if err != nil {
			continue
		}
		if want[industrial.ID{Kind: kind, Ref: b.OSMID}] {
			out = append(out, b)
		}
	}
	return out, nil
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total      int
	Complete   int
	Failed     int
	Running    int
	Buildings  int
	Industrial int
	AvgDurSecs float64
}

// computeRunStats aggregates the runs created at or after cutoff. A zero
// cutoff keeps every run.
func computeRunStats(runs []model.Run, cutoff time.Time) runStats {
	var s runStats
	var totalMS int64
	var durCount int

	for _, r := range runs {
		if !cutoff.IsZero() && r.CreatedAt.Before(cutoff) {
			continue
		}
		s.Total++
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			if r.Stats != nil {
				s.Buildings += r.Stats.Buildings
				s.Industrial += r.Stats.Industrial
				totalMS += r.Stats.DurationMS
				durCount++
			}
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Running++
		}
	}

	if durCount > 0 {
		s.AvgDurSecs = float64(totalMS) / 1000 / float64(durCount)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tFORMAT\tSTATUS\tINDUSTRIAL\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t------\t----------\t-------\t--------")

	for _, r := range runs {
		industrial, dur := "-", "-"
		if r.Stats != nil {
			industrial = fmt.Sprintf("%d", r.Stats.Industrial)
			dur = (time.Duration(r.Stats.DurationMS) * time.Millisecond).Round(time.Millisecond).String()
		}

		source := r.Source
		if len(source) > 30 {
			source = "..." + source[len(source)-27:]
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			source,
			r.Format,
			r.Status,
			industrial,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.Running)
	_, _ = fmt.Fprintf(w, "Buildings read:\t%d\n", s.Buildings)
	_, _ = fmt.Fprintf(w, "Industrial found:\t%d\n", s.Industrial)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
