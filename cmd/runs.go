package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/cafe-compass/compass-cli/internal/model"
	"github.com/cafe-compass/compass-cli/internal/monitoring"
	"github.com/cafe-compass/compass-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stage run history",
	Long:  "Commands for listing, viewing, and summarizing stage runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stage runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stage, _ := cmd.Flags().GetString("stage")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Stage:  stage,
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
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics per stage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

// -- runs check --

var runsCheckHours int

var runsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check collection health and send alerts to the configured webhook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hours := runsCheckHours
		if hours <= 0 {
			hours = cfg.Monitoring.LookbackWindowHours
		}
		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "runs check")
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerts := alerter.Evaluate(snap)
		formatHealth(os.Stdout, snap, alerts)
		if sent := alerter.SendAlerts(ctx, alerts); sent > 0 {
			fmt.Fprintf(os.Stdout, "sent %d of %d alerts\n", sent, len(alerts))
		}
		return nil
	},
}

func init() {
	runsCheckCmd.Flags().IntVar(&runsCheckHours, "hours", 0, "lookback window in hours (default from config)")

	runsListCmd.Flags().String("stage", "", "filter by stage (places, mobility, score, ...)")
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsCheckCmd)
	rootCmd.AddCommand(runsCmd)
}

// stageStats aggregates the runs of one stage.
type stageStats struct {
	Stage      string
	Runs       int
	Complete   int
	Failed     int
	Tracts     model.RunStats
	AvgDurSecs float64
}

// computeRunStats groups runs by stage, in first-seen order.
func computeRunStats(runs []model.Run) []stageStats {
	var out []stageStats
	idx := make(map[string]int)
	durs := make(map[string]time.Duration)
	counted := make(map[string]int)

	for _, r := range runs {
		i, ok := idx[r.Stage]
		if !ok {
			i = len(out)
			idx[r.Stage] = i
			out = append(out, stageStats{Stage: r.Stage})
		}
		s := &out[i]
		s.Runs++
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			durs[r.Stage] += r.UpdatedAt.Sub(r.CreatedAt)
			counted[r.Stage]++
		case model.RunStatusFailed:
			s.Failed++
		}
		s.Tracts.Total += r.Stats.Total
		s.Tracts.Succeeded += r.Stats.Succeeded
		s.Tracts.Skipped += r.Stats.Skipped
		s.Tracts.Failed += r.Stats.Failed
	}

	for i := range out {
		if n := counted[out[i].Stage]; n > 0 {
			out[i].AvgDurSecs = durs[out[i].Stage].Seconds() / float64(n)
		}
	}
	return out
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTAGE\tSTATUS\tTRACTS\tOK\tSKIP\tFAIL\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t------\t--\t----\t----\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.Stage,
			r.Status,
			r.Stats.Total,
			r.Stats.Succeeded,
			r.Stats.Skipped,
			r.Stats.Failed,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes per-stage aggregates to w.
func formatRunStats(out io.Writer, stats []stageStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tRUNS\tCOMPLETE\tFAILED\tTRACTS OK\tTRACTS FAILED\tAVG DURATION")
	for _, s := range stats {
		avg := "-"
		if s.AvgDurSecs > 0 {
			avg = fmt.Sprintf("%.1fs", s.AvgDurSecs)
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			s.Stage, s.Runs, s.Complete, s.Failed, s.Tracts.Succeeded, s.Tracts.Failed, avg)
	}
	_ = w.Flush()
}

// formatHealth writes a collection health snapshot and its alerts to w.
func formatHealth(out io.Writer, snap *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\tlast %dh\n", snap.LookbackHours)
	_, _ = fmt.Fprintf(w, "Runs:\t%d (%d complete, %d failed, %d running)\n",
		snap.RunsTotal, snap.RunsComplete, snap.RunsFailed, snap.RunsRunning)
	_, _ = fmt.Fprintf(w, "Run failure rate:\t%.1f%%\n", snap.RunFailRate*100)
	_, _ = fmt.Fprintf(w, "Tracts failed:\t%d of %d (%.1f%%)\n",
		snap.TractsFailed, snap.TractsTotal, snap.TractFailRate*100)
	_, _ = fmt.Fprintf(w, "Dead letters:\t%d (%d permanent)\n", snap.DLQDepth, snap.DLQPermanent)
	_ = w.Flush()

	if len(alerts) == 0 {
		_, _ = fmt.Fprintln(out, "OK: no thresholds breached")
		return
	}
	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "ALERT [%s] %s: %s\n", a.Severity, a.Type, a.Message)
	}
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
