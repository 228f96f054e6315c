package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/cafe-compass/compass-cli/internal/dataset"
	"github.com/cafe-compass/compass-cli/internal/resilience"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and retry tracts whose collection failed",
}

var dlqFilter resilience.DLQFilter

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered tracts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := st.ListDLQ(ctx, dlqFilter)
		if err != nil {
			return eris.Wrap(err, "dlq list")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "Dead letter queue is empty.")
			return nil
		}
		formatDLQ(os.Stdout, entries)
		return nil
	},
}

var (
	dlqRetryIO    ioFlags
	dlqRetryStage string
)

var dlqRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Recollect due dead-lettered tracts for one stage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out, err := dlqRetryIO.resolve("retried")
		if err != nil {
			return err
		}
		rows, err := dataset.ReadTracts(dlqRetryIO.input)
		if err != nil {
			return err
		}
		if err := cfg.Validate(dlqRetryStage); err != nil {
			return err
		}

		env, err := newCollectEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.st.Close() //nolint:errcheck

		stage, err := env.stageFor(dlqRetryStage)
		if err != nil {
			return err
		}
		stats, err := env.runner.Retry(ctx, stage, rows)
		if err != nil {
			return err
		}
		if err := dataset.WriteTracts(out, rows); err != nil {
			return err
		}
		printStats(os.Stdout, dlqRetryStage+" retry", stats)
		return nil
	},
}

var dlqPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove dead-lettered tracts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		purged := 0
		for {
			entries, err := st.ListDLQ(ctx, dlqFilter)
			if err != nil {
				return eris.Wrap(err, "dlq purge")
			}
			if len(entries) == 0 {
				break
			}
			for _, e := range entries {
				if err := st.RemoveDLQ(ctx, e.ID); err != nil {
					return eris.Wrapf(err, "dlq purge %s", e.ID)
				}
			}
			purged += len(entries)
		}
		left, err := st.CountDLQ(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "purged %d entries, %d remain\n", purged, left)
		return nil
	},
}

func formatDLQ(out io.Writer, entries []resilience.DLQEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTAGE\tTRACT\tCITY\tTYPE\tRETRIES\tNEXT RETRY\tERROR")
	for _, e := range entries {
		msg := e.Error
		if len(msg) > 60 {
			msg = msg[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			truncateID(e.ID), e.Stage, e.TractID, e.City, e.ErrorType,
			e.RetryCount, e.MaxRetries, e.NextRetryAt.Format("2006-01-02 15:04"), msg)
	}
	_ = w.Flush()
}

func init() {
	for _, c := range []*cobra.Command{dlqListCmd, dlqPurgeCmd} {
		c.Flags().StringVar(&dlqFilter.Stage, "stage", "", "filter by collect stage")
		c.Flags().StringVar(&dlqFilter.ErrorType, "error-type", "", "filter by error type (transient, permanent)")
	}
	dlqListCmd.Flags().IntVar(&dlqFilter.Limit, "limit", 50, "max number of entries to display")

	addIOFlags(dlqRetryCmd, &dlqRetryIO, "tract dataset the failures came from")
	dlqRetryCmd.Flags().StringVar(&dlqRetryStage, "stage", "", "collect stage to retry (places, mobility, trends)")
	_ = dlqRetryCmd.MarkFlagRequired("stage")

	dlqCmd.AddCommand(dlqListCmd, dlqRetryCmd, dlqPurgeCmd)
	rootCmd.AddCommand(dlqCmd)
}
