package main

import (
	"fmt"
	"os"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/cafe-compass/compass-cli/internal/collect"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Maintain the response cache and collection checkpoints",
}

var storePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired API responses from the cache",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.DeleteExpired(ctx)
		if err != nil {
			return eris.Wrap(err, "store prune")
		}
		_, _ = fmt.Fprintf(os.Stdout, "deleted %d expired cache entries\n", n)
		return nil
	},
}

var storeResetCmd = &cobra.Command{
	Use:   "reset <stage>",
	Short: "Clear a collect stage's checkpoints so the next run recollects every tract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stage := args[0]
		if !slices.Contains(collect.Stages, stage) {
			return eris.Errorf("unknown stage %q", stage)
		}

		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ClearProgress(ctx, stage)
		if err != nil {
			return eris.Wrap(err, "store reset")
		}
		_, _ = fmt.Fprintf(os.Stdout, "cleared %d %s checkpoints\n", n, stage)
		return nil
	},
}

func init() {
	storeCmd.AddCommand(storePruneCmd, storeResetCmd)
	rootCmd.AddCommand(storeCmd)
}
