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
	"github.com/cafe-compass/compass-cli/internal/model"
	"github.com/cafe-compass/compass-cli/internal/shops"
)

var shopsCmd = &cobra.Command{
	Use:   "shops",
	Short: "Survey known Yemeni coffee shops",
}

var shopsOutput string

var shopsCollectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Search for shops around each search point and judge their success",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("shops"); err != nil {
			return err
		}
		points, err := shops.LoadPoints(cfg.Shops.PointsFile)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		client, err := newServices(cfg, st).google()
		if err != nil {
			return err
		}

		var found []model.Shop
		_, err = trackRun(ctx, st, "shops", cfg.Shops.Keyword, func(string) (model.RunStats, error) {
			var rep shops.Report
			var err error
			found, rep, err = shops.Collect(ctx, client, points, cfg.Shops.Keyword, uint(max(cfg.Shops.RadiusM, 0)), cfg.Shops.MinSuccesses)
			return model.RunStats{
				Total:     rep.Found,
				Succeeded: len(found),
				Skipped:   rep.Duplicates,
				Failed:    rep.DetailErrors,
			}, err
		})
		if err != nil {
			return eris.Wrap(err, "shops collect")
		}

		if err := dataset.WriteCSV(shopsOutput, found); err != nil {
			return err
		}
		formatShops(os.Stdout, found)
		return nil
	},
}

var (
	shopsInput   string
	shopsMinimum int
)

var shopsEvaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Rejudge a shop survey with a different success threshold",
	RunE: func(cmd *cobra.Command, _ []string) error {
		found, err := dataset.ReadCSV[model.Shop](shopsInput)
		if err != nil {
			return err
		}
		minimum := shopsMinimum
		if minimum <= 0 {
			minimum = cfg.Shops.MinSuccesses
		}
		shops.Mark(found, minimum)
		formatShops(os.Stdout, found)
		return nil
	},
}

// formatShops writes one line per shop with its success criteria.
func formatShops(out io.Writer, list []model.Shop) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tCOUNTY\tRATING\tREVIEWS\tSCORE\tSUCCESSFUL")
	successful := 0
	for i := range list {
		s := &list[i]
		name := s.Name
		if len(name) > 40 {
			name = name[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.1f\t%d\t%d\t%t\n",
			name, s.County, s.Rating, s.UserRatingsTotal, shops.Evaluate(s).Score(), s.IsSuccessful)
		if s.IsSuccessful {
			successful++
		}
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "%d shops, %d successful\n", len(list), successful)
}

func init() {
	shopsCollectCmd.Flags().StringVarP(&shopsOutput, "output", "o", "yemeni_coffee_shops.csv", "shop survey CSV")

	shopsEvaluateCmd.Flags().StringVarP(&shopsInput, "input", "i", "yemeni_coffee_shops.csv", "shop survey CSV")
	shopsEvaluateCmd.Flags().IntVar(&shopsMinimum, "min-successes", 0, "criteria a shop must meet (default from config)")

	shopsCmd.AddCommand(shopsCollectCmd, shopsEvaluateCmd)
	rootCmd.AddCommand(shopsCmd)
}
