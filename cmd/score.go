package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cafe-compass/compass-cli/internal/dataset"
	"github.com/cafe-compass/compass-cli/internal/features"
	"github.com/cafe-compass/compass-cli/internal/model"
)

var prepareIO ioFlags

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Drop incomplete tracts, bracket income and density, and scale numeric columns",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, err := prepareIO.resolve("cleaned")
		if err != nil {
			return err
		}
		tracts, err := dataset.ReadTracts(prepareIO.input)
		if err != nil {
			return err
		}

		rows, rep := features.Prepare(tracts)
		if err := dataset.WriteCSV(out, rows); err != nil {
			return err
		}
		formatPrepareReport(os.Stdout, rep)
		return nil
	},
}

var (
	scoreIO       ioFlags
	scoreFeatures string
	scoreXLSX     string
	scoreTop      int
	scoreSave     bool
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Engineer features and rank tracts by success score",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		weights := features.WeightsFromConfig(cfg.Scoring)
		if err := weights.Validate(); err != nil {
			return err
		}
		out, err := scoreIO.resolve("scored")
		if err != nil {
			return err
		}
		featuresPath, err := sidePath(scoreIO.input, scoreFeatures, "features", ".csv", out)
		if err != nil {
			return err
		}
		if scoreXLSX != "" {
			if _, err := sidePath(scoreIO.input, scoreXLSX, "", "", out, featuresPath); err != nil {
				return err
			}
		}
		tracts, err := dataset.ReadTracts(scoreIO.input)
		if err != nil {
			return err
		}

		prepared, rep := features.Prepare(tracts)
		formatPrepareReport(os.Stdout, rep)
		featured := features.AddFeatures(prepared)

		if err := dataset.WriteCSV(featuresPath, featured); err != nil {
			return err
		}

		scored, err := features.Score(featured, weights)
		if err != nil {
			return err
		}
		if err := dataset.WriteCSV(out, scored); err != nil {
			return err
		}

		top := scoreTop
		if top <= 0 {
			top = cfg.Scoring.TopN
		}
		if scoreXLSX != "" {
			if err := writeRankingXLSX(scoreXLSX, scored); err != nil {
				return err
			}
		}
		formatTopTracts(os.Stdout, features.TopN(scored, top))
		formatSummary(os.Stdout, features.Summarize(scored))

		if !scoreSave {
			return nil
		}
		return publishScores(ctx, "score", scoreIO.input, len(tracts), scored)
	},
}

// publishScores upserts scored rows into the store under a new run.
func publishScores(ctx context.Context, stage, input string, total int, rows []features.Scored) error {
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	_, err = trackRun(ctx, st, stage, input, func(runID string) (model.RunStats, error) {
		n, err := st.SaveScores(ctx, features.ToTractScores(runID, rows))
		return model.RunStats{Total: total, Succeeded: int(n), Skipped: total - len(rows)}, err
	})
	if err == nil {
		zap.L().Info("scores published", zap.String("stage", stage), zap.Int("tracts", len(rows)))
	}
	return err
}

// rankingHeader is the XLSX ranking layout.
var rankingHeader = []string{"Rank", "Tract Code (id)", "City", "county_id", "success_score", "mosque_index", "potential_demand_index", "affordability_index", "pedestrian_score", "coffee_shop_density"}

func writeRankingXLSX(path string, rows []features.Scored) error {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	table := make([][]string, len(rows))
	for i := range rows {
		r := &rows[i]
		table[i] = []string{
			strconv.Itoa(i + 1), r.TractID, r.City, r.CountyID, f(r.SuccessScore),
			f(r.MosqueIndex), f(r.PotentialDemandIndex), f(r.AffordabilityIndex),
			f(r.PedestrianScore), f(r.CoffeeShopDensity),
		}
	}
	return dataset.WriteXLSX(path, "Ranking", rankingHeader, table)
}

func formatPrepareReport(out io.Writer, rep features.PrepareReport) {
	_, _ = fmt.Fprintf(out, "prepared %d of %d tracts (%d dropped)\n", rep.Kept, rep.Input, len(rep.Dropped))
	if len(rep.Dropped) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, col := range append([]string{"lat", "lon"}, features.NumericColumns...) {
		if n := rep.MissingByColumn[col]; n > 0 {
			_, _ = fmt.Fprintf(w, "  missing %s:\t%d\n", col, n)
		}
	}
	_ = w.Flush()
}

// formatTopTracts writes the ranking table.
func formatTopTracts(out io.Writer, rows []features.Scored) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tTract Code (id)\tCity\tsuccess_score")
	for i := range rows {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%.4f\n", i+1, rows[i].TractID, rows[i].City, rows[i].SuccessScore)
	}
	_ = w.Flush()
}

func formatSummary(out io.Writer, s features.Summary) {
	_, _ = fmt.Fprintf(out, "scores: n=%d min=%.4f max=%.4f mean=%.4f std=%.4f\n", s.Count, s.Min, s.Max, s.Mean, s.StdDev)
}

func init() {
	addIOFlags(prepareCmd, &prepareIO, "collected tract CSV or XLSX")

	addIOFlags(scoreCmd, &scoreIO, "collected tract CSV or XLSX")
	scoreCmd.Flags().StringVar(&scoreFeatures, "features", "", "features CSV path (default: input name with _features)")
	scoreCmd.Flags().StringVar(&scoreXLSX, "xlsx", "", "also write the ranking to this XLSX file")
	scoreCmd.Flags().IntVar(&scoreTop, "top", 0, "number of tracts to print (default from config)")
	scoreCmd.Flags().BoolVar(&scoreSave, "save", false, "publish scores to the store for the map server")

	rootCmd.AddCommand(prepareCmd, scoreCmd)
}
