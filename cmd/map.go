package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/cafe-compass/compass-cli/internal/dataset"
	"github.com/cafe-compass/compass-cli/internal/features"
	"github.com/cafe-compass/compass-cli/internal/mapview"
	"github.com/cafe-compass/compass-cli/internal/model"
	"github.com/cafe-compass/compass-cli/internal/store"
)

var (
	mapInput     string
	mapShops     string
	mapColumn    string
	mapOutput    string
	mapFromStore bool
)

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Render scored tracts and known shops to an HTML map",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		var scores []model.TractScore
		switch {
		case mapFromStore:
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			scores, err = st.ListScores(ctx, store.ScoreFilter{Limit: maxScoreRows})
			if err != nil {
				return err
			}
		case mapInput != "":
			rows, err := dataset.ReadCSV[features.Scored](mapInput)
			if err != nil {
				return err
			}
			scores = features.ToTractScores("", rows)
		default:
			return eris.New("map needs --input or --from-store")
		}

		known, err := loadShops(mapShops)
		if err != nil {
			return err
		}
		page, err := mapview.NewPage(scores, known, cfg.Map, mapColumn)
		if err != nil {
			return err
		}

		f, err := os.Create(mapOutput)
		if err != nil {
			return eris.Wrapf(err, "create %s", mapOutput)
		}
		if err := mapview.Render(f, page); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrapf(err, "close %s", mapOutput)
		}
		_, _ = fmt.Fprintf(os.Stdout, "map of %d tracts and %d shops written to %s\n", len(page.Tracts), len(page.Shops), mapOutput)
		return nil
	},
}

// maxScoreRows bounds how many published scores a map loads.
const maxScoreRows = 10000

// loadShops reads the shop survey. An empty path means no shops.
func loadShops(path string) ([]model.Shop, error) {
	if path == "" {
		return nil, nil
	}
	return dataset.ReadCSV[model.Shop](path)
}

func init() {
	mapCmd.Flags().StringVarP(&mapInput, "input", "i", "", "scored tract CSV")
	mapCmd.Flags().BoolVar(&mapFromStore, "from-store", false, "read scores published with score --save")
	mapCmd.Flags().StringVar(&mapShops, "shops", "", "shop survey CSV to pin on the map")
	mapCmd.Flags().StringVar(&mapColumn, "column", mapview.ColumnScore, "value to color tracts by (success_score, success_probability)")
	mapCmd.Flags().StringVarP(&mapOutput, "output", "o", "yemeni_coffee_success_map.html", "HTML output path")

	rootCmd.AddCommand(mapCmd)
}
