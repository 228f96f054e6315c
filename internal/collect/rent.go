package collect

import (
	"context"

	"go.uber.org/zap"

	"github.com/cafe-compass/compass-cli/internal/dataset"
	"github.com/cafe-compass/compass-cli/internal/model"
	"github.com/cafe-compass/compass-cli/pkg/usda"
)

// Rent fetches county rent for state and year and joins it onto rows by
// county. Rows whose county has no rent value are counted as skipped.
func Rent(ctx context.Context, client usda.Client, rows []model.Tract, state string, year int) (model.RunStats, error) {
	rent, err := client.RentByCounty(ctx, state, year)
	if err != nil {
		return model.RunStats{Total: len(rows), Failed: len(rows)}, err
	}
	matched := dataset.MergeRent(rows, rent)
	zap.L().Info("rent merged",
		zap.String("state", state),
		zap.Int("year", year),
		zap.Int("counties", len(rent)),
		zap.Int("matched", matched),
	)
	return model.RunStats{Total: len(rows), Succeeded: matched, Skipped: len(rows) - matched}, nil
}
