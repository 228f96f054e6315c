package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cafe-compass/compass-cli/internal/collect"
	"github.com/cafe-compass/compass-cli/internal/dataset"
	"github.com/cafe-compass/compass-cli/internal/fetcher"
	"github.com/cafe-compass/compass-cli/internal/model"
	"github.com/cafe-compass/compass-cli/internal/store"
)

var (
	collectIO    ioFlags
	collectForce bool
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Enrich the tract dataset from external sources",
	Long: "Each subcommand fills one group of columns in the tract CSV. Tracts that already have " +
		"values, or that were checkpointed by an earlier run, are skipped unless --force is set.",
}

// collectEnv is what a stage needs while it runs.
type collectEnv struct {
	st     store.Store
	svc    *services
	runner *collect.Runner
	geo    *collect.Geography
}

func (e *collectEnv) geography(ctx context.Context) (*collect.Geography, error) {
	if e.geo != nil {
		return e.geo, nil
	}
	g, err := collect.LoadGeography(ctx, fetcher.NewRouter(), cfg.Tiger)
	if err != nil {
		return nil, err
	}
	e.geo = g
	return g, nil
}

// runStage runs one named stage over rows.
func (e *collectEnv) runStage(ctx context.Context, name string, rows []model.Tract) (model.RunStats, error) {
	switch name {
	case collect.StageCounties:
		g, err := e.geography(ctx)
		if err != nil {
			return model.RunStats{}, err
		}
		return g.Counties(rows), nil

	case collect.StageCentroids:
		g, err := e.geography(ctx)
		if err != nil {
			return model.RunStats{}, err
		}
		rep, stats, err := g.Centroids(rows)
		if err == nil {
			zap.L().Info("centroids assigned", zap.Any("by_source", rep.BySource))
		}
		return stats, err

	case collect.StagePlaces:
		if err := cfg.Validate(collect.StagePlaces); err != nil {
			return model.RunStats{}, err
		}
		gc, err := e.svc.google()
		if err != nil {
			return model.RunStats{}, err
		}
		return e.runner.Run(ctx, collect.PlacesStage(collect.NewPlaceCounter(gc, cfg.Collect)), rows)

	case collect.StageMobility:
		return e.runner.Run(ctx, collect.MobilityStage(collect.NewMobility(e.svc.overpass(), cfg.Collect)), rows)

	case collect.StageRent:
		if err := cfg.Validate(collect.StageRent); err != nil {
			return model.RunStats{}, err
		}
		return collect.Rent(ctx, e.svc.usda(), rows, cfg.USDA.State, cfg.USDA.Year)

	case collect.StageTrends:
		ci := collect.NewCityInterest(e.svc.trends(), cfg.Trends.Geo, cfg.Trends.Timeframe)
		return e.runner.Run(ctx, collect.TrendsStage(ci), rows)
	}
	return model.RunStats{}, eris.Errorf("unknown stage %q", name)
}

// stageFor returns the API-backed stage by name for DLQ retries.
func (e *collectEnv) stageFor(name string) (collect.Stage, error) {
	switch name {
	case collect.StagePlaces:
		gc, err := e.svc.google()
		if err != nil {
			return collect.Stage{}, err
		}
		return collect.PlacesStage(collect.NewPlaceCounter(gc, cfg.Collect)), nil
	case collect.StageMobility:
		return collect.MobilityStage(collect.NewMobility(e.svc.overpass(), cfg.Collect)), nil
	case collect.StageTrends:
		return collect.TrendsStage(collect.NewCityInterest(e.svc.trends(), cfg.Trends.Geo, cfg.Trends.Timeframe)), nil
	}
	return collect.Stage{}, eris.Errorf("stage %q has no retryable tracts", name)
}

func newCollectEnv(ctx context.Context, force bool) (*collectEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	return &collectEnv{
		st:     st,
		svc:    newServices(cfg, st),
		runner: collect.NewRunner(st, cfg.Collect, collect.WithForce(force)),
	}, nil
}

// runCollect reads the input CSV, runs stages in order and writes the
// result after each one so an interrupted run keeps finished stages.
func runCollect(cmd *cobra.Command, stages ...string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, err := collectIO.resolve("collected")
	if err != nil {
		return err
	}
	rows, err := dataset.ReadTracts(collectIO.input)
	if err != nil {
		return err
	}

	env, err := newCollectEnv(ctx, collectForce)
	if err != nil {
		return err
	}
	defer env.st.Close() //nolint:errcheck

	for _, name := range stages {
		stats, runErr := trackRun(ctx, env.st, name, collectIO.input, func(string) (model.RunStats, error) {
			return env.runStage(ctx, name, rows)
		})
		// Keep whatever the stage collected before failing.
		if err := dataset.WriteTracts(out, rows); err != nil {
			return err
		}
		printStats(os.Stdout, name, stats)
		if runErr != nil {
			return eris.Wrapf(runErr, "collect %s", name)
		}
	}
	zap.L().Info("dataset written", zap.String("path", out), zap.Int("rows", len(rows)))
	return nil
}

func stageCommand(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCollect(cmd, name)
		},
	}
}

var collectAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Run every collect stage in order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCollect(cmd, collect.Stages...)
	},
}

func init() {
	pf := collectCmd.PersistentFlags()
	pf.StringVarP(&collectIO.input, "input", "i", "", "tract dataset CSV or XLSX")
	pf.StringVarP(&collectIO.output, "output", "o", "", "output path (default: input name with a stage suffix)")
	pf.BoolVar(&collectIO.inPlace, "in-place", false, "overwrite the input file")
	_ = collectCmd.MarkPersistentFlagRequired("input")
	pf.BoolVar(&collectForce, "force", false, "recollect tracts that already have values")

	collectCmd.AddCommand(
		stageCommand(collect.StageCounties, "Assign county codes from TIGER blocks"),
		stageCommand(collect.StageCentroids, "Resolve tract centroids"),
		stageCommand(collect.StagePlaces, "Count restaurants, coffee shops and mosques within driving range"),
		stageCommand(collect.StageMobility, "Count transit stops and compute the pedestrian score"),
		stageCommand(collect.StageRent, "Join county rent from the USDA API"),
		stageCommand(collect.StageTrends, "Fill city search interest from Google Trends"),
		collectAllCmd,
	)
	rootCmd.AddCommand(collectCmd)
}
