package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cafe-compass/compass-cli/internal/config"
	"github.com/cafe-compass/compass-cli/internal/model"
	"github.com/cafe-compass/compass-cli/internal/resilience"
	"github.com/cafe-compass/compass-cli/internal/store"
	"github.com/cafe-compass/compass-cli/pkg/google"
	"github.com/cafe-compass/compass-cli/pkg/overpass"
	"github.com/cafe-compass/compass-cli/pkg/trends"
	"github.com/cafe-compass/compass-cli/pkg/usda"
)

// initStore opens the configured store and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

// services builds API clients that share one breaker registry, so a
// service tripping in one stage fails fast in the next.
type services struct {
	cfg      *config.Config
	cache    store.Store
	breakers *resilience.ServiceBreakers
	retry    resilience.RetryConfig
}

func newServices(c *config.Config, cache store.Store) *services {
	return &services{
		cfg:      c,
		cache:    cache,
		breakers: resilience.NewServiceBreakers(resilience.FromCollectConfig(c.Collect)),
		retry:    resilience.FromRetryConfig(c.Retry),
	}
}

func (s *services) guard(service string, ratePerSecond float64) *resilience.Guard {
	return resilience.NewGuard(service, ratePerSecond, s.breakers, s.retry)
}

func (s *services) google() (google.Client, error) {
	gc := s.cfg.Google
	client, err := google.NewClient(gc.Key,
		google.WithBaseURL(gc.BaseURL),
		google.WithMaxPages(gc.MaxPages),
		google.WithGuard(s.guard("google", gc.RatePerSecond)),
	)
	if err != nil {
		return nil, err
	}
	if s.cache == nil {
		return client, nil
	}
	ttl := time.Duration(s.cfg.Store.CacheTTLHrs) * time.Hour
	return google.NewCachedClient(client, s.cache, ttl), nil
}

func (s *services) overpass() overpass.Client {
	oc := s.cfg.Overpass
	return overpass.NewClient(
		overpass.WithURL(oc.URL),
		overpass.WithTimeout(oc.TimeoutSecs),
		overpass.WithGuard(s.guard("overpass", oc.RatePerSecond)),
	)
}

func (s *services) trends() trends.Client {
	tc := s.cfg.Trends
	return trends.NewClient(
		trends.WithBaseURL(tc.BaseURL),
		trends.WithLocale(tc.Language, tc.TZOffset),
		trends.WithGuard(s.guard("trends", 0.5)),
	)
}

func (s *services) usda() usda.Client {
	uc := s.cfg.USDA
	return usda.NewClient(uc.Key,
		usda.WithBaseURL(uc.BaseURL),
		usda.WithGuard(s.guard("usda", 1)),
	)
}

// ioFlags are the input/output flags every file-producing command shares.
type ioFlags struct {
	input   string
	output  string
	inPlace bool
}

func addIOFlags(cmd *cobra.Command, f *ioFlags, inputHelp string) {
	cmd.Flags().StringVarP(&f.input, "input", "i", "", inputHelp)
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output path (default: input name with a stage suffix)")
	cmd.Flags().BoolVar(&f.inPlace, "in-place", false, "overwrite the input file")
	_ = cmd.MarkFlagRequired("input")
}

// resolve returns the output path for a stage.
func (f *ioFlags) resolve(suffix string) (string, error) {
	return outputPath(f.input, f.output, suffix, f.inPlace)
}

// outputPath picks where a stage writes. Stages always write CSV, and
// without --in-place the result never equals the input.
func outputPath(input, output, suffix string, inPlace bool) (string, error) {
	if inPlace {
		if output != "" && filepath.Clean(output) != filepath.Clean(input) {
			return "", eris.New("--in-place and --output are mutually exclusive")
		}
		if !strings.EqualFold(filepath.Ext(input), ".csv") {
			return "", eris.Errorf("--in-place needs a CSV input, got %s", input)
		}
		return input, nil
	}
	if output == "" {
		output = derivedPath(input, suffix, ".csv")
	}
	if filepath.Clean(output) == filepath.Clean(input) {
		return "", eris.Errorf("output %s would overwrite the input; pass --in-place", output)
	}
	return output, nil
}

// sidePath resolves an auxiliary output such as the features CSV or a
// model file. An empty path derives one from input with suffix and ext.
// The result may not replace the input or any path in taken, even with
// --in-place.
func sidePath(input, path, suffix, ext string, taken ...string) (string, error) {
	if path == "" {
		path = derivedPath(input, suffix, ext)
	}
	for _, other := range append([]string{input}, taken...) {
		if other != "" && filepath.Clean(path) == filepath.Clean(other) {
			return "", eris.Errorf("%s would overwrite %s", path, other)
		}
	}
	return path, nil
}

// derivedPath names a sibling file of input with suffix and ext.
func derivedPath(input, suffix, ext string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + "_" + suffix + ext
}

// trackRun records one stage invocation in the run log. A nil store runs
// fn untracked.
func trackRun(ctx context.Context, st store.Store, stage, input string, fn func(runID string) (model.RunStats, error)) (model.RunStats, error) {
	if st == nil {
		return fn("")
	}
	run, err := st.CreateRun(ctx, stage, input)
	if err != nil {
		return model.RunStats{}, eris.Wrap(err, "create run")
	}

	stats, runErr := fn(run.ID)
	// Record the outcome even when the command context was cancelled.
	if err := st.CompleteRun(context.WithoutCancel(ctx), run.ID, stats, runErr); err != nil {
		zap.L().Warn("complete run failed", zap.String("run_id", run.ID), zap.Error(err))
	}
	zap.L().Info("run finished",
		zap.String("run_id", run.ID),
		zap.String("stage", stage),
		zap.Int("total", stats.Total),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, runErr
}

func printStats(w io.Writer, stage string, s model.RunStats) {
	_, _ = fmt.Fprintf(w, "%s: %d total, %d succeeded, %d skipped, %d failed\n",
		stage, s.Total, s.Succeeded, s.Skipped, s.Failed)
}
