package collect

import (
	"context"
	"maps"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cafe-compass/compass-cli/internal/config"
	"github.com/cafe-compass/compass-cli/internal/fetcher"
	"github.com/cafe-compass/compass-cli/internal/geo"
	"github.com/cafe-compass/compass-cli/internal/model"
	"github.com/cafe-compass/compass-cli/internal/tiger"
)

// Geography holds the block data the county and centroid stages use.
type Geography struct {
	Blocks    []tiger.Block
	Centers   *geo.CensusCenters
	CountyMap map[string]string
	order     []string
}

// LoadGeography reads the TIGER block shapefile, downloading it when no
// local path is configured, and the optional census mean-center table.
func LoadGeography(ctx context.Context, f fetcher.Fetcher, cfg config.TigerConfig) (*Geography, error) {
	log := zap.L().With(zap.String("component", "collect.geography"))

	shpPath := cfg.BlockShapefile
	if shpPath == "" {
		base := cfg.BaseURL
		if base == "" {
			base = tiger.DefaultBaseURL
		}
		url := tiger.BlockURL(base, cfg.Year, cfg.StateFIPS)
		dir := cfg.TempDir
		if dir == "" {
			dir = os.TempDir()
		}
		log.Info("fetching block shapefile", zap.String("url", url))
		p, err := tiger.Download(ctx, f, url, dir)
		if err != nil {
			return nil, err
		}
		shpPath = p
	}

	blocks, err := tiger.ReadBlocks(shpPath)
	if err != nil {
		return nil, err
	}

	overrides := maps.Clone(tiger.DefaultCountyOverrides)
	maps.Copy(overrides, cfg.CountyOverride)

	g := &Geography{
		Blocks:    blocks,
		CountyMap: tiger.BuildCountyMapping(blocks, overrides),
		order:     cfg.CentroidOrder,
	}

	if cfg.CentersCSV != "" {
		fh, err := os.Open(cfg.CentersCSV)
		if err != nil {
			return nil, eris.Wrapf(err, "collect: open census centers %s", cfg.CentersCSV)
		}
		defer fh.Close() //nolint:errcheck
		g.Centers, err = geo.LoadCensusCenters(ctx, fh)
		if err != nil {
			return nil, err
		}
	}

	log.Info("geography loaded",
		zap.Int("blocks", len(blocks)),
		zap.Int("mapped_tracts", len(g.CountyMap)),
		zap.Bool("census_centers", g.Centers != nil),
	)
	return g, nil
}

// Resolver returns a centroid resolver over the loaded sources in the
// configured order.
func (g *Geography) Resolver() (*geo.Resolver, error) {
	available := map[string]geo.CentroidSource{
		geo.SourceBlock: geo.NewBlockIndex(g.Blocks),
		geo.SourceShape: geo.NewShapeCentroids(g.Blocks),
	}
	if g.Centers != nil {
		available[geo.SourceCensus] = g.Centers
	}
	order := g.order
	if len(order) == 0 {
		order = []string{geo.SourceBlock, geo.SourceCensus}
	}
	return geo.NewResolverFromOrder(order, available)
}

// Counties fills county_id on rows that lack one and returns the stats.
func (g *Geography) Counties(rows []model.Tract) model.RunStats {
	missing := geo.AssignCounties(rows, g.CountyMap)
	stats := model.RunStats{Total: len(rows), Failed: len(missing)}
	stats.Succeeded = stats.Total - stats.Failed
	if len(missing) > 0 {
		zap.L().Warn("tracts without county", zap.Int("count", len(missing)), zap.Strings("tracts", missing))
	}
	return stats
}

// Centroids fills coordinates on rows that lack them.
func (g *Geography) Centroids(rows []model.Tract) (geo.AssignReport, model.RunStats, error) {
	r, err := g.Resolver()
	if err != nil {
		return geo.AssignReport{}, model.RunStats{}, err
	}
	rep := geo.AssignCentroids(rows, g.CountyMap, r)
	stats := model.RunStats{
		Total:     len(rows),
		Succeeded: rep.Located,
		Skipped:   rep.Skipped,
		Failed:    len(rep.NoCounty) + len(rep.NoCentroid),
	}
	return rep, stats, nil
}
